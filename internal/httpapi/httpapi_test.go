package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperstructure/ingestor/internal/geocode"
	"github.com/hyperstructure/ingestor/internal/geospatial"
	"github.com/hyperstructure/ingestor/internal/graph"
	"github.com/hyperstructure/ingestor/internal/graphwriter"
	"github.com/hyperstructure/ingestor/internal/ingestion"
	"github.com/hyperstructure/ingestor/internal/llmclient"
	"github.com/hyperstructure/ingestor/internal/qa"
)

// fakeOrchestrator replays a canned event slice regardless of input text.
type fakeOrchestrator struct {
	events []ingestion.Event
}

func (f *fakeOrchestrator) ProcessText(ctx context.Context, text string) <-chan ingestion.Event {
	ch := make(chan ingestion.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

// fakeGraphClient is a scripted double for the Server's GraphClient
// dependency.
type fakeGraphClient struct {
	records     []graph.HyperedgeRecord
	detail      *graph.HyperedgeRecord
	clearCalled bool
	lastArea    geospatial.Ring
	lastCenter  [2]float64
	lastNames   []string
}

func (f *fakeGraphClient) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeGraphClient) RunRead(ctx context.Context, operation, query string, params map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func (f *fakeGraphClient) Clear(ctx context.Context) error {
	f.clearCalled = true
	return nil
}

func (f *fakeGraphClient) QuerySpatiotemporal(ctx context.Context, q graph.SpatiotemporalQuery) ([]graph.HyperedgeRecord, error) {
	return f.records, nil
}

func (f *fakeGraphClient) QueryBySpatialDistance(ctx context.Context, center [2]float64, radiusKM float64, includeUnconstrained bool) ([]graph.HyperedgeRecord, error) {
	f.lastCenter = center
	return f.records, nil
}

func (f *fakeGraphClient) QueryByLocationName(ctx context.Context, names []string, includeUnconstrained bool) ([]graph.HyperedgeRecord, error) {
	f.lastNames = names
	return f.records, nil
}

func (f *fakeGraphClient) QueryBySpatialArea(ctx context.Context, areaRing geospatial.Ring) ([]graph.HyperedgeRecord, error) {
	f.lastArea = areaRing
	return f.records, nil
}

func (f *fakeGraphClient) GetHyperedgeDetails(ctx context.Context, id string) (*graph.HyperedgeRecord, error) {
	return f.detail, nil
}

// emptyRunner satisfies graphwriter.Runner and returns no rows, so
// WriteTemporalFact always takes the "no candidate matches" create path.
type emptyRunner struct{}

func (emptyRunner) Run(ctx context.Context, operation, query string, params map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func (emptyRunner) RunRead(ctx context.Context, operation, query string, params map[string]any) ([]map[string]any, error) {
	return nil, nil
}

type staticToolClient struct {
	responses []llmclient.ChatResponse
	calls     int
}

func (s *staticToolClient) Chat(ctx context.Context, req llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
	resp := s.responses[s.calls]
	s.calls++
	return &resp, nil
}

func newTestServer(t *testing.T, orch Orchestrator, gc *fakeGraphClient) *Server {
	t.Helper()
	writer := graphwriter.New(emptyRunner{})
	geocoder, err := geocode.New(nil, nil, 1, "")
	require.NoError(t, err)
	llm := &staticToolClient{responses: []llmclient.ChatResponse{
		{Content: `{"valid":false,"descriptor":"no data"}`},
	}}
	qaLoop := qa.New(llm, "gpt-5-nano", gc)
	return New(orch, gc, writer, geocoder, qaLoop, []string{"https://app.example.com"}, 5*time.Second, 0)
}

func TestHandleProcessText_CountsGraphDoneEvents(t *testing.T) {
	orch := &fakeOrchestrator{events: []ingestion.Event{
		{SentenceIndex: 0, Stage: ingestion.StageGraphDone, HyperedgeID: "h1"},
		{SentenceIndex: 1, Stage: ingestion.StageGraphFailed, Err: assert.AnError},
		{SentenceIndex: ingestion.NonSentenceStage, Stage: ingestion.StageComplete},
	}}
	srv := newTestServer(t, orch, &fakeGraphClient{})

	body, _ := json.Marshal(map[string]string{"text": "Alice joined Acme."})
	req := httptest.NewRequest(http.MethodPost, "/api/process-text", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp processTextResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.FactsProcessed)
}

func TestHandleProcessText_RejectsEmptyText(t *testing.T) {
	srv := newTestServer(t, &fakeOrchestrator{}, &fakeGraphClient{})

	body, _ := json.Marshal(map[string]string{"text": ""})
	req := httptest.NewRequest(http.MethodPost, "/api/process-text", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleHyperedgeAdd_ReturnsCreatedHyperedge(t *testing.T) {
	srv := newTestServer(t, &fakeOrchestrator{}, &fakeGraphClient{})

	body, _ := json.Marshal(hyperedgeAddRequest{
		Subjects:     []string{"Alice"},
		Objects:      []string{"Acme"},
		RelationType: "joined",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/hyperedge/add", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp hyperedgeAddResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.HyperedgeID)
}

func TestHandleHyperedgeAdd_RejectsMissingFields(t *testing.T) {
	srv := newTestServer(t, &fakeOrchestrator{}, &fakeGraphClient{})

	body, _ := json.Marshal(hyperedgeAddRequest{RelationType: "joined"})
	req := httptest.NewRequest(http.MethodPost, "/api/hyperedge/add", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleHyperstructureData_DispatchesAreaCoordinatesFirst(t *testing.T) {
	gc := &fakeGraphClient{records: []graph.HyperedgeRecord{{ID: "h1"}}}
	srv := newTestServer(t, &fakeOrchestrator{}, gc)

	req := httptest.NewRequest(http.MethodGet, "/api/hyperstructure/data?area_coordinates=1,1;2,2;3,3&location_names=Paris", nil)
	rr := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, gc.lastArea, 3)
	assert.Empty(t, gc.lastNames, "location_names should be ignored once area_coordinates wins dispatch")
}

func TestHandleHyperstructureData_DispatchesLocationCoordinates(t *testing.T) {
	gc := &fakeGraphClient{}
	srv := newTestServer(t, &fakeOrchestrator{}, gc)

	req := httptest.NewRequest(http.MethodGet, "/api/hyperstructure/data?location_coordinates=2.5,48.8&radius_km=25", nil)
	rr := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, [2]float64{2.5, 48.8}, gc.lastCenter)
}

func TestHandleHyperstructureData_DispatchesLocationNames(t *testing.T) {
	gc := &fakeGraphClient{}
	srv := newTestServer(t, &fakeOrchestrator{}, gc)

	req := httptest.NewRequest(http.MethodGet, "/api/hyperstructure/data?location_names=Paris,Lyon", nil)
	rr := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"Paris", "Lyon"}, gc.lastNames)
}

func TestHandleHyperstructureData_RejectsMalformedArea(t *testing.T) {
	srv := newTestServer(t, &fakeOrchestrator{}, &fakeGraphClient{})

	req := httptest.NewRequest(http.MethodGet, "/api/hyperstructure/data?area_coordinates=not-a-coordinate", nil)
	rr := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleClear_InvokesGraphClear(t *testing.T) {
	gc := &fakeGraphClient{}
	srv := newTestServer(t, &fakeOrchestrator{}, gc)

	req := httptest.NewRequest(http.MethodPost, "/api/hyperstructure/clear", nil)
	rr := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, gc.clearCalled)
}

func TestHandleAsk_ReturnsValidationResult(t *testing.T) {
	srv := newTestServer(t, &fakeOrchestrator{}, &fakeGraphClient{})

	body, _ := json.Marshal(map[string]any{"message": "Where did Alice work?"})
	req := httptest.NewRequest(http.MethodPost, "/api/query/ask", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp qa.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, "Model did not select a tool", resp.Descriptor)
}

func TestWithCORS_AllowsOnlyConfiguredOrigin(t *testing.T) {
	srv := newTestServer(t, &fakeOrchestrator{}, &fakeGraphClient{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.Header.Set("Origin", "https://evil.example.com")
	rr2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr2, req2)
	assert.Empty(t, rr2.Header().Get("Access-Control-Allow-Origin"))
}
