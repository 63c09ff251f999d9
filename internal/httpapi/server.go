// Package httpapi exposes the ingestion pipeline and read-side query
// layer over HTTP, including the Server-Sent Events progress stream and
// the QA function-calling endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperstructure/ingestor/internal/geocode"
	"github.com/hyperstructure/ingestor/internal/geospatial"
	"github.com/hyperstructure/ingestor/internal/graph"
	"github.com/hyperstructure/ingestor/internal/graphwriter"
	"github.com/hyperstructure/ingestor/internal/ingestion"
	"github.com/hyperstructure/ingestor/internal/qa"
	"github.com/hyperstructure/ingestor/internal/spatialexpand"
)

// Orchestrator is the subset of *ingestion.Orchestrator the server calls.
type Orchestrator interface {
	ProcessText(ctx context.Context, text string) <-chan ingestion.Event
}

// GraphClient is the subset of *graph.Client the server depends on
// directly (health, clear, read queries, hyperedge detail lookups).
type GraphClient interface {
	HealthCheck(ctx context.Context) error
	Clear(ctx context.Context) error
	QuerySpatiotemporal(ctx context.Context, q graph.SpatiotemporalQuery) ([]graph.HyperedgeRecord, error)
	QueryBySpatialDistance(ctx context.Context, center [2]float64, radiusKM float64, includeUnconstrained bool) ([]graph.HyperedgeRecord, error)
	QueryByLocationName(ctx context.Context, names []string, includeUnconstrained bool) ([]graph.HyperedgeRecord, error)
	QueryBySpatialArea(ctx context.Context, areaRing geospatial.Ring) ([]graph.HyperedgeRecord, error)
	GetHyperedgeDetails(ctx context.Context, id string) (*graph.HyperedgeRecord, error)
}

// Server wires the pipeline, graph client, direct-write path, and QA loop
// behind one HTTP surface.
type Server struct {
	orchestrator   Orchestrator
	graphClient    GraphClient
	writer         *graphwriter.Writer
	expander       *spatialexpand.Expander
	qaLoop         *qa.Loop
	frontendOrigin []string
	requestTimeout time.Duration
	sentinelPoll   time.Duration
	logger         *slog.Logger
}

// New builds a Server. sentinelPoll sets the SSE loop's heartbeat: the
// loop multiplexes the event channel with a ticker firing every
// 4×sentinelPoll, whose comment line keeps idle connections alive without
// polling the channel itself (see stream.go).
func New(
	orchestrator Orchestrator,
	graphClient GraphClient,
	writer *graphwriter.Writer,
	geocoder *geocode.Geocoder,
	qaLoop *qa.Loop,
	frontendOrigin []string,
	requestTimeout time.Duration,
	sentinelPoll time.Duration,
) *Server {
	if sentinelPoll <= 0 {
		sentinelPoll = 250 * time.Millisecond
	}
	return &Server{
		orchestrator:   orchestrator,
		graphClient:    graphClient,
		writer:         writer,
		expander:       spatialexpand.New(geocoder),
		qaLoop:         qaLoop,
		frontendOrigin: frontendOrigin,
		requestTimeout: requestTimeout,
		sentinelPoll:   sentinelPoll,
		logger:         slog.Default().With("component", "httpapi"),
	}
}

// Handler builds the top-level mux with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleLiveness)
	mux.HandleFunc("POST /api/process-text", s.handleProcessText)
	mux.HandleFunc("GET /api/process-text/stream", s.handleProcessTextStream)
	mux.HandleFunc("POST /api/hyperedge/add", s.handleHyperedgeAdd)
	mux.HandleFunc("GET /api/hyperedge/extract_structured_data", s.handleHyperedgeDetails)
	mux.HandleFunc("POST /api/hyperstructure/clear", s.handleClear)
	mux.HandleFunc("GET /api/hyperstructure/data", s.handleHyperstructureData)
	mux.HandleFunc("POST /api/query/ask", s.handleAsk)
	mux.HandleFunc("POST /api/query/ask_multi", s.handleAskMulti)

	return s.withCORS(mux)
}

// withCORS allows only the configured FRONTEND_ORIGIN allowlist.
func (s *Server) withCORS(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.frontendOrigin))
	for _, o := range s.frontendOrigin {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
