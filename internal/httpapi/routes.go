package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hyperstructure/ingestor/internal/facts"
	"github.com/hyperstructure/ingestor/internal/geospatial"
	"github.com/hyperstructure/ingestor/internal/graph"
	"github.com/hyperstructure/ingestor/internal/ingestion"
)

var errInvalidCoordinates = errors.New("invalid coordinates: expected \"lon,lat\" pairs")

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// processTextRequest is POST /api/process-text's body.
type processTextRequest struct {
	Text      string `json:"text"`
	ChunkSize int    `json:"chunk_size,omitempty"`
}

type processTextResponse struct {
	FactsProcessed int `json:"facts_processed"`
}

func (s *Server) handleProcessText(w http.ResponseWriter, r *http.Request) {
	var req processTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	count := 0
	for ev := range s.orchestrator.ProcessText(ctx, req.Text) {
		if ev.Stage == ingestion.StageGraphDone {
			count++
		}
	}

	writeJSON(w, http.StatusOK, processTextResponse{FactsProcessed: count})
}

// hyperedgeAddRequest is POST /api/hyperedge/add's body: a prebuilt fact
// bypassing the NL front-end.
type hyperedgeAddRequest struct {
	Subjects          []string               `json:"subjects"`
	Objects           []string               `json:"objects"`
	RelationType      string                 `json:"relation_type"`
	TemporalIntervals []temporalIntervalJSON `json:"temporal_intervals"`
	SpatialContexts   []string               `json:"spatial_contexts"`
}

type temporalIntervalJSON struct {
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

type hyperedgeAddResponse struct {
	Status      string            `json:"status"`
	HyperedgeID string            `json:"hyperedge_id"`
	SpatialData []spatialDataItem `json:"spatial_data"`
	Message     string            `json:"message,omitempty"`
}

type spatialDataItem struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Coordinates any    `json:"coordinates"`
}

func (s *Server) handleHyperedgeAdd(w http.ResponseWriter, r *http.Request) {
	var req hyperedgeAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Subjects) == 0 || req.RelationType == "" {
		writeError(w, http.StatusBadRequest, "subjects and relation_type are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	intervals := make([]facts.TemporalInterval, len(req.TemporalIntervals))
	for i, iv := range req.TemporalIntervals {
		intervals[i] = facts.TemporalInterval{StartTime: iv.StartTime, EndTime: iv.EndTime}
	}

	fact := s.expander.Expand(ctx, facts.TemporalFact{
		Subjects:          req.Subjects,
		Objects:           req.Objects,
		RelationType:      req.RelationType,
		TemporalIntervals: intervals,
		SpatialNames:      req.SpatialContexts,
	})

	result, err := s.writer.WriteTemporalFact(ctx, fact)
	if err != nil {
		writeJSON(w, http.StatusOK, hyperedgeAddResponse{Status: "error", Message: "Failed to execute Cypher query: " + err.Error()})
		return
	}

	spatialData := make([]spatialDataItem, 0, len(fact.SpatialContexts))
	for _, sc := range fact.SpatialContexts {
		spatialData = append(spatialData, spatialDataItem{Type: string(sc.Type), Name: sc.Name, Coordinates: sc.Coordinates})
	}

	writeJSON(w, http.StatusOK, hyperedgeAddResponse{
		Status:      "success",
		HyperedgeID: result.HyperedgeID,
		SpatialData: spatialData,
	})
}

func (s *Server) handleHyperedgeDetails(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("hyperedge_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "hyperedge_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	rec, err := s.graphClient.GetHyperedgeDetails(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "hyperedge not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	if err := s.graphClient.Clear(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHyperstructureData(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	query := r.URL.Query()
	q := graph.SpatiotemporalQuery{
		StartTime:                     query.Get("start_time"),
		EndTime:                       query.Get("end_time"),
		LocationNames:                 splitNonEmpty(query.Get("location_names")),
		IncludeSpatiallyUnconstrained: query.Get("include_spatially_unconstrained") == "true",
		// include_temporally_unconstrained is accepted once; older
		// clients that sent it twice get identical semantics either way.
		IncludeTemporallyUnconstrained: query.Get("include_temporally_unconstrained") == "true",
	}

	var records []graph.HyperedgeRecord
	var err error
	switch {
	case query.Get("area_coordinates") != "":
		ring, perr := parseAreaRing(query.Get("area_coordinates"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		records, err = s.graphClient.QueryBySpatialArea(ctx, ring)
	case query.Get("location_coordinates") != "":
		lon, lat, radius, perr := parseCoordinatesRadius(query.Get("location_coordinates"), query.Get("radius_km"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		records, err = s.graphClient.QueryBySpatialDistance(ctx, [2]float64{lon, lat}, radius, q.IncludeSpatiallyUnconstrained)
	case len(q.LocationNames) > 0:
		records, err = s.graphClient.QueryByLocationName(ctx, q.LocationNames, q.IncludeSpatiallyUnconstrained)
	default:
		records, err = s.graphClient.QuerySpatiotemporal(ctx, q)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"facts": records})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message  string `json:"message"`
		MaxLoops int    `json:"max_loops"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxLoops == 0 {
		req.MaxLoops = 3
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	result, err := s.qaLoop.Ask(ctx, req.Message, req.MaxLoops)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAskMulti(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string `json:"text"`
		MaxLoops int    `json:"max_loops"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxLoops == 0 {
		req.MaxLoops = 3
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	results, err := s.qaLoop.AskMulti(ctx, req.Text, req.MaxLoops)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return splitOn(s, ',')
}

func parseCoordinatesRadius(coords, radiusParam string) (lon, lat, radiusKM float64, err error) {
	parts := splitNonEmpty(coords)
	if len(parts) != 2 {
		return 0, 0, 0, errInvalidCoordinates
	}
	lon, err = parseFloat(parts[0])
	if err != nil {
		return 0, 0, 0, errInvalidCoordinates
	}
	lat, err = parseFloat(parts[1])
	if err != nil {
		return 0, 0, 0, errInvalidCoordinates
	}
	radiusKM = 10
	if radiusParam != "" {
		if r, perr := parseFloat(radiusParam); perr == nil {
			radiusKM = r
		}
	}
	return lon, lat, radiusKM, nil
}

// parseAreaRing parses "lon1,lat1;lon2,lat2;..." into a ring.
func parseAreaRing(raw string) (geospatial.Ring, error) {
	var ring geospatial.Ring
	for _, pair := range splitOn(raw, ';') {
		parts := splitNonEmpty(pair)
		if len(parts) != 2 {
			return nil, errInvalidCoordinates
		}
		lon, err := parseFloat(parts[0])
		if err != nil {
			return nil, errInvalidCoordinates
		}
		lat, err := parseFloat(parts[1])
		if err != nil {
			return nil, errInvalidCoordinates
		}
		ring = append(ring, geospatial.Point{lon, lat})
	}
	if len(ring) < 3 {
		return nil, errInvalidCoordinates
	}
	return ring, nil
}

func splitOn(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
