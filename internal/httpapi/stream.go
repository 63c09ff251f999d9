package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperstructure/ingestor/internal/ingestion"
)

// streamEvent is one SSE payload's JSON body on the
// process-text/stream endpoint.
type streamEvent struct {
	Type        string `json:"type"`
	Stage       string `json:"stage,omitempty"`
	Chunk       int    `json:"chunk,omitempty"`
	Sentence    string `json:"sentence,omitempty"`
	HyperedgeID string `json:"hyperedge_id,omitempty"`
	Criterion   int    `json:"criterion,omitempty"`
	Message     string `json:"message,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// defaultChunkSize is used when a request omits chunk_size;
// config.PipelineConfig.DefaultChunkSize does not change it.
const defaultChunkSize = 3

// handleProcessTextStream runs the pipeline and relays its progress
// channel as Server-Sent Events. chunk_size groups sentence indices into
// the "chunk" field a frontend can render progress against; the
// orchestrator itself fans every sentence out concurrently regardless of
// chunk boundaries, so chunk_size only reshapes how progress is reported
// here, not how work is scheduled.
func (s *Server) handleProcessTextStream(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	chunkSize := defaultChunkSize
	if raw := r.URL.Query().Get("chunk_size"); raw != "" {
		if n, err := parseInt(raw); err == nil && n > 0 {
			chunkSize = n
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	events := s.orchestrator.ProcessText(ctx, text)
	heartbeat := time.NewTicker(s.sentinelPoll * 4)
	defer heartbeat.Stop()

	count := 0
	for {
		select {
		case ev, open := <-events:
			if !open {
				// The orchestrator always emits one StageComplete event
				// before closing the channel; nothing
				// further to send here.
				return
			}
			if ev.Stage == ingestion.StageGraphDone {
				count++
			}
			s.writeSSE(w, flusher, toStreamEvent(ev, chunkSize, count))
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-ctx.Done():
			s.writeSSE(w, flusher, streamEvent{Type: "error", Message: ctx.Err().Error()})
			return
		}
	}
}

// toStreamEvent maps a pipeline event onto the wire vocabulary: "stage"
// for per-sentence state-machine transitions, "complete" for the single
// terminal event, "error" for any failure, "info" for everything else
// (queued, modification and causal phase notices).
func toStreamEvent(ev ingestion.Event, chunkSize, count int) streamEvent {
	out := streamEvent{
		Sentence:    ev.Sentence,
		HyperedgeID: ev.HyperedgeID,
		Criterion:   ev.Criterion,
		Count:       count,
		Message:     ev.Message,
	}
	if ev.Err != nil {
		out.Message = ev.Err.Error()
	}
	if ev.SentenceIndex >= 0 {
		out.Chunk = ev.SentenceIndex / chunkSize
	}

	switch ev.Stage {
	case ingestion.StageComplete:
		out.Type = "complete"
	case ingestion.StageTemporalStart, ingestion.StageTemporalDone,
		ingestion.StageStructureDone, ingestion.StageSpatialDone,
		ingestion.StageGraphDone:
		out.Type = "stage"
		out.Stage = string(ev.Stage)
	case ingestion.StageGraphFailed:
		out.Type = "error"
		out.Stage = string(ev.Stage)
	default:
		out.Type = "info"
		if ev.Err != nil {
			out.Type = "error"
		}
		if out.Message == "" {
			out.Message = string(ev.Stage)
		}
	}
	return out
}

func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, ev streamEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal SSE event", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", body)
	flusher.Flush()
}

func parseInt(s string) (int, error) {
	n, err := parseFloat(s)
	return int(n), err
}
