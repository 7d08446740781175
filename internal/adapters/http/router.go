package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
	"github.com/atlasdocs/kb-assistant/internal/core/ports"
	"github.com/atlasdocs/kb-assistant/internal/observability/metrics"
)

type RouterConfig struct {
	Service           string
	RateLimitRPS      float64
	RateLimitBurst    int
	MaxConcurrent     int
	ConcurrencyWait   time.Duration
}

// Router exposes the question-answering API. Rebuilds are not executed
// in-process: the handler publishes an event and the worker picks it up.
type Router struct {
	qa       ports.QuestionService
	queue    ports.RebuildQueue
	provider ports.IndexProvider
	metrics  *metrics.HTTPServerMetrics
	cfg      RouterConfig
}

func NewRouter(
	qa ports.QuestionService,
	queue ports.RebuildQueue,
	provider ports.IndexProvider,
	m *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	if cfg.Service == "" {
		cfg.Service = "api"
	}
	return &Router{
		qa:       qa,
		queue:    queue,
		provider: provider,
		metrics:  m,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/ask", rt.ask)
	mux.HandleFunc("/v1/memory/reset", rt.resetMemory)
	mux.HandleFunc("/v1/index/rebuild", rt.rebuildIndex)
	mux.HandleFunc("/v1/index/status", rt.indexStatus)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.cfg.MaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.MaxConcurrent, rt.cfg.ConcurrencyWait)
	}
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.Service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) indexStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	snap, err := rt.provider.Current()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"available": false, "chunks": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": true, "chunks": snap.ChunkCount()})
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		UserID   string `json:"user_id"`
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	answer, err := rt.qa.Ask(r.Context(), strings.TrimSpace(req.UserID), req.Question)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAnswer(rt.cfg.Service, answer.Conversational, len(answer.Sources), time.Since(start))
	}
	writeJSON(w, http.StatusOK, answerResponse(answer))
}

func (rt *Router) resetMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	rt.qa.ResetMemory(strings.TrimSpace(req.UserID))
	if rt.metrics != nil {
		rt.metrics.RecordMemoryReset(rt.cfg.Service)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (rt *Router) rebuildIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Force bool `json:"force"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}

	if err := rt.queue.PublishRebuild(r.Context(), req.Force); err != nil {
		status := mapErrorToHTTPStatus(err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "force": req.Force})
}

type askResponse struct {
	Answer              string        `json:"answer"`
	Sources             []sourceChunk `json:"sources"`
	Conversational      bool          `json:"conversational"`
	InsufficientContext bool          `json:"insufficient_context"`
}

type sourceChunk struct {
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	SequenceIndex int    `json:"sequence_index"`
}

func answerResponse(answer *domain.Answer) askResponse {
	sources := make([]sourceChunk, 0, len(answer.Sources))
	for _, chunk := range answer.Sources {
		sources = append(sources, sourceChunk{
			DocumentID:    chunk.DocumentID,
			DocumentTitle: chunk.DocumentTitle,
			SequenceIndex: chunk.SequenceIndex,
		})
	}
	return askResponse{
		Answer:              answer.Text,
		Sources:             sources,
		Conversational:      answer.Conversational,
		InsufficientContext: answer.InsufficientContext,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
