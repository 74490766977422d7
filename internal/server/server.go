// Package server exposes the request router over HTTP. Each request is
// processed synchronously and its event stream is delivered to the client as
// server-sent events.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"triage/internal/router"
)

// Processor advances a conversation by one user turn. Satisfied by
// *router.Orchestrator.
type Processor interface {
	Process(ctx context.Context, input string, prior *router.ConversationState, sink router.Sink) (*router.ConversationState, error)
}

// StateStore persists conversation states between suspensions. Satisfied by
// *session.Store.
type StateStore interface {
	Save(state *router.ConversationState) error
	Load(sessionID string) (*router.ConversationState, error)
}

// Server is the HTTP transport for the router.
type Server struct {
	proc    Processor
	store   StateStore
	metrics *metrics
	httpSrv *http.Server
}

// New creates a server. store may be nil, in which case suspended
// conversations cannot be resumed across requests.
func New(addr string, proc Processor, store StateStore) *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		proc:    proc,
		store:   store,
		metrics: newMetrics(reg),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/requests", s.handleRequest)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks serving HTTP until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	log.Printf("[server] listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// requestBody is the JSON body of POST /v1/requests.
type requestBody struct {
	// Input is the user's message. Empty input on a suspended session
	// re-emits the pending question.
	Input string `json:"input"`
	// SessionID resumes a suspended conversation when set.
	SessionID string `json:"session_id,omitempty"`
}

// sessionFrame is the closing SSE frame carrying resume information.
type sessionFrame struct {
	SessionID string        `json:"session_id"`
	Status    router.Status `json:"status"`
	Route     router.Route  `json:"route,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	var prior *router.ConversationState
	if body.SessionID != "" {
		if s.store == nil {
			http.Error(w, "session resume is not enabled", http.StatusBadRequest)
			return
		}
		state, err := s.store.Load(body.SessionID)
		if err != nil {
			http.Error(w, fmt.Sprintf("load session: %v", err), http.StatusInternalServerError)
			return
		}
		if state == nil {
			http.Error(w, fmt.Sprintf("unknown session %s", body.SessionID), http.StatusNotFound)
			return
		}
		// A finished conversation cannot be resumed; rejecting here keeps the
		// metrics from double-counting its terminal state.
		if state.Terminal() {
			http.Error(w, fmt.Sprintf("session %s already terminated", body.SessionID), http.StatusConflict)
			return
		}
		prior = state
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	sink := router.SinkFunc(func(ev router.Event) {
		writeSSE(w, string(ev.Type), ev)
		if flusher != nil {
			flusher.Flush()
		}
	})

	s.metrics.inflight.Inc()
	// A processing error mirrors state.Err, which the sink has already
	// streamed to the client as a failure frame.
	state, _ := s.proc.Process(r.Context(), body.Input, prior, sink)
	s.metrics.inflight.Dec()

	s.record(state)

	if s.store != nil && state != nil {
		if err := s.store.Save(state); err != nil {
			log.Printf("[server] save session %s: %v", state.SessionID, err)
		}
	}

	if state != nil {
		writeSSE(w, "session", sessionFrame{
			SessionID: state.SessionID,
			Status:    state.Status,
			Route:     state.Route,
		})
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) record(state *router.ConversationState) {
	if state == nil || !state.Terminal() {
		return
	}
	route := string(state.Route)
	if route == "" {
		route = "unset"
	}
	s.metrics.requestsTotal.WithLabelValues(route, string(state.Status)).Inc()
	if state.Err != nil {
		s.metrics.failuresTotal.WithLabelValues(string(state.Err.Kind)).Inc()
	}
}

// writeSSE writes one server-sent event with a named event type and a JSON
// payload.
func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[server] marshal sse payload: %v", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
