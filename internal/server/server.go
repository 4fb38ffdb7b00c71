// Package server exposes a Dispatcher over HTTP.
//
// Every client connection is one worker: requests on a keep-alive connection
// are served one after another by the same goroutine, so they share a report
// client. The worker is released when the connection closes.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
)

// maxBodyBytes bounds a failure submission.
const maxBodyBytes = 64 << 10

// FailureRequest is the body of POST /v1/failures.
type FailureRequest struct {
	Message string            `json:"message"`
	Tags    []string          `json:"tags"`
	Data    map[string]string `json:"data"`
}

// FailureResponse is returned for accepted failures.
type FailureResponse struct {
	Worker string `json:"worker"`
}

// SubmittedFailure is the error type dispatched for every submission.
type SubmittedFailure struct {
	Message string
}

func (e *SubmittedFailure) Error() string { return e.Message }

// Server serves failure submissions, health and metrics.
type Server struct {
	dispatcher *dispatch.Dispatcher
	metrics    *dispatch.Metrics
	logger     *slog.Logger

	httpServer *http.Server
	workers    sync.Map // net.Conn -> dispatch.WorkerID
}

// New creates a Server listening on addr. metrics may be nil.
func New(addr string, d *dispatch.Dispatcher, metrics *dispatch.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		dispatcher: d,
		metrics:    metrics,
		logger:     logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ConnContext:       s.connContext,
		ConnState:         s.connState,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/failures", s.handleFailure)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// connContext binds a fresh worker identity to each accepted connection.
func (s *Server) connContext(ctx context.Context, c net.Conn) context.Context {
	ctx = dispatch.NewWorker(ctx)
	s.workers.Store(c, dispatch.WorkerFromContext(ctx))
	return ctx
}

// connState releases the connection's worker once it is gone.
func (s *Server) connState(c net.Conn, state http.ConnState) {
	if state != http.StateClosed && state != http.StateHijacked {
		return
	}
	id, ok := s.workers.LoadAndDelete(c)
	if !ok {
		return
	}
	if err := s.dispatcher.ReleaseWorker(id.(dispatch.WorkerID)); err != nil {
		s.logger.Warn("Failed to release worker", "worker", id, "error", err)
	}
}

func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var req FailureRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	failure := &SubmittedFailure{Message: req.Message}
	err = s.dispatcher.SendData(ctx, failure, dispatch.NewTagSet(req.Tags...), req.Data)
	switch {
	case errors.Is(err, dispatch.ErrRejected), errors.Is(err, dispatch.ErrExecutorClosed):
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		s.logger.Error("Failed to dispatch failure", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp, err := sonic.Marshal(FailureResponse{Worker: string(dispatch.WorkerFromContext(ctx))})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write(resp)
}

// Run serves until ctx ends, then shuts the HTTP server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
