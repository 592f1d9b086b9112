// Package server exposes the stage orchestration engine over HTTP: running
// and cancelling stage invocations, slot status, session snapshots, the
// reconstructed hierarchy and a progress event stream.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omegapoint/pipeline/internal/logging"
	"github.com/omegapoint/pipeline/internal/pipeline/engine"
	"github.com/omegapoint/pipeline/internal/pipeline/state"
)

// Config holds server configuration.
type Config struct {
	Addr string // listen address, e.g. "127.0.0.1:8080"
}

// Server is the HTTP front end of one pipeline session.
type Server struct {
	config      Config
	engine      *engine.Engine
	broadcaster *Broadcaster
	baseCtx     context.Context
	cancel      context.CancelFunc
	httpSrv     *http.Server
	logger      *slog.Logger
}

// New creates a Server over an engine.
func New(cfg Config, eng *engine.Engine) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:      cfg,
		engine:      eng,
		broadcaster: NewBroadcaster(),
		baseCtx:     ctx,
		cancel:      cancel,
		logger:      logging.New("server"),
	}

	mux := http.NewServeMux()

	// Go 1.22+ method+pattern routing.
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/stages/{id}/run", s.handleRunStage)
	mux.HandleFunc("POST /api/stages/{id}/cancel", s.handleCancelStage)
	mux.HandleFunc("GET /api/stages/{id}", s.handleStageStatus)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/hierarchy", s.handleHierarchy)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	s.httpSrv = &http.Server{
		Handler:      csrfProtect(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE requires no write timeout
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		s.logger.Info("shutting down", "signal", sig.String())
		s.Shutdown()
	}()

	s.logger.Info("listening", "addr", s.config.Addr)
	s.httpSrv.Addr = s.config.Addr
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// csrfProtect rejects cross-origin POST requests. Browsers automatically set
// the Origin header on cross-origin requests, so checking it blocks CSRF from
// malicious web pages while allowing CLI/programmatic callers (which either
// omit Origin or set it to match the server).
func csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			origin := r.Header.Get("Origin")
			if origin != "" {
				u, err := url.Parse(origin)
				if err != nil {
					http.Error(w, `{"error":"invalid Origin header"}`, http.StatusForbidden)
					return
				}
				host := u.Hostname()
				if host != "localhost" && host != "127.0.0.1" && host != "::1" {
					http.Error(w, `{"error":"cross-origin request blocked"}`, http.StatusForbidden)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown cancels every in-flight invocation and drains HTTP connections.
func (s *Server) Shutdown() {
	for stage := 1; stage <= state.NumStages; stage++ {
		s.engine.Cancel(stage)
	}
	s.broadcaster.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = s.httpSrv.Shutdown(shutdownCtx)

	s.cancel()
}
