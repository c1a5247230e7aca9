// internal/server/server.go

// Package server exposes the orchestrator over HTTP: JSON control endpoints
// plus a server-sent-events stream for session progress.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/operant/internal/agent"
	"github.com/xkilldash9x/operant/internal/config"
	"github.com/xkilldash9x/operant/internal/eventbus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the HTTP transport over an orchestrator and its event bus.
type Server struct {
	cfg    config.ServerConfig
	orch   *agent.Orchestrator
	bus    *eventbus.Bus
	logger *zap.Logger
	http   *http.Server
}

// New builds the server with its routes registered.
func New(cfg config.ServerConfig, orch *agent.Orchestrator, bus *eventbus.Bus, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		orch:   orch,
		bus:    bus,
		logger: logger.Named("Server"),
	}
	s.http = &http.Server{
		Addr:    cfg.Listen,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleTools)
	mux.HandleFunc("POST /agent/start", s.handleStart)
	mux.HandleFunc("POST /agent/continue", s.handleContinue)
	mux.HandleFunc("GET /agent/status", s.handleStatus)
	mux.HandleFunc("GET /agent/screenshot", s.handleScreenshot)
	mux.HandleFunc("POST /agent/stop", s.handleStop)
	mux.HandleFunc("POST /agent/clear", s.handleClear)
	mux.HandleFunc("GET /agent/events/{id}", s.handleEvents)
	return mux
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is canceled, then drains with the configured shutdown
// timeout.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening.", zap.String("addr", s.cfg.Listen))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down HTTP server.")
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// loopTimeout derives the auto-mode deadline from the step budget.
func (s *Server) loopTimeout(maxSteps int) time.Duration {
	budget := time.Duration(maxSteps) * s.cfg.LoopStepBudget
	if budget < s.cfg.LoopMinTimeout {
		return s.cfg.LoopMinTimeout
	}
	return budget
}
