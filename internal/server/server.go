package server

// Package server exposes the orchestrator over HTTP: session lifecycle,
// message turns, run history with replay, health, metrics, and a WebSocket
// stream of per-turn trace steps.

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/civicops/civicops-ai/internal/audit"
	"github.com/civicops/civicops-ai/internal/clarify"
	"github.com/civicops/civicops-ai/internal/config"
	"github.com/civicops/civicops-ai/internal/db"
	"github.com/civicops/civicops-ai/internal/evidence"
	"github.com/civicops/civicops-ai/internal/middleware"
	"github.com/civicops/civicops-ai/internal/orchestrator"
	"github.com/civicops/civicops-ai/internal/run"
	"github.com/civicops/civicops-ai/internal/scenario"
	"github.com/civicops/civicops-ai/internal/session"
)

// Server is the civicops-ai HTTP server.
type Server struct {
	config   *config.Config
	log      *zap.Logger
	auditLog audit.Logger

	// Core components
	store       db.Store
	sessions    *session.Store
	coordinator *orchestrator.Coordinator
	recorder    *run.Recorder
	synth       *scenario.Synthesizer
	limiter     *middleware.RateLimiter

	// HTTP server
	httpServer *http.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// NewServer creates a server and wires all components.
func NewServer(cfg *config.Config, log *zap.Logger, auditLog audit.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config:   cfg,
		log:      log,
		auditLog: auditLog,
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := srv.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return srv, nil
}

// initializeComponents initializes all server components.
func (s *Server) initializeComponents() error {
	// 1. Persistence: runs and reference data.
	store, err := db.NewSQLiteStore(s.config.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = store

	if s.config.Database.Seed {
		if err := store.Seed(context.Background(), db.DefaultFixtures()); err != nil {
			return fmt.Errorf("seed reference data: %w", err)
		}
		s.log.Info("reference data seeded", zap.String("path", s.config.Database.SQLitePath))
	}

	// 2. Session registry with TTL eviction.
	ttl := time.Duration(s.config.Session.TTLMinutes) * time.Minute
	s.sessions = session.NewStore(ttl, s.log)
	if s.auditLog != nil {
		s.sessions.OnEvict(func(id string) {
			_ = s.auditLog.Log(context.Background(), audit.NewEvent(audit.EventSessionExpired).
				WithSession(id).
				WithDescription("session evicted after idle TTL").
				WithResult(audit.ResultSuccess))
		})
	}

	// 3. Reasoning pipeline.
	policy := clarify.NewPolicy(s.config.Zones.DefaultCity, s.config.Zones.Catalog)
	gatherer := evidence.NewGatherer(
		db.Providers(store),
		time.Duration(s.config.Evidence.CollaboratorTimeoutMS)*time.Millisecond,
		s.config.Evidence.RecordLimit,
		s.log,
	)
	s.synth = scenario.NewSynthesizer(s.log)
	s.recorder = run.NewRecorder(store, s.log)

	s.coordinator = orchestrator.NewCoordinator(
		s.sessions, policy, gatherer, s.synth, s.recorder,
		s.auditLog, s.config.Zones.DefaultCity, s.log,
	)

	// 4. Per-client API rate limiting.
	if s.config.Server.RequestsPerMinute > 0 {
		s.limiter = middleware.NewRateLimiter(s.config.Server.RequestsPerMinute)
	}

	return nil
}

// Start starts the HTTP listener.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("http server listening",
			zap.String("host", s.config.Server.Host),
			zap.Int("port", s.config.Server.Port),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown error", zap.Error(err))
		}
	}

	s.cancel()
	s.wg.Wait()

	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.sessions.Close()
	if err := s.store.Close(); err != nil {
		s.log.Warn("store close error", zap.Error(err))
	}

	return nil
}

// Wait blocks until the server is stopped.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	api.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	api.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleEndSession)
	api.HandleFunc("POST /api/v1/sessions/{id}/messages", s.handlePostMessage)
	api.HandleFunc("GET /api/v1/sessions/{id}/stream", s.handleStream)

	api.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	api.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	api.HandleFunc("GET /api/v1/runs/{id}/replay", s.handleReplayRun)

	var apiHandler http.Handler = api
	if s.limiter != nil {
		apiHandler = s.limiter.Middleware(api)
	}
	mux.Handle("/api/v1/", apiHandler)

	return mux
}
