package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/config"
	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/marketplace"
	"github.com/osvhub/osv-discovery/internal/metrics"
	"github.com/osvhub/osv-discovery/internal/store"
)

const (
	defaultRequestTimeout = 60 * time.Second
	queryTimeout          = 5 * time.Second
)

// Submitter accepts crawl sessions for background execution.
type Submitter interface {
	Submit(ctx context.Context, item crawler.QueueItem) error
	Workers() int
	Active() int
}

// Broadcaster reaches every connected dashboard client.
type Broadcaster interface {
	http.Handler
	Broadcast(msg any)
	Clients() int
}

// MarketplaceStats summarizes the listing side of the store.
type MarketplaceStats interface {
	Stats(ctx context.Context) (marketplace.Stats, error)
}

// QueueDepth reports how full the session queue is.
type QueueDepth interface {
	Len() int
	Cap() int
}

// HealthCheck checks one optional dependency for /api/component-health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps bundles the collaborators the handlers read from.
type Deps struct {
	Repo        store.Repository
	Sessions    Submitter
	Hub         Broadcaster
	Marketplace MarketplaceStats
	Queue       QueueDepth
	Checks      []HealthCheck
	IDs         crawler.IDGenerator
	Clock       crawler.Clock
	Version     string
}

// Server wires HTTP handlers to the repository, the session queue and the hub.
type Server struct {
	router  chi.Router
	deps    Deps
	cfg     config.Config
	logger  *zap.Logger
	started time.Time
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:    deps,
		cfg:     cfg,
		logger:  logger,
		started: deps.Clock.Now(),
	}
	timeout := defaultRequestTimeout
	if cfg.Dashboard.RequestTimeoutSecs > 0 {
		timeout = time.Duration(cfg.Dashboard.RequestTimeoutSecs) * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/health", s.health)
	r.Get("/healthz", s.health)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		if deps.Hub != nil {
			r.Handle("/ws", deps.Hub)
		}
		r.Route("/api", func(r chi.Router) {
			r.Use(metrics.Middleware)
			r.Use(timeoutMiddleware(timeout))

			r.Get("/info", s.info)
			r.Get("/stats", s.stats)
			r.Get("/component-health", s.componentHealth)
			r.Get("/vessels", s.listVessels)
			r.Get("/vessels/{id}", s.getVessel)
			r.Get("/companies", s.listCompanies)
			r.Get("/crawl-sessions", s.listSessions)
			r.Get("/crawl-sessions/{id}", s.getSession)
			r.Get("/source-performance", s.sourcePerformance)
			r.Get("/marketplace/stats", s.marketplaceStats)
			r.Post("/start-crawl", s.startCrawl)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
