package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const healthTimeout = 3 * time.Second

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type queueStatus struct {
	Depth          int `json:"depth"`
	Capacity       int `json:"capacity"`
	Workers        int `json:"workers"`
	ActiveSessions int `json:"active_sessions"`
}

type healthReport struct {
	Status           string                     `json:"status"`
	Components       map[string]componentStatus `json:"components"`
	Queue            queueStatus                `json:"queue"`
	WebSocketClients int                        `json:"websocket_clients"`
	Timestamp        time.Time                  `json:"timestamp"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.deps.Clock.Now(),
	})
}

// readyz reports ready once the database answers a ping.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.deps.Repo.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// info handles GET /api/info.
func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	now := s.deps.Clock.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           "OSV Discovery",
		"version":        s.deps.Version,
		"uptime_seconds": int64(now.Sub(s.started).Seconds()),
		"started_at":     s.started,
		"config": map[string]any{
			"max_workers":         s.cfg.Crawler.MaxWorkers,
			"rate_limit_delay":    s.cfg.Crawler.RateLimitDelay,
			"session_workers":     s.cfg.Crawler.SessionWorkers,
			"headless_enabled":    s.cfg.Headless.Enabled,
			"enrichment_enabled":  s.cfg.Enrichment.Enabled,
			"marketplace_enabled": s.cfg.Marketplace.Enabled,
			"storage_backend":     s.cfg.Storage.Backend,
			"cache_backend":       s.cfg.Cache.Backend,
			"auto_refresh":        s.cfg.Dashboard.AutoRefreshSeconds,
		},
	})
}

// componentHealth handles GET /api/component-health. A failing database
// marks the service unhealthy; other failing components degrade it.
func (s *Server) componentHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:     "healthy",
		Components: make(map[string]componentStatus, len(s.deps.Checks)+1),
		Timestamp:  s.deps.Clock.Now(),
	}
	if err := s.deps.Repo.Ping(ctx); err != nil {
		report.Components["database"] = componentStatus{Status: "unhealthy", Error: err.Error()}
		report.Status = "unhealthy"
	} else {
		report.Components["database"] = componentStatus{Status: "healthy"}
	}
	for _, check := range s.deps.Checks {
		if err := check.Check(ctx); err != nil {
			report.Components[check.Name] = componentStatus{Status: "unhealthy", Error: err.Error()}
			if report.Status == "healthy" {
				report.Status = "degraded"
			}
			continue
		}
		report.Components[check.Name] = componentStatus{Status: "healthy"}
	}
	if s.deps.Queue != nil {
		report.Queue.Depth = s.deps.Queue.Len()
		report.Queue.Capacity = s.deps.Queue.Cap()
	}
	if s.deps.Sessions != nil {
		report.Queue.Workers = s.deps.Sessions.Workers()
		report.Queue.ActiveSessions = s.deps.Sessions.Active()
	}
	if s.deps.Hub != nil {
		report.WebSocketClients = s.deps.Hub.Clients()
	}

	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
