package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/id/uuid"
	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

const (
	defaultPageLimit    = 50
	maxPageLimit        = 500
	defaultSessionLimit = 20
	maxSessionLimit     = 200
)

type vesselPage struct {
	Vessels []vessel.Vessel `json:"vessels"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

type companyPage struct {
	Companies []vessel.Company `json:"companies"`
	Total     int              `json:"total"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
}

type vesselDetail struct {
	Vessel         vessel.Vessel          `json:"vessel"`
	Media          []vessel.Media         `json:"media"`
	Specifications []vessel.Specification `json:"specifications"`
	Features       []vessel.Feature       `json:"features"`
}

// stats handles GET /api/stats.
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	stats, err := s.deps.Repo.DashboardStats(ctx, s.deps.Clock.Now())
	if err != nil {
		s.logger.Error("dashboard stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listVessels handles GET /api/vessels?limit=&offset=&search=&vessel_type=.
func (s *Server) listVessels(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultPageLimit, maxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	filter := store.VesselFilter{
		Search:     strings.TrimSpace(q.Get("search")),
		VesselType: strings.TrimSpace(q.Get("vessel_type")),
		Limit:      limit,
		Offset:     offset,
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	vessels, total, err := s.deps.Repo.ListVessels(ctx, filter)
	if err != nil {
		s.logger.Error("list vessels failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list vessels")
		return
	}
	if vessels == nil {
		vessels = []vessel.Vessel{}
	}
	writeJSON(w, http.StatusOK, vesselPage{Vessels: vessels, Total: total, Limit: limit, Offset: offset})
}

// getVessel handles GET /api/vessels/{id}. It returns the vessel with its
// media, specifications and features, or 404.
func (s *Server) getVessel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !uuid.Valid(id) {
		writeError(w, http.StatusNotFound, "vessel not found")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	v, err := s.deps.Repo.GetVessel(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "vessel not found")
			return
		}
		s.logger.Error("get vessel failed", zap.String("vessel_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load vessel")
		return
	}
	detail := vesselDetail{Vessel: v}
	if detail.Media, err = s.deps.Repo.ListMedia(ctx, id); err != nil {
		s.logger.Error("list media failed", zap.String("vessel_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load vessel media")
		return
	}
	if detail.Specifications, err = s.deps.Repo.ListSpecifications(ctx, id); err != nil {
		s.logger.Error("list specifications failed", zap.String("vessel_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load vessel specifications")
		return
	}
	if detail.Features, err = s.deps.Repo.ListFeatures(ctx, id); err != nil {
		s.logger.Error("list features failed", zap.String("vessel_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load vessel features")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// listCompanies handles GET /api/companies?limit=&offset=&search=.
func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultPageLimit, maxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	companies, total, err := s.deps.Repo.ListCompanies(ctx, store.CompanyFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("list companies failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list companies")
		return
	}
	if companies == nil {
		companies = []vessel.Company{}
	}
	writeJSON(w, http.StatusOK, companyPage{Companies: companies, Total: total, Limit: limit, Offset: offset})
}

// listSessions handles GET /api/crawl-sessions?limit=.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, _, err := parseLimitOffset(r, defaultSessionLimit, maxSessionLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	sessions, err := s.deps.Repo.ListSessions(ctx, limit)
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list crawl sessions")
		return
	}
	if sessions == nil {
		sessions = []vessel.CrawlSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// getSession handles GET /api/crawl-sessions/{id}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !uuid.Valid(id) {
		writeError(w, http.StatusNotFound, "crawl session not found")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	sess, err := s.deps.Repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "crawl session not found")
			return
		}
		s.logger.Error("get session failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load crawl session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// sourcePerformance handles GET /api/source-performance.
func (s *Server) sourcePerformance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	sources, err := s.deps.Repo.ListSourcePerformance(ctx)
	if err != nil {
		s.logger.Error("list source performance failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load source performance")
		return
	}
	if sources == nil {
		sources = []vessel.SourcePerformance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

// marketplaceStats handles GET /api/marketplace/stats.
func (s *Server) marketplaceStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Marketplace == nil {
		writeError(w, http.StatusServiceUnavailable, "marketplace disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	stats, err := s.deps.Marketplace.Stats(ctx)
	if err != nil {
		s.logger.Error("marketplace stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load marketplace stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
