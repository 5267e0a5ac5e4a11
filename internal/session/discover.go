package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osvhub/osv-discovery/internal/discovery"
	"github.com/osvhub/osv-discovery/internal/extract"
	"github.com/osvhub/osv-discovery/internal/metrics"
	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// discover loads the member directory, stores every company and then crawls
// company sites with at most MaxWorkers in flight.
func (r *Runner) discover(ctx context.Context, st *state, logger *zap.Logger) (map[string]any, error) {
	companies, err := r.Directory.Companies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load member directory: %w", err)
	}
	for i := range companies {
		if err := r.Repo.UpsertCompany(ctx, &companies[i]); err != nil {
			return nil, fmt.Errorf("upsert company %q: %w", companies[i].Name, err)
		}
	}
	logger.Info("member directory loaded", zap.Int("companies", len(companies)))

	var (
		mu                   sync.Mutex
		sites, noSite, pages int
	)
	tally := func(site bool, n int) {
		mu.Lock()
		defer mu.Unlock()
		if site {
			sites++
		} else {
			noSite++
		}
		pages += n
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxWorkers)
	total := len(companies)
	for _, c := range companies {
		g.Go(func() error {
			found, n, err := r.processCompany(gctx, st, c, logger)
			if err != nil {
				return err
			}
			tally(found, n)
			done := st.companyDone()
			r.emit(st, progress.Event{Stage: progress.StageCompanyDone, Company: c.Name})
			r.emit(st, progress.Event{
				Stage:   progress.StagePhaseProgress,
				Phase:   PhaseDiscovery,
				Current: done,
				Total:   total,
			})
			return nil
		})
	}
	err = g.Wait()
	c := st.counters()
	return map[string]any{
		"companies":          total,
		"companies_with_web": sites,
		"companies_no_web":   noSite,
		"vessel_pages":       pages,
		"vessels_found":      c.VesselsFound,
	}, err
}

// processCompany crawls one company. Source failures are recorded against
// the session. Interruption and store failures are returned.
func (r *Runner) processCompany(ctx context.Context, st *state, c vessel.Company, logger *zap.Logger) (bool, int, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	logger = logger.With(zap.String("company", c.Name))
	r.emit(st, progress.Event{Stage: progress.StageCompanyStart, Company: c.Name})

	site, err := r.Resolver.Resolve(ctx, c)
	if err != nil {
		if interrupted(ctx, err) {
			return false, 0, ctx.Err()
		}
		if errors.Is(err, discovery.ErrNoWebsite) {
			logger.Info("no reachable website")
			return false, 0, nil
		}
		r.companyError(st, c, err, logger)
		return false, 0, nil
	}

	pages, err := r.Pages.Find(ctx, site)
	if err != nil {
		if interrupted(ctx, err) {
			return true, 0, ctx.Err()
		}
		if errors.Is(err, discovery.ErrBlocked) {
			logger.Info("website blocklisted, skipping company", zap.String("site", site))
			r.emit(st, progress.Event{Stage: progress.StageCompanySkipped, Company: c.Name, URL: site, Note: "blocklisted"})
			return false, 0, nil
		}
		r.companyError(st, c, err, logger)
		return true, 0, nil
	}
	if len(pages) == 0 {
		pages = []string{site}
	}
	logger.Debug("vessel pages found", zap.String("site", site), zap.Int("pages", len(pages)))

	var crawled int
	for _, page := range pages {
		if !st.visited.MarkIfNew(page) {
			logger.Debug("page already crawled this session", zap.String("url", page))
			continue
		}
		crawled++
		if err := r.processPage(ctx, st, c, page, logger); err != nil {
			return true, crawled, err
		}
	}
	return true, crawled, nil
}

func (r *Runner) processPage(ctx context.Context, st *state, c vessel.Company, page string, logger *zap.Logger) error {
	resp, err := r.Loader.Load(ctx, page)
	if err != nil {
		if interrupted(ctx, err) {
			return ctx.Err()
		}
		r.companyError(st, c, err, logger)
		return nil
	}
	vessels, err := extract.Vessels(resp.Body, page, c)
	if err != nil {
		r.companyError(st, c, fmt.Errorf("extract %s: %w", page, err), logger)
		return nil
	}
	metrics.ObserveVessels(extract.SourceCompanyWebsite, len(vessels))

	for i := range vessels {
		v := &vessels[i]
		if c.ID != "" {
			id := c.ID
			v.OwnerCompanyID = &id
		}
		v.DataQualityScore = vessel.QualityScore(v)
		created, err := r.Repo.UpsertVessel(ctx, v)
		if err != nil {
			if interrupted(ctx, err) {
				return ctx.Err()
			}
			if !errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("save vessel %q: %w", v.VesselName, err)
			}
			r.companyError(st, c, fmt.Errorf("save vessel %q: %w", v.VesselName, err), logger)
			continue
		}
		st.vesselSaved(created)
		r.emit(st, progress.Event{
			Stage:   progress.StageVesselFound,
			Company: c.Name,
			Vessel:  v.VesselName,
			URL:     page,
		})
		r.publish(ctx, map[string]any{
			"event":      "vessel_upserted",
			"session_id": st.id,
			"vessel_id":  v.ID,
			"name":       v.VesselName,
			"imo":        v.IMONumber,
			"company":    c.Name,
			"created":    created,
		})
	}
	return nil
}

func (r *Runner) companyError(st *state, c vessel.Company, err error, logger *zap.Logger) {
	logger.Warn("company crawl error", zap.Error(err))
	st.recordError(PhaseDiscovery, c.Name, err, r.Clock.Now())
	r.emit(st, progress.Event{Stage: progress.StageCompanyError, Company: c.Name, Note: err.Error()})
}
