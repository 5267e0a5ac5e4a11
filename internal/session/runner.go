// Package session runs crawl sessions: member discovery, media collection,
// IMO enrichment, quality scoring and marketplace sync.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/clock/system"
	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/marketplace"
	"github.com/osvhub/osv-discovery/internal/media"
	"github.com/osvhub/osv-discovery/internal/metrics"
	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// Phase names recorded in results, error_log and PHASE_START events.
const (
	PhaseDiscovery   = "discovery"
	PhaseEnhancement = "enhancement"
	PhaseEnrichment  = "enrichment"
	PhaseValidation  = "validation"
	PhaseMarketplace = "marketplace"
)

const finalizeTimeout = 30 * time.Second

// Directory supplies the member companies.
type Directory interface {
	Companies(ctx context.Context) ([]vessel.Company, error)
}

// WebsiteResolver finds a reachable website for a company.
type WebsiteResolver interface {
	Resolve(ctx context.Context, c vessel.Company) (string, error)
}

// PageFinder lists the vessel pages of a site.
type PageFinder interface {
	Find(ctx context.Context, siteURL string) ([]string, error)
}

// PageLoader fetches a page body.
type PageLoader interface {
	Load(ctx context.Context, rawURL string) (crawler.FetchResponse, error)
}

// MediaCollector locates photos and documents for a vessel.
type MediaCollector interface {
	Photos(ctx context.Context, v vessel.Vessel) []media.Item
	Documents(ctx context.Context, v vessel.Vessel) []media.Item
}

// MediaDownloader stores one located item.
type MediaDownloader interface {
	Download(ctx context.Context, item media.Item) (vessel.Media, error)
}

// Enricher fills missing vessel fields from IMO databases.
type Enricher interface {
	Enrich(ctx context.Context, v *vessel.Vessel) (bool, error)
}

// MarketplaceSyncer publishes vessels as listings.
type MarketplaceSyncer interface {
	Sync(ctx context.Context, vessels []vessel.Vessel) (marketplace.SyncResult, error)
}

// Repository is the persistence surface a session writes to.
type Repository interface {
	UpsertCompany(ctx context.Context, c *vessel.Company) error
	UpsertVessel(ctx context.Context, v *vessel.Vessel) (bool, error)
	SaveVessel(ctx context.Context, v *vessel.Vessel) error
	AllVessels(ctx context.Context) ([]vessel.Vessel, error)
	UpdateQualityScore(ctx context.Context, id string, score float64) error
	MediaExists(ctx context.Context, vesselID, sourceURL string) (bool, error)
	UpsertMedia(ctx context.Context, m *vessel.Media) error
	InsertSpecification(ctx context.Context, s *vessel.Specification) error
	UpsertFeature(ctx context.Context, f vessel.Feature) error
	CreateSession(ctx context.Context, s vessel.CrawlSession) error
	UpdateSession(ctx context.Context, s vessel.CrawlSession) error
}

var _ Repository = store.Repository(nil)

// Config tunes a Runner.
type Config struct {
	// MaxWorkers bounds concurrent companies and IMO lookups.
	MaxWorkers int
	// BatchSize is the number of vessels enhanced concurrently.
	BatchSize int
	// BatchDelay separates enhancement batches.
	BatchDelay  time.Duration
	Marketplace bool
	// Topic receives vessel and session events when a publisher is set.
	Topic string
}

// Deps are the collaborators of a Runner. Collector with Downloader,
// Enricher and Marketplace are optional; their phases are skipped when nil.
type Deps struct {
	Repo        Repository
	Directory   Directory
	Resolver    WebsiteResolver
	Pages       PageFinder
	Loader      PageLoader
	Collector   MediaCollector
	Downloader  MediaDownloader
	Enricher    Enricher
	Marketplace MarketplaceSyncer
	Emitter     progress.Emitter
	Publisher   crawler.Publisher
	Clock       crawler.Clock
	Logger      *zap.Logger
}

// Runner executes crawl sessions.
type Runner struct {
	Deps
	cfg Config
}

// NewRunner constructs a Runner.
func NewRunner(deps Deps, cfg Config) *Runner {
	if deps.Emitter == nil {
		deps.Emitter = progress.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	return &Runner{Deps: deps, cfg: cfg}
}

// Run executes one session and returns its final row. The session ends
// completed, failed on a fatal error, or paused when ctx is canceled; it is
// finalized in every case.
func (r *Runner) Run(ctx context.Context, item crawler.QueueItem) vessel.CrawlSession {
	st := newState(item, r.Clock.Now())
	logger := r.Logger.With(
		zap.String("session_id", item.SessionID),
		zap.String("session_type", string(st.sessionType)),
	)

	if err := r.Repo.CreateSession(ctx, st.snapshot()); err != nil {
		logger.Error("create session failed", zap.Error(err))
		st.recordError("session", "", err, r.Clock.Now())
		sess := st.finish(vessel.SessionFailed, r.Clock.Now())
		r.emit(st, progress.Event{Stage: progress.StageSessionError, Note: err.Error()})
		return sess
	}
	metrics.SessionStarted()
	logger.Info("session started")
	r.emit(st, progress.Event{Stage: progress.StageSessionStart, Note: string(st.sessionType)})
	r.publish(ctx, map[string]any{
		"event":        "session_started",
		"session_id":   item.SessionID,
		"session_type": st.sessionType,
		"timestamp":    st.startedAt.Format(time.RFC3339),
	})

	err := r.runPhases(ctx, st, item.Options, logger)
	status := vessel.SessionCompleted
	switch {
	case err == nil:
	case ctx.Err() != nil:
		status = vessel.SessionPaused
		logger.Warn("session interrupted", zap.Error(err))
	default:
		status = vessel.SessionFailed
		st.recordError("session", "", err, r.Clock.Now())
		logger.Error("session failed", zap.Error(err))
	}
	return r.finalize(ctx, st, status, logger)
}

func (r *Runner) runPhases(ctx context.Context, st *state, opts crawler.SessionOptions, logger *zap.Logger) error {
	for _, phase := range r.plan(opts) {
		if err := ctx.Err(); err != nil {
			return err
		}
		started := r.Clock.Now()
		st.setPhase(phase.name)
		r.emit(st, progress.Event{Stage: progress.StagePhaseStart, Phase: phase.name})
		logger.Info("phase started", zap.String("phase", phase.name))

		results, err := phase.run(ctx, st, logger.With(zap.String("phase", phase.name)))
		if results != nil {
			st.setResult(phase.name, results)
		}
		logger.Info("phase finished",
			zap.String("phase", phase.name),
			zap.Duration("elapsed", r.Clock.Now().Sub(started)),
			zap.Error(err),
		)
		if err != nil {
			return fmt.Errorf("%s phase: %w", phase.name, err)
		}
	}
	return nil
}

type phase struct {
	name string
	run  func(context.Context, *state, *zap.Logger) (map[string]any, error)
}

// plan lists the phases for a session type. Discovery sessions only crawl
// member sites; enrichment sessions work on vessels already stored.
func (r *Runner) plan(opts crawler.SessionOptions) []phase {
	var out []phase
	if opts.Type != crawler.SessionEnrichment {
		out = append(out, phase{PhaseDiscovery, r.discover})
	}
	if opts.Type != crawler.SessionDiscovery {
		if !opts.SkipMedia && r.Collector != nil && r.Downloader != nil {
			out = append(out, phase{PhaseEnhancement, r.enhance})
		}
		if !opts.SkipEnrichment && r.Enricher != nil {
			download := !opts.SkipMedia
			out = append(out, phase{PhaseEnrichment, func(ctx context.Context, st *state, l *zap.Logger) (map[string]any, error) {
				return r.enrich(ctx, st, download, l)
			}})
		}
	}
	out = append(out, phase{PhaseValidation, r.validate})
	if opts.Type != crawler.SessionDiscovery && r.cfg.Marketplace && !opts.SkipMarketplace && r.Marketplace != nil {
		out = append(out, phase{PhaseMarketplace, r.syncMarketplace})
	}
	return out
}

func (r *Runner) finalize(ctx context.Context, st *state, status vessel.SessionStatus, logger *zap.Logger) vessel.CrawlSession {
	sess := st.finish(status, r.Clock.Now())

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := r.Repo.UpdateSession(fctx, sess); err != nil {
		logger.Error("finalize session failed", zap.Error(err))
	}
	metrics.SessionFinished(string(status))

	stage := progress.StageSessionDone
	if status == vessel.SessionFailed {
		stage = progress.StageSessionError
	}
	r.emit(st, progress.Event{Stage: stage, Note: string(status)})
	r.publish(fctx, map[string]any{
		"event":               "session_finished",
		"session_id":          sess.ID,
		"status":              status,
		"companies_processed": sess.CompaniesProcessed,
		"vessels_found":       sess.VesselsFound,
		"vessels_updated":     sess.VesselsUpdated,
		"media_collected":     sess.MediaCollected,
		"errors_count":        sess.ErrorsCount,
	})

	duration := 0.0
	if sess.DurationSeconds != nil {
		duration = *sess.DurationSeconds
	}
	logger.Info("session finished",
		zap.String("status", string(status)),
		zap.Int("companies", sess.CompaniesProcessed),
		zap.Int("vessels_found", sess.VesselsFound),
		zap.Int("media", sess.MediaCollected),
		zap.Int("errors", sess.ErrorsCount),
		zap.Float64("duration_seconds", duration),
	)
	return sess
}

func (r *Runner) emit(st *state, evt progress.Event) {
	evt.SessionID = st.id
	evt.TS = r.Clock.Now()
	evt.Counters = st.counters()
	r.Emitter.Emit(evt)
}

func (r *Runner) publish(ctx context.Context, payload map[string]any) {
	if r.Publisher == nil || r.cfg.Topic == "" {
		return
	}
	if _, err := r.Publisher.Publish(ctx, r.cfg.Topic, payload); err != nil {
		r.Logger.Warn("publish event failed",
			zap.Any("event", payload["event"]),
			zap.Error(err),
		)
	}
}

// interrupted reports whether err comes from the session being stopped
// rather than from a single source.
func interrupted(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
