package imo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/clock/system"
	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/metrics"
	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// SourceType labels IMO sources in source_performance.
const SourceType = "imo_database"

// Config tunes an Engine.
type Config struct {
	Sources           []Source
	CacheTTL          time.Duration
	SkipAfterFailures int
	SkipCooldown      time.Duration
	Retry             crawler.RetryPolicy
}

// Engine looks IMO numbers up across sources in reliability order.
type Engine struct {
	fetcher  crawler.Fetcher
	cache    crawler.Cache
	emitter  progress.Emitter
	clock    crawler.Clock
	logger   *zap.Logger
	sources  []Source
	ttl      time.Duration
	retry    crawler.RetryPolicy
	breakers map[string]*breaker
}

// NewEngine builds an Engine. cache, emitter and clock may be nil.
func NewEngine(
	fetcher crawler.Fetcher,
	cache crawler.Cache,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if clock == nil {
		clock = system.New()
	}
	sources := cfg.Sources
	if len(sources) == 0 {
		sources = DefaultSources
	}
	sources = byReliability(sources)
	breakers := make(map[string]*breaker, len(sources))
	for _, s := range sources {
		breakers[s.Name] = newBreaker(cfg.SkipAfterFailures, cfg.SkipCooldown)
	}
	return &Engine{
		fetcher:  fetcher,
		cache:    cache,
		emitter:  emitter,
		clock:    clock,
		logger:   logger.Named("imo"),
		sources:  sources,
		ttl:      cfg.CacheTTL,
		retry:    cfg.Retry,
		breakers: breakers,
	}
}

// Lookup queries every available source for imo and merges the answers.
func (e *Engine) Lookup(ctx context.Context, imo string) (Result, error) {
	imo = strings.TrimSpace(imo)
	if !Validate(imo) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidIMO, imo)
	}
	if cached, ok := e.fromCache(ctx, imo); ok {
		return cached, nil
	}

	result := Result{IMONumber: imo}
	var reliabilities []float64
	for _, src := range e.sources {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("imo lookup %s: %w", imo, err)
		}
		if !e.breakers[src.Name].allow(e.clock.Now()) {
			e.logger.Debug("source skipped after repeated failures", zap.String("source", src.Name))
			metrics.ObserveIMOLookup(src.Name, "skipped", 0)
			continue
		}
		data, ok := e.query(ctx, src, imo)
		if !ok {
			continue
		}
		result.merge(data, src.Name)
		reliabilities = append(reliabilities, src.Reliability)
	}

	result.Confidence = confidence(result, reliabilities)
	result.LookedUpAt = e.clock.Now()
	if len(result.Sources) > 0 {
		e.toCache(ctx, result)
	}
	e.logger.Info("imo lookup complete",
		zap.String("imo", imo),
		zap.Strings("sources", result.Sources),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}

// Enrich fills the gaps of v from a lookup of its IMO number. It reports
// whether any field changed.
func (e *Engine) Enrich(ctx context.Context, v *vessel.Vessel) (bool, error) {
	if v == nil {
		return false, nil
	}
	result, err := e.Lookup(ctx, v.IMONumber)
	if err != nil {
		return false, err
	}
	if len(result.Sources) == 0 {
		return false, nil
	}
	before := len(v.DataSources)
	filled := vessel.FillMissing(v, result.Vessel())
	changed := len(filled) > 0 || len(v.DataSources) != before
	if changed {
		now := e.clock.Now()
		v.LastVerifiedAt = &now
	}
	return changed, nil
}

func (e *Engine) query(ctx context.Context, src Source, imo string) (Result, bool) {
	url := src.URL(imo)
	start := e.clock.Now()
	resp, err := crawler.FetchWithRetry(ctx, e.fetcher, e.retry, crawler.FetchRequest{
		URL:    url,
		Method: http.MethodGet,
	})
	var data Result
	if err == nil {
		data, err = ParsePage(src, resp.Body, url)
	}
	success := err == nil && !data.Empty()
	now := e.clock.Now()
	dur := now.Sub(start)
	if dur < 0 {
		dur = 0
	}

	e.breakers[src.Name].record(success, now)
	result := "success"
	switch {
	case err != nil:
		result = "error"
		e.logger.Warn("imo source failed", zap.String("source", src.Name), zap.String("imo", imo), zap.Error(err))
	case !success:
		result = "empty"
	}
	metrics.ObserveIMOLookup(src.Name, result, dur)
	e.emitter.Emit(progress.Event{
		TS:          now,
		Stage:       progress.StageSourceResult,
		Source:      src.Name,
		SourceType:  SourceType,
		URL:         url,
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Success:     success,
		Dur:         dur,
	})
	return data, success
}

func cacheKey(imo string) string {
	return "imo:" + imo
}

func (e *Engine) fromCache(ctx context.Context, imo string) (Result, bool) {
	if e.cache == nil {
		return Result{}, false
	}
	raw, ok, err := e.cache.Get(ctx, cacheKey(imo))
	if err != nil {
		e.logger.Warn("imo cache read failed", zap.String("imo", imo), zap.Error(err))
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		e.logger.Warn("imo cache entry unreadable", zap.String("imo", imo), zap.Error(err))
		return Result{}, false
	}
	e.logger.Debug("imo cache hit", zap.String("imo", imo))
	return r, true
}

func (e *Engine) toCache(ctx context.Context, r Result) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(r)
	if err != nil {
		e.logger.Warn("imo cache encode failed", zap.String("imo", r.IMONumber), zap.Error(err))
		return
	}
	if err := e.cache.Set(ctx, cacheKey(r.IMONumber), raw, e.ttl); err != nil {
		e.logger.Warn("imo cache write failed", zap.String("imo", r.IMONumber), zap.Error(err))
	}
}
