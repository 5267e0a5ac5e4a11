package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osvhub/osv-discovery/internal/extract"
	"github.com/osvhub/osv-discovery/internal/media"
	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// Specification rows written from parsed documents.
const (
	SpecExtractionMethod = "automated_parsing"
	SpecConfidence       = 0.8
)

type enhanceStats struct {
	processed atomic.Int64
	media     atomic.Int64
	specs     atomic.Int64
	features  atomic.Int64
	errors    atomic.Int64
}

// enhance collects media for stored vessels in batches, pausing BatchDelay
// between batches.
func (r *Runner) enhance(ctx context.Context, st *state, logger *zap.Logger) (map[string]any, error) {
	vessels, err := r.Repo.AllVessels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vessels: %w", err)
	}
	var stats enhanceStats
	results := func() map[string]any {
		return map[string]any{
			"vessels_processed":        stats.processed.Load(),
			"media_collected":          stats.media.Load(),
			"specifications_extracted": stats.specs.Load(),
			"features_extracted":       stats.features.Load(),
			"errors":                   stats.errors.Load(),
		}
	}

	for start := 0; start < len(vessels); start += r.cfg.BatchSize {
		if start > 0 {
			if err := sleep(ctx, r.cfg.BatchDelay); err != nil {
				return results(), err
			}
		}
		end := min(start+r.cfg.BatchSize, len(vessels))
		g, gctx := errgroup.WithContext(ctx)
		for _, v := range vessels[start:end] {
			g.Go(func() error {
				return r.enhanceVessel(gctx, st, v, &stats, logger)
			})
		}
		if err := g.Wait(); err != nil {
			return results(), err
		}
		r.emit(st, progress.Event{
			Stage:   progress.StagePhaseProgress,
			Phase:   PhaseEnhancement,
			Current: end,
			Total:   len(vessels),
		})
	}
	return results(), nil
}

func (r *Runner) enhanceVessel(ctx context.Context, st *state, v vessel.Vessel, stats *enhanceStats, logger *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger = logger.With(zap.String("vessel", v.VesselName), zap.String("vessel_id", v.ID))
	items := append(r.Collector.Photos(ctx, v), r.Collector.Documents(ctx, v)...)

	var specs map[string]any
	for _, item := range items {
		item.VesselID = v.ID
		exists, err := r.Repo.MediaExists(ctx, v.ID, item.URL)
		if err != nil {
			if interrupted(ctx, err) {
				return ctx.Err()
			}
			r.mediaError(st, stats, item.URL, err, logger)
			continue
		}
		if exists {
			continue
		}
		m, err := r.Downloader.Download(ctx, item)
		if err != nil {
			if interrupted(ctx, err) {
				return ctx.Err()
			}
			r.mediaError(st, stats, item.URL, err, logger)
			continue
		}
		if err := r.Repo.UpsertMedia(ctx, &m); err != nil {
			if interrupted(ctx, err) {
				return ctx.Err()
			}
			r.mediaError(st, stats, item.URL, fmt.Errorf("save media: %w", err), logger)
			continue
		}
		st.mediaSaved()
		stats.media.Add(1)
		r.emit(st, progress.Event{
			Stage:  progress.StageMediaCollected,
			Vessel: v.VesselName,
			URL:    item.URL,
			Note:   string(m.MediaType),
		})

		if m.MediaType != vessel.MediaDocument || !m.DocumentType.Parseable() || m.ExtractedText == "" {
			continue
		}
		parsed, err := r.parseDocument(ctx, v.ID, m, stats)
		if err != nil {
			if interrupted(ctx, err) {
				return ctx.Err()
			}
			r.mediaError(st, stats, item.URL, err, logger)
			continue
		}
		if specs == nil {
			specs = parsed
		} else {
			for k, val := range parsed {
				if _, ok := specs[k]; !ok {
					specs[k] = val
				}
			}
		}
	}

	if len(specs) > 0 {
		if filled := extract.ApplySpecifications(&v, specs); len(filled) > 0 {
			v.DataQualityScore = vessel.QualityScore(&v)
			if err := r.Repo.SaveVessel(ctx, &v); err != nil {
				if interrupted(ctx, err) {
					return ctx.Err()
				}
				r.mediaError(st, stats, v.SourceURL, fmt.Errorf("save specifications: %w", err), logger)
			} else {
				st.vesselUpdated()
				logger.Debug("specifications applied", zap.Strings("fields", filled))
			}
		}
	}
	stats.processed.Add(1)
	return nil
}

// parseDocument stores the specifications and features found in m.
func (r *Runner) parseDocument(ctx context.Context, vesselID string, m vessel.Media, stats *enhanceStats) (map[string]any, error) {
	specs := extract.Specifications(m.ExtractedText)
	if len(specs) > 0 {
		err := r.Repo.InsertSpecification(ctx, &vessel.Specification{
			VesselID:         vesselID,
			MediaID:          m.ID,
			SpecData:         specs,
			ExtractionMethod: SpecExtractionMethod,
			Confidence:       SpecConfidence,
		})
		if err != nil {
			return nil, fmt.Errorf("save specification: %w", err)
		}
		stats.specs.Add(1)
	}
	for _, f := range extract.Features(m.ExtractedText) {
		f.VesselID = vesselID
		if err := r.Repo.UpsertFeature(ctx, f); err != nil {
			return specs, fmt.Errorf("save feature %s: %w", f.FeatureName, err)
		}
		stats.features.Add(1)
	}
	return specs, nil
}

func (r *Runner) mediaError(st *state, stats *enhanceStats, source string, err error, logger *zap.Logger) {
	logger.Warn("media collection error", zap.String("url", source), zap.Error(err))
	stats.errors.Add(1)
	st.recordError(PhaseEnhancement, source, err, r.Clock.Now())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ MediaCollector = (*media.Collector)(nil)
