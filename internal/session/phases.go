package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osvhub/osv-discovery/internal/imo"
	"github.com/osvhub/osv-discovery/internal/media"
	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// lookupPhotoConfidence is the confidence given to photos found by IMO lookup.
const lookupPhotoConfidence = 0.6

// enrich runs IMO lookups for every stored vessel with a valid IMO number.
// Photos the lookups find are downloaded when download is set and a
// Downloader is configured, otherwise stored as links.
func (r *Runner) enrich(ctx context.Context, st *state, download bool, logger *zap.Logger) (map[string]any, error) {
	vessels, err := r.Repo.AllVessels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vessels: %w", err)
	}
	var candidates []vessel.Vessel
	for _, v := range vessels {
		if imo.Validate(v.IMONumber) {
			candidates = append(candidates, v)
		}
	}

	var enriched, failed, photos, done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxWorkers)
	for _, v := range candidates {
		g.Go(func() error {
			changed, err := r.Enricher.Enrich(gctx, &v)
			if err != nil {
				if interrupted(gctx, err) {
					return gctx.Err()
				}
				failed.Add(1)
				logger.Warn("imo enrichment failed", zap.String("imo", v.IMONumber), zap.Error(err))
				st.recordError(PhaseEnrichment, v.IMONumber, err, r.Clock.Now())
				return nil
			}
			if changed {
				v.DataQualityScore = vessel.QualityScore(&v)
				if err := r.Repo.SaveVessel(gctx, &v); err != nil {
					if interrupted(gctx, err) {
						return gctx.Err()
					}
					failed.Add(1)
					st.recordError(PhaseEnrichment, v.IMONumber, fmt.Errorf("save vessel: %w", err), r.Clock.Now())
					return nil
				}
				enriched.Add(1)
				st.vesselUpdated()
			}
			saved, err := r.saveLookupPhotos(gctx, st, v, download, logger)
			photos.Add(int64(saved))
			if err != nil {
				return err
			}
			r.emit(st, progress.Event{
				Stage:   progress.StagePhaseProgress,
				Phase:   PhaseEnrichment,
				Current: int(done.Add(1)),
				Total:   len(candidates),
			})
			return nil
		})
	}
	err = g.Wait()
	return map[string]any{
		"candidates":       len(candidates),
		"vessels_enriched": enriched.Load(),
		"photos_saved":     photos.Load(),
		"errors":           failed.Load(),
	}, err
}

// saveLookupPhotos stores v.PhotoURLs as photo media rows. Only
// interruption is returned.
func (r *Runner) saveLookupPhotos(ctx context.Context, st *state, v vessel.Vessel, download bool, logger *zap.Logger) (int, error) {
	var saved int
	for _, url := range v.PhotoURLs {
		exists, err := r.Repo.MediaExists(ctx, v.ID, url)
		if err == nil && exists {
			continue
		}
		m := vessel.Media{
			VesselID:   v.ID,
			MediaType:  vessel.MediaPhoto,
			SourceURL:  url,
			Title:      v.VesselName,
			Confidence: lookupPhotoConfidence,
		}
		if err == nil && download && r.Downloader != nil {
			m, err = r.Downloader.Download(ctx, media.Item{
				VesselID:   v.ID,
				MediaType:  vessel.MediaPhoto,
				URL:        url,
				Title:      v.VesselName,
				Source:     "imo_lookup",
				Confidence: lookupPhotoConfidence,
			})
		}
		if err == nil {
			err = r.Repo.UpsertMedia(ctx, &m)
		}
		if err != nil {
			if interrupted(ctx, err) {
				return saved, ctx.Err()
			}
			logger.Warn("lookup photo not saved", zap.String("url", url), zap.Error(err))
			st.recordError(PhaseEnrichment, url, err, r.Clock.Now())
			continue
		}
		saved++
		st.mediaSaved()
	}
	return saved, nil
}

// validate recomputes data_quality_score for every vessel.
func (r *Runner) validate(ctx context.Context, st *state, logger *zap.Logger) (map[string]any, error) {
	vessels, err := r.Repo.AllVessels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vessels: %w", err)
	}
	var changed int
	var sum float64
	for i := range vessels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := &vessels[i]
		score := vessel.QualityScore(v)
		sum += score
		if score == v.DataQualityScore {
			continue
		}
		if err := r.Repo.UpdateQualityScore(ctx, v.ID, score); err != nil {
			return nil, fmt.Errorf("update quality score %s: %w", v.ID, err)
		}
		changed++
	}
	avg := 0.0
	if len(vessels) > 0 {
		avg = math.Round(sum/float64(len(vessels))*1000) / 1000
	}
	logger.Info("quality scores updated", zap.Int("vessels", len(vessels)), zap.Int("changed", changed))
	return map[string]any{
		"vessels_scored":   len(vessels),
		"scores_changed":   changed,
		"avg_data_quality": avg,
	}, nil
}

// syncMarketplace lists every stored vessel on the marketplace.
func (r *Runner) syncMarketplace(ctx context.Context, st *state, logger *zap.Logger) (map[string]any, error) {
	vessels, err := r.Repo.AllVessels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vessels: %w", err)
	}
	res, err := r.Marketplace.Sync(ctx, vessels)
	now := r.Clock.Now()
	for _, msg := range res.Errors {
		st.recordError(PhaseMarketplace, "", errors.New(msg), now)
	}
	logger.Info("marketplace synced",
		zap.Int("successful", res.SuccessfulSyncs),
		zap.Int("failed", res.FailedSyncs),
	)
	return map[string]any{
		"total_processed":  res.TotalProcessed,
		"successful_syncs": res.SuccessfulSyncs,
		"failed_syncs":     res.FailedSyncs,
		"updated_vessels":  res.UpdatedVessels,
		"new_vessels":      res.NewVessels,
	}, err
}
