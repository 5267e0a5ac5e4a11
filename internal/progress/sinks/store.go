package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/store"
)

// StoreSink folds SOURCE_RESULT events into per-source deltas and applies
// one write per source per batch.
type StoreSink struct {
	repo   store.SourceRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.SourceRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume aggregates the batch and writes the deltas. The first repository
// error aborts the batch.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[string]*store.SourceDelta)
	order := make([]string, 0)
	for _, evt := range batch {
		if evt.Stage != progress.StageSourceResult || evt.Source == "" {
			continue
		}
		d, ok := deltas[evt.Source]
		if !ok {
			d = &store.SourceDelta{SourceName: evt.Source, SourceType: evt.SourceType}
			deltas[evt.Source] = d
			order = append(order, evt.Source)
		}
		if d.SourceType == "" {
			d.SourceType = evt.SourceType
		}
		d.TotalLatency += evt.Dur
		ts := evt.TS
		if evt.Success {
			d.Successes++
			if d.LastSuccessAt == nil || ts.After(*d.LastSuccessAt) {
				d.LastSuccessAt = &ts
			}
		} else {
			d.Failures++
			if d.LastFailureAt == nil || ts.After(*d.LastFailureAt) {
				d.LastFailureAt = &ts
			}
		}
	}

	for _, name := range order {
		d := deltas[name]
		if d.SourceType == "" {
			d.SourceType = "unknown"
		}
		at := latest(d)
		if err := s.repo.ApplySourceDelta(ctx, *d, at); err != nil {
			return fmt.Errorf("apply source delta for %s: %w", name, err)
		}
		s.logger.Debug("source performance updated",
			zap.String("source", name),
			zap.Int64("successes", d.Successes),
			zap.Int64("failures", d.Failures))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func latest(d *store.SourceDelta) (at time.Time) {
	if d.LastSuccessAt != nil {
		at = *d.LastSuccessAt
	}
	if d.LastFailureAt != nil && d.LastFailureAt.After(at) {
		at = *d.LastFailureAt
	}
	return at
}
