package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// Repository is the persistence surface the syncer needs.
type Repository interface {
	GetVessel(ctx context.Context, id string) (vessel.Vessel, error)
	FindVessel(ctx context.Context, l store.VesselLookup) (vessel.Vessel, error)
	UpsertVessel(ctx context.Context, v *vessel.Vessel) (bool, error)
	SaveVessel(ctx context.Context, v *vessel.Vessel) error
	AllVessels(ctx context.Context) ([]vessel.Vessel, error)
	UpsertListing(ctx context.Context, l *vessel.Listing) error
	ListingCounts(ctx context.Context) (store.ListingCounts, error)
	PrimaryPhotoURL(ctx context.Context, vesselID string) (string, error)
}

// SyncResult summarizes one Sync call.
type SyncResult struct {
	TotalProcessed  int      `json:"total_processed"`
	SuccessfulSyncs int      `json:"successful_syncs"`
	FailedSyncs     int      `json:"failed_syncs"`
	UpdatedVessels  int      `json:"updated_vessels"`
	NewVessels      int      `json:"new_vessels"`
	Errors          []string `json:"errors"`
}

// ListingEvent is published after a listing is written.
type ListingEvent struct {
	VesselID   string `json:"vessel_id"`
	ListingID  string `json:"listing_id"`
	VesselName string `json:"vessel_name"`
	Created    bool   `json:"created"`
}

// Syncer writes vessels and their listings to the marketplace tables.
type Syncer struct {
	repo      Repository
	publisher crawler.Publisher
	topic     string
	logger    *zap.Logger
}

// NewSyncer constructs a Syncer. publisher may be nil.
func NewSyncer(repo Repository, publisher crawler.Publisher, topic string, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{repo: repo, publisher: publisher, topic: topic, logger: logger}
}

// Sync converts, merges and lists each vessel. Per-vessel failures are
// collected; only context cancellation aborts the run.
func (s *Syncer) Sync(ctx context.Context, vessels []vessel.Vessel) (SyncResult, error) {
	res := SyncResult{Errors: []string{}}
	for _, v := range vessels {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.TotalProcessed++
		created, err := s.syncOne(ctx, v)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.FailedSyncs++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", v.VesselName, err))
			s.logger.Warn("marketplace sync failed",
				zap.String("vessel", v.VesselName),
				zap.Error(err),
			)
			continue
		}
		res.SuccessfulSyncs++
		if created {
			res.NewVessels++
		} else {
			res.UpdatedVessels++
		}
	}
	s.logger.Info("marketplace sync finished",
		zap.Int("processed", res.TotalProcessed),
		zap.Int("new", res.NewVessels),
		zap.Int("updated", res.UpdatedVessels),
		zap.Int("failed", res.FailedSyncs),
	)
	return res, nil
}

// SyncFields syncs loosely typed records, such as a JSON export.
func (s *Syncer) SyncFields(ctx context.Context, records []map[string]any) (SyncResult, error) {
	vessels := make([]vessel.Vessel, 0, len(records))
	for _, r := range records {
		vessels = append(vessels, FromFields(r))
	}
	return s.Sync(ctx, vessels)
}

func (s *Syncer) syncOne(ctx context.Context, v vessel.Vessel) (bool, error) {
	rec := Convert(v)
	if strings.TrimSpace(rec.Vessel.VesselName) == "" {
		return false, errors.New("vessel name is required")
	}
	incoming := rec.Vessel
	incoming.DataQualityScore = vessel.QualityScore(&incoming)

	existing, err := s.findExisting(ctx, v, incoming)
	var created bool
	switch {
	case err == nil:
		merged := Merge(existing, incoming)
		merged.DataQualityScore = vessel.QualityScore(&merged)
		if err := s.repo.SaveVessel(ctx, &merged); err != nil {
			return false, fmt.Errorf("save vessel: %w", err)
		}
		incoming = merged
	case errors.Is(err, store.ErrNotFound):
		ok, err := s.repo.UpsertVessel(ctx, &incoming)
		if err != nil {
			return false, fmt.Errorf("insert vessel: %w", err)
		}
		created = ok
	default:
		return false, fmt.Errorf("find vessel: %w", err)
	}

	listing := rec.Listing
	listing.VesselID = incoming.ID
	if listing.PrimaryPhotoURL == "" && len(incoming.PhotoURLs) > 0 {
		listing.PrimaryPhotoURL = incoming.PhotoURLs[0]
	}
	if listing.PrimaryPhotoURL == "" {
		photo, err := s.repo.PrimaryPhotoURL(ctx, incoming.ID)
		if err != nil {
			return created, fmt.Errorf("primary photo: %w", err)
		}
		listing.PrimaryPhotoURL = photo
	}
	if err := s.repo.UpsertListing(ctx, &listing); err != nil {
		return created, fmt.Errorf("upsert listing: %w", err)
	}
	s.publish(ctx, ListingEvent{
		VesselID:   incoming.ID,
		ListingID:  listing.ID,
		VesselName: incoming.VesselName,
		Created:    created,
	})
	return created, nil
}

// findExisting resolves the stored row for v: by ID when v came from the
// store, then by IMO, MMSI and the name as crawled, then by the cleaned name.
func (s *Syncer) findExisting(ctx context.Context, v, incoming vessel.Vessel) (vessel.Vessel, error) {
	if v.ID != "" {
		existing, err := s.repo.GetVessel(ctx, v.ID)
		if !errors.Is(err, store.ErrNotFound) {
			return existing, err
		}
	}
	raw := strings.Join(strings.Fields(v.VesselName), " ")
	existing, err := s.repo.FindVessel(ctx, store.VesselLookup{
		IMO:   incoming.IMONumber,
		MMSI:  incoming.MMSINumber,
		Name:  raw,
		Owner: incoming.OwnerCompany,
	})
	if !errors.Is(err, store.ErrNotFound) || strings.EqualFold(raw, incoming.VesselName) {
		return existing, err
	}
	return s.repo.FindVessel(ctx, store.VesselLookup{
		Name:  incoming.VesselName,
		Owner: incoming.OwnerCompany,
	})
}

func (s *Syncer) publish(ctx context.Context, evt ListingEvent) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	if _, err := s.publisher.Publish(ctx, s.topic, evt); err != nil {
		s.logger.Warn("publish listing event failed",
			zap.String("vessel_id", evt.VesselID),
			zap.Error(err),
		)
	}
}
