package store

import (
	"context"
	"errors"
	"time"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict signals a uniqueness violation, such as a duplicate IMO number.
	ErrConflict = errors.New("record conflicts with an existing row")
)

// VesselFilter narrows ListVessels. Search matches vessel name, owner and IMO
// case-insensitively.
type VesselFilter struct {
	Search     string
	VesselType string
	Limit      int
	Offset     int
}

// CompanyFilter narrows ListCompanies.
type CompanyFilter struct {
	Search string
	Limit  int
	Offset int
}

// VesselLookup identifies an existing vessel. Fields are tried in order: IMO,
// MMSI, then name plus owner.
type VesselLookup struct {
	IMO   string
	MMSI  string
	Name  string
	Owner string
}

// SourceDelta is an increment applied to a source_performance row.
type SourceDelta struct {
	SourceName    string
	SourceType    string
	Successes     int64
	Failures      int64
	TotalLatency  time.Duration
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
}

// Requests is the number of attempts the delta represents.
func (d SourceDelta) Requests() int64 {
	return d.Successes + d.Failures
}

// DashboardStats is the payload of GET /api/stats and the stats_update broadcast.
type DashboardStats struct {
	TotalCompanies      int        `json:"total_companies"`
	TotalVessels        int        `json:"total_vessels"`
	VesselsWithPhotos   int        `json:"vessels_with_photos"`
	VesselsWithSpecs    int        `json:"vessels_with_specs"`
	ActiveCrawlSessions int        `json:"active_crawl_sessions"`
	AvgDataQuality      float64    `json:"avg_data_quality"`
	LastUpdate          *time.Time `json:"last_update"`
	CrawlSuccessRate    float64    `json:"crawl_success_rate"`
	AvgProcessingTime   float64    `json:"avg_processing_time"`
	MediaCollectionRate float64    `json:"media_collection_rate"`
	VesselsAddedToday   int        `json:"vessels_added_today"`
	MediaCollectedToday int        `json:"media_collected_today"`
	ErrorsToday         int        `json:"errors_today"`
}

// ListingCounts summarizes vessel_listings.
type ListingCounts struct {
	Active   int
	Featured int
}

// CompanyRepository persists member companies.
type CompanyRepository interface {
	// UpsertCompany inserts or updates by name and sets c.ID.
	UpsertCompany(ctx context.Context, c *vessel.Company) error
	ListCompanies(ctx context.Context, f CompanyFilter) ([]vessel.Company, int, error)
}

// VesselRepository persists vessels.
type VesselRepository interface {
	// UpsertVessel merges by IMO when present, otherwise by name plus owner.
	// It sets v.ID and reports whether a new row was created.
	UpsertVessel(ctx context.Context, v *vessel.Vessel) (bool, error)
	// SaveVessel overwrites an existing row by ID.
	SaveVessel(ctx context.Context, v *vessel.Vessel) error
	GetVessel(ctx context.Context, id string) (vessel.Vessel, error)
	FindVessel(ctx context.Context, l VesselLookup) (vessel.Vessel, error)
	ListVessels(ctx context.Context, f VesselFilter) ([]vessel.Vessel, int, error)
	AllVessels(ctx context.Context) ([]vessel.Vessel, error)
	UpdateQualityScore(ctx context.Context, id string, score float64) error
}

// MediaRepository persists media, specifications and features.
type MediaRepository interface {
	// UpsertMedia is keyed on (vessel_id, source_url) and sets m.ID.
	UpsertMedia(ctx context.Context, m *vessel.Media) error
	MediaExists(ctx context.Context, vesselID, sourceURL string) (bool, error)
	ListMedia(ctx context.Context, vesselID string) ([]vessel.Media, error)
	// PrimaryPhotoURL returns the source URL of the vessel's best photo, or ""
	// when it has none.
	PrimaryPhotoURL(ctx context.Context, vesselID string) (string, error)
	InsertSpecification(ctx context.Context, s *vessel.Specification) error
	ListSpecifications(ctx context.Context, vesselID string) ([]vessel.Specification, error)
	UpsertFeature(ctx context.Context, f vessel.Feature) error
	ListFeatures(ctx context.Context, vesselID string) ([]vessel.Feature, error)
}

// SessionRepository persists crawl sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, s vessel.CrawlSession) error
	UpdateSession(ctx context.Context, s vessel.CrawlSession) error
	GetSession(ctx context.Context, id string) (vessel.CrawlSession, error)
	ListSessions(ctx context.Context, limit int) ([]vessel.CrawlSession, error)
}

// SourceRepository persists per-source request counters.
type SourceRepository interface {
	ApplySourceDelta(ctx context.Context, d SourceDelta, at time.Time) error
	ListSourcePerformance(ctx context.Context) ([]vessel.SourcePerformance, error)
}

// ListingRepository persists marketplace listings.
type ListingRepository interface {
	// UpsertListing keeps one active listing per vessel and sets l.ID.
	UpsertListing(ctx context.Context, l *vessel.Listing) error
	ListingCounts(ctx context.Context) (ListingCounts, error)
}

// StatsRepository serves dashboard aggregates.
type StatsRepository interface {
	DashboardStats(ctx context.Context, now time.Time) (DashboardStats, error)
	Ping(ctx context.Context) error
}

// Repository is the full persistence surface.
type Repository interface {
	CompanyRepository
	VesselRepository
	MediaRepository
	SessionRepository
	SourceRepository
	ListingRepository
	StatsRepository
}
