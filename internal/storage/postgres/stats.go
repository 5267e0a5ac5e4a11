package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// UpsertListing keeps one listing per vessel; featured is sticky.
func (r *Repository) UpsertListing(ctx context.Context, l *vessel.Listing) error {
	const q = `
INSERT INTO vessel_listings (vessel_id, listing_status, listing_type, daily_rate, currency,
    available_from, available_to, featured, primary_photo_url, verification_status)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (vessel_id) DO UPDATE SET
    listing_status = EXCLUDED.listing_status,
    listing_type = EXCLUDED.listing_type,
    daily_rate = EXCLUDED.daily_rate,
    currency = EXCLUDED.currency,
    available_from = EXCLUDED.available_from,
    available_to = EXCLUDED.available_to,
    featured = vessel_listings.featured OR EXCLUDED.featured,
    primary_photo_url = COALESCE(EXCLUDED.primary_photo_url, vessel_listings.primary_photo_url),
    verification_status = EXCLUDED.verification_status
RETURNING id::text, featured, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, l.VesselID, l.ListingStatus, l.ListingType, l.DailyRate, l.Currency,
		l.AvailableFrom, l.AvailableTo, l.Featured, nullString(l.PrimaryPhotoURL), l.VerificationStatus,
	).Scan(&l.ID, &l.Featured, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("upsert listing for vessel %s: %w", l.VesselID, err)
	}
	return nil
}

// ListingCounts counts active and featured listings.
func (r *Repository) ListingCounts(ctx context.Context) (store.ListingCounts, error) {
	var c store.ListingCounts
	err := r.db.QueryRow(ctx, `
SELECT count(*) FILTER (WHERE listing_status = 'active'), count(*) FILTER (WHERE featured)
FROM vessel_listings`).Scan(&c.Active, &c.Featured)
	if err != nil {
		return store.ListingCounts{}, fmt.Errorf("count listings: %w", err)
	}
	return c, nil
}

const dashboardStatsSQL = `
SELECT
    (SELECT count(*) FROM companies),
    (SELECT count(*) FROM vessels),
    (SELECT count(DISTINCT vessel_id) FROM vessel_media WHERE media_type = 'photo'),
    (SELECT count(DISTINCT vessel_id) FROM vessel_specifications),
    (SELECT count(*) FROM crawl_sessions WHERE status = 'running'),
    (SELECT COALESCE(round(avg(data_quality_score)::numeric, 3), 0)::float8 FROM vessels),
    (SELECT max(updated_at) FROM vessels),
    (SELECT COALESCE(round(100.0 * count(*) FILTER (WHERE status = 'completed') / NULLIF(count(*), 0), 1), 0)::float8
       FROM crawl_sessions WHERE started_at >= $2),
    (SELECT COALESCE(round(avg(duration_seconds) FILTER (WHERE status = 'completed'), 1), 0)::float8
       FROM crawl_sessions WHERE started_at >= $2),
    (SELECT COALESCE(round(100.0 * (SELECT count(DISTINCT vessel_id) FROM vessel_media) / NULLIF(count(*), 0), 1), 0)::float8
       FROM vessels),
    (SELECT count(*) FROM vessels WHERE created_at >= $1),
    (SELECT count(*) FROM vessel_media WHERE created_at >= $1),
    (SELECT COALESCE(sum(errors_count), 0) FROM crawl_sessions WHERE started_at >= $1)`

// DashboardStats aggregates the dashboard counters in one round trip.
func (r *Repository) DashboardStats(ctx context.Context, now time.Time) (store.DashboardStats, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -7)

	var s store.DashboardStats
	err := r.db.QueryRow(ctx, dashboardStatsSQL, today, weekAgo).Scan(
		&s.TotalCompanies, &s.TotalVessels, &s.VesselsWithPhotos, &s.VesselsWithSpecs,
		&s.ActiveCrawlSessions, &s.AvgDataQuality, &s.LastUpdate, &s.CrawlSuccessRate,
		&s.AvgProcessingTime, &s.MediaCollectionRate, &s.VesselsAddedToday,
		&s.MediaCollectedToday, &s.ErrorsToday,
	)
	if err != nil {
		return store.DashboardStats{}, fmt.Errorf("failed to load dashboard stats: %w", err)
	}
	return s, nil
}
