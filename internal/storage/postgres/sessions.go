package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

const sessionColumns = `id::text, session_type, status, started_at, completed_at, duration_seconds,
companies_processed, vessels_found, vessels_updated, media_collected, errors_count, results, error_log`

func sessionJSON(s vessel.CrawlSession) (map[string]any, []vessel.SessionError) {
	results := s.Results
	if results == nil {
		results = map[string]any{}
	}
	errLog := s.ErrorLog
	if errLog == nil {
		errLog = []vessel.SessionError{}
	}
	return results, errLog
}

// CreateSession inserts a session row.
func (r *Repository) CreateSession(ctx context.Context, s vessel.CrawlSession) error {
	results, errLog := sessionJSON(s)
	const q = `
INSERT INTO crawl_sessions (id, session_type, status, started_at, completed_at, duration_seconds,
    companies_processed, vessels_found, vessels_updated, media_collected, errors_count, results, error_log)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Exec(ctx, q, s.ID, s.SessionType, string(s.Status), s.StartedAt, s.CompletedAt,
		s.DurationSeconds, s.CompaniesProcessed, s.VesselsFound, s.VesselsUpdated, s.MediaCollected,
		s.ErrorsCount, results, errLog)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert crawl session: %w", err)
	}
	return nil
}

// UpdateSession overwrites the mutable columns of a session.
func (r *Repository) UpdateSession(ctx context.Context, s vessel.CrawlSession) error {
	results, errLog := sessionJSON(s)
	const q = `
UPDATE crawl_sessions SET status = $2, completed_at = $3, duration_seconds = $4,
    companies_processed = $5, vessels_found = $6, vessels_updated = $7, media_collected = $8,
    errors_count = $9, results = $10, error_log = $11
WHERE id = $1::uuid`
	tag, err := r.db.Exec(ctx, q, s.ID, string(s.Status), s.CompletedAt, s.DurationSeconds,
		s.CompaniesProcessed, s.VesselsFound, s.VesselsUpdated, s.MediaCollected, s.ErrorsCount,
		results, errLog)
	if err != nil {
		return fmt.Errorf("update crawl session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetSession loads one session.
func (r *Repository) GetSession(ctx context.Context, id string) (vessel.CrawlSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, "SELECT "+sessionColumns+" FROM crawl_sessions WHERE id = $1::uuid", id))
	if err != nil {
		return vessel.CrawlSession{}, mapNoRows(err, "get crawl session")
	}
	return s, nil
}

// ListSessions returns the newest sessions first.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]vessel.CrawlSession, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+sessionColumns+" FROM crawl_sessions ORDER BY started_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list crawl sessions: %w", err)
	}
	defer rows.Close()

	out := []vessel.CrawlSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crawl session row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl session rows: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (vessel.CrawlSession, error) {
	var (
		s      vessel.CrawlSession
		status string
	)
	err := row.Scan(&s.ID, &s.SessionType, &status, &s.StartedAt, &s.CompletedAt, &s.DurationSeconds,
		&s.CompaniesProcessed, &s.VesselsFound, &s.VesselsUpdated, &s.MediaCollected, &s.ErrorsCount,
		&s.Results, &s.ErrorLog)
	s.Status = vessel.SessionStatus(status)
	return s, err
}

// ApplySourceDelta folds a delta into source_performance, keeping a running
// average of response time.
func (r *Repository) ApplySourceDelta(ctx context.Context, d store.SourceDelta, at time.Time) error {
	if d.Requests() == 0 {
		return nil
	}
	latencyMs := float64(d.TotalLatency) / float64(time.Millisecond)
	const q = `
INSERT INTO source_performance (source_name, source_type, total_requests, successful_requests,
    failed_requests, avg_response_ms, last_success_at, last_failure_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::float8 / $3, $7, $8, $9)
ON CONFLICT (source_name) DO UPDATE SET
    source_type = EXCLUDED.source_type,
    avg_response_ms = (source_performance.avg_response_ms * source_performance.total_requests + $6::float8)
        / (source_performance.total_requests + EXCLUDED.total_requests),
    total_requests = source_performance.total_requests + EXCLUDED.total_requests,
    successful_requests = source_performance.successful_requests + EXCLUDED.successful_requests,
    failed_requests = source_performance.failed_requests + EXCLUDED.failed_requests,
    last_success_at = GREATEST(source_performance.last_success_at, EXCLUDED.last_success_at),
    last_failure_at = GREATEST(source_performance.last_failure_at, EXCLUDED.last_failure_at),
    updated_at = EXCLUDED.updated_at`
	_, err := r.db.Exec(ctx, q, d.SourceName, d.SourceType, d.Requests(), d.Successes, d.Failures,
		latencyMs, d.LastSuccessAt, d.LastFailureAt, at)
	if err != nil {
		return fmt.Errorf("failed to apply source delta for %s: %w", d.SourceName, err)
	}
	return nil
}

// ListSourcePerformance orders by success rate desc.
func (r *Repository) ListSourcePerformance(ctx context.Context) ([]vessel.SourcePerformance, error) {
	const q = `
SELECT source_name, source_type, total_requests, successful_requests, failed_requests,
       avg_response_ms, success_rate, last_success_at, last_failure_at, updated_at
FROM source_performance ORDER BY success_rate DESC, source_name`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list source performance: %w", err)
	}
	defer rows.Close()

	out := []vessel.SourcePerformance{}
	for rows.Next() {
		var p vessel.SourcePerformance
		if err := rows.Scan(&p.SourceName, &p.SourceType, &p.TotalRequests, &p.SuccessfulRequests,
			&p.FailedRequests, &p.AvgResponseMs, &p.SuccessRate, &p.LastSuccessAt, &p.LastFailureAt,
			&p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source performance row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source performance rows: %w", err)
	}
	return out, nil
}
