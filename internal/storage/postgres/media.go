package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// UpsertMedia is keyed on (vessel_id, source_url).
func (r *Repository) UpsertMedia(ctx context.Context, m *vessel.Media) error {
	const q = `
INSERT INTO vessel_media (vessel_id, media_type, document_type, source_url, local_path, file_size,
    content_hash, content_type, title, confidence, extracted_text, extracted_data)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (vessel_id, source_url) DO UPDATE SET
    media_type = EXCLUDED.media_type,
    document_type = EXCLUDED.document_type,
    local_path = COALESCE(EXCLUDED.local_path, vessel_media.local_path),
    file_size = EXCLUDED.file_size,
    content_hash = COALESCE(EXCLUDED.content_hash, vessel_media.content_hash),
    content_type = COALESCE(EXCLUDED.content_type, vessel_media.content_type),
    title = COALESCE(EXCLUDED.title, vessel_media.title),
    confidence = EXCLUDED.confidence,
    extracted_text = COALESCE(EXCLUDED.extracted_text, vessel_media.extracted_text),
    extracted_data = COALESCE(EXCLUDED.extracted_data, vessel_media.extracted_data)
RETURNING id::text, created_at`
	var extracted any
	if len(m.ExtractedData) > 0 {
		extracted = m.ExtractedData
	}
	err := r.db.QueryRow(ctx, q,
		m.VesselID, string(m.MediaType), nullString(string(m.DocumentType)), m.SourceURL,
		nullString(m.LocalPath), m.FileSize, nullString(m.ContentHash), nullString(m.ContentType),
		nullString(m.Title), m.Confidence, nullString(m.ExtractedText), extracted,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("upsert media %s: %w", m.SourceURL, err)
	}
	return nil
}

// MediaExists reports whether (vessel, source_url) is stored.
func (r *Repository) MediaExists(ctx context.Context, vesselID, sourceURL string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vessel_media WHERE vessel_id = $1::uuid AND source_url = $2)`,
		vesselID, sourceURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check media: %w", err)
	}
	return exists, nil
}

// PrimaryPhotoURL returns the source URL of the highest-confidence photo.
func (r *Repository) PrimaryPhotoURL(ctx context.Context, vesselID string) (string, error) {
	const q = `
SELECT source_url FROM vessel_media
WHERE vessel_id = $1::uuid AND media_type = 'photo'
ORDER BY confidence DESC, created_at
LIMIT 1`
	var url string
	if err := r.db.QueryRow(ctx, q, vesselID).Scan(&url); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("primary photo: %w", err)
	}
	return url, nil
}

// ListMedia returns a vessel's media, oldest first.
func (r *Repository) ListMedia(ctx context.Context, vesselID string) ([]vessel.Media, error) {
	const q = `
SELECT id::text, vessel_id::text, media_type, COALESCE(document_type, ''), source_url,
       COALESCE(local_path, ''), file_size, COALESCE(content_hash, ''), COALESCE(content_type, ''),
       COALESCE(title, ''), confidence, COALESCE(extracted_text, ''), extracted_data, created_at
FROM vessel_media WHERE vessel_id = $1::uuid ORDER BY created_at`
	rows, err := r.db.Query(ctx, q, vesselID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	out := []vessel.Media{}
	for rows.Next() {
		var (
			m                  vessel.Media
			mediaType, docType string
		)
		if err := rows.Scan(&m.ID, &m.VesselID, &mediaType, &docType, &m.SourceURL, &m.LocalPath,
			&m.FileSize, &m.ContentHash, &m.ContentType, &m.Title, &m.Confidence, &m.ExtractedText,
			&m.ExtractedData, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media row: %w", err)
		}
		m.MediaType = vessel.MediaType(mediaType)
		m.DocumentType = vessel.DocumentType(docType)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media rows: %w", err)
	}
	return out, nil
}

// InsertSpecification appends a specification row.
func (r *Repository) InsertSpecification(ctx context.Context, s *vessel.Specification) error {
	data := s.SpecData
	if data == nil {
		data = map[string]any{}
	}
	const q = `
INSERT INTO vessel_specifications (vessel_id, media_id, spec_data, extraction_method, confidence)
VALUES ($1::uuid, $2::uuid, $3, $4, $5)
RETURNING id::text, created_at`
	err := r.db.QueryRow(ctx, q, s.VesselID, nullString(s.MediaID), data, s.ExtractionMethod, s.Confidence).
		Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("insert specification: %w", err)
	}
	return nil
}

// ListSpecifications returns a vessel's specifications, oldest first.
func (r *Repository) ListSpecifications(ctx context.Context, vesselID string) ([]vessel.Specification, error) {
	const q = `
SELECT id::text, vessel_id::text, COALESCE(media_id::text, ''), spec_data, extraction_method, confidence, created_at
FROM vessel_specifications WHERE vessel_id = $1::uuid ORDER BY created_at`
	rows, err := r.db.Query(ctx, q, vesselID)
	if err != nil {
		return nil, fmt.Errorf("list specifications: %w", err)
	}
	defer rows.Close()

	out := []vessel.Specification{}
	for rows.Next() {
		var s vessel.Specification
		if err := rows.Scan(&s.ID, &s.VesselID, &s.MediaID, &s.SpecData, &s.ExtractionMethod,
			&s.Confidence, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan specification row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate specification rows: %w", err)
	}
	return out, nil
}

// UpsertFeature is keyed on (vessel_id, feature_name).
func (r *Repository) UpsertFeature(ctx context.Context, f vessel.Feature) error {
	const q = `
INSERT INTO vessel_features (vessel_id, category, feature_name, feature_value, confidence, source_type)
VALUES ($1::uuid, $2, $3, $4, $5, $6)
ON CONFLICT (vessel_id, feature_name) DO UPDATE SET
    category = EXCLUDED.category,
    feature_value = EXCLUDED.feature_value,
    confidence = GREATEST(EXCLUDED.confidence, vessel_features.confidence),
    source_type = EXCLUDED.source_type`
	_, err := r.db.Exec(ctx, q, f.VesselID, f.Category, f.FeatureName, nullString(f.FeatureValue),
		f.Confidence, nullString(f.SourceType))
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("upsert feature %s: %w", f.FeatureName, err)
	}
	return nil
}

// ListFeatures returns a vessel's features ordered by name.
func (r *Repository) ListFeatures(ctx context.Context, vesselID string) ([]vessel.Feature, error) {
	const q = `
SELECT vessel_id::text, category, feature_name, COALESCE(feature_value, ''), confidence,
       COALESCE(source_type, ''), created_at
FROM vessel_features WHERE vessel_id = $1::uuid ORDER BY feature_name`
	rows, err := r.db.Query(ctx, q, vesselID)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	out := []vessel.Feature{}
	for rows.Next() {
		var f vessel.Feature
		if err := rows.Scan(&f.VesselID, &f.Category, &f.FeatureName, &f.FeatureValue,
			&f.Confidence, &f.SourceType, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}
	return out, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
