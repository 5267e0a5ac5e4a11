package vessel

import "time"

// MediaType separates photos from documents.
type MediaType string

// Media types stored in vessel_media.media_type.
const (
	MediaPhoto    MediaType = "photo"
	MediaDocument MediaType = "document"
)

// DocumentType classifies downloaded documents.
type DocumentType string

// Document types stored in vessel_media.document_type.
const (
	DocSpecification DocumentType = "specification"
	DocBrochure      DocumentType = "brochure"
	DocManual        DocumentType = "manual"
	DocCertificate   DocumentType = "certificate"
	DocOther         DocumentType = "other"
)

// Parseable reports whether specifications are extracted from this document type.
func (d DocumentType) Parseable() bool {
	return d == DocSpecification || d == DocBrochure || d == DocManual
}

// Media is a photo or document attached to a vessel.
type Media struct {
	ID            string         `json:"id" db:"id"`
	VesselID      string         `json:"vessel_id" db:"vessel_id"`
	MediaType     MediaType      `json:"media_type" db:"media_type"`
	DocumentType  DocumentType   `json:"document_type,omitempty" db:"document_type"`
	SourceURL     string         `json:"source_url" db:"source_url"`
	LocalPath     string         `json:"local_path,omitempty" db:"local_path"`
	FileSize      int64          `json:"file_size" db:"file_size"`
	ContentHash   string         `json:"content_hash,omitempty" db:"content_hash"`
	ContentType   string         `json:"content_type,omitempty" db:"content_type"`
	Title         string         `json:"title,omitempty" db:"title"`
	Confidence    float64        `json:"confidence" db:"confidence"`
	ExtractedText string         `json:"extracted_text,omitempty" db:"extracted_text"`
	ExtractedData map[string]any `json:"extracted_data,omitempty" db:"extracted_data"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// Specification is a structured extraction result linked to a media row.
type Specification struct {
	ID               string         `json:"id" db:"id"`
	VesselID         string         `json:"vessel_id" db:"vessel_id"`
	MediaID          string         `json:"media_id,omitempty" db:"media_id"`
	SpecData         map[string]any `json:"spec_data" db:"spec_data"`
	ExtractionMethod string         `json:"extraction_method" db:"extraction_method"`
	Confidence       float64        `json:"confidence" db:"confidence"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

// Feature is a capability tag, unique per (vessel, feature name).
type Feature struct {
	VesselID     string    `json:"vessel_id" db:"vessel_id"`
	Category     string    `json:"category" db:"category"`
	FeatureName  string    `json:"feature_name" db:"feature_name"`
	FeatureValue string    `json:"feature_value" db:"feature_value"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	SourceType   string    `json:"source_type" db:"source_type"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
