package vessel

import "time"

// SessionStatus mirrors the crawl_sessions.status check constraint.
type SessionStatus string

// Crawl session statuses.
const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionPaused    SessionStatus = "paused"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionRunning, SessionCompleted, SessionFailed, SessionPaused:
		return true
	}
	return false
}

// CrawlSession is the run metadata of one crawl.
type CrawlSession struct {
	ID                 string         `json:"id" db:"id"`
	SessionType        string         `json:"session_type" db:"session_type"`
	Status             SessionStatus  `json:"status" db:"status"`
	StartedAt          time.Time      `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	DurationSeconds    *float64       `json:"duration_seconds,omitempty" db:"duration_seconds"`
	CompaniesProcessed int            `json:"companies_processed" db:"companies_processed"`
	VesselsFound       int            `json:"vessels_found" db:"vessels_found"`
	VesselsUpdated     int            `json:"vessels_updated" db:"vessels_updated"`
	MediaCollected     int            `json:"media_collected" db:"media_collected"`
	ErrorsCount        int            `json:"errors_count" db:"errors_count"`
	Results            map[string]any `json:"results,omitempty" db:"results"`
	ErrorLog           []SessionError `json:"error_log,omitempty" db:"error_log"`
}

// SessionError is one entry of a session's error log.
type SessionError struct {
	Phase   string    `json:"phase"`
	Source  string    `json:"source"`
	Message string    `json:"error"`
	At      time.Time `json:"timestamp"`
}

// SourcePerformance holds request counters for one external source.
type SourcePerformance struct {
	SourceName         string     `json:"source_name" db:"source_name"`
	SourceType         string     `json:"source_type" db:"source_type"`
	TotalRequests      int64      `json:"total_requests" db:"total_requests"`
	SuccessfulRequests int64      `json:"successful_requests" db:"successful_requests"`
	FailedRequests     int64      `json:"failed_requests" db:"failed_requests"`
	AvgResponseMs      float64    `json:"avg_response_ms" db:"avg_response_ms"`
	SuccessRate        float64    `json:"success_rate" db:"success_rate"`
	LastSuccessAt      *time.Time `json:"last_success_at,omitempty" db:"last_success_at"`
	LastFailureAt      *time.Time `json:"last_failure_at,omitempty" db:"last_failure_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// ComputeSuccessRate mirrors the generated success_rate column.
func (p SourcePerformance) ComputeSuccessRate() float64 {
	if p.TotalRequests <= 0 {
		return 0
	}
	return float64(p.SuccessfulRequests) / float64(p.TotalRequests)
}

// Listing is a marketplace listing for a vessel.
type Listing struct {
	ID                 string     `json:"id" db:"id"`
	VesselID           string     `json:"vessel_id" db:"vessel_id"`
	ListingStatus      string     `json:"listing_status" db:"listing_status"`
	ListingType        string     `json:"listing_type" db:"listing_type"`
	DailyRate          *float64   `json:"daily_rate,omitempty" db:"daily_rate"`
	Currency           string     `json:"currency" db:"currency"`
	AvailableFrom      *time.Time `json:"available_from,omitempty" db:"available_from"`
	AvailableTo        *time.Time `json:"available_to,omitempty" db:"available_to"`
	Featured           bool       `json:"featured" db:"featured"`
	PrimaryPhotoURL    string     `json:"primary_photo_url,omitempty" db:"primary_photo_url"`
	VerificationStatus string     `json:"verification_status" db:"verification_status"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}
