// Package progress defines the events emitted while a crawl session runs.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageSessionStart Stage = "SESSION_START"
	StageSessionDone  Stage = "SESSION_DONE"
	StageSessionError Stage = "SESSION_ERROR"
	StagePhaseStart   Stage = "PHASE_START"
	// StagePhaseProgress reports Current of Total items done within Phase.
	StagePhaseProgress  Stage = "PHASE_PROGRESS"
	StageCompanyStart   Stage = "COMPANY_START"
	StageCompanyDone    Stage = "COMPANY_DONE"
	StageCompanyError   Stage = "COMPANY_ERROR"
	StageCompanySkipped Stage = "COMPANY_SKIPPED"
	StageVesselFound    Stage = "VESSEL_FOUND"
	StageMediaCollected Stage = "MEDIA_COLLECTED"
	// StageSourceResult reports one request against an external source and
	// feeds the source_performance counters.
	StageSourceResult Stage = "SOURCE_RESULT"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Counters is a snapshot of the running session totals.
type Counters struct {
	CompaniesProcessed int `json:"companies_processed"`
	VesselsFound       int `json:"vessels_found"`
	VesselsUpdated     int `json:"vessels_updated"`
	MediaCollected     int `json:"media_collected"`
	Errors             int `json:"errors_count"`
}

// Event captures a single piece of session progress.
type Event struct {
	// SessionID is the crawl session the event belongs to. Source results
	// emitted outside a session leave it empty.
	SessionID string
	TS        time.Time
	Stage     Stage
	// Phase names the session phase for PHASE_START.
	Phase   string
	Current int
	Total   int
	Company string
	Vessel  string
	// Source and SourceType identify the external source for SOURCE_RESULT.
	Source      string
	SourceType  string
	URL         string
	StatusClass StatusClass
	Success     bool
	Dur         time.Duration
	Note        string
	Counters    Counters
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSessionStart, StageSessionDone, StageSessionError,
		StageVesselFound, StageMediaCollected:
	case StagePhaseStart, StagePhaseProgress:
		if e.Phase == "" {
			return errors.New("phase event requires phase")
		}
		if e.Current < 0 || e.Total < 0 {
			return errors.New("phase progress must be >= 0")
		}
	case StageCompanyStart, StageCompanyDone, StageCompanyError, StageCompanySkipped:
		if e.Company == "" {
			return errors.New("company event requires company")
		}
	case StageSourceResult:
		if e.Source == "" {
			return errors.New("source result requires source")
		}
		if e.Dur < 0 {
			return errors.New("duration must be >= 0")
		}
		return nil
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.SessionID == "" {
		return errors.New("session id is required")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
