package session

import (
	"math"
	"sync"
	"time"

	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

// state accumulates session counters across concurrent workers.
type state struct {
	id          string
	sessionType crawler.SessionType
	startedAt   time.Time

	// visited dedupes vessel pages across companies.
	visited *crawler.VisitTracker

	mu       sync.Mutex
	phase    string
	c        progress.Counters
	results  map[string]any
	errorLog []vessel.SessionError
}

func newState(item crawler.QueueItem, now time.Time) *state {
	t := item.Options.Type
	if t == "" {
		t = crawler.SessionFull
	}
	return &state{
		id:          item.SessionID,
		sessionType: t,
		startedAt:   now,
		visited:     crawler.NewVisitTracker(),
		results:     make(map[string]any),
	}
}

func (s *state) setPhase(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

func (s *state) setResult(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = v
}

func (s *state) recordError(phase, source string, err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Errors++
	s.errorLog = append(s.errorLog, vessel.SessionError{
		Phase:   phase,
		Source:  source,
		Message: err.Error(),
		At:      at.UTC(),
	})
}

func (s *state) companyDone() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.CompaniesProcessed++
	return s.c.CompaniesProcessed
}

func (s *state) vesselSaved(created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.VesselsFound++
	if !created {
		s.c.VesselsUpdated++
	}
}

func (s *state) vesselUpdated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.VesselsUpdated++
}

func (s *state) mediaSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.MediaCollected++
}

func (s *state) counters() progress.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

func (s *state) snapshotLocked() vessel.CrawlSession {
	results := make(map[string]any, len(s.results))
	for k, v := range s.results {
		results[k] = v
	}
	return vessel.CrawlSession{
		ID:                 s.id,
		SessionType:        string(s.sessionType),
		Status:             vessel.SessionRunning,
		StartedAt:          s.startedAt,
		CompaniesProcessed: s.c.CompaniesProcessed,
		VesselsFound:       s.c.VesselsFound,
		VesselsUpdated:     s.c.VesselsUpdated,
		MediaCollected:     s.c.MediaCollected,
		ErrorsCount:        s.c.Errors,
		Results:            results,
		ErrorLog:           append([]vessel.SessionError(nil), s.errorLog...),
	}
}

func (s *state) snapshot() vessel.CrawlSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *state) finish(status vessel.SessionStatus, now time.Time) vessel.CrawlSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.snapshotLocked()
	sess.Status = status
	completed := now
	sess.CompletedAt = &completed
	secs := math.Round(now.Sub(s.startedAt).Seconds()*1000) / 1000
	sess.DurationSeconds = &secs
	if s.phase != "" && status != vessel.SessionCompleted {
		sess.Results["stopped_in_phase"] = s.phase
	}
	return sess
}
