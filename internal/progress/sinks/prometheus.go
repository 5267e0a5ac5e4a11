package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/osvhub/osv-discovery/internal/progress"
)

// PrometheusSink derives session and source collectors from the event stream.
type PrometheusSink struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	sessionsRunning   prometheus.Gauge
	sessionRuntime    *prometheus.HistogramVec

	companies     *prometheus.CounterVec
	vesselsFound  prometheus.Counter
	mediaSaved    prometheus.Counter
	sourceResults *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against reg (the default
// registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "osv_progress_sessions_started_total",
			Help: "Crawl sessions that emitted a start event.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "osv_progress_sessions_completed_total",
			Help: "Crawl sessions finished, partitioned by result.",
		}, []string{"result"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "osv_progress_sessions_running",
			Help: "Crawl sessions currently running.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "osv_progress_session_runtime_seconds",
			Help:    "Wall time per finished session.",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}, []string{"result"}),
		companies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "osv_progress_companies_total",
			Help: "Companies processed, partitioned by result.",
		}, []string{"result"}),
		vesselsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "osv_progress_vessels_found_total",
			Help: "Vessel records produced by the pipeline.",
		}),
		mediaSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "osv_progress_media_collected_total",
			Help: "Media items saved.",
		}),
		sourceResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "osv_progress_source_requests_total",
			Help: "External source requests, partitioned by source and result.",
		}, []string{"source", "result"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "osv_progress_source_latency_seconds",
			Help:    "External source request latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"source"}),
		tracker: newSessionTracker(),
	}
	for _, c := range []prometheus.Collector{
		s.sessionsStarted, s.sessionsCompleted, s.sessionsRunning, s.sessionRuntime,
		s.companies, s.vesselsFound, s.mediaSaved, s.sourceResults, s.sourceLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageSessionStart:
			s.sessionsStarted.Inc()
			if s.tracker.start(evt.SessionID) {
				s.sessionsRunning.Inc()
			}
		case progress.StageSessionDone:
			s.finishSession(evt, "success")
		case progress.StageSessionError:
			s.finishSession(evt, "error")
		case progress.StageCompanyDone:
			s.companies.WithLabelValues("success").Inc()
		case progress.StageCompanyError:
			s.companies.WithLabelValues("error").Inc()
		case progress.StageCompanySkipped:
			s.companies.WithLabelValues("skipped").Inc()
		case progress.StageVesselFound:
			s.vesselsFound.Inc()
		case progress.StageMediaCollected:
			s.mediaSaved.Inc()
		case progress.StageSourceResult:
			result := "failure"
			if evt.Success {
				result = "success"
			}
			s.sourceResults.WithLabelValues(evt.Source, result).Inc()
			if evt.Dur > 0 {
				s.sourceLatency.WithLabelValues(evt.Source).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

func (s *PrometheusSink) finishSession(evt progress.Event, result string) {
	s.sessionsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.sessionRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.SessionID) {
		s.sessionsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[string]struct{})}
}

func (t *sessionTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *sessionTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
