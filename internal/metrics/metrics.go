// Package metrics exposes Prometheus collectors for the discovery service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal          *prometheus.CounterVec
	bytesFetchedTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	robotsFallbackTotal        prometheus.Counter
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	sessionsTotal              *prometheus.CounterVec
	activeSessions             prometheus.Gauge
	vesselsExtractedTotal      *prometheus.CounterVec
	mediaDownloadedTotal       *prometheus.CounterVec
	imoLookupsTotal            *prometheus.CounterVec
	imoLookupDurationSeconds   *prometheus.HistogramVec
	progressEventsTotal        *prometheus.CounterVec
	websocketClients           prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once; every
// Observe helper calls it, so explicit calls only matter for /metrics.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osv_pages_fetched_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		bytesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osv_bytes_fetched_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		robotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "osv_robots_fallback_total",
				Help: "Times robots.txt could not be fetched and an allow-all policy was assumed.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "osv_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		sessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osv_crawl_sessions_total",
				Help: "Crawl sessions finished, labeled by final status.",
			},
			[]string{"status"},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "osv_crawl_sessions_active",
				Help: "Number of crawl sessions currently running.",
			},
		)

		vesselsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osv_vessels_extracted_total",
				Help: "Vessel records extracted, labeled by source.",
			},
			[]string{"source"},
		)

		mediaDownloadedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osv_media_downloaded_total",
				Help: "Media downloads, labeled by media type and result.",
			},
			[]string{"media_type", "result"},
		)

		imoLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osv_imo_lookups_total",
				Help: "IMO source lookups, labeled by source and result.",
			},
			[]string{"source", "result"},
		)

		imoLookupDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "osv_imo_lookup_duration_seconds",
				Help:    "Latency of IMO source lookups.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)

		progressEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osv_progress_events_total",
				Help: "Progress events emitted, labeled by stage.",
			},
			[]string{"stage"},
		)

		websocketClients = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "osv_websocket_clients",
				Help: "Connected dashboard WebSocket clients.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one page fetch.
func ObserveFetch(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	pagesFetchedTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		bytesFetchedTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts an allow-all robots fallback.
func ObserveRobotsFallback() {
	Init()
	robotsFallbackTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// SessionStarted marks a crawl session as running.
func SessionStarted() {
	Init()
	activeSessions.Inc()
}

// SessionFinished records the final status of a crawl session.
func SessionFinished(status string) {
	Init()
	activeSessions.Dec()
	sessionsTotal.WithLabelValues(status).Inc()
}

// ObserveVessels adds n extracted vessels for source.
func ObserveVessels(source string, n int) {
	Init()
	if n <= 0 {
		return
	}
	vesselsExtractedTotal.WithLabelValues(source).Add(float64(n))
}

// ObserveMedia records a media download outcome.
func ObserveMedia(mediaType, result string) {
	Init()
	mediaDownloadedTotal.WithLabelValues(mediaType, result).Inc()
}

// ObserveIMOLookup records a single IMO source attempt.
func ObserveIMOLookup(source, result string, duration time.Duration) {
	Init()
	imoLookupsTotal.WithLabelValues(source, result).Inc()
	imoLookupDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveProgressEvent counts a progress event by stage.
func ObserveProgressEvent(stage string) {
	Init()
	progressEventsTotal.WithLabelValues(stage).Inc()
}

// SetWebSocketClients reports the number of connected dashboard clients.
func SetWebSocketClients(n int) {
	Init()
	websocketClients.Set(float64(n))
}
