// Package ratelimit enforces a per-domain politeness delay on outbound fetches.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/metrics"
)

// Limiter manages one token bucket per domain.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	delay     time.Duration
	overrides map[string]time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	// Delay is the minimum spacing between requests to the same domain.
	Delay time.Duration
	// Overrides replaces Delay for specific hosts, matched after "www." is stripped.
	Overrides map[string]time.Duration
}

// New creates a new Limiter. A zero delay disables limiting.
func New(cfg Config) *Limiter {
	overrides := make(map[string]time.Duration, len(cfg.Overrides))
	for host, d := range cfg.Overrides {
		overrides[crawler.Host("http://"+host)] = d
	}
	return &Limiter{
		limiters:  make(map[string]*rate.Limiter),
		delay:     cfg.Delay,
		overrides: overrides,
	}
}

// SetDomainDelay overrides the delay for one host. Existing buckets for the
// host are replaced.
func (l *Limiter) SetDomainDelay(host string, delay time.Duration) {
	domain := crawler.Host("http://" + host)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[domain] = delay
	delete(l.limiters, domain)
}

// Wait blocks until a token is available for the URL's domain, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := crawler.Host(rawURL)
	if domain == "" {
		domain = "unknown"
	}
	limiter := l.limiterFor(domain)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[domain]; ok {
		return limiter
	}
	delay := l.delay
	if d, ok := l.overrides[domain]; ok {
		delay = d
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	limiter := rate.NewLimiter(limit, 1)
	l.limiters[domain] = limiter
	return limiter
}
