// Package discovery resolves company websites and finds the pages on them
// that list vessels.
package discovery

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/crawler"
)

// Loader fetches HTML pages with retry and re-renders them in a headless
// browser when the detector says the static body is a script shell.
type Loader struct {
	fetcher  crawler.Fetcher
	headless crawler.Fetcher
	detector crawler.HeadlessDetector
	retry    crawler.RetryPolicy
	logger   *zap.Logger
}

// LoaderConfig wires a Loader. Headless and Detector are optional; leaving
// either nil disables promotion.
type LoaderConfig struct {
	Fetcher  crawler.Fetcher
	Headless crawler.Fetcher
	Detector crawler.HeadlessDetector
	Retry    crawler.RetryPolicy
	Logger   *zap.Logger
}

// NewLoader builds a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := cfg.Retry
	if retry == nil {
		retry = crawler.NewExponentialRetryPolicy()
	}
	return &Loader{
		fetcher:  cfg.Fetcher,
		headless: cfg.Headless,
		detector: cfg.Detector,
		retry:    retry,
		logger:   logger,
	}
}

// Load GETs rawURL. Statuses >= 400 surface as *crawler.StatusError.
func (l *Loader) Load(ctx context.Context, rawURL string) (crawler.FetchResponse, error) {
	resp, err := crawler.FetchWithRetry(ctx, l.fetcher, l.retry, crawler.FetchRequest{
		URL:    rawURL,
		Method: http.MethodGet,
	})
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("load %s: %w", rawURL, err)
	}
	if promoted, ok := l.maybePromote(ctx, rawURL, resp); ok {
		return promoted, nil
	}
	return resp, nil
}

// Head reports the status of a HEAD request that follows redirects.
func (l *Loader) Head(ctx context.Context, rawURL string) (int, error) {
	resp, err := l.fetcher.Fetch(ctx, crawler.FetchRequest{URL: rawURL, Method: http.MethodHead})
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

func (l *Loader) maybePromote(ctx context.Context, rawURL string, resp crawler.FetchResponse) (crawler.FetchResponse, bool) {
	if l.headless == nil || l.detector == nil || !l.detector.ShouldPromote(resp) {
		return resp, false
	}
	rendered, err := l.headless.Fetch(ctx, crawler.FetchRequest{
		URL:         rawURL,
		Method:      http.MethodGet,
		UseHeadless: true,
	})
	if err != nil {
		l.logger.Warn("headless promotion failed", zap.String("url", rawURL), zap.Error(err))
		return resp, false
	}
	rendered.UsedHeadless = true
	l.logger.Debug("headless promotion applied", zap.String("url", rawURL))
	return rendered, true
}
