package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/metrics"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "osv-agent", RespectRobots: true, Timeout: time.Second, MaxBodyBytes: 1024}, nil)
	req := crawler.FetchRequest{
		URL:                   "https://example.com",
		RespectRobotsProvided: true,
		RespectRobots:         false,
	}

	collector := f.buildCollector(req, time.Unix(0, 0), &crawler.FetchResponse{}, new(error))
	require.Equal(t, "osv-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt, "request override should disable robots")
	require.True(t, collector.AllowURLRevisit)
	require.True(t, collector.ParseHTTPErrorResponse)
	require.Equal(t, 1024, collector.MaxBodySize)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fleet":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>MV SURIA</body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	limiter := &countingLimiter{}
	f := New(Config{Timeout: 2 * time.Second}, limiter)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/fleet"})
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.Contains(t, string(resp.Body), "MV SURIA")

	head, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/fleet", Method: http.MethodHead})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, head.StatusCode)
	require.Empty(t, head.Body)

	missing, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/ships"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
	require.Equal(t, 3, limiter.calls)
}

func TestFetchRobotsBlockIsPermanent(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	limiter := &countingLimiter{}
	f := New(Config{RespectRobots: true, Timeout: 2 * time.Second}, limiter)
	policy := crawler.NewRetryPolicy(3, time.Millisecond, 2*time.Millisecond)

	_, err := crawler.FetchWithRetry(context.Background(), f, policy, crawler.FetchRequest{URL: srv.URL + "/private/fleet"})
	require.ErrorIs(t, err, crawler.ErrPermanent)
	require.ErrorIs(t, err, colly.ErrRobotsTxtBlocked)
	require.Equal(t, 1, limiter.calls)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/fleet"})
	require.NoError(t, err)
	require.True(t, resp.OK())
}

func TestIsPermanent(t *testing.T) {
	t.Parallel()

	require.True(t, isPermanent(colly.ErrForbiddenDomain))
	require.True(t, isPermanent(fmt.Errorf("visit: %w", colly.ErrMaxDepth)))
	require.False(t, isPermanent(errors.New("connection reset")))
}

func TestFetchHonorsLimiterError(t *testing.T) {
	t.Parallel()

	f := New(Config{}, &countingLimiter{err: context.Canceled})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type countingLimiter struct {
	calls int
	err   error
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls++
	return l.err
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
