package imo

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osvhub/osv-discovery/internal/cache/memory"
	"github.com/osvhub/osv-discovery/internal/clock/system"
	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

const testIMO = "9074729"

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]crawler.FetchResponse
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	resp, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, errors.New("connection refused")
	}
	return resp, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func page(status int, body string) crawler.FetchResponse {
	return crawler.FetchResponse{StatusCode: status, Body: []byte(body)}
}

func newTestEngine(f crawler.Fetcher, cache crawler.Cache, rec progress.Emitter, cfg Config) *Engine {
	cfg.Retry = crawler.NewRetryPolicy(1, 0, 0)
	return NewEngine(f, cache, rec, system.Fixed{T: time.Unix(1_700_000_000, 0)}, cfg, nil)
}

func TestEngineLookup_MergesSources(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]crawler.FetchResponse{
		DefaultSources[0].URL(testIMO): page(http.StatusOK, marineTrafficPage),
		DefaultSources[1].URL(testIMO): page(http.StatusNotFound, ""),
		DefaultSources[3].URL(testIMO): page(http.StatusOK, `<div class="photo-item"><img src="/p/9.jpg"></div>`),
	}}
	cache := memory.New(time.Now)
	rec := progress.NewRecorder()
	engine := newTestEngine(fetcher, cache, rec, Config{CacheTTL: time.Hour})

	r, err := engine.Lookup(context.Background(), testIMO)
	require.NoError(t, err)
	require.Equal(t, []string{"marinetraffic", "shipspotting"}, r.Sources)
	require.Equal(t, "SEA LION", r.VesselName)
	require.Contains(t, r.Photos, "https://www.shipspotting.com/p/9.jpg")
	require.Greater(t, r.Confidence, 0.8)
	require.Equal(t, 4, fetcher.count())

	events := rec.Events()
	require.Len(t, events, 4)
	success := map[string]bool{}
	for _, evt := range events {
		require.Equal(t, progress.StageSourceResult, evt.Stage)
		require.Equal(t, SourceType, evt.SourceType)
		success[evt.Source] = evt.Success
	}
	require.Equal(t, map[string]bool{
		"marinetraffic": true,
		"vesselfinder":  false,
		"fleetmon":      false,
		"shipspotting":  true,
	}, success)

	again, err := engine.Lookup(context.Background(), testIMO)
	require.NoError(t, err)
	require.Equal(t, 4, fetcher.count())
	require.Equal(t, r.VesselName, again.VesselName)
	require.Equal(t, 1, cache.Len())
}

func TestEngineLookup_InvalidIMO(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	engine := newTestEngine(fetcher, nil, nil, Config{})

	_, err := engine.Lookup(context.Background(), "1234567")
	require.ErrorIs(t, err, ErrInvalidIMO)
	require.Zero(t, fetcher.count())
}

func TestEngineLookup_SkipsFailingSources(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	engine := newTestEngine(fetcher, nil, nil, Config{SkipAfterFailures: 1, SkipCooldown: time.Hour})

	r, err := engine.Lookup(context.Background(), testIMO)
	require.NoError(t, err)
	require.Empty(t, r.Sources)
	require.Zero(t, r.Confidence)
	require.Equal(t, 4, fetcher.count())

	_, err = engine.Lookup(context.Background(), "9176187")
	require.NoError(t, err)
	require.Equal(t, 4, fetcher.count())
}

func TestEngineLookup_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newTestEngine(&fakeFetcher{}, nil, nil, Config{})
	_, err := engine.Lookup(ctx, testIMO)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngineEnrich_FillsMissing(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]crawler.FetchResponse{
		DefaultSources[0].URL(testIMO): page(http.StatusOK, marineTrafficPage),
	}}
	engine := newTestEngine(fetcher, nil, nil, Config{})

	v := vessel.Vessel{VesselName: "Sea Lion", IMONumber: testIMO, FlagState: "Panama", DataSources: []string{"company_website"}}
	changed, err := engine.Enrich(context.Background(), &v)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "Sea Lion", v.VesselName)
	require.Equal(t, "Panama", v.FlagState)
	require.Equal(t, "533000111", v.MMSINumber)
	require.Equal(t, 2009, *v.BuildYear)
	require.Equal(t, []string{"company_website", DataSource}, v.DataSources)
	require.NotNil(t, v.LastVerifiedAt)
}

func TestEngineEnrich_NoData(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(&fakeFetcher{}, nil, nil, Config{})
	v := vessel.Vessel{IMONumber: testIMO}
	changed, err := engine.Enrich(context.Background(), &v)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestBreaker(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 0)
	b := newBreaker(2, time.Minute)
	b.record(false, now)
	require.True(t, b.allow(now))
	b.record(false, now)
	require.False(t, b.allow(now.Add(30*time.Second)))
	require.True(t, b.allow(now.Add(time.Minute)))

	b.record(false, now)
	b.record(true, now)
	b.record(false, now)
	require.True(t, b.allow(now))

	never := newBreaker(0, time.Minute)
	for i := 0; i < 10; i++ {
		never.record(false, now)
	}
	require.True(t, never.allow(now))
}
