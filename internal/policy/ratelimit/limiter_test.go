package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osvhub/osv-discovery/internal/metrics"
)

func TestLimiterSpacesSameDomain(t *testing.T) {
	metrics.Init()
	l := New(Config{Delay: 100 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.alam-maritim.com.my/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://alam-maritim.com.my/fleet"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDifferentDomains(t *testing.T) {
	metrics.Init()
	l := New(Config{Delay: time.Second})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterZeroDelayUnlimited(t *testing.T) {
	metrics.Init()
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 20 {
		require.NoError(t, l.Wait(ctx, "https://fast.example/"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterOverride(t *testing.T) {
	metrics.Init()
	l := New(Config{Delay: time.Hour, Overrides: map[string]time.Duration{"www.vesselfinder.com": 0}})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "https://www.vesselfinder.com/vessels/imo-9074729"))
	require.NoError(t, l.Wait(ctx, "https://www.vesselfinder.com/vessels/imo-9074729"))

	l.SetDomainDelay("fleetmon.com", 0)
	require.NoError(t, l.Wait(ctx, "https://www.fleetmon.com/vessels/9074729"))
	require.NoError(t, l.Wait(ctx, "https://www.fleetmon.com/vessels/9074729"))
}

func TestLimiterContextCanceled(t *testing.T) {
	metrics.Init()
	l := New(Config{Delay: time.Hour})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example/"))
}
