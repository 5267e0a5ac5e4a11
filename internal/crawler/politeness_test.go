package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVisitTracker(t *testing.T) {
	t.Parallel()

	tracker := NewVisitTracker()
	require.True(t, tracker.MarkIfNew("https://example.org/fleet"))
	require.False(t, tracker.MarkIfNew("https://example.org/fleet"))
	require.True(t, tracker.MarkIfNew("https://example.org/vessels"))
	require.False(t, tracker.MarkIfNew(""))
}

func TestPauseHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Pause(ctx, 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
	require.NoError(t, Pause(context.Background(), 0))
}
