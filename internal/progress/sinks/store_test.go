package sinks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osvhub/osv-discovery/internal/progress"
	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

func TestStoreSinkAggregatesPerSource(t *testing.T) {
	t.Parallel()

	repo := &fakeSourceRepo{}
	sink := NewStoreSink(repo, nil)
	now := time.Unix(1700000000, 0).UTC()

	batch := []progress.Event{
		{SessionID: "s-1", TS: now, Stage: progress.StageSessionStart},
		{TS: now, Stage: progress.StageSourceResult, Source: "vesselfinder", SourceType: "imo_lookup", Success: true, Dur: 100 * time.Millisecond},
		{TS: now.Add(time.Second), Stage: progress.StageSourceResult, Source: "vesselfinder", SourceType: "imo_lookup", Dur: 300 * time.Millisecond},
		{TS: now.Add(2 * time.Second), Stage: progress.StageSourceResult, Source: "acme.com", SourceType: "company_website", Success: true},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Len(t, repo.calls, 2)
	vf := repo.calls[0]
	require.Equal(t, "vesselfinder", vf.delta.SourceName)
	require.Equal(t, "imo_lookup", vf.delta.SourceType)
	require.Equal(t, int64(1), vf.delta.Successes)
	require.Equal(t, int64(1), vf.delta.Failures)
	require.Equal(t, 400*time.Millisecond, vf.delta.TotalLatency)
	require.Equal(t, now, *vf.delta.LastSuccessAt)
	require.Equal(t, now.Add(time.Second), *vf.delta.LastFailureAt)
	require.Equal(t, now.Add(time.Second), vf.at)

	require.Equal(t, "acme.com", repo.calls[1].delta.SourceName)
}

func TestStoreSinkSurfacesErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(&fakeSourceRepo{fail: true}, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{TS: time.Now(), Stage: progress.StageSourceResult, Source: "fleetmon"},
	})
	require.Error(t, err)
}

func TestStoreSinkNilRepo(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(nil, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TS: time.Now(), Stage: progress.StageSourceResult, Source: "fleetmon"},
	}))
}

func TestBroadcastSinkSkipsSourceResults(t *testing.T) {
	t.Parallel()

	out := &fakeBroadcaster{}
	sink := NewBroadcastSink(out)
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{SessionID: "s-1", TS: now, Stage: progress.StageVesselFound, Company: "Acme", Vessel: "SEA HAWK",
			Counters: progress.Counters{VesselsFound: 3}},
		{TS: now, Stage: progress.StageSourceResult, Source: "vesselfinder"},
	}))

	require.Len(t, out.msgs, 1)
	msg, ok := out.msgs[0].(ProgressMessage)
	require.True(t, ok)
	require.Equal(t, "progress", msg.Type)
	require.Equal(t, "VESSEL_FOUND", msg.Stage)
	require.Equal(t, "SEA HAWK", msg.Vessel)
	require.Equal(t, 3, msg.Counters.VesselsFound)
}

func TestBroadcastSinkPhaseProgress(t *testing.T) {
	t.Parallel()

	out := &fakeBroadcaster{}
	sink := NewBroadcastSink(out)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{SessionID: "s-2", TS: time.Now(), Stage: progress.StagePhaseProgress, Phase: "websites", Current: 4, Total: 10},
	}))

	require.Len(t, out.msgs, 1)
	msg, ok := out.msgs[0].(PhaseProgressMessage)
	require.True(t, ok)
	require.Equal(t, "discovery_progress", msg.Type)
	require.Equal(t, "websites", msg.Phase)
	require.Equal(t, 4, msg.Current)
	require.Equal(t, 10, msg.Total)
}

type sourceCall struct {
	delta store.SourceDelta
	at    time.Time
}

type fakeSourceRepo struct {
	mu    sync.Mutex
	fail  bool
	calls []sourceCall
}

func (f *fakeSourceRepo) ApplySourceDelta(_ context.Context, d store.SourceDelta, at time.Time) error {
	if f.fail {
		return errors.New("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sourceCall{delta: d, at: at})
	return nil
}

func (f *fakeSourceRepo) ListSourcePerformance(context.Context) ([]vessel.SourcePerformance, error) {
	return nil, nil
}

type fakeBroadcaster struct {
	msgs []any
}

func (f *fakeBroadcaster) Broadcast(msg any) {
	f.msgs = append(f.msgs, msg)
}
