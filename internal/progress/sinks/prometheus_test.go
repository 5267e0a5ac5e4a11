package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/osvhub/osv-discovery/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{SessionID: "s-1", TS: now, Stage: progress.StageSessionStart},
		{SessionID: "s-1", TS: now, Stage: progress.StageSessionStart},
		{SessionID: "s-1", TS: now, Stage: progress.StageCompanyDone, Company: "Acme"},
		{SessionID: "s-1", TS: now, Stage: progress.StageCompanyError, Company: "Beta"},
		{SessionID: "s-1", TS: now, Stage: progress.StageVesselFound},
		{TS: now, Stage: progress.StageSourceResult, Source: "vesselfinder", Success: true, Dur: 200 * time.Millisecond},
		{TS: now, Stage: progress.StageSourceResult, Source: "vesselfinder"},
		{SessionID: "s-1", TS: now, Stage: progress.StageSessionDone, Dur: 90 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.sessionsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sessionsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sessionsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.companies.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.companies.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.vesselsFound))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sourceResults.WithLabelValues("vesselfinder", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sourceResults.WithLabelValues("vesselfinder", "failure")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.sourceLatency, "osv_progress_source_latency_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.sessionRuntime, "osv_progress_session_runtime_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
