package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/newsworthy/news-agent/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	jobID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{JobID: jobID, TS: time.Now(), Stage: progress.StageJobStart, Topic: "fusion"},
		{JobID: jobID, TS: time.Now(), Stage: progress.StageFetchDone, Articles: 3},
		{
			JobID:     jobID,
			TS:        time.Now(),
			Stage:     progress.StageClassifyDone,
			Relevance: "Very Relevant",
			Dur:       200 * time.Millisecond,
		},
		{JobID: jobID, TS: time.Now(), Stage: progress.StageClassifyDone, Failed: true},
		{JobID: jobID, TS: time.Now().Add(15 * time.Second), Stage: progress.StageJobDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("completed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("failed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))

	require.InDelta(t, 3.0, testutil.ToFloat64(sink.articlesFetched), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.classifications.WithLabelValues("ok")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.classifications.WithLabelValues("failed")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.relevanceTotal.WithLabelValues("Very Relevant")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.classifyLatency, "newsagent_classify_duration_seconds"))
}

func TestPrometheusSinkJobErrorDecrementsRunning(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	jobID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: jobID, TS: time.Now(), Stage: progress.StageJobStart},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: jobID, TS: time.Now(), Stage: progress.StageJobError, Note: "no articles found"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("failed")))
}
