package traffic

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RecentIsNewestFirstAndBounded(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker("run-1", 3)
	assert.Empty(t, tr.Recent(0))

	for i := 1; i <= 5; i++ {
		require.NoError(t, tr.Record(ctx, Outcome{Action: "A", Iteration: i, Succeeded: true, Class: ClassOK}))
	}

	recent := tr.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, []int{5, 4, 3}, []int{recent[0].Iteration, recent[1].Iteration, recent[2].Iteration})

	two := tr.Recent(2)
	require.Len(t, two, 2)
	assert.Equal(t, 5, two[0].Iteration)
}

func TestTracker_Snapshot(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker("run-2", 10)

	require.NoError(t, tr.Record(ctx, Outcome{Action: "A", Iteration: 1, Succeeded: true, Class: ClassOK, Latency: 2 * time.Millisecond}))
	require.NoError(t, tr.Record(ctx, Outcome{Action: "A", Iteration: 2, Class: ClassTransport, Latency: 4 * time.Millisecond}))
	require.NoError(t, tr.Record(ctx, Outcome{Action: "B", Iteration: 3, Succeeded: true, Class: ClassSkipped}))

	snap := tr.Snapshot()
	assert.Equal(t, "run-2", snap.RunID)
	assert.Equal(t, "run-2", tr.RunID())
	assert.Equal(t, 3, snap.Iterations)
	assert.Equal(t, []string{"A", "B"}, snap.ActionNames())
	assert.EqualValues(t, 2, snap.Actions["A"].Invocations)
	assert.EqualValues(t, 1, snap.Actions["A"].Transport)
	assert.Equal(t, 3*time.Millisecond, snap.Actions["A"].MeanLatency())
	assert.EqualValues(t, 1, snap.Actions["B"].Skipped)

	// Snapshots are copies.
	snap.Actions["A"].Invocations = 100
	assert.EqualValues(t, 2, tr.Snapshot().Actions["A"].Invocations)

	totals := snap.Totals()
	assert.EqualValues(t, 2, totals.Succeeded)
	assert.EqualValues(t, 1, totals.Failed)

	final := tr.Snapshot()
	final.Interrupted = true
	tr.Finish(final)
	assert.True(t, tr.Snapshot().Interrupted)
}

func TestMetricsRecorder(t *testing.T) {
	before := testutil.ToFloat64(ActionsTotal.WithLabelValues("metrics_probe", "false", "remote"))

	var r MetricsRecorder
	require.NoError(t, r.Record(context.Background(), Outcome{Action: "metrics_probe", Class: ClassRemote, Latency: time.Millisecond}))
	require.NoError(t, r.Record(context.Background(), Outcome{Action: "metrics_probe", Class: ClassRemote}))

	assert.Equal(t, before+2, testutil.ToFloat64(ActionsTotal.WithLabelValues("metrics_probe", "false", "remote")))
}

func TestCatalog_UpdatesRegistryGauge(t *testing.T) {
	api := newFakeAPI()
	api.createResp.ID = 3
	c := newTestCatalog(api, NewMemoryRegistry(5))

	c.createProduct(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(registrySize))
	c.deleteProduct(context.Background())
	assert.Equal(t, 0.0, testutil.ToFloat64(registrySize))
}
