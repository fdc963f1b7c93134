package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rmax-ai/trafficgen/pkg/api"
	"github.com/rmax-ai/trafficgen/pkg/store"
	storeredis "github.com/rmax-ai/trafficgen/pkg/store/redis"
	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

// fakeTarget mimics the demo product API closely enough for every action
// to succeed.
type fakeTarget struct {
	mu      sync.Mutex
	nextID  int64
	deletes int
}

func (f *fakeTarget) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/":
		w.Write([]byte(`{"status": "ok"}`))
	case r.URL.Path == "/products" && r.Method == http.MethodPost:
		f.nextID++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id": %d, "message": "Product created"}`, f.nextID)
	case r.URL.Path == "/products" || r.URL.Path == "/slow-test":
		w.Write([]byte(`[]`))
	case strings.HasPrefix(r.URL.Path, "/products/") && r.Method == http.MethodDelete:
		f.deletes++
		w.Write([]byte(`{"message": "Product deleted"}`))
	case r.URL.Path == "/error-test" || r.URL.Path == "/db-error-test":
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "injected"}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestConfig(t *testing.T, target string) *Config {
	t.Helper()
	v := newTestViper(t)
	v.Set("target.base_url", target)
	v.Set("run.iterations", 20)
	v.Set("run.sleep_min", "0s")
	v.Set("run.sleep_max", "0s")
	v.Set("run.seed", 42)
	cfg, err := NewConfigFromViper(v, nil)
	require.NoError(t, err)
	return cfg
}

func startTarget(t *testing.T) (*fakeTarget, *httptest.Server) {
	t.Helper()
	target := &fakeTarget{}
	ts := httptest.NewServer(target)
	t.Cleanup(ts.Close)
	return target, ts
}

func TestRunTrafficRecordsHistory(t *testing.T) {
	_, ts := startTarget(t)
	cfg := newTestConfig(t, ts.URL)
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")

	summary, err := runTraffic(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 20, summary.Iterations)
	assert.False(t, summary.Interrupted)
	assert.Zero(t, summary.Totals().Failed)
	assert.Equal(t, uint64(20), summary.Totals().Invocations)

	st, err := store.NewStore(cfg.History.Path)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, ts.URL, run.Target)
	assert.Equal(t, int64(42), run.Seed)
	assert.Equal(t, 20, run.Iterations)
	require.NotNil(t, run.FinishedAt)

	outcomes, err := st.QueryOutcomes(context.Background(), store.OutcomeFilter{RunID: summary.RunID})
	require.NoError(t, err)
	assert.Len(t, outcomes, 20)
}

func TestRunTrafficIsReproducible(t *testing.T) {
	sequence := func() []string {
		_, ts := startTarget(t)
		cfg := newTestConfig(t, ts.URL)
		cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
		summary, err := runTraffic(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)

		st, err := store.NewStore(cfg.History.Path)
		require.NoError(t, err)
		defer st.Close()
		records, err := st.QueryOutcomes(context.Background(), store.OutcomeFilter{RunID: summary.RunID})
		require.NoError(t, err)

		names := make([]string, len(records))
		for i, r := range records {
			names[i] = r.Action
		}
		return names
	}

	assert.Equal(t, sequence(), sequence())
}

func TestRunTrafficInterrupted(t *testing.T) {
	_, ts := startTarget(t)
	cfg := newTestConfig(t, ts.URL)
	cfg.Run.Iterations = 0
	cfg.Run.SleepMin = 10 * time.Millisecond
	cfg.Run.SleepMax = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	summary, err := runTraffic(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Positive(t, summary.Iterations)
}

func TestRunTrafficWithStatusServer(t *testing.T) {
	_, ts := startTarget(t)
	cfg := newTestConfig(t, ts.URL)
	cfg.Run.Iterations = 3
	cfg.Status.Addr = "127.0.0.1:0"

	summary, err := runTraffic(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Iterations)
}

func TestRunTrafficStatusAddrInUse(t *testing.T) {
	_, ts := startTarget(t)
	cfg := newTestConfig(t, ts.URL)
	cfg.Status.Addr = strings.TrimPrefix(ts.URL, "http://")

	_, err := runTraffic(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRunTrafficSharedRedisRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	_, ts := startTarget(t)

	cfg := newTestConfig(t, ts.URL)
	cfg.Run.Iterations = 5
	cfg.Actions = []traffic.Weight{{Name: traffic.ActionCreateProduct, Weight: 1}}
	cfg.Registry.Backend = "redis"
	cfg.Registry.Redis.Addr = mr.Addr()

	_, err := runTraffic(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ids, err := mr.List(storeredis.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
}

func TestRunTrafficUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, ts := startTarget(t)
	cfg := newTestConfig(t, ts.URL)
	cfg.Registry.Backend = "redis"
	cfg.Registry.Redis.Addr = addr

	_, err := runTraffic(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRunTrafficWaitReadyGivesUp(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	cfg := newTestConfig(t, url)
	cfg.Target.WaitReady = 300 * time.Millisecond

	_, err := runTraffic(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "not ready")
}

func TestRunTrafficInterruptedWhileWaitingForTarget(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	cfg := newTestConfig(t, url)
	cfg.Target.WaitReady = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	summary, err := runTraffic(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Zero(t, summary.Iterations)
	assert.NotEmpty(t, summary.RunID)
	assert.Less(t, time.Since(start), 5*time.Second)

	var out bytes.Buffer
	require.NoError(t, writeSummary(&out, summary, false, ""))
	assert.Contains(t, out.String(), "interrupted")
}

func TestRunTrafficBadWeightsLeaveNoHistory(t *testing.T) {
	_, ts := startTarget(t)
	cfg := newTestConfig(t, ts.URL)
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	for i := range cfg.Actions {
		cfg.Actions[i].Weight = 0
	}

	_, err := runTraffic(context.Background(), cfg, zap.NewNop())
	var cfgErr *traffic.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	st, err := store.NewStore(cfg.History.Path)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestWriteSummary(t *testing.T) {
	sum := traffic.Summary{
		RunID:      "run-1",
		Duration:   1500 * time.Millisecond,
		Iterations: 2,
		Actions: map[string]*traffic.ActionStats{
			traffic.ActionCreateProduct: {Invocations: 1, Succeeded: 1, TotalTime: 20 * time.Millisecond},
			traffic.ActionTriggerSlow:   {Invocations: 1, Failed: 1, Transport: 1, TotalTime: 5 * time.Millisecond},
		},
	}

	var text bytes.Buffer
	require.NoError(t, writeSummary(&text, sum, false, ""))
	out := text.String()
	assert.Contains(t, out, "Traffic Summary: run-1 (completed)")
	assert.Contains(t, out, "Actions: 2 | Succeeded: 1 | Failed: 1")
	assert.Contains(t, out, traffic.ActionTriggerSlow)

	var js bytes.Buffer
	require.NoError(t, writeSummary(&js, sum, true, ""))
	var resp api.SummaryResponse
	require.NoError(t, json.Unmarshal(js.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, uint64(2), resp.Totals.Invocations)

	path := filepath.Join(t.TempDir(), "summary.txt")
	var notice bytes.Buffer
	require.NoError(t, writeSummary(&notice, sum, false, path))
	assert.Contains(t, notice.String(), path)
}

func TestRootCommandRunsAndReports(t *testing.T) {
	_, ts := startTarget(t)
	db := filepath.Join(t.TempDir(), "history.db")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--target", ts.URL,
		"-n", "4",
		"--sleep-min", "0s",
		"--sleep-max", "0s",
		"--seed", "7",
		"--weights", "trigger_db_error=0,trigger_slow=0",
		"--history", db,
		"--json",
	})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var resp api.SummaryResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, 4, resp.Iterations)
	assert.Nil(t, resp.Actions[traffic.ActionTriggerDBError])
	assert.Nil(t, resp.Actions[traffic.ActionTriggerSlow])

	report := newRootCmd()
	var rout bytes.Buffer
	report.SetOut(&rout)
	report.SetArgs([]string{"report", "--db", db, "--type", "runs", "--format", "json"})
	require.NoError(t, report.ExecuteContext(context.Background()))
	assert.Contains(t, rout.String(), resp.RunID)
}

func TestReportCommandNeedsHistory(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"report", "--db", filepath.Join(t.TempDir(), "absent.db")})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
