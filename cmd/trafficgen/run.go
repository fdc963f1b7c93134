package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rmax-ai/trafficgen/pkg/api"
	"github.com/rmax-ai/trafficgen/pkg/client"
	"github.com/rmax-ai/trafficgen/pkg/store"
	storeredis "github.com/rmax-ai/trafficgen/pkg/store/redis"
	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

const shutdownTimeout = 5 * time.Second

// environment is everything a run or an MCP session needs, built from Config.
type environment struct {
	target   *client.Client
	registry traffic.Registry
	history  *store.Store
	rng      *rand.Rand
	seed     int64
	catalog  *traffic.Catalog
	closers  []func()
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// newEnvironment connects to the target, the registry backend and the
// history database. Close releases them in reverse order.
func newEnvironment(ctx context.Context, cfg *Config, logger *zap.Logger) (*environment, error) {
	env := &environment{
		target: client.NewClient(cfg.Target.BaseURL,
			client.WithTimeout(cfg.Target.Timeout),
			client.WithPaths(cfg.Target.Paths),
		),
		seed: cfg.Run.Seed,
	}

	if cfg.Target.WaitReady > 0 {
		logger.Info("waiting_for_target", zap.String("target", env.target.Endpoint()), zap.Duration("max_wait", cfg.Target.WaitReady))
		if err := client.WaitReady(ctx, env.target, client.DefaultBackoff(), cfg.Target.WaitReady); err != nil {
			return nil, fmt.Errorf("target %s is not ready: %w", env.target.Endpoint(), err)
		}
	}

	registry, closeRegistry, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		return nil, err
	}
	env.registry = registry
	env.closers = append(env.closers, closeRegistry)

	if cfg.History.Path != "" {
		history, err := store.NewStore(cfg.History.Path)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		env.history = history
		env.closers = append(env.closers, func() {
			if err := history.Close(); err != nil {
				logger.Warn("history_close_failed", zap.Error(err))
			}
		})
	}

	if env.seed == 0 {
		env.seed = time.Now().UnixNano()
	}
	env.rng = rand.New(rand.NewSource(env.seed))
	env.catalog = traffic.NewCatalog(env.target, env.registry, env.rng,
		traffic.WithSearchRatio(cfg.Run.SearchRatio),
		traffic.WithCatalogLogger(logger.Named("catalog")),
	)
	return env, nil
}

func openRegistry(ctx context.Context, cfg RegistryConfig) (traffic.Registry, func(), error) {
	if cfg.Backend != "redis" {
		return traffic.NewMemoryRegistry(cfg.Capacity), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
	}
	return storeredis.NewRegistry(rdb, cfg.Redis.Key, cfg.Capacity), func() { _ = rdb.Close() }, nil
}

// runTraffic runs the scheduler until the iteration limit or until ctx is
// cancelled, serving live status next to it when configured.
func runTraffic(ctx context.Context, cfg *Config, logger *zap.Logger) (traffic.Summary, error) {
	runID := uuid.NewString()
	env, err := newEnvironment(ctx, cfg, logger)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted before the first action, e.g. while waiting for the target.
			logger.Info("run_interrupted_before_start", zap.Error(err))
			return traffic.Summary{RunID: runID, StartedAt: time.Now(), Interrupted: true, Actions: map[string]*traffic.ActionStats{}}, nil
		}
		return traffic.Summary{}, err
	}
	defer env.Close()

	actions, err := env.catalog.Actions(cfg.Actions)
	if err != nil {
		return traffic.Summary{}, err
	}

	tracker := traffic.NewTracker(runID, 0)
	recorders := []traffic.Recorder{traffic.MetricsRecorder{}, tracker}
	if env.history != nil {
		recorders = append(recorders, env.history.Recorder(runID))
	}

	sched, err := traffic.NewScheduler(traffic.Config{
		TargetBaseURL:  env.target.Endpoint(),
		IterationLimit: cfg.Run.Iterations,
		SleepMin:       cfg.Run.SleepMin,
		SleepMax:       cfg.Run.SleepMax,
		Actions:        actions,
	}, env.rng,
		traffic.WithLogger(logger.Named("scheduler")),
		traffic.WithRecorders(recorders...),
		traffic.WithRunID(runID),
	)
	if err != nil {
		return traffic.Summary{}, err
	}
	if env.history != nil {
		if err := env.history.BeginRun(ctx, runID, env.target.Endpoint(), env.seed, time.Now()); err != nil {
			return traffic.Summary{}, err
		}
	}
	logger.Info("generator_configured",
		zap.String("run_id", runID),
		zap.Int64("seed", env.seed),
		zap.String("registry", cfg.Registry.Backend),
		zap.Bool("history", env.history != nil),
	)

	var status *api.Server
	var ln net.Listener
	if cfg.Status.Addr != "" {
		ln, err = net.Listen("tcp", cfg.Status.Addr)
		if err != nil {
			return traffic.Summary{}, fmt.Errorf("failed to listen on %s: %w", cfg.Status.Addr, err)
		}
		status = api.NewServer(tracker, env.registry, cfg.Status.Addr, logger.Named("api"))
		if env.history != nil {
			status.SetHistory(env.history)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	var summary traffic.Summary
	g.Go(func() error {
		defer cancelRun()
		var err error
		summary, err = sched.Run(runCtx)
		return err
	})
	if status != nil {
		g.Go(func() error { return status.Serve(ln) })
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return status.Stop(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	tracker.Finish(summary)
	if env.history != nil {
		if err := env.history.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
			logger.Warn("history_finish_failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return summary, nil
}

// writeSummary prints the end of run summary as text or JSON, to filePath
// when set.
func writeSummary(w io.Writer, sum traffic.Summary, asJSON bool, filePath string) error {
	var output []byte
	if asJSON {
		totals := sum.Totals()
		data, err := json.MarshalIndent(api.SummaryResponse{Summary: sum, Totals: totals}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		output = append(data, '\n')
	} else {
		output = formatSummary(sum)
	}

	if filePath != "" {
		if err := os.WriteFile(filePath, output, 0644); err != nil {
			return fmt.Errorf("failed to write summary to %s: %w", filePath, err)
		}
		fmt.Fprintf(w, "Summary written to %s\n", filePath)
		return nil
	}
	_, err := w.Write(output)
	return err
}

func formatSummary(sum traffic.Summary) []byte {
	var buf bytes.Buffer
	t := sum.Totals()
	state := "completed"
	if sum.Interrupted {
		state = "interrupted"
	}
	fmt.Fprintf(&buf, "\n--- Traffic Summary: %s (%s) ---\n", sum.RunID, state)
	fmt.Fprintf(&buf, "Duration: %s\n", sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(&buf, "Actions: %d | Succeeded: %d | Failed: %d | Skipped: %d\n",
		sum.Iterations, t.Succeeded, t.Failed, t.Skipped)

	if len(sum.Actions) > 0 {
		buf.WriteString("\n")
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ACTION\tCALLS\tOK\tFAILED\tSKIPPED\tMEAN")
		for _, name := range sum.ActionNames() {
			a := sum.Actions[name]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
				name, a.Invocations, a.Succeeded, a.Failed, a.Skipped, a.MeanLatency().Round(time.Microsecond))
		}
		tw.Flush()
	}
	return buf.Bytes()
}
