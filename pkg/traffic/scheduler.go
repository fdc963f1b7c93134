package traffic

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config describes one run. It is not modified once the run starts.
type Config struct {
	TargetBaseURL string
	// IterationLimit bounds the number of invocations; 0 runs until cancelled.
	IterationLimit int
	SleepMin       time.Duration
	SleepMax       time.Duration
	Actions        []Action
}

// Validate checks everything but the actions, which NewSelector checks.
func (c Config) Validate() error {
	if c.IterationLimit < 0 {
		return configErr("iteration_limit", "must not be negative, got %d", c.IterationLimit)
	}
	if c.SleepMin < 0 || c.SleepMax < 0 {
		return configErr("sleep", "bounds must not be negative (%s, %s)", c.SleepMin, c.SleepMax)
	}
	if c.SleepMin > c.SleepMax {
		return configErr("sleep", "min %s exceeds max %s", c.SleepMin, c.SleepMax)
	}
	return nil
}

// Scheduler runs the weighted action loop. It is single use and not safe
// for concurrent Run calls.
type Scheduler struct {
	cfg       Config
	selector  *Selector
	rng       *rand.Rand
	runID     string
	logger    *zap.Logger
	recorders []Recorder
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithRecorders adds outcome recorders, called in order.
func WithRecorders(r ...Recorder) Option {
	return func(s *Scheduler) { s.recorders = append(s.recorders, r...) }
}

// WithRunID sets the run id instead of a random one.
func WithRunID(id string) Option {
	return func(s *Scheduler) { s.runID = id }
}

// NewScheduler validates cfg and builds the selection table. rng drives
// selection and sleeps; pass a seeded source for reproducible runs.
func NewScheduler(cfg Config, rng *rand.Rand, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	selector, err := NewSelector(cfg.Actions)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Scheduler{
		cfg:      cfg,
		selector: selector,
		rng:      rng,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	return s, nil
}

// RunID identifies this run in logs and history.
func (s *Scheduler) RunID() string { return s.runID }

// Run executes the loop until the iteration limit is reached or ctx is
// cancelled. Cancellation is a normal shutdown: the summary is returned
// with Interrupted set and a nil error. A request in flight when ctx is
// cancelled is aborted and its action is not counted.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	summary := newSummary(s.runID, time.Now())
	s.logger.Info("run_started",
		zap.String("run_id", s.runID),
		zap.String("target", s.cfg.TargetBaseURL),
		zap.Int("iteration_limit", s.cfg.IterationLimit),
		zap.Int("actions", len(s.cfg.Actions)),
		zap.Float64("total_weight", s.selector.Total()),
	)

	for {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}

		action := s.selector.Pick(s.rng)
		out := s.invoke(ctx, action)
		if out.Aborted() {
			s.logger.Debug("action_aborted", zap.String("action", action.Name))
			summary.Interrupted = true
			break
		}

		summary.Iterations++
		out.Iteration = summary.Iterations
		summary.add(out)
		s.observe(ctx, out)

		// A bounded run ends right after its last action, without a final pause.
		if s.cfg.IterationLimit > 0 && summary.Iterations >= s.cfg.IterationLimit {
			break
		}
		if !s.sleep(ctx) {
			summary.Interrupted = true
			break
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	s.logSummary(summary)
	return summary, nil
}

// invoke isolates one action: a panic becomes a failed outcome.
func (s *Scheduler) invoke(ctx context.Context, a Action) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Class: ClassPanic, Detail: fmt.Sprintf("action panicked: %v", r)}
		}
		out.Action = a.Name
		out.At = start
		out.Latency = time.Since(start)
	}()
	return a.Invoke(ctx)
}

func (s *Scheduler) observe(ctx context.Context, o Outcome) {
	fields := []zap.Field{
		zap.Int("iteration", o.Iteration),
		zap.String("action", o.Action),
		zap.String("class", string(o.Class)),
		zap.Duration("latency", o.Latency),
	}
	if o.HTTPStatus != 0 {
		fields = append(fields, zap.Int("status", o.HTTPStatus))
	}
	if o.Detail != "" {
		fields = append(fields, zap.String("detail", o.Detail))
	}

	switch {
	case o.Class == ClassSkipped:
		s.logger.Info("action_skipped", fields...)
	case o.Succeeded:
		s.logger.Info("action_completed", fields...)
	case o.Class == ClassDecode:
		s.logger.Warn("action_decode_failed", append(fields, zap.String("raw_body", o.RawBody))...)
	default:
		s.logger.Warn("action_failed", fields...)
	}

	// Recorders still see the last outcome when shutdown races with it.
	rctx := context.WithoutCancel(ctx)
	for _, r := range s.recorders {
		if err := r.Record(rctx, o); err != nil {
			s.logger.Warn("recorder_failed", zap.String("action", o.Action), zap.Error(err))
		}
	}
}

// sleep pauses for a uniform duration in [SleepMin, SleepMax]. It returns
// false when ctx was cancelled first.
func (s *Scheduler) sleep(ctx context.Context) bool {
	d := s.cfg.SleepMin
	if span := s.cfg.SleepMax - s.cfg.SleepMin; span > 0 {
		d += time.Duration(s.rng.Int63n(int64(span) + 1))
	}
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) logSummary(sum Summary) {
	t := sum.Totals()
	msg := "run_completed"
	if sum.Interrupted {
		msg = "run_interrupted"
	}
	s.logger.Info(msg,
		zap.String("run_id", sum.RunID),
		zap.Int("iterations", sum.Iterations),
		zap.Uint64("succeeded", t.Succeeded),
		zap.Uint64("failed", t.Failed),
		zap.Uint64("skipped", t.Skipped),
		zap.Duration("duration", sum.Duration),
	)
}
