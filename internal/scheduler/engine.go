package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/mailtriage/internal/config"
	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/pipeline"

	"github.com/robfig/cron/v3"
)

// Runner performs one pass over the shared mailbox.
type Runner interface {
	RunTick(ctx context.Context) (pipeline.TickReport, error)
}

type Scheduler struct {
	store  *Store
	runner Runner

	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	cron     *cron.Cron
	job      cron.Job
	inFlight sync.WaitGroup
	last     pipeline.TickReport

	spec            string
	schedule        cron.Schedule
	tickInterval    time.Duration
	shutdownTimeout time.Duration
}

func NewScheduler(store *Store, runner Runner, cfg config.SchedulerConfig) (*Scheduler, error) {
	tickInterval, err := config.DurationOrDefault(cfg.TickInterval, config.DefaultSchedulerTickInterval)
	if err != nil {
		return nil, fmt.Errorf("parse scheduler tick interval: %w", err)
	}
	if tickInterval <= 0 {
		return nil, mtErrors.InvalidConfig("scheduler tick interval must be positive")
	}

	shutdownTimeout, err := config.DurationOrDefault(cfg.ShutdownTimeout, config.DefaultSchedulerShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse scheduler shutdown timeout: %w", err)
	}

	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		spec = "@every " + tickInterval.String()
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, mtErrors.InvalidConfig(fmt.Sprintf("scheduler schedule %q: %v", spec, err))
	}

	return &Scheduler{
		store:           store,
		runner:          runner,
		spec:            spec,
		schedule:        schedule,
		tickInterval:    tickInterval,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

func (s *Scheduler) Init(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	recovered, err := s.store.Recover(time.Now())
	if err != nil {
		return fmt.Errorf("recover tick history: %w", err)
	}
	if recovered > 0 {
		slog.Warn("Previous ticks were interrupted", "count", recovered)
	}

	logger := cronLogger{log: slog.Default().With("component", "scheduler")}
	s.job = cron.NewChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	).Then(cron.FuncJob(s.fire))
	s.cron = cron.New(cron.WithLogger(logger))
	s.cron.Schedule(s.schedule, s.job)

	slog.Info("Scheduler initialized", "schedule", s.spec)
	return nil
}

// Start runs the first tick straight away and then follows the schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cron == nil {
		return mtErrors.Internal("scheduler not initialized")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	go s.job.Run()
	s.cron.Start()

	slog.Info("Scheduler started", "schedule", s.spec)
	return nil
}

// Stop cancels the in-flight tick between messages and waits for it.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Scheduler stopped gracefully")
		return nil
	case <-time.After(s.shutdownTimeout):
		slog.Warn("Scheduler shutdown timeout, force stopping")
		return mtErrors.Internal("shutdown timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Health(ctx context.Context) error {
	if s.ctx == nil {
		return mtErrors.Internal("scheduler not initialized")
	}

	if !s.IsRunning() {
		return mtErrors.Internal("scheduler not running")
	}

	last, ok := s.store.LastCompleted()
	if !ok {
		return nil
	}
	if stale := time.Since(last.Finished); stale > 3*s.tickInterval+s.shutdownTimeout {
		return mtErrors.Transient(fmt.Sprintf("no tick finished for %s", stale.Round(time.Second)))
	}
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Last returns the report of the most recent tick run by this process.
func (s *Scheduler) Last() pipeline.TickReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.inFlight.Add(1)
	s.mu.Unlock()
	defer s.inFlight.Done()

	report, err := s.RunOnce(s.ctx)
	if err != nil && report.SkipReason == "" {
		slog.Error("Tick failed", "error", err)
	}
}

// RunOnce executes a single tick and records it in the history.
func (s *Scheduler) RunOnce(ctx context.Context) (pipeline.TickReport, error) {
	id, err := s.store.Begin(time.Now())
	if err != nil {
		return pipeline.TickReport{}, fmt.Errorf("record tick start: %w", err)
	}

	report, runErr := s.runner.RunTick(ctx)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if err := s.store.Finish(id, report, runErr); err != nil {
		slog.Error("Failed to record tick", "run_id", id, "error", err)
	}
	return report, runErr
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
