package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/mailtriage/internal/config"
	"github.com/harunnryd/mailtriage/internal/daemon"
	"github.com/harunnryd/mailtriage/internal/scheduler"
	"github.com/harunnryd/mailtriage/internal/store"
)

type SchedulerComponent struct {
	sched  *scheduler.Scheduler
	cfg    *config.Config
	runner scheduler.Runner
	layout store.Layout
}

var _ daemon.Component = (*SchedulerComponent)(nil)

func NewSchedulerComponent(cfg *config.Config, runner scheduler.Runner, layout store.Layout) *SchedulerComponent {
	return &SchedulerComponent{
		cfg:    cfg,
		runner: runner,
		layout: layout,
	}
}

func (s *SchedulerComponent) Name() string {
	return "Scheduler"
}

func (s *SchedulerComponent) Dependencies() []string {
	return []string{"InstanceLock", "EventLog"}
}

func (s *SchedulerComponent) Init(ctx context.Context) error {
	if s.runner == nil {
		return fmt.Errorf("tick runner not provided")
	}

	history, err := scheduler.NewStore(s.layout.TickHistory(), s.cfg.Scheduler.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to create tick history: %w", err)
	}
	sched, err := scheduler.NewScheduler(history, s.runner, s.cfg.Scheduler)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.sched = sched

	if err := s.sched.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	slog.Info("Scheduler initialized", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Start(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not initialized")
	}

	if err := s.sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info("Scheduler started", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Stop(ctx context.Context) error {
	if s.sched == nil {
		slog.Info("Scheduler not initialized, skipping stop", "component", s.Name())
		return nil
	}

	if err := s.sched.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	slog.Info("Scheduler stopped", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if s.sched == nil {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	last := s.sched.Last()
	detail := "no tick yet"
	if last.TickID != "" {
		detail = fmt.Sprintf("last tick %s: scanned=%d processed=%d skipped=%d errors=%d",
			last.TickID, last.Scanned, last.Processed, last.Skipped, last.Errors)
		if last.SkipReason != "" {
			detail += " skip=" + last.SkipReason
		}
	}

	err := s.sched.Health(ctx)

	if err != nil {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   err,
			Detail:  detail,
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    s.Name(),
		Healthy: true,
		Detail:  detail,
	}, nil
}

func (s *SchedulerComponent) GetScheduler() *scheduler.Scheduler {
	return s.sched
}
