package components

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/harunnryd/mailtriage/internal/daemon"
	"github.com/harunnryd/mailtriage/internal/eventlog"
)

// EventLogComponent prepares daily_stats.csv at startup, moving a legacy
// six-column file aside so new rows are written wide.
type EventLogComponent struct {
	log         *eventlog.Log
	initialized bool
}

func NewEventLogComponent(log *eventlog.Log) *EventLogComponent {
	return &EventLogComponent{log: log}
}

func (e *EventLogComponent) Name() string {
	return "EventLog"
}

func (e *EventLogComponent) Dependencies() []string {
	return []string{"InstanceLock"}
}

func (e *EventLogComponent) Init(ctx context.Context) error {
	if e.log == nil {
		return fmt.Errorf("event log not configured")
	}

	if _, err := e.log.RotateLegacy(); err != nil {
		return fmt.Errorf("rotate legacy event log: %w", err)
	}

	e.initialized = true
	slog.Info("EventLog initialized", "component", e.Name(), "path", e.log.Path())
	return nil
}

func (e *EventLogComponent) Start(ctx context.Context) error {
	if !e.initialized {
		return fmt.Errorf("EventLog not initialized")
	}
	return nil
}

func (e *EventLogComponent) Stop(ctx context.Context) error {
	return nil
}

func (e *EventLogComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if !e.initialized {
		return &daemon.ComponentHealth{Name: e.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if _, err := os.Stat(filepath.Dir(e.log.Path())); err != nil {
		return &daemon.ComponentHealth{Name: e.Name(), Healthy: false, Error: err}, nil
	}
	return &daemon.ComponentHealth{Name: e.Name(), Healthy: true}, nil
}
