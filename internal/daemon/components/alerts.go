package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/mailtriage/internal/daemon"
	"github.com/harunnryd/mailtriage/internal/notify"
)

// AlertsComponent reports the reachability of the chat alert sinks.
type AlertsComponent struct {
	sinks       []notify.Sink
	initialized bool
	started     bool
}

func NewAlertsComponent(sinks ...notify.Sink) *AlertsComponent {
	return &AlertsComponent{sinks: sinks}
}

func (a *AlertsComponent) Name() string {
	return "Alerts"
}

func (a *AlertsComponent) Dependencies() []string {
	return []string{}
}

func (a *AlertsComponent) Init(ctx context.Context) error {
	for i, sink := range a.sinks {
		if sink == nil {
			return fmt.Errorf("alert sink %d is nil", i)
		}
	}
	a.initialized = true
	return nil
}

func (a *AlertsComponent) Start(ctx context.Context) error {
	if !a.initialized {
		return fmt.Errorf("alerts component not initialized")
	}
	names := make([]string, 0, len(a.sinks))
	for _, sink := range a.sinks {
		names = append(names, sink.Name())
	}
	a.started = true
	slog.Info("Alert sinks ready", "component", a.Name(), "sinks", names)
	return nil
}

func (a *AlertsComponent) Stop(ctx context.Context) error {
	a.started = false
	return nil
}

func (a *AlertsComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if !a.initialized {
		return &daemon.ComponentHealth{Name: a.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !a.started {
		return &daemon.ComponentHealth{Name: a.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}

	var errs []error
	for _, sink := range a.sinks {
		if err := sink.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return &daemon.ComponentHealth{Name: a.Name(), Healthy: false, Error: err}, nil
	}
	return &daemon.ComponentHealth{Name: a.Name(), Healthy: true}, nil
}
