package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Alert is an operational notification such as a HIB spike or an SLA breach.
type Alert struct {
	Kind    string
	Subject string
	Body    string
	// Audiences are mailed separately, one message each. Chat sinks post once.
	Audiences [][]string
}

// Text is the single-message rendering used by chat sinks.
func (a Alert) Text() string {
	return fmt.Sprintf("*%s*\n%s", a.Subject, strings.TrimSpace(a.Body))
}

type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Sink is one delivery channel.
type Sink interface {
	Notifier
	Name() string
	Health(ctx context.Context) error
}

// Multi fans an alert out to every sink. One failing sink does not stop the others.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	var kept []Sink
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{sinks: kept}
}

func (m *Multi) Name() string {
	return "multi"
}

func (m *Multi) Sinks() []Sink {
	return m.sinks
}

func (m *Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, alert); err != nil {
			slog.Error("Alert delivery failed", "sink", s.Name(), "kind", alert.Kind, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Health(ctx context.Context) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Null drops every alert.
type Null struct{}

func (Null) Name() string { return "null" }
func (Null) Notify(ctx context.Context, alert Alert) error { return nil }
func (Null) Health(ctx context.Context) error { return nil }
