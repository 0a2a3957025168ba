package daemon

import (
	"context"
)

type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

// ComponentHealth is one component's answer to a health probe. Detail is a
// short human summary logged alongside unhealthy results.
type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
	Detail  string
}

// Component is a unit of the daemon lifecycle. Init runs in dependency order,
// Start in registration order and Stop in reverse registration order.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}
