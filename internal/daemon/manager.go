package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harunnryd/mailtriage/internal/config"
	"github.com/harunnryd/mailtriage/internal/store"
)

// Daemon runs the mailtriage components for one shared mailbox until the
// process receives SIGINT or SIGTERM.
type Daemon struct {
	cfg          *config.Config
	mailbox      string
	layout       store.Layout
	forceCleanup bool

	startupStop    time.Duration
	shutdown       time.Duration
	healthInterval time.Duration

	mu          sync.RWMutex
	components  []Component
	initialized []Component
	health      HealthStatus
	unhealthy   map[string]bool
}

func NewDaemon(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	startupStop, err := config.DurationOrDefault(cfg.Daemon.StartupShutdownTimeout, config.DefaultDaemonStartupShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("daemon startup shutdown timeout: %w", err)
	}
	shutdown, err := config.DurationOrDefault(cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("daemon shutdown timeout: %w", err)
	}
	healthInterval, err := config.DurationOrDefault(cfg.Daemon.HealthCheckInterval, config.DefaultDaemonHealthCheckInterval)
	if err != nil {
		return nil, fmt.Errorf("daemon health check interval: %w", err)
	}

	mailbox := cfg.Mailbox.Address
	if mailbox == "" {
		mailbox = cfg.Mailbox.TargetStore
	}

	return &Daemon{
		cfg:            cfg,
		mailbox:        mailbox,
		layout:         store.NewLayout(cfg.Paths.StateDir, cfg.Paths.ConfigDir),
		startupStop:    startupStop,
		shutdown:       shutdown,
		healthInterval: healthInterval,
		health:         StatusStarting,
		unhealthy:      make(map[string]bool),
	}, nil
}

func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, comp)
	slog.Debug("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

func (d *Daemon) SetForceCleanup(force bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forceCleanup = force
}

// Start blocks until ctx is cancelled or a signal arrives, then stops every
// initialized component in reverse init order. A cancelled run returns ctx.Err().
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Mailtriage daemon starting", "mailbox", d.mailbox, "state_dir", d.layout.StateDir)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := d.preInitChecks(ctx, d.forceCleanup); err != nil {
		return fmt.Errorf("pre-init checks failed: %w", err)
	}

	if err := d.initializeComponents(ctx); err != nil {
		d.stopWithin(d.startupStop)
		return fmt.Errorf("component initialization failed: %w", err)
	}
	if err := d.startComponents(ctx); err != nil {
		d.stopWithin(d.startupStop)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	slog.Info("Mailtriage daemon is running", "mailbox", d.mailbox, "components", len(d.components))

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		d.monitorHealth(ctx)
	}()

	<-ctx.Done()
	<-monitorDone

	slog.Info("Shutting down, no new ticks will start", "mailbox", d.mailbox, "reason", ctx.Err())
	d.setHealth(StatusStopping)
	if err := d.stopWithin(d.shutdown); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

// ComponentHealth probes every registered component. A probe error is folded
// into the result.
func (d *Daemon) ComponentHealth() map[string]*ComponentHealth {
	d.mu.RLock()
	components := append([]Component(nil), d.components...)
	d.mu.RUnlock()

	result := make(map[string]*ComponentHealth, len(components))
	for _, comp := range components {
		health, err := comp.Health(context.Background())
		if health == nil {
			health = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			health.Healthy = false
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

func (d *Daemon) Component(name string) Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookup(name)
}

func (d *Daemon) lookup(name string) Component {
	for _, comp := range d.components {
		if comp.Name() == name {
			return comp
		}
	}
	return nil
}

func (d *Daemon) validateConfig() error {
	if err := config.Validate(d.cfg); err != nil {
		return err
	}
	if err := d.layout.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create state directories: %w", err)
	}
	slog.Debug("Configuration validated", "mailbox", d.mailbox, "state_dir", d.layout.StateDir)
	return nil
}

// preInitChecks reports a lock left behind by a dead process. With forceCleanup
// the file is removed here, otherwise the lock component clears it on acquire.
func (d *Daemon) preInitChecks(ctx context.Context, forceCleanup bool) error {
	lockPath := d.layout.LockFile()
	stale, pid, err := store.IsStale(lockPath, store.ProcessAlive)
	if err != nil {
		slog.Warn("Failed to inspect instance lock", "path", lockPath, "error", err)
	}
	if stale {
		slog.Warn("Stale instance lock found", "path", lockPath, "owner_pid", pid)
		if forceCleanup {
			if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove stale lock: %w", err)
			}
		}
	}
	return ctx.Err()
}

// initializeComponents runs Init in dependency order. Components that
// initialized are remembered so a failure only stops those.
func (d *Daemon) initializeComponents(ctx context.Context) error {
	order, err := d.resolveInitOrder()
	if err != nil {
		return err
	}

	for _, comp := range order {
		slog.Info("Initializing component", "component", comp.Name())
		if err := comp.Init(ctx); err != nil {
			return fmt.Errorf("component %s init failed: %w", comp.Name(), err)
		}
		d.mu.Lock()
		d.initialized = append(d.initialized, comp)
		d.mu.Unlock()
	}
	return nil
}

// startComponents starts in init order, so the instance lock is held before
// the scheduler fires its first tick.
func (d *Daemon) startComponents(ctx context.Context) error {
	d.mu.RLock()
	order := append([]Component(nil), d.initialized...)
	d.mu.RUnlock()

	for _, comp := range order {
		if err := comp.Start(ctx); err != nil {
			return fmt.Errorf("component %s startup failed: %w", comp.Name(), err)
		}
		slog.Info("Component started", "component", comp.Name())
	}
	return nil
}

// stopWithin stops the initialized components, giving up after timeout.
func (d *Daemon) stopWithin(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.stopComponents(ctx)
	}()

	select {
	case <-done:
		slog.Info("Mailtriage daemon stopped", "mailbox", d.mailbox)
		return nil
	case <-ctx.Done():
		slog.Error("Shutdown timeout exceeded", "mailbox", d.mailbox, "timeout", timeout)
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

// stopComponents stops in reverse init order: scheduler first, lock last.
// Stop errors are logged and do not prevent the remaining stops.
func (d *Daemon) stopComponents(ctx context.Context) {
	d.mu.Lock()
	order := d.initialized
	d.initialized = nil
	d.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		comp := order[i]
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", comp.Name(), "error", err)
			continue
		}
		slog.Info("Component stopped", "component", comp.Name())
	}
	d.setHealth(StatusStopped)
}

func (d *Daemon) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(d.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkComponentHealth()
		}
	}
}

// checkComponentHealth logs transitions only, so a stalled scheduler warns
// once and a recovery is reported once.
func (d *Daemon) checkComponentHealth() {
	healths := d.ComponentHealth()

	d.mu.Lock()
	defer d.mu.Unlock()
	for name, h := range healths {
		was := d.unhealthy[name]
		switch {
		case !h.Healthy && !was:
			d.unhealthy[name] = true
			slog.Warn("Component unhealthy", "component", name, "mailbox", d.mailbox, "error", h.Error, "detail", h.Detail)
		case h.Healthy && was:
			delete(d.unhealthy, name)
			slog.Info("Component recovered", "component", name, "detail", h.Detail)
		}
	}
}

// Unhealthy lists the components whose last probe failed.
func (d *Daemon) Unhealthy() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.unhealthy))
	for _, comp := range d.components {
		if d.unhealthy[comp.Name()] {
			names = append(names, comp.Name())
		}
	}
	return names
}

// resolveInitOrder is a depth-first topological sort over Dependencies.
func (d *Daemon) resolveInitOrder() ([]Component, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(d.components))
	order := make([]Component, 0, len(d.components))

	var visit func(comp Component) error
	visit = func(comp Component) error {
		switch state[comp.Name()] {
		case visiting:
			return fmt.Errorf("circular dependency detected involving %s", comp.Name())
		case done:
			return nil
		}
		state[comp.Name()] = visiting
		for _, dep := range comp.Dependencies() {
			next := d.lookup(dep)
			if next == nil {
				return fmt.Errorf("component %s depends on %s which is not registered", comp.Name(), dep)
			}
			if err := visit(next); err != nil {
				return err
			}
		}
		state[comp.Name()] = done
		order = append(order, comp)
		return nil
	}

	for _, comp := range d.components {
		if err := visit(comp); err != nil {
			return nil, fmt.Errorf("resolve init order: %w", err)
		}
	}
	return order, nil
}
