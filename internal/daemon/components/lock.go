package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/mailtriage/internal/daemon"
	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/store"
)

// InstanceLockComponent holds bot.lock for the life of the daemon. A second
// dispatcher on the same state directory fails Init with ErrLocked.
type InstanceLockComponent struct {
	layout      store.Layout
	lock        *store.InstanceLock
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func NewInstanceLockComponent(layout store.Layout) *InstanceLockComponent {
	return &InstanceLockComponent{layout: layout}
}

func (l *InstanceLockComponent) Name() string {
	return "InstanceLock"
}

func (l *InstanceLockComponent) Dependencies() []string {
	return []string{}
}

func (l *InstanceLockComponent) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("InstanceLock init cancelled: %w", ctx.Err())
	default:
	}

	lock := store.NewInstanceLock(l.layout.LockFile())
	acquired, err := lock.TryAcquire()
	if err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("state dir %s is locked by another instance: %w", l.layout.StateDir, mtErrors.ErrLocked)
	}

	l.lock = lock
	l.initialized = true
	slog.Info("InstanceLock initialized", "component", l.Name(), "path", lock.Path())
	return nil
}

func (l *InstanceLockComponent) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return fmt.Errorf("InstanceLock not initialized")
	}

	l.started = true
	l.startTime = time.Now()
	return nil
}

func (l *InstanceLockComponent) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lock == nil {
		slog.Info("InstanceLock not held, skipping stop", "component", l.Name())
		return nil
	}

	l.started = false
	if err := l.lock.Release(); err != nil {
		return fmt.Errorf("release instance lock: %w", err)
	}
	slog.Info("InstanceLock released", "component", l.Name(), "held_for", time.Since(l.startTime).Round(time.Second))
	return nil
}

func (l *InstanceLockComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.initialized {
		return &daemon.ComponentHealth{Name: l.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !l.lock.Held() {
		return &daemon.ComponentHealth{Name: l.Name(), Healthy: false, Error: fmt.Errorf("lock not held")}, nil
	}
	return &daemon.ComponentHealth{Name: l.Name(), Healthy: true}, nil
}
