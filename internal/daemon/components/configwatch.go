package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/mailtriage/internal/concurrency"
	"github.com/harunnryd/mailtriage/internal/configstore"
	"github.com/harunnryd/mailtriage/internal/daemon"
)

// ConfigWatcherComponent marks edited config files stale between ticks.
// Disabled, it starts and stops as a no-op.
type ConfigWatcherComponent struct {
	dir         string
	enabled     bool
	configs     configstore.Invalidator
	watcher     *configstore.Watcher
	cancel      context.CancelFunc
	done        chan struct{}
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func NewConfigWatcherComponent(dir string, enabled bool, configs configstore.Invalidator) *ConfigWatcherComponent {
	return &ConfigWatcherComponent{
		dir:     dir,
		enabled: enabled,
		configs: configs,
	}
}

func (c *ConfigWatcherComponent) Name() string {
	return "ConfigWatcher"
}

func (c *ConfigWatcherComponent) Dependencies() []string {
	return []string{"InstanceLock"}
}

func (c *ConfigWatcherComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled {
		watcher, err := configstore.NewWatcher(c.dir, c.configs)
		if err != nil {
			return err
		}
		c.watcher = watcher
	}

	c.initialized = true
	slog.Info("ConfigWatcher initialized", "component", c.Name(), "dir", c.dir, "enabled", c.enabled)
	return nil
}

func (c *ConfigWatcherComponent) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return fmt.Errorf("ConfigWatcher not initialized")
	}
	if c.started {
		return nil
	}

	if c.watcher != nil {
		runCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.done = make(chan struct{})
		done := c.done
		watcher := c.watcher
		concurrency.SafeGo("config-watcher", func() {
			defer close(done)
			watcher.Run(runCtx)
		}, nil)
	}

	c.started = true
	c.startTime = time.Now()
	return nil
}

func (c *ConfigWatcherComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher == nil {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	err := c.watcher.Close()
	if c.done != nil {
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.watcher = nil
	c.started = false

	if err != nil {
		return fmt.Errorf("close config watcher: %w", err)
	}
	slog.Info("ConfigWatcher stopped", "component", c.Name())
	return nil
}

func (c *ConfigWatcherComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if c.enabled && !c.started {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	detail := "disabled"
	if c.watcher != nil {
		detail = fmt.Sprintf("%d changes", c.watcher.Changes())
		if last := c.watcher.LastChange(); !last.IsZero() {
			detail += ", last " + last.Format(time.RFC3339)
		}
	}
	return &daemon.ComponentHealth{Name: c.Name(), Healthy: true, Detail: detail}, nil
}

// Changes is the number of config edits seen since start.
func (c *ConfigWatcherComponent) Changes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.watcher == nil {
		return 0
	}
	return c.watcher.Changes()
}
