package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/mailtriage/internal/config"
)

type mockComponent struct {
	name         string
	events       *[]string
	dependencies []string
	initCalled   bool
	startCalled  bool
	stopCalled   bool
	healthCalled bool
	initError    error
	startError   error
	stopError    error
	healthError  error
	healthResult *ComponentHealth
}

func newMockComponent(name string, dependencies []string) *mockComponent {
	return &mockComponent{
		name:         name,
		dependencies: dependencies,
		healthResult: &ComponentHealth{
			Name:    name,
			Healthy: true,
		},
	}
}

func (m *mockComponent) Name() string {
	return m.name
}

func (m *mockComponent) Dependencies() []string {
	return m.dependencies
}

func (m *mockComponent) record(op string) {
	if m.events != nil {
		*m.events = append(*m.events, op+":"+m.name)
	}
}

func (m *mockComponent) Init(ctx context.Context) error {
	m.initCalled = true
	m.record("init")
	return m.initError
}

func (m *mockComponent) Start(ctx context.Context) error {
	m.startCalled = true
	m.record("start")
	return m.startError
}

func (m *mockComponent) Stop(ctx context.Context) error {
	m.stopCalled = true
	m.record("stop")
	return m.stopError
}

func (m *mockComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	m.healthCalled = true
	return m.healthResult, m.healthError
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Mailbox: config.MailboxConfig{
			Address:         "health.samisupportteam@sa.gov.au",
			InboxFolder:     config.DefaultInboxFolder,
			ProcessedFolder: config.DefaultProcessedFolder,
		},
		Paths: config.PathsConfig{
			StateDir:  filepath.Join(root, "state"),
			ConfigDir: filepath.Join(root, "config"),
		},
		Routing: config.RoutingConfig{UnknownDomainMode: config.UnknownDomainHoldManager},
		Watchdog: config.WatchdogConfig{
			HIBWindow:       config.DefaultHIBWindow,
			HIBCooldown:     config.DefaultHIBCooldown,
			HIBThreshold:    config.DefaultHIBThreshold,
			PoisonThreshold: config.DefaultPoisonThreshold,
		},
		Scheduler: config.SchedulerConfig{
			TickInterval:      config.DefaultSchedulerTickInterval,
			HeartbeatInterval: config.DefaultSchedulerHeartbeatInterval,
		},
	}
}

func TestNewDaemon(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *config.Config
		wantMailbox string
		wantErr     bool
	}{
		{
			name:        "address names the daemon",
			cfg:         &config.Config{Mailbox: config.MailboxConfig{Address: "a@sa.gov.au", TargetStore: "store"}},
			wantMailbox: "a@sa.gov.au",
		},
		{
			name:        "falls back to target store",
			cfg:         &config.Config{Mailbox: config.MailboxConfig{TargetStore: "store"}},
			wantMailbox: "store",
		},
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name:    "bad shutdown timeout",
			cfg:     &config.Config{Daemon: config.DaemonConfig{ShutdownTimeout: "soon"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDaemon(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDaemon() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if d.mailbox != tt.wantMailbox {
					t.Errorf("mailbox = %v, want %v", d.mailbox, tt.wantMailbox)
				}
				if len(d.components) != 0 {
					t.Errorf("components = %v, want 0", len(d.components))
				}
			}
		})
	}
}

func TestValidateConfig_CreatesStateDirs(t *testing.T) {
	cfg := validConfig(t)

	d, err := NewDaemon(cfg)
	if err != nil {
		t.Fatalf("NewDaemon() failed: %v", err)
	}

	if err := d.validateConfig(); err != nil {
		t.Fatalf("validateConfig() failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.ConfigDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("expected directory to exist at %s: %v", dir, err)
		}
	}
}

func TestValidateConfig_RejectsBadMode(t *testing.T) {
	cfg := validConfig(t)
	cfg.Routing.UnknownDomainMode = "drop"

	d, _ := NewDaemon(cfg)
	if err := d.validateConfig(); err == nil {
		t.Fatal("Expected validation error for unknown_domain_mode")
	}
}

func TestPreInitChecks_ForceCleanupRemovesStaleLock(t *testing.T) {
	cfg := validConfig(t)
	d, _ := NewDaemon(cfg)
	if err := d.validateConfig(); err != nil {
		t.Fatalf("validateConfig() failed: %v", err)
	}

	// PIDs this large are never allocated on Linux.
	lockPath := d.layout.LockFile()
	if err := os.WriteFile(lockPath, []byte(fmt.Sprintf("%d", 1<<30)), 0644); err != nil {
		t.Fatal(err)
	}

	if err := d.preInitChecks(context.Background(), true); err != nil {
		t.Fatalf("preInitChecks() failed: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("Expected stale lock to be removed, stat err = %v", err)
	}
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := NewDaemon(&config.Config{})
	if err != nil {
		t.Fatalf("NewDaemon() failed: %v", err)
	}
	return d
}

func TestLifecycleOrder(t *testing.T) {
	d := newTestDaemon(t)
	var events []string

	// Registered out of dependency order.
	scheduler := newMockComponent("Scheduler", []string{"Lock", "EventLog"})
	eventLog := newMockComponent("EventLog", []string{"Lock"})
	lock := newMockComponent("Lock", nil)
	for _, c := range []*mockComponent{scheduler, eventLog, lock} {
		c.events = &events
		d.AddComponent(c)
	}

	ctx := context.Background()
	if err := d.initializeComponents(ctx); err != nil {
		t.Fatalf("initializeComponents() error = %v", err)
	}
	if err := d.startComponents(ctx); err != nil {
		t.Fatalf("startComponents() error = %v", err)
	}
	if err := d.stopWithin(time.Second); err != nil {
		t.Fatalf("stopWithin() error = %v", err)
	}

	want := []string{
		"init:Lock", "init:EventLog", "init:Scheduler",
		"start:Lock", "start:EventLog", "start:Scheduler",
		"stop:Scheduler", "stop:EventLog", "stop:Lock",
	}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("lifecycle = %v, want %v", events, want)
	}
	if d.Health() != StatusStopped {
		t.Errorf("Health = %v, want StatusStopped", d.Health())
	}
}

func TestInitFailureStopsOnlyInitialized(t *testing.T) {
	d := newTestDaemon(t)

	lock := newMockComponent("Lock", nil)
	scheduler := newMockComponent("Scheduler", []string{"Lock"})
	lock.initError = errors.New("held by pid 42")
	d.AddComponent(lock)
	d.AddComponent(scheduler)

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Fatal("Expected init error")
	}
	if scheduler.initCalled {
		t.Error("Scheduler.Init() should not run after its dependency failed")
	}

	if err := d.stopWithin(time.Second); err != nil {
		t.Fatalf("stopWithin() error = %v", err)
	}
	if lock.stopCalled || scheduler.stopCalled {
		t.Error("Expected no Stop calls for components that never initialized")
	}
}

func TestInitializeComponentsCircularDependency(t *testing.T) {
	d := newTestDaemon(t)
	d.AddComponent(newMockComponent("Comp1", []string{"Comp2"}))
	d.AddComponent(newMockComponent("Comp2", []string{"Comp1"}))

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Error("Expected error for circular dependency, got nil")
	}
}

func TestInitializeComponentsMissingDependency(t *testing.T) {
	d := newTestDaemon(t)
	comp := newMockComponent("Comp", []string{"NonExistent"})
	d.AddComponent(comp)

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Error("Expected error for missing dependency, got nil")
	}
	if comp.initCalled {
		t.Error("Comp.Init() should not be called with a missing dependency")
	}
}

func TestStopContinuesPastFailure(t *testing.T) {
	d := newTestDaemon(t)
	comp1 := newMockComponent("Comp1", nil)
	comp2 := newMockComponent("Comp2", nil)
	comp2.stopError = fmt.Errorf("close failed")
	d.AddComponent(comp1)
	d.AddComponent(comp2)

	if err := d.initializeComponents(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.stopWithin(time.Second); err != nil {
		t.Fatalf("stopWithin() error = %v", err)
	}
	if !comp1.stopCalled {
		t.Error("Comp1.Stop() was not called after Comp2 failed")
	}
}

func TestComponentHealth(t *testing.T) {
	d := newTestDaemon(t)

	comp1 := newMockComponent("Comp1", nil)
	comp2 := newMockComponent("Comp2", nil)
	comp2.healthResult.Healthy = false
	comp2.healthResult.Error = fmt.Errorf("mock error")
	comp3 := newMockComponent("Comp3", nil)
	comp3.healthResult = nil
	comp3.healthError = fmt.Errorf("probe failed")

	d.AddComponent(comp1)
	d.AddComponent(comp2)
	d.AddComponent(comp3)

	healths := d.ComponentHealth()
	if len(healths) != 3 {
		t.Fatalf("ComponentHealth() returned %v healths, want 3", len(healths))
	}
	if !healths["Comp1"].Healthy {
		t.Error("Comp1 should be healthy")
	}
	if healths["Comp2"].Healthy || healths["Comp2"].Error == nil {
		t.Error("Comp2 should be unhealthy with an error")
	}
	if healths["Comp3"].Healthy || healths["Comp3"].Error == nil {
		t.Error("A failed probe should count as unhealthy")
	}
}

func TestHealthTransitions(t *testing.T) {
	d := newTestDaemon(t)
	sched := newMockComponent("Scheduler", nil)
	d.AddComponent(sched)

	d.checkComponentHealth()
	if got := d.Unhealthy(); len(got) != 0 {
		t.Fatalf("Unhealthy() = %v, want none", got)
	}

	sched.healthResult = &ComponentHealth{Name: "Scheduler", Healthy: false, Error: fmt.Errorf("no tick finished for 5m0s")}
	d.checkComponentHealth()
	d.checkComponentHealth()
	if got := d.Unhealthy(); len(got) != 1 || got[0] != "Scheduler" {
		t.Fatalf("Unhealthy() = %v, want [Scheduler]", got)
	}

	sched.healthResult = &ComponentHealth{Name: "Scheduler", Healthy: true}
	d.checkComponentHealth()
	if got := d.Unhealthy(); len(got) != 0 {
		t.Errorf("Unhealthy() = %v after recovery, want none", got)
	}
}

func TestComponentLookup(t *testing.T) {
	d := newTestDaemon(t)
	d.AddComponent(newMockComponent("Comp1", nil))

	if d.Component("Comp1") == nil {
		t.Error("Component(Comp1) = nil")
	}
	if d.Component("NonExistent") != nil {
		t.Error("Component(NonExistent) should be nil")
	}
}
