package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout names every file the dispatcher reads or writes.
type Layout struct {
	StateDir  string
	ConfigDir string
}

func NewLayout(stateDir, configDir string) Layout {
	return Layout{StateDir: stateDir, ConfigDir: configDir}
}

// EnsureDirs creates the state and config directories.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.StateDir, l.ConfigDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (l Layout) LockFile() string { return filepath.Join(l.StateDir, "bot.lock") }

func (l Layout) RotationState() string { return filepath.Join(l.StateDir, "roster_state.json") }

func (l Layout) Ledger() string { return filepath.Join(l.StateDir, "processed_ledger.json") }

func (l Layout) PoisonCounts() string { return filepath.Join(l.StateDir, "poison_counts.json") }

func (l Layout) BurstWatchdog() string { return filepath.Join(l.StateDir, "hib_watchdog.json") }

func (l Layout) SLARegister() string { return filepath.Join(l.StateDir, "urgent_watchdog.json") }

func (l Layout) TickHistory() string { return filepath.Join(l.StateDir, "ticks.json") }

func (l Layout) SuppressedSends() string { return filepath.Join(l.StateDir, "suppressed_sends.jsonl") }

// ConfigFile returns a hot-reloaded file in the config directory, e.g. "staff.json".
func (l Layout) ConfigFile(name string) string { return filepath.Join(l.ConfigDir, name) }
