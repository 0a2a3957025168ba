package configstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchedFiles are the names whose modification is worth reporting.
var watchedFiles = map[string]bool{
	"staff.json":              true,
	"apps_team.json":          true,
	"manager_config.json":     true,
	"system_buckets.json":     true,
	"domain_policy.json":      true,
	"settings_overrides.json": true,
	"staff.txt":               true,
	"apps.txt":                true,
	"managers.txt":            true,
}

// Invalidator drops cached state for a config file by base name.
type Invalidator interface {
	Invalidate(file string) bool
}

// Watcher marks edited config files stale so the next tick re-reads them even
// when size and mtime did not move. It never validates or loads anything itself.
type Watcher struct {
	dir     string
	target  Invalidator
	fsw     *fsnotify.Watcher
	changes atomic.Int64
	lastAt  atomic.Int64
}

func NewWatcher(dir string, target Invalidator) (*Watcher, error) {
	if target == nil {
		return nil, fmt.Errorf("config watcher needs a store to invalidate")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, target: target, fsw: fsw}, nil
}

// Run consumes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.observe(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) observe(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if !watchedFiles[name] {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.target.Invalidate(name)
	w.changes.Add(1)
	w.lastAt.Store(time.Now().UnixNano())
	slog.Info("Config file modified, revalidating next tick", "file", name, "op", ev.Op.String())
}

// Changes is the number of relevant modifications seen since start.
func (w *Watcher) Changes() int64 {
	return w.changes.Load()
}

// LastChange is the time of the most recent relevant modification, or zero.
func (w *Watcher) LastChange() time.Time {
	ns := w.lastAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
