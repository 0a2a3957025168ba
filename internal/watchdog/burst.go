package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/notify"
	"github.com/harunnryd/mailtriage/internal/store"
)

const timeLayout = time.RFC3339Nano

// BurstState is hib_watchdog.json.
type BurstState struct {
	HIBEvents    []string `json:"hib_events"`
	LastAlertISO string   `json:"last_alert_iso,omitempty"`
}

// BurstConfig bounds the trailing window.
type BurstConfig struct {
	Window    time.Duration
	Threshold int
	Cooldown  time.Duration
	Folder    string
}

// BurstResult is the state after one observation.
type BurstResult struct {
	Count   int
	Alerted bool
}

// Burst counts HIB notifications in a trailing window and alerts on spikes.
type Burst struct {
	path string
	cfg  BurstConfig
}

func NewBurst(path string, cfg BurstConfig) *Burst {
	return &Burst{path: path, cfg: cfg}
}

// Observe records one event at now, prunes the window and alerts managers and
// ops once per cooldown when the count reaches the threshold.
func (b *Burst) Observe(ctx context.Context, now time.Time, n notify.Notifier, managers, ops []string) (BurstResult, error) {
	st := b.load()
	st.HIBEvents = append(st.HIBEvents, now.Format(timeLayout))

	cutoff := now.Add(-b.cfg.Window)
	kept := st.HIBEvents[:0]
	for _, ts := range st.HIBEvents {
		t, err := time.Parse(timeLayout, ts)
		if err != nil || t.Before(cutoff) {
			continue
		}
		kept = append(kept, ts)
	}
	st.HIBEvents = kept

	res := BurstResult{Count: len(kept)}
	cooldownOK := true
	if last, err := time.Parse(timeLayout, st.LastAlertISO); err == nil && now.Sub(last) < b.cfg.Cooldown {
		cooldownOK = false
	}

	if res.Count >= b.cfg.Threshold && cooldownOK {
		alert := b.alert(now, res.Count, managers, ops)
		if n != nil {
			if err := n.Notify(ctx, alert); err != nil {
				slog.Error("HIB burst alert failed", "count", res.Count, "error", err)
			}
		}
		st.LastAlertISO = now.Format(timeLayout)
		res.Alerted = true
		slog.Warn("HIB burst alert", "count", res.Count, "window", b.cfg.Window)
	}

	if err := store.WriteJSON(b.path, st); err != nil {
		return res, fmt.Errorf("save burst watchdog: %w", err)
	}
	return res, nil
}

func (b *Burst) alert(now time.Time, count int, managers, ops []string) notify.Alert {
	minutes := int(b.cfg.Window.Minutes())
	body := strings.Join([]string{
		"Time: " + now.Format("02 Jan 2006 15:04"),
		fmt.Sprintf("Count: %d", count),
		fmt.Sprintf("Window: %d min", minutes),
		"Folder: " + b.cfg.Folder,
		"",
		"High HIB volume detected. Investigate.",
	}, "\n")
	return notify.Alert{
		Kind:      "hib_burst",
		Subject:   fmt.Sprintf("HIB Spike: %d+ in %dmin", b.cfg.Threshold, minutes),
		Body:      body,
		Audiences: [][]string{managers, ops},
	}
}

// State returns the persisted window without modifying it.
func (b *Burst) State() BurstState {
	return b.load()
}

func (b *Burst) load() BurstState {
	var st BurstState
	if err := store.ReadJSON(b.path, &st); err != nil {
		if !errors.Is(err, mtErrors.ErrNotFound) {
			slog.Warn("Burst watchdog state unreadable, resetting", "path", b.path, "error", err)
		}
		return BurstState{}
	}
	return st
}
