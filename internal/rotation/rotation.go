package rotation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/store"
)

// State is roster_state.json.
type State struct {
	CurrentIndex   int `json:"current_index"`
	TotalProcessed int `json:"total_processed"`
}

// ActiveRoster is staff minus off_rotation and leave, in roster order.
func ActiveRoster(staff, offRotation, leave []string) []string {
	excluded := make(map[string]struct{}, len(offRotation)+len(leave))
	for _, s := range offRotation {
		excluded[s] = struct{}{}
	}
	for _, s := range leave {
		excluded[s] = struct{}{}
	}

	out := make([]string, 0, len(staff))
	for _, s := range staff {
		if _, skip := excluded[s]; !skip {
			out = append(out, s)
		}
	}
	return out
}

// Rotation hands out assignments round-robin. The position is re-read and
// written back on every call so a crash never replays an index.
type Rotation struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Rotation {
	return &Rotation{path: path}
}

// Next returns roster[current_index mod len(roster)] and persists the advanced state.
func (r *Rotation) Next(roster []string) (string, error) {
	if len(roster) == 0 {
		return "", mtErrors.ErrNoStaff
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.load()
	if err != nil && !errors.Is(err, mtErrors.ErrNotFound) {
		r.quarantine(err)
	}

	idx := st.CurrentIndex % len(roster)
	if idx < 0 {
		idx += len(roster)
	}
	person := roster[idx]

	st.CurrentIndex++
	st.TotalProcessed++
	if err := store.WriteJSON(r.path, st); err != nil {
		return "", fmt.Errorf("save rotation state: %w", err)
	}
	slog.Debug("Rotation advanced", "assignee", person, "current_index", st.CurrentIndex)
	return person, nil
}

// State returns the persisted position, or zero when nothing has been assigned
// yet. An unreadable file is reported as an error and left in place.
func (r *Rotation) State() (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, err := r.load()
	if errors.Is(err, mtErrors.ErrNotFound) {
		return State{}, nil
	}
	return st, err
}

func (r *Rotation) load() (State, error) {
	var st State
	if err := store.ReadJSON(r.path, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

// CorruptPath is where an unreadable state file is kept for inspection.
func (r *Rotation) CorruptPath() string {
	return r.path + ".corrupt"
}

// quarantine moves an unreadable state file aside before rotation restarts
// from zero, so the lost position can still be recovered by hand.
func (r *Rotation) quarantine(cause error) {
	dst := r.CorruptPath()
	if err := os.Rename(r.path, dst); err != nil {
		slog.Error("Rotation state unreadable and could not be moved aside, restarting from zero",
			"path", r.path, "error", cause, "rename_error", err)
		return
	}
	slog.Warn("Rotation state unreadable, moved aside and restarting from zero",
		"path", r.path, "kept_as", dst, "error", cause)
}
