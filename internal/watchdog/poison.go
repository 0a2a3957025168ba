package watchdog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/store"
)

// Poison counts processing failures per message identity. Counts never decrease.
type Poison struct {
	path      string
	threshold int
	mu        sync.Mutex
}

func NewPoison(path string, threshold int) *Poison {
	if threshold < 1 {
		threshold = 1
	}
	return &Poison{path: path, threshold: threshold}
}

func (p *Poison) Threshold() int {
	return p.threshold
}

// Fail increments key's counter and reports whether it reached the threshold.
func (p *Poison) Fail(key string) (int, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := p.load()
	counts[key]++
	n := counts[key]
	if err := store.WriteJSON(p.path, counts); err != nil {
		return n, n >= p.threshold, fmt.Errorf("save poison counts: %w", err)
	}
	return n, n >= p.threshold, nil
}

func (p *Poison) Count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()[key]
}

// Poisoned reports whether key already reached the threshold.
func (p *Poison) Poisoned(key string) bool {
	return p.Count(key) >= p.threshold
}

// All returns a copy of every counter.
func (p *Poison) All() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

func (p *Poison) load() map[string]int {
	counts := map[string]int{}
	if err := store.ReadJSON(p.path, &counts); err != nil {
		if !errors.Is(err, mtErrors.ErrNotFound) {
			slog.Warn("Poison counts unreadable, starting empty", "error", err)
		}
		return map[string]int{}
	}
	if counts == nil {
		counts = map[string]int{}
	}
	return counts
}
