package watchdog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/store"
)

// Ticket is one urgent or critical assignment under review.
type Ticket struct {
	Subject         string `json:"subject"`
	AssignedTo      string `json:"assigned_to"`
	Sender          string `json:"sender"`
	RiskType        string `json:"risk_type"`
	Timestamp       string `json:"timestamp"`
	EscalationCount int    `json:"escalation_count"`
}

// Overdue is a ticket with its elapsed time at review.
type Overdue struct {
	Key      string
	Ticket   Ticket
	Elapsed  time.Duration
	Breached bool
}

// SLAOptions are resolved per tick since overrides can disable the register.
type SLAOptions struct {
	Disabled bool
	Enforce  bool
	Limit    time.Duration
}

// SLA is the urgent-ticket register. Enforcement is off by default: Review
// only reports, and reassignment runs only when Enforce is set.
type SLA struct {
	path string
	opts SLAOptions
}

func NewSLA(path string, opts SLAOptions) *SLA {
	return &SLA{path: path, opts: opts}
}

func (s *SLA) Enforcing() bool {
	return !s.opts.Disabled && s.opts.Enforce
}

func (s *SLA) Disabled() bool {
	return s.opts.Disabled
}

func (s *SLA) Add(key string, t Ticket, now time.Time) error {
	if s.opts.Disabled {
		slog.Debug("Urgent watchdog disabled, skipping add", "msg_key", key)
		return nil
	}
	tickets := s.load()
	t.Subject = truncateRunes(t.Subject, ticketSubjectMax)
	t.Timestamp = now.Format(timeLayout)
	t.EscalationCount = 0
	tickets[key] = t
	if err := s.save(tickets); err != nil {
		return err
	}
	slog.Warn("Urgent ticket registered", "msg_key", key, "risk", t.RiskType, "assigned_to", t.AssignedTo)
	return nil
}

// Remove drops key. It reports whether the key was registered.
func (s *SLA) Remove(key string) (bool, error) {
	if s.opts.Disabled {
		return false, nil
	}
	tickets := s.load()
	if _, ok := tickets[key]; !ok {
		return false, nil
	}
	delete(tickets, key)
	if err := s.save(tickets); err != nil {
		return true, err
	}
	slog.Info("Urgent ticket cleared", "msg_key", key)
	return true, nil
}

// Review lists every ticket, oldest first, with elapsed time against the limit.
func (s *SLA) Review(now time.Time) []Overdue {
	if s.opts.Disabled {
		return nil
	}
	var out []Overdue
	for key, t := range s.load() {
		ts, err := time.Parse(timeLayout, t.Timestamp)
		if err != nil {
			slog.Warn("Urgent ticket timestamp unreadable", "msg_key", key)
			continue
		}
		elapsed := now.Sub(ts)
		out = append(out, Overdue{Key: key, Ticket: t, Elapsed: elapsed, Breached: elapsed > s.opts.Limit})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Elapsed != out[j].Elapsed {
			return out[i].Elapsed > out[j].Elapsed
		}
		return out[i].Key < out[j].Key
	})
	if !s.opts.Enforce {
		slog.Debug("SLA watchdog in review-only mode", "open", len(out))
	}
	return out
}

// Escalated resets the ticket's timer after a breach was acted on.
func (s *SLA) Escalated(key, assignee string, now time.Time) error {
	tickets := s.load()
	t, ok := tickets[key]
	if !ok {
		return mtErrors.NotFound("urgent ticket " + key)
	}
	t.Timestamp = now.Format(timeLayout)
	t.EscalationCount++
	if assignee != "" {
		t.AssignedTo = assignee
	}
	tickets[key] = t
	return s.save(tickets)
}

func (s *SLA) load() map[string]Ticket {
	tickets := map[string]Ticket{}
	if err := store.ReadJSON(s.path, &tickets); err != nil {
		if !errors.Is(err, mtErrors.ErrNotFound) {
			slog.Warn("Urgent watchdog unreadable, starting empty", "error", err)
		}
		return map[string]Ticket{}
	}
	if tickets == nil {
		tickets = map[string]Ticket{}
	}
	return tickets
}

func (s *SLA) save(tickets map[string]Ticket) error {
	if err := store.WriteJSON(s.path, tickets); err != nil {
		return fmt.Errorf("save urgent watchdog: %w", err)
	}
	return nil
}

const ticketSubjectMax = 100

// truncateRunes keeps at most n characters of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
