package watchdog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/harunnryd/mailtriage/internal/notify"
)

type recordingNotifier struct {
	alerts []notify.Alert
}

func (r *recordingNotifier) Notify(ctx context.Context, a notify.Alert) error {
	r.alerts = append(r.alerts, a)
	return nil
}

func newBurst(t *testing.T) (*Burst, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hib_watchdog.json")
	return NewBurst(path, BurstConfig{
		Window:    30 * time.Minute,
		Threshold: 15,
		Cooldown:  60 * time.Minute,
		Folder:    "04_HIB",
	}), path
}

func TestBurstAlertsOncePerCooldown(t *testing.T) {
	b, _ := newBurst(t)
	n := &recordingNotifier{}
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var alertedAt []int
	for i := 0; i < 20; i++ {
		res, err := b.Observe(context.Background(), start.Add(time.Duration(i)*time.Minute), n,
			[]string{"boss@example.org"}, []string{"apps@example.org"})
		if err != nil {
			t.Fatalf("Observe %d failed: %v", i, err)
		}
		if res.Alerted {
			alertedAt = append(alertedAt, i)
		}
	}

	if len(alertedAt) != 1 || alertedAt[0] != 14 {
		t.Fatalf("Expected a single alert at event 14, got %v", alertedAt)
	}
	a := n.alerts[0]
	if a.Subject != "HIB Spike: 15+ in 30min" {
		t.Errorf("Unexpected subject %q", a.Subject)
	}
	if len(a.Audiences) != 2 || a.Audiences[0][0] != "boss@example.org" || a.Audiences[1][0] != "apps@example.org" {
		t.Errorf("Unexpected audiences %v", a.Audiences)
	}
	for _, want := range []string{"Count: 15", "Window: 30 min", "Folder: 04_HIB", "Time: 02 Mar 2026 09:14"} {
		if !strings.Contains(a.Body, want) {
			t.Errorf("Expected body to contain %q, got %q", want, a.Body)
		}
	}
}

func TestBurstPrunesOutsideWindow(t *testing.T) {
	b, _ := newBurst(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var last BurstResult
	for i := 0; i < 10; i++ {
		var err error
		last, err = b.Observe(context.Background(), start.Add(time.Duration(i)*5*time.Minute), nil, nil, nil)
		if err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	// events at 15..45 minutes remain within 30 minutes of 45
	if last.Count != 7 {
		t.Errorf("Expected 7 events in window, got %d", last.Count)
	}
	if got := len(b.State().HIBEvents); got != 7 {
		t.Errorf("Expected 7 persisted events, got %d", got)
	}
}

func TestBurstRealertsAfterCooldown(t *testing.T) {
	b, _ := newBurst(t)
	n := &recordingNotifier{}
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	observe := func(at time.Time) {
		if _, err := b.Observe(context.Background(), at, n, []string{"m@example.org"}, nil); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	for i := 0; i < 15; i++ {
		observe(start.Add(time.Duration(i) * time.Second))
	}
	later := start.Add(61 * time.Minute)
	for i := 0; i < 15; i++ {
		observe(later.Add(time.Duration(i) * time.Second))
	}
	if len(n.alerts) != 2 {
		t.Errorf("Expected 2 alerts across cooldown, got %d", len(n.alerts))
	}
}

func TestBurstResetsMalformedState(t *testing.T) {
	b, path := newBurst(t)
	if err := os.WriteFile(path, []byte(`["not", "an", "object"]`), 0644); err != nil {
		t.Fatal(err)
	}
	res, err := b.Observe(context.Background(), time.Now(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("Expected state reset to a single event, got %d", res.Count)
	}
}

func TestBurstResetsCorruptFile(t *testing.T) {
	b, path := newBurst(t)
	if err := os.WriteFile(path, []byte("{\"hib_events\": [tru"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := len(b.State().HIBEvents); got != 0 {
		t.Fatalf("Expected empty state from corrupt file, got %d events", got)
	}
	res, err := b.Observe(context.Background(), time.Now(), nil, nil, nil)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("Expected state reset to a single event, got %d", res.Count)
	}
}

func TestPoisonThreshold(t *testing.T) {
	p := NewPoison(filepath.Join(t.TempDir(), "poison_counts.json"), 3)

	for i := 1; i <= 3; i++ {
		n, poisoned, err := p.Fail("k1")
		if err != nil {
			t.Fatalf("Fail failed: %v", err)
		}
		if n != i {
			t.Errorf("Expected count %d, got %d", i, n)
		}
		if poisoned != (i == 3) {
			t.Errorf("Attempt %d: expected poisoned=%v", i, i == 3)
		}
	}
	if !p.Poisoned("k1") || p.Poisoned("k2") {
		t.Error("Unexpected poisoned state")
	}

	reopened := NewPoison(p.path, 3)
	if reopened.Count("k1") != 3 {
		t.Errorf("Expected persisted count 3, got %d", reopened.Count("k1"))
	}
}

func TestSLAReviewAndEscalate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urgent_watchdog.json")
	s := NewSLA(path, SLAOptions{Enforce: true, Limit: 20 * time.Minute})
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	long := strings.Repeat("x", 150)
	if err := s.Add("k1", Ticket{Subject: long, AssignedTo: "a@example.org", RiskType: "critical"}, now); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add("k2", Ticket{Subject: "later", AssignedTo: "b@example.org", RiskType: "urgent"}, now.Add(15*time.Minute)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	review := s.Review(now.Add(25 * time.Minute))
	if len(review) != 2 {
		t.Fatalf("Expected 2 tickets, got %d", len(review))
	}
	if review[0].Key != "k1" || !review[0].Breached || review[1].Breached {
		t.Errorf("Unexpected review %+v", review)
	}
	if len(review[0].Ticket.Subject) != 100 {
		t.Errorf("Expected subject truncated to 100, got %d", len(review[0].Ticket.Subject))
	}

	if err := s.Escalated("k1", "c@example.org", now.Add(25*time.Minute)); err != nil {
		t.Fatalf("Escalated failed: %v", err)
	}
	review = s.Review(now.Add(26 * time.Minute))
	for _, o := range review {
		if o.Key == "k1" {
			if o.Breached || o.Ticket.EscalationCount != 1 || o.Ticket.AssignedTo != "c@example.org" {
				t.Errorf("Unexpected escalated ticket %+v", o)
			}
		}
	}

	removed, err := s.Remove("k2")
	if err != nil || !removed {
		t.Errorf("Expected k2 removed, got %v %v", removed, err)
	}
	if removed, _ := s.Remove("missing"); removed {
		t.Error("Expected missing key not removed")
	}
}

func TestSLAKeepsMultibyteSubjectValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urgent_watchdog.json")
	s := NewSLA(path, SLAOptions{Limit: 20 * time.Minute})
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// 99 ASCII bytes then a 2-byte rune straddles a 100-byte cut.
	subject := strings.Repeat("a", 99) + strings.Repeat("é", 5)
	if err := s.Add("k1", Ticket{Subject: subject}, now); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	review := s.Review(now)
	if len(review) != 1 {
		t.Fatalf("Expected 1 ticket, got %d", len(review))
	}
	got := review[0].Ticket.Subject
	if !utf8.ValidString(got) {
		t.Fatalf("Expected valid UTF-8 subject, got %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Errorf("Expected 100 characters, got %d", n)
	}
	if !strings.HasSuffix(got, "aé") {
		t.Errorf("Expected subject to end on a whole rune, got %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := map[string]struct {
		in   string
		n    int
		want string
	}{
		"short":     {"abc", 5, "abc"},
		"exact":     {"abcde", 5, "abcde"},
		"ascii":     {"abcdef", 3, "abc"},
		"multibyte": {"éééé", 2, "éé"},
		"empty":     {"", 3, ""},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := truncateRunes(tc.in, tc.n); got != tc.want {
				t.Errorf("truncateRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
			}
		})
	}
}

func TestSLADisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urgent_watchdog.json")
	s := NewSLA(path, SLAOptions{Disabled: true, Enforce: true, Limit: time.Minute})

	if err := s.Add("k1", Ticket{Subject: "s"}, time.Now()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected no register file when disabled")
	}
	if s.Enforcing() {
		t.Error("Expected disabled register not to enforce")
	}
	if len(s.Review(time.Now())) != 0 {
		t.Error("Expected empty review when disabled")
	}
}
