package ledger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
)

func openTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "processed_ledger.json")
	if created, err := Bootstrap(path); err != nil || !created {
		t.Fatalf("Bootstrap failed: created=%v err=%v", created, err)
	}
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return l, path
}

func TestOpenMissingLedger(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "processed_ledger.json"))
	if !errors.Is(err, mtErrors.ErrStateMissing) {
		t.Fatalf("Expected ErrStateMissing, got %v", err)
	}
}

func TestBootstrapKeepsExisting(t *testing.T) {
	l, path := openTestLedger(t)
	if err := l.Put("k1", Entry{TS: "2026-01-01T00:00:00Z", AssignedTo: "a@example.org"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	created, err := Bootstrap(path)
	if err != nil || created {
		t.Fatalf("Expected no bootstrap over an existing ledger, got created=%v err=%v", created, err)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !reopened.Has("k1") {
		t.Error("Expected entry to survive bootstrap")
	}
}

func TestPutRejectsDuplicate(t *testing.T) {
	l, _ := openTestLedger(t)
	if err := l.Put("k1", Entry{AssignedTo: "a@example.org"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	err := l.Put("k1", Entry{AssignedTo: "b@example.org"})
	if !errors.Is(err, mtErrors.ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}
	e, _ := l.Get("k1")
	if e.AssignedTo != "a@example.org" {
		t.Errorf("Expected first write to win, got %s", e.AssignedTo)
	}
}

func TestLinkCompletionMatchesEarliest(t *testing.T) {
	l, path := openTestLedger(t)
	assigned := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_ = l.Put("later", Entry{TS: FormatTime(assigned.Add(time.Hour)), AssignedTo: "b@example.org", ConversationID: "conv-1"})
	_ = l.Put("first", Entry{TS: FormatTime(assigned), AssignedTo: "a@example.org", ConversationID: "conv-1"})

	done := assigned.Add(90 * time.Minute)
	link, err := l.LinkCompletion(Completion{
		Key:            "reply",
		ConversationID: "conv-1",
		By:             "a@example.org",
		Source:         SourceSubjectKeyword,
	}, done)
	if err != nil {
		t.Fatalf("LinkCompletion failed: %v", err)
	}
	if !link.Matched || link.Key != "first" {
		t.Fatalf("Expected match on first, got %+v", link)
	}
	if link.Duration(done) != 90*time.Minute {
		t.Errorf("Expected 90m duration, got %v", link.Duration(done))
	}
	if l.Has("reply") {
		t.Error("Expected no new entry for a matched completion")
	}

	reopened, _ := Open(path)
	e, _ := reopened.Get("first")
	if e.CompletedBy != "a@example.org" || e.CompletionSource != SourceSubjectKeyword || e.CompletedAt == "" {
		t.Errorf("Expected persisted completion fields, got %+v", e)
	}
}

func TestLinkCompletionStandalone(t *testing.T) {
	l, _ := openTestLedger(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	link, err := l.LinkCompletion(Completion{
		Key:            "store:S|entry:E",
		ConversationID: "unknown-conv",
		By:             "a@example.org",
		Source:         SourceStaffConfirmation,
		IDs:            IDs{EntryID: "E", StoreID: "S"},
	}, now)
	if err != nil {
		t.Fatalf("LinkCompletion failed: %v", err)
	}
	if link.Matched {
		t.Fatal("Expected standalone completion")
	}
	e, ok := l.Get("store:S|entry:E")
	if !ok {
		t.Fatal("Expected standalone entry")
	}
	if e.AssignedTo != AssignedCompleted || e.EntryID != "E" || e.ConversationID != "unknown-conv" {
		t.Errorf("Unexpected standalone entry: %+v", e)
	}

	// A standalone completion is never itself a link target.
	if _, ok := l.FindByConversation("unknown-conv"); ok {
		t.Error("Expected completed entries to be ignored by conversation lookup")
	}
}

func TestIdentity(t *testing.T) {
	received := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ids  IDs
		want string
	}{
		{"store and entry", IDs{StoreID: "S", EntryID: "E", InternetMessageID: "<m@x>"}, "store:S|entry:E"},
		{"internet id", IDs{EntryID: "E", InternetMessageID: "<m@x>"}, "internet:<m@x>"},
		{"entry only", IDs{EntryID: "E"}, "E"},
		{"fallback", IDs{}, "fallback:a@example.org|Hello|2026-03-01T09:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Identity(tt.ids, "a@example.org", "Hello", received); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSAMIRef(t *testing.T) {
	if got := SAMIRef("abc", time.Time{}, "", ""); got != "SAMI-A9993E" {
		t.Errorf("Expected SAMI-A9993E, got %s", got)
	}
	a := SAMIRef("", time.Unix(0, 0), "a@example.org", "IPM.Note")
	b := SAMIRef("", time.Unix(0, 0), "a@example.org", "IPM.Note")
	if a != b || len(a) != len("SAMI-XXXXXX") {
		t.Errorf("Expected stable fallback ref, got %s and %s", a, b)
	}

	if got := TagSubject("Please send priors", "SAMI-A9993E"); got != "[SAMI-A9993E] Please send priors" {
		t.Errorf("Unexpected tagged subject %q", got)
	}
	if got := TagSubject("RE: [sami-123abc] priors", "SAMI-A9993E"); got != "RE: [sami-123abc] priors" {
		t.Errorf("Expected existing tag to be kept, got %q", got)
	}
}

func TestCompletionSignals(t *testing.T) {
	staff := []string{"a@example.org"}

	if !IsStaffCompletion("a@example.org", "RE: scan [completed]", staff) {
		t.Error("Expected staff completion keyword to match")
	}
	if IsStaffCompletion("x@example.org", "[COMPLETED] scan", staff) {
		t.Error("Expected non-staff sender to be ignored")
	}
	if !HasCompletionCC([]string{"desk@example.org"}, []string{"Completion <Done@Example.org>"}, "done@example.org") {
		t.Error("Expected completion CC to match")
	}
	if HasCompletionCC(nil, nil, "") {
		t.Error("Expected empty address never to match")
	}
	if !IsInternalReply("A@example.org", "Accepted: meeting", staff) {
		t.Error("Expected accepted reply to be internal")
	}
	if !IsInternalReply("a@example.org", "Scan [Assigned: b@example.org]", staff) {
		t.Error("Expected bot tag to be internal")
	}
	if IsInternalReply("a@example.org", "New request", staff) {
		t.Error("Expected new request not to be internal reply")
	}
}

func TestCompletionSubject(t *testing.T) {
	if got := CompletionSubject(" scan ", false); got != "[COMPLETED] scan" {
		t.Errorf("Unexpected subject %q", got)
	}
	if got := CompletionSubject("scan", true); got != "[COMPLETED][JIRA] scan" {
		t.Errorf("Unexpected jira subject %q", got)
	}
	if got := CompletionSubject("[Completed] scan", false); got != "[Completed] scan" {
		t.Errorf("Expected existing keyword to be kept, got %q", got)
	}
	if got := StripBotTags("[CRITICAL] Scan [Assigned: a@example.org]  now"); got != "Scan now" {
		t.Errorf("Unexpected stripped subject %q", got)
	}
}

func TestIsStaffAssignee(t *testing.T) {
	if IsStaffAssignee(AssignedHold) || IsStaffAssignee("") {
		t.Error("Expected labels not to be staff")
	}
	if !IsStaffAssignee("a@example.org") {
		t.Error("Expected address to be staff")
	}
}
