package configstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harunnryd/mailtriage/internal/policy"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, []string{"sa.gov.au"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, dir
}

func countEvents(events []Event, typ EventType, name string) int {
	n := 0
	for _, e := range events {
		if e.Type == typ && e.Name == name {
			n++
		}
	}
	return n
}

func TestStaffReloadKeepsLastKnownGood(t *testing.T) {
	s, dir := newTestStore(t)

	writeFile(t, dir, "staff.json", `{"staff": ["A@Example.org", "b@example.org"], "off_rotation": [], "leave": []}`)
	snap, events := s.Load()
	if got := countEvents(events, EventChanged, "staff"); got != 1 {
		t.Fatalf("Expected 1 CONFIG_CHANGED, got %d (%v)", got, events)
	}
	if len(snap.Roster.Staff) != 2 || snap.Roster.Staff[0] != "a@example.org" {
		t.Fatalf("Expected normalized roster, got %v", snap.Roster.Staff)
	}

	// Schema-invalid: staff is a string.
	writeFile(t, dir, "staff.json", `{"staff": "nobody@example.org", "off_rotation": [], "leave": [], "x": 1}`)
	snap, events = s.Load()
	if got := countEvents(events, EventInvalid, "staff"); got != 1 {
		t.Fatalf("Expected 1 CONFIG_INVALID, got %d (%v)", got, events)
	}
	if len(snap.Roster.Staff) != 2 {
		t.Errorf("Expected LKG roster to survive, got %v", snap.Roster.Staff)
	}

	_, events = s.Load()
	if len(events) != 0 {
		t.Errorf("Expected no events for an unchanged bad file, got %v", events)
	}
}

func TestStaffReloadNoEventWhenContentUnchanged(t *testing.T) {
	s, dir := newTestStore(t)

	writeFile(t, dir, "staff.json", `{"staff": ["a@example.org"], "off_rotation": [], "leave": []}`)
	if _, events := s.Load(); countEvents(events, EventChanged, "staff") != 1 {
		t.Fatalf("Expected initial CONFIG_CHANGED, got %v", events)
	}

	// Same content after normalization, different bytes.
	writeFile(t, dir, "staff.json", "{\n  // roster\n  \"staff\": [\"A@EXAMPLE.ORG\"],\n  \"off_rotation\": [],\n  \"leave\": [],\n}\n")
	if _, events := s.Load(); len(events) != 0 {
		t.Errorf("Expected no events for equivalent content, got %v", events)
	}
}

func TestStaffRejectReasons(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"missing key", `{"staff": [], "off_rotation": []}`, "staff.json missing key: leave"},
		{"not object", `["a@example.org"]`, "staff.json must be a JSON object"},
		{"bad email", `{"staff": [], "off_rotation": [], "leave": ["not-an-email"]}`, "staff.json contains invalid email in leave"},
		{"bad utf8", "{\"staff\": [\"\xff\"]}", "decode_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dir := newTestStore(t)
			writeFile(t, dir, "staff.json", tt.content)
			_, events := s.Load()
			if len(events) != 1 {
				t.Fatalf("Expected 1 event, got %v", events)
			}
			if events[0].Type != EventInvalid || events[0].Reason != tt.reason {
				t.Errorf("Expected CONFIG_INVALID %q, got %s %q", tt.reason, events[0].Type, events[0].Reason)
			}
		})
	}
}

func TestLegacyFallbacks(t *testing.T) {
	s, dir := newTestStore(t)

	writeFile(t, dir, "staff.txt", "# on call\nalice@example.org\n\nBOB@example.org\nnot-an-email\n")
	writeFile(t, dir, "managers.txt", "boss@example.org\n")
	writeFile(t, dir, "domain_policy.json", `{
		"internal_domains": ["health.example.org"],
		"external_image_request_domains": ["bensonradiology.com.au"],
		"always_hold_domains": ["held.example.com"],
		"sami_support_staff": ["support@sa.gov.au"]
	}`)

	snap, events := s.Load()
	if len(events) != 0 {
		t.Errorf("Expected legacy paths to emit no events, got %v", events)
	}
	if len(snap.Roster.Staff) != 2 || snap.Roster.Staff[1] != "bob@example.org" {
		t.Errorf("Expected legacy staff list, got %v", snap.Roster.Staff)
	}
	if len(snap.Managers) != 1 {
		t.Errorf("Expected 1 manager, got %v", snap.Managers)
	}
	if snap.PolicySource != SourceLegacy {
		t.Errorf("Expected policy source %q, got %q", SourceLegacy, snap.PolicySource)
	}

	c := policy.Classify("requests@bensonradiology.com.au", snap.Policy)
	if c.Bucket != policy.ExternalImageRequest {
		t.Errorf("Expected external_image_request, got %s", c.Bucket)
	}
	if !snap.Policy.IsInternalDomain("health.example.org") || !snap.Policy.IsInternalDomain("sa.gov.au") {
		t.Errorf("Expected merged internal domains, got %v", snap.Policy.InternalDomains)
	}
	if !snap.Policy.IsSupportStaff("support@sa.gov.au") {
		t.Error("Expected support staff from domain policy")
	}
}

func TestBucketsWinOverLegacy(t *testing.T) {
	s, dir := newTestStore(t)

	writeFile(t, dir, "domain_policy.json", `{"external_image_request_domains": ["legacy.example.com"]}`)
	writeFile(t, dir, "system_buckets.json", `{
		"transfer_domains": ["bensonradiology.com.au"],
		"system_notification_domains": [],
		"quarantine_domains": ["spam.example.com"],
		"held_domains": [],
		"quarantine_senders": ["bad@bensonradiology.com.au"],
		"folders": {"hold": "Inbox/HOLD", "unknown_key": "x"}
	}`)

	snap, events := s.Load()
	if countEvents(events, EventChanged, "system_buckets") != 1 {
		t.Fatalf("Expected system_buckets CONFIG_CHANGED, got %v", events)
	}
	if snap.PolicySource != SourceSystemBuckets {
		t.Errorf("Expected policy source %q, got %q", SourceSystemBuckets, snap.PolicySource)
	}
	if snap.Folders["hold"] != "Inbox/HOLD" {
		t.Errorf("Expected hold folder override, got %v", snap.Folders)
	}
	if _, ok := snap.Folders["unknown_key"]; ok {
		t.Error("Expected unknown folder keys to be ignored")
	}
	if c := policy.Classify("bad@bensonradiology.com.au", snap.Policy); c.Bucket != policy.Quarantine {
		t.Errorf("Expected sender override to quarantine, got %s", c.Bucket)
	}
	if c := policy.Classify("someone@legacy.example.com", snap.Policy); c.Bucket == policy.ExternalImageRequest {
		t.Error("Expected legacy domains to be ignored when system_buckets.json is valid")
	}
}

func TestInvalidBucketsWithoutLegacy(t *testing.T) {
	s, dir := newTestStore(t)

	writeFile(t, dir, "system_buckets.json", `{"transfer_domains": ["bad domain"], "system_notification_domains": [], "quarantine_domains": [], "held_domains": [], "folders": {}}`)
	snap, events := s.Load()
	if countEvents(events, EventInvalid, "system_buckets") != 1 {
		t.Fatalf("Expected CONFIG_INVALID, got %v", events)
	}
	if snap.PolicySource != SourceInvalidFallback {
		t.Errorf("Expected policy source %q, got %q", SourceInvalidFallback, snap.PolicySource)
	}
	if c := policy.Classify("requests@bensonradiology.com.au", snap.Policy); c.Bucket != policy.Unknown {
		t.Errorf("Expected unknown bucket in the fallback policy, got %s", c.Bucket)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings_overrides.json")
	writeFile(t, dir, "settings_overrides.json", `{
		// hand edited
		"inbox_folder": "Inbox/TEST",
		"apps_cc_addr": "a@example.org; B@example.org",
		"completion_cc_addr": "one@example.org; two@example.org",
		"unknown_domain_mode": "hold_everything",
		"disable_urgent_watchdog": true,
		"rm_rf": "/",
	}`)

	o := LoadOverrides(path)
	if o.InboxFolder != "Inbox/TEST" {
		t.Errorf("Expected inbox override, got %q", o.InboxFolder)
	}
	if len(o.AppsCCAddrs) != 2 || o.AppsCCAddrs[1] != "b@example.org" {
		t.Errorf("Expected 2 normalized apps addresses, got %v", o.AppsCCAddrs)
	}
	if o.CompletionCCAddr != "" {
		t.Errorf("Expected multi-address completion cc to be rejected, got %q", o.CompletionCCAddr)
	}
	if o.UnknownDomainMode != "" {
		t.Errorf("Expected invalid mode to be rejected, got %q", o.UnknownDomainMode)
	}
	if !o.DisableUrgentWatchdog {
		t.Error("Expected disable_urgent_watchdog to be accepted")
	}
}

func TestLoadOverridesMissingFile(t *testing.T) {
	o := LoadOverrides(filepath.Join(t.TempDir(), "absent.json"))
	if o.InboxFolder != "" || o.AppsCCAddrs != nil {
		t.Errorf("Expected empty overrides, got %+v", o)
	}
}

func TestInvalidateCatchesEditWithSameFingerprint(t *testing.T) {
	s, dir := newTestStore(t)
	path := filepath.Join(dir, "staff.json")

	writeFile(t, dir, "staff.json", `{"staff": ["a@example.org"], "off_rotation": [], "leave": []}`)
	if _, events := s.Load(); countEvents(events, EventChanged, "staff") != 1 {
		t.Fatalf("Expected initial CONFIG_CHANGED, got %v", events)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	// Same length, same mtime: only the content differs.
	writeFile(t, dir, "staff.json", `{"staff": ["b@example.org"], "off_rotation": [], "leave": []}`)
	if err := os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
		t.Fatal(err)
	}

	snap, events := s.Load()
	if len(events) != 0 || snap.Roster.Staff[0] != "a@example.org" {
		t.Fatalf("Expected cached roster without invalidation, got %v %v", snap.Roster.Staff, events)
	}

	if !s.Invalidate("staff.json") {
		t.Fatal("Expected staff.json to be a known file")
	}
	snap, events = s.Load()
	if got := countEvents(events, EventChanged, "staff"); got != 1 {
		t.Fatalf("Expected CONFIG_CHANGED after invalidation, got %v", events)
	}
	if snap.Roster.Staff[0] != "b@example.org" {
		t.Errorf("Expected reloaded roster, got %v", snap.Roster.Staff)
	}
}

func TestInvalidateDoesNotRepeatRejection(t *testing.T) {
	s, dir := newTestStore(t)
	writeFile(t, dir, "staff.json", `{"staff": "nobody"}`)

	if _, events := s.Load(); countEvents(events, EventInvalid, "staff") != 1 {
		t.Fatalf("Expected one CONFIG_INVALID, got %v", events)
	}
	s.Invalidate("staff.json")
	if _, events := s.Load(); len(events) != 0 {
		t.Errorf("Expected no repeat event for unchanged bad file, got %v", events)
	}
	if s.Invalidate("staff.txt") {
		t.Error("Expected legacy list files to be ignored")
	}
}
