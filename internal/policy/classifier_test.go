package policy

import (
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"  Jane.Doe@SA.gov.au ", "jane.doe@sa.gov.au", true},
		{"jane doe@sa.gov.au", "", false},
		{"a@b@c.com", "", false},
		{"@sa.gov.au", "", false},
		{"jane@", "", false},
		{"jane@localhost", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeEmail(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeEmail(%q): expected (%q, %v), got (%q, %v)", tt.in, tt.want, tt.ok, got, ok)
		}
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"BensonRadiology.com.au", "bensonradiology.com.au", true},
		{"@bensonradiology.com.au", "bensonradiology.com.au", true},
		{"https://bensonradiology.com.au/", "bensonradiology.com.au", true},
		{"http://x-ray.example.org", "x-ray.example.org", true},
		{"example.com/path", "", false},
		{"example.com:443", "", false},
		{"localhost", "", false},
		{".example.com", "", false},
		{"example..com", "", false},
		{"exa_mple.com", "", false},
		{"exa mple.com", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDomain(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeDomain(%q): expected (%q, %v), got (%q, %v)", tt.in, tt.want, tt.ok, got, ok)
		}
	}
}

func TestNormalizeSender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SMTP:Requests@BensonRadiology.com.au", "requests@bensonradiology.com.au"},
		{"Benson Requests <requests@bensonradiology.com.au>", "requests@bensonradiology.com.au"},
		{"sent by requests@bensonradiology.com.au via relay", "requests@bensonradiology.com.au"},
		{"/O=EXCHANGE/CN=RECIPIENTS/CN=JDOE", ""},
	}
	for _, tt := range tests {
		got, _ := NormalizeSender(tt.in)
		if got != tt.want {
			t.Errorf("NormalizeSender(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func testPolicy() *PolicySet {
	return &PolicySet{
		Quarantine:           Rule{Domains: []string{"phish.example"}, Senders: []string{"bad@partner.com.au"}},
		Hold:                 Rule{Domains: []string{"partner.com.au"}},
		SystemNotification:   Rule{Domains: []string{"pacs.example.org"}, Senders: []string{"alerts@partner.com.au"}},
		ExternalImageRequest: Rule{Domains: []string{"bensonradiology.com.au"}, Senders: []string{"friend@phish.example"}},
		InternalDomains:      []string{"sa.gov.au"},
		SupportStaff:         []string{"sami.lead@sa.gov.au"},
	}
}

func TestClassify(t *testing.T) {
	set := testPolicy()

	tests := []struct {
		name   string
		sender string
		bucket Bucket
		level  MatchLevel
	}{
		{"external image request domain", "requests@bensonradiology.com.au", ExternalImageRequest, MatchDomain},
		{"quarantine sender beats hold domain", "bad@partner.com.au", Quarantine, MatchSender},
		{"lower-priority sender beats higher-priority domain", "alerts@partner.com.au", SystemNotification, MatchSender},
		{"sender override beats quarantine domain", "friend@phish.example", ExternalImageRequest, MatchSender},
		{"hold domain", "someone@partner.com.au", Hold, MatchDomain},
		{"quarantine domain", "x@phish.example", Quarantine, MatchDomain},
		{"internal subdomain", "jane@health.sa.gov.au", Internal, MatchNone},
		{"internal exact", "jane@sa.gov.au", Internal, MatchNone},
		{"unknown", "who@elsewhere.net", Unknown, MatchNone},
		{"display-name form", "Benson <requests@bensonradiology.com.au>", ExternalImageRequest, MatchDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.sender, set)
			if got.Bucket != tt.bucket || got.Level != tt.level {
				t.Errorf("Classify(%q): expected %s/%s, got %s/%s", tt.sender, tt.bucket, tt.level, got.Bucket, got.Level)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	set := testPolicy()
	first := Classify("alerts@partner.com.au", set)
	for i := 0; i < 50; i++ {
		if got := Classify("alerts@partner.com.au", set); got != first {
			t.Fatalf("Expected stable classification, got %+v then %+v", first, got)
		}
	}
}

func TestClassifyNilPolicy(t *testing.T) {
	got := Classify("a@b.com", nil)
	if got.Bucket != Unknown {
		t.Errorf("Expected unknown for nil policy, got %s", got.Bucket)
	}
}

func TestSupportStaffAndKnownDomains(t *testing.T) {
	set := testPolicy()
	if !set.IsSupportStaff("SAMI Lead <Sami.Lead@sa.gov.au>") {
		t.Error("Expected support staff match")
	}
	if set.IsSupportStaff("other@sa.gov.au") {
		t.Error("Expected no support staff match")
	}
	if !set.KnownDomains() {
		t.Error("Expected known domains")
	}
	if (&PolicySet{}).KnownDomains() {
		t.Error("Expected empty policy to have no known domains")
	}
}

func TestHIBNoiseRule(t *testing.T) {
	rule := &HIBNoiseRule{
		SenderEquals:       "noreply@hib.example.org",
		SubjectContainsAll: []string{"interface"},
		SubjectContainsAny: []string{"retry", "queued"},
	}

	if !rule.Matches("NoReply@hib.example.org", "Interface message queued") {
		t.Error("Expected noise rule to match")
	}
	if rule.Matches("noreply@hib.example.org", "Interface message sent") {
		t.Error("Expected no match without any-keyword")
	}
	if rule.Matches("other@hib.example.org", "Interface message queued") {
		t.Error("Expected no match for another sender")
	}

	noAny := &HIBNoiseRule{SenderEquals: "noreply@hib.example.org"}
	if noAny.Matches("noreply@hib.example.org", "anything") {
		t.Error("Expected rule without any-keywords never to match")
	}

	var nilRule *HIBNoiseRule
	if nilRule.Matches("a@b.com", "x") {
		t.Error("Expected nil rule not to match")
	}
}

func TestBucketStringRoundTrip(t *testing.T) {
	for _, b := range []Bucket{Unknown, Quarantine, Hold, SystemNotification, ExternalImageRequest, Internal} {
		got, err := ParseBucket(b.String())
		if err != nil || got != b {
			t.Errorf("ParseBucket(%q): expected %v, got %v (%v)", b.String(), b, got, err)
		}
	}
	if _, err := ParseBucket("hib"); err == nil {
		t.Error("Expected error for unknown bucket name")
	}
}
