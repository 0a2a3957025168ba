package policy

import (
	"slices"
	"strings"
)

// HIBNoiseRule suppresses a known-noisy automated sender by subject keywords.
type HIBNoiseRule struct {
	SenderEquals       string   `json:"sender_equals"`
	SubjectContainsAll []string `json:"subject_contains_all"`
	SubjectContainsAny []string `json:"subject_contains_any"`
}

// Matches reports whether sender and subject satisfy the rule. At least one
// subject_contains_any keyword is always required.
func (r *HIBNoiseRule) Matches(sender, subject string) bool {
	if r == nil || r.SenderEquals == "" {
		return false
	}
	want, ok := NormalizeSender(r.SenderEquals)
	if !ok {
		return false
	}
	got, _ := NormalizeSender(sender)
	if got != want {
		return false
	}

	lower := strings.ToLower(subject)
	for _, kw := range r.SubjectContainsAll {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	for _, kw := range r.SubjectContainsAny {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Rule is one explicit bucket's sender and domain lists.
type Rule struct {
	Senders []string
	Domains []string
}

// PolicySet is the resolved routing policy for one tick. Lists are expected normalized.
type PolicySet struct {
	Quarantine           Rule
	Hold                 Rule
	SystemNotification   Rule
	ExternalImageRequest Rule

	InternalDomains []string
	SupportStaff    []string
	HIBNoise        *HIBNoiseRule
}

// Classification is the classifier output.
type Classification struct {
	Bucket Bucket
	Level  MatchLevel
	Sender string
	Domain string
}

// Explicit reports whether a configured sender or domain list matched.
func (c Classification) Explicit() bool {
	return c.Level != MatchNone
}

// KnownDomains reports whether any explicit domain list is populated. With none,
// the allowlist is treated as invalid and every sender is held.
func (p *PolicySet) KnownDomains() bool {
	if p == nil {
		return false
	}
	for _, r := range p.ordered() {
		if len(r.rule.Domains) > 0 {
			return true
		}
	}
	return len(p.InternalDomains) > 0
}

type orderedRule struct {
	bucket Bucket
	rule   Rule
}

// Priority is fixed: quarantine, hold, system_notification, external_image_request.
func (p *PolicySet) ordered() []orderedRule {
	return []orderedRule{
		{Quarantine, p.Quarantine},
		{Hold, p.Hold},
		{SystemNotification, p.SystemNotification},
		{ExternalImageRequest, p.ExternalImageRequest},
	}
}

// Classify maps a sender to a bucket. Sender overrides in any bucket win over
// domain matches in any bucket, and within each pass the bucket priority holds.
func Classify(sender string, set *PolicySet) Classification {
	addr, _ := NormalizeSender(sender)
	domain := SenderDomain(addr)
	if addr == "" {
		domain = SenderDomain(sender)
	}
	out := Classification{Bucket: Unknown, Sender: addr, Domain: domain}
	if set == nil {
		return out
	}

	rules := set.ordered()
	if addr != "" {
		for _, r := range rules {
			if slices.Contains(r.rule.Senders, addr) {
				out.Bucket, out.Level = r.bucket, MatchSender
				return out
			}
		}
	}
	if domain != "" {
		for _, r := range rules {
			if slices.Contains(r.rule.Domains, domain) {
				out.Bucket, out.Level = r.bucket, MatchDomain
				return out
			}
		}
	}

	if set.IsInternalDomain(domain) {
		out.Bucket = Internal
	}
	return out
}

// IsInternalDomain matches the domain itself or any subdomain of an internal domain.
func (p *PolicySet) IsInternalDomain(domain string) bool {
	if p == nil || domain == "" {
		return false
	}
	domain = strings.ToLower(domain)
	for _, d := range p.InternalDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func (p *PolicySet) IsSupportStaff(addr string) bool {
	if p == nil {
		return false
	}
	norm, ok := NormalizeSender(addr)
	return ok && slices.Contains(p.SupportStaff, norm)
}
