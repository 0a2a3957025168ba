package policy

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	angleAddrRe    = regexp.MustCompile(`<([^>]+)>`)
	embeddedAddrRe = regexp.MustCompile(`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
)

// NormalizeEmail lowercases and validates a bare address.
func NormalizeEmail(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", false
	}
	if strings.Count(s, "@") != 1 {
		return "", false
	}
	local, domain, _ := strings.Cut(s, "@")
	if local == "" || domain == "" || !strings.Contains(domain, ".") {
		return "", false
	}
	return s, true
}

// NormalizeDomain accepts "example.com", "@example.com" or "https://example.com/".
func NormalizeDomain(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "@")
	if rest, ok := strings.CutPrefix(s, "http://"); ok {
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "https://"); ok {
		s = rest
	}
	s = strings.TrimRight(strings.TrimSpace(s), "/")

	if s == "" || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", false
	}
	if strings.ContainsAny(s, `/\@:`) || !strings.Contains(s, ".") {
		return "", false
	}
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") || strings.Contains(s, "..") {
		return "", false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' {
			continue
		}
		return "", false
	}
	return s, true
}

// NormalizeSender extracts the address from forms like "SMTP:a@b.c",
// "Name <a@b.c>" or free text containing one address.
func NormalizeSender(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	if rest, ok := strings.CutPrefix(s, "smtp:"); ok {
		s = strings.TrimSpace(rest)
	}
	if m := angleAddrRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if addr, ok := NormalizeEmail(s); ok {
		return addr, true
	}
	if m := embeddedAddrRe.FindString(s); m != "" {
		return NormalizeEmail(m)
	}
	return "", false
}

// SenderDomain returns the lowercased part after the last "@", or "".
func SenderDomain(addr string) string {
	s := strings.TrimSpace(addr)
	if m := angleAddrRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	i := strings.LastIndex(s, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s[i+1:]))
}

// NormalizeEmails normalizes and deduplicates in order, returning the raw values that failed.
func NormalizeEmails(raw []string) (valid []string, invalid []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		addr, ok := NormalizeEmail(item)
		if !ok {
			invalid = append(invalid, item)
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		valid = append(valid, addr)
	}
	return valid, invalid
}

// NormalizeDomains is NormalizeEmails for domain lists.
func NormalizeDomains(raw []string) (valid []string, invalid []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		d, ok := NormalizeDomain(item)
		if !ok {
			invalid = append(invalid, item)
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		valid = append(valid, d)
	}
	return valid, invalid
}
