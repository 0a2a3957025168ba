package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/harunnryd/mailtriage/internal/ledger"
	"github.com/harunnryd/mailtriage/internal/mailbox"
)

const (
	mailtoBodyMax = 1800
	mailtoURLMax  = 1800
	excerptMarker = "----- Original request -----"
)

var samiRef = regexp.MustCompile(`\bSAMI-[0-9A-F]{6}\b`)

// hotlink is the "mark job complete" block prepended to staff forwards. It
// opens a reply to the requester with the support inbox copied.
type hotlink struct {
	requester    string
	supportInbox string
	subject      string
	jira         bool
	source       *mailbox.Message
}

func (h hotlink) notice() string {
	url := h.url()
	if url == "" {
		return ""
	}
	return "Mark job complete:\n" + url + "\n-----\n"
}

func (h hotlink) url() string {
	to := strings.TrimSpace(h.requester)
	if to == "" || !strings.Contains(to, "@") {
		return ""
	}

	subject := ledger.CompletionSubject(h.subject, h.jira)
	ref := samiRef.FindString(subject)
	if ref == "" {
		ref = "the reference in the subject"
	}
	footer := fmt.Sprintf("If this request has not been resolved in a timely manner, please email %s and quote reference %s.",
		h.supportInbox, ref)

	var params []string
	if cc := strings.TrimSpace(h.supportInbox); cc != "" {
		params = append(params, "cc="+mailtoEscape(cc, "@"))
	}
	params = append(params, "subject="+mailtoEscape(subject, ""))
	base := "mailto:" + to + "?" + strings.Join(params, "&")

	header, excerpt := h.body()
	withBody := func(body string) string {
		if body == "" {
			body = footer
		} else {
			body += "\n\n" + footer
		}
		return base + "&body=" + mailtoEscape(body, "")
	}

	full := withBody(header + excerpt)
	for i := 0; i < 8 && len(full) > mailtoURLMax && excerpt != ""; i++ {
		keep := len(excerpt) * 8 / 10
		if keep >= len(excerpt) {
			keep = max(0, len(excerpt)-200)
		}
		excerpt = cutAt(excerpt, keep)
		full = withBody(header + excerpt)
	}
	if len(full) <= mailtoURLMax {
		return full
	}
	if header != "" {
		if short := withBody(header); len(short) <= mailtoURLMax {
			return short
		}
	}
	return base
}

// body splits the mailto body into its fixed header and the trimmable excerpt.
func (h hotlink) body() (string, string) {
	msg := h.source
	if msg == nil {
		return "", ""
	}
	received := ""
	if !msg.Received.IsZero() {
		received = msg.Received.Format("02 Jan 2006 15:04")
	}
	sender := msg.SenderSMTP
	if sender == "" {
		sender = msg.Sender
	}
	header := fmt.Sprintf("From: %s <%s>\r\nReceived: %s\r\nSubject: %s\r\n%s\r\n",
		msg.SenderName, sender, received, msg.Subject, excerptMarker)
	excerpt := sanitizeExcerpt(msg.Body)

	if len(header)+len(excerpt) > mailtoBodyMax {
		cut := max(0, mailtoBodyMax-len(header))
		excerpt = cutAt(excerpt, cut) + "\r\n...(truncated)"
	}
	return header, excerpt
}

// cutAt truncates s to at most n bytes without splitting a rune.
func cutAt(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// sanitizeExcerpt drops links, phone links and the confidentiality footer,
// and collapses runs of blank lines.
func sanitizeExcerpt(text string) string {
	var out []string
	blank := 0
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		raw := strings.TrimSpace(line)
		lower := strings.ToLower(raw)
		switch {
		case strings.Contains(lower, "this email and any attachments are confidential"):
			return strings.Join(trimBlank(out), "\r\n")
		case strings.Contains(lower, "safelinks.protection.outlook.com"),
			strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"),
			strings.Contains(lower, "<tel:"), strings.HasPrefix(lower, "tel:"):
			continue
		case raw == "":
			blank++
			if blank > 2 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, raw)
	}
	return strings.Join(trimBlank(out), "\r\n")
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// mailtoEscape percent-encodes everything outside the RFC 3986 unreserved set
// and the extra bytes in safe.
func mailtoEscape(s, safe string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '-', c == '_', c == '.', c == '~', strings.IndexByte(safe, c) >= 0:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&15])
		}
	}
	return b.String()
}
