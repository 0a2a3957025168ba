package ledger

import (
	"regexp"
	"slices"
	"strings"
)

const (
	CompletionKeyword = "[COMPLETED]"
	CompletionPrefix  = "[COMPLETED] "
)

var replyPrefixes = []string{"re:", "accepted:", "declined:", "fw:", "fwd:"}

var (
	assignedTag = regexp.MustCompile(`(?i)\[Assigned:\s*[^]]+\]`)
	criticalTag = regexp.MustCompile(`(?i)\[CRITICAL\]`)
	spaceRun    = regexp.MustCompile(`\s+`)
)

func IsCompletionSubject(subject string) bool {
	return strings.Contains(strings.ToLower(subject), strings.ToLower(CompletionKeyword))
}

func IsReplySubject(subject string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:")
}

// IsStaffCompletion is signal (a): a staff sender with the completion keyword.
func IsStaffCompletion(sender, subject string, staff []string) bool {
	return sender != "" && slices.Contains(staff, sender) && IsCompletionSubject(subject)
}

// HasCompletionCC reports whether any To/CC recipient contains addr.
func HasCompletionCC(to, cc []string, addr string) bool {
	target := strings.ToLower(strings.TrimSpace(addr))
	if target == "" {
		return false
	}
	for _, list := range [][]string{to, cc} {
		for _, r := range list {
			if strings.Contains(strings.ToLower(r), target) {
				return true
			}
		}
	}
	return false
}

// IsInternalReply is signal (d): a staff sender replying to, or quoting, a bot-tagged message.
func IsInternalReply(sender, subject string, staff []string) bool {
	if !slices.Contains(staff, strings.ToLower(sender)) {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(subject))
	for _, p := range replyPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return strings.Contains(lower, "[assigned:") || strings.Contains(lower, "[completed:")
}

// StripBotTags removes [Assigned: x] and [CRITICAL] tags the bot may have added.
func StripBotTags(subject string) string {
	cleaned := subject
	for range 5 {
		cleaned = assignedTag.ReplaceAllString(cleaned, "")
		cleaned = criticalTag.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(spaceRun.ReplaceAllString(cleaned, " "))
}

// CompletionSubject is the subject a completion reply should carry.
func CompletionSubject(base string, jiraFollowUp bool) string {
	text := strings.TrimSpace(base)
	if IsCompletionSubject(text) {
		return text
	}
	if jiraFollowUp {
		return strings.TrimSpace(CompletionKeyword + "[JIRA] " + text)
	}
	return strings.TrimSpace(CompletionPrefix + text)
}
