package pipeline

import (
	"strings"

	"github.com/harunnryd/mailtriage/internal/mailbox"
)

const (
	hibScanLimit  = 4000
	jiraScanLimit = 3000
	riskScanLimit = 500
)

const (
	jiraFollowUpPrefix = "[JIRA FOLLOW-UP] "
	jiraFollowUpBanner = "⚠ JIRA FOLLOW-UP REQUEST\n\n" +
		"A comment has been added in Jira indicating the transfer may not have completed correctly.\n\n" +
		"Please review the original job and verify transfer status before marking complete.\n\n" +
		"--- Original Jira Email Below ---\n\n"
	jiraAutomationDomain = "jonesradiology.atlassian.net"
)

var jiraHumanMarkers = []string{
	"?", "can you", "could you", "please", "urgent", "asap",
	"call", "phone", "ring", "not received", "follow up",
	"chasing", "still need", "not working", "failed", "error",
}

var jiraBoilerplate = []string{
	"reply above this line",
	"view request",
	"service desk",
	"has been resolved",
	"re-open the ticket",
	"confirmation received",
	"your request has been received",
}

// isHIBNotification matches the health-information-broker error traffic by
// recipient domain, body host or the error subject signature.
func isHIBNotification(msg *mailbox.Message) bool {
	for _, r := range append(append([]string(nil), msg.To...), msg.CC...) {
		if strings.Contains(strings.ToLower(r), "@chib.had.sa.gov.au") {
			return true
		}
	}
	body := strings.ToLower(msg.Excerpt(hibScanLimit))
	if strings.Contains(body, "whib.had.sa.gov.au") {
		return true
	}
	if strings.HasPrefix(strings.ToLower(msg.Subject), "error:") {
		return strings.Contains(body, "ensportal.visualtrace") || strings.Contains(body, "imgproduction")
	}
	return false
}

func contains16110(msg *mailbox.Message) bool {
	return strings.Contains(msg.Subject, "16110") || strings.Contains(msg.Excerpt(hibScanLimit), "16110")
}

func isJiraCandidate(subject, body, sender string) bool {
	body = strings.ToLower(body)
	return strings.Contains(strings.ToLower(subject), "comment") ||
		strings.Contains(body, "atlassian") ||
		strings.Contains(body, "view request") ||
		strings.Contains(strings.ToLower(sender), "jira")
}

func isJiraComment(body string) bool {
	return strings.Contains(strings.ToLower(body), "request comments:")
}

// isJiraAutomation recognises service-desk boilerplate with no sign of a person writing.
func isJiraAutomation(domain string, msg *mailbox.Message) bool {
	if !strings.Contains(strings.ToLower(domain), jiraAutomationDomain) {
		return false
	}
	body := strings.ToLower(msg.Excerpt(jiraScanLimit))
	for _, m := range jiraHumanMarkers {
		if strings.Contains(body, m) {
			return false
		}
	}
	hits := 0
	for _, p := range jiraBoilerplate {
		if strings.Contains(body, p) {
			hits++
		}
	}
	return hits >= 2
}

func unknownNoticeBlock() string {
	return "\n\n" +
		"────────────────────────────────\n" +
		"Automated notice – action required\n\n" +
		"This message was held because the sender or domain is not currently approved.\n\n" +
		"If this sender/domain should be:\n" +
		"• approved for normal distribution, or\n" +
		"• routed to a specific team (e.g. Apps visibility), or\n" +
		"• left on hold,\n\n" +
		"please email the system administrator with your decision.\n\n" +
		"(Do not include patient or clinical information in your reply.)\n" +
		"────────────────────────────────\n"
}
