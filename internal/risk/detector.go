package risk

import (
	"fmt"
	"strings"
)

// Level orders risk severity.
type Level int

const (
	Normal Level = iota
	Urgent
	Critical
)

func (l Level) String() string {
	switch l {
	case Urgent:
		return "urgent"
	case Critical:
		return "critical"
	default:
		return "normal"
	}
}

// Elevated reports whether the level warrants a banner and SLA review.
func (l Level) Elevated() bool {
	return l >= Urgent
}

// Keyword lists are matched as lowercase substrings, in list order.
var (
	Actions = []string{
		"delete", "deletion", "remove", "unlink", "purge", "erase", "destroy",
		"cancel", "void", "nullify", "terminate",
		"merge", "merging", "merged", "split", "splitting",
		"combine", "duplicate", "dedupe", "dedup",
	}
	Context = []string{
		"patient", "scan", "accession", "study", "exam", "report",
		"imaging", "dicom", "mri", "ct", "ultrasound", "xray", "x-ray",
		"record", "data", "file", "prior", "comparison",
	}
	UrgencyWords = []string{
		"stat", "asap", "urgent", "emergency", "critical", "immediate",
		"now", "rush", "priority", "life-threatening", "code",
	}
)

const ImportanceReason = "High Importance Flag"

// Assessment is the detector verdict. Reason is empty for Normal.
type Assessment struct {
	Level  Level
	Reason string
}

// Detector scores message text. A disabled detector always answers Normal.
type Detector struct {
	Enabled bool
}

func NewDetector(enabled bool) *Detector {
	return &Detector{Enabled: enabled}
}

// Assess applies the rules in order; the first match wins.
func (d *Detector) Assess(subject, body string, highImportance bool) Assessment {
	if d == nil || !d.Enabled {
		return Assessment{Level: Normal}
	}

	text := strings.ToLower(subject + " " + body)
	action := firstIn(text, Actions)
	context := firstIn(text, Context)
	urgency := firstIn(text, UrgencyWords)

	switch {
	case highImportance:
		return Assessment{Level: Critical, Reason: ImportanceReason}
	case action != "" && context != "":
		return Assessment{Level: Critical, Reason: fmt.Sprintf("Action+Context: %s+%s", action, context)}
	case urgency != "" && action != "":
		return Assessment{Level: Critical, Reason: fmt.Sprintf("Urgency+Action: %s+%s", urgency, action)}
	case urgency != "":
		return Assessment{Level: Urgent, Reason: "Urgency: " + urgency}
	case action != "":
		return Assessment{Level: Urgent, Reason: "Action detected: " + action}
	}
	return Assessment{Level: Normal}
}

func firstIn(text string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

// Banner is prepended to forwards of urgent and critical tickets. Empty for Normal.
func Banner(a Assessment) string {
	if !a.Level.Elevated() {
		return ""
	}
	rule := strings.Repeat("⚠", 60)
	return fmt.Sprintf("%s\n\U0001F6A8 %s RISK TICKET \U0001F6A8\nReason: %s\n%s\n\n",
		rule, strings.ToUpper(a.Level.String()), a.Reason, rule)
}

// AssignmentBanner marks a normal-risk forward with its assignee.
func AssignmentBanner(assignee string) string {
	return fmt.Sprintf("--- \U0001F3E5 AUTO-ASSIGNED TO %s ---\n\n", assignee)
}
