package risk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssess(t *testing.T) {
	d := NewDetector(true)

	tests := []struct {
		name      string
		subject   string
		body      string
		important bool
		level     Level
		reason    string
	}{
		{"stat delete patient scan", "STAT delete patient scan", "", false, Critical, "Action+Context: delete+patient"},
		{"urgency plus action", "ASAP please cancel", "", false, Critical, "Urgency+Action: asap+cancel"},
		{"urgency alone", "urgent question", "", false, Urgent, "Urgency: urgent"},
		{"action alone", "merge them", "", false, Urgent, "Action detected: merge"},
		{"plain", "please review", "", false, Normal, ""},
		{"importance flag wins", "please review", "", true, Critical, ImportanceReason},
		{"body counts", "hello", "could you purge the duplicate dicom", false, Critical, "Action+Context: purge+dicom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Assess(tt.subject, tt.body, tt.important)
			assert.Equal(t, tt.level, got.Level)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestAssessDeterministic(t *testing.T) {
	d := NewDetector(true)
	first := d.Assess("STAT delete patient scan", "", false)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, d.Assess("STAT delete patient scan", "", false))
	}
}

func TestDisabledDetector(t *testing.T) {
	d := NewDetector(false)
	got := d.Assess("STAT delete patient scan", "", true)
	assert.Equal(t, Normal, got.Level)
	assert.Empty(t, got.Reason)

	var nilDetector *Detector
	assert.Equal(t, Normal, nilDetector.Assess("urgent", "", false).Level)
}

func TestBanner(t *testing.T) {
	assert.Empty(t, Banner(Assessment{Level: Normal}))

	b := Banner(Assessment{Level: Critical, Reason: "Action+Context: delete+patient"})
	lines := strings.Split(b, "\n")
	assert.Equal(t, strings.Repeat("⚠", 60), lines[0])
	assert.Contains(t, lines[1], "CRITICAL RISK TICKET")
	assert.Equal(t, "Reason: Action+Context: delete+patient", lines[2])
	assert.True(t, strings.HasSuffix(b, "\n\n"))

	assert.Equal(t, "--- \U0001F3E5 AUTO-ASSIGNED TO jane@sa.gov.au ---\n\n", AssignmentBanner("jane@sa.gov.au"))
}
