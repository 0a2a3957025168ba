package safemode

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/mailtriage/internal/mailbox"
)

// Environment switches.
const (
	EnvLive            = "TRANSFER_BOT_LIVE"
	EnvAllowTestFolder = "TRANSFER_BOT_ALLOW_TEST_FOLDER"
	EnvLegacyTestOK    = "TRANSFER_BOT_LIVE_TEST_OK"
)

// Decision reasons.
const (
	ReasonEnvMissing       = "env_missing"
	ReasonTestFolder       = "test_folder"
	ReasonLiveTestOverride = "live_test_override"
	ReasonLiveModeArmed    = "live_mode_armed"
)

// Decision is the outcome for one tick.
type Decision struct {
	Live   bool
	Reason string
}

// Safe reports whether sending is suppressed.
func (d Decision) Safe() bool {
	return !d.Live
}

// Decide arms live mode only when EnvLive is "true" and the inbox is not a
// test folder, unless a test-folder override is also set.
func Decide(getenv func(string) string, inboxFolder string) Decision {
	if !isTrue(getenv(EnvLive)) {
		return Decision{Reason: ReasonEnvMissing}
	}
	if strings.Contains(strings.ToLower(inboxFolder), "test") {
		if isTrue(getenv(EnvAllowTestFolder)) || isTrue(getenv(EnvLegacyTestOK)) {
			return Decision{Live: true, Reason: ReasonLiveTestOverride}
		}
		return Decision{Reason: ReasonTestFolder}
	}
	return Decision{Live: true, Reason: ReasonLiveModeArmed}
}

func isTrue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// LogStatus reports the decision the way operators expect to see it at tick start.
func LogStatus(d Decision, inboxFolder string) {
	switch d.Reason {
	case ReasonLiveTestOverride:
		slog.Warn("Live test override enabled", "inbox_folder", inboxFolder)
	case ReasonEnvMissing:
		slog.Warn("Safe mode active, no mail will be sent", "reason", d.Reason, "hint", EnvLive+"=true")
	case ReasonTestFolder:
		slog.Warn("Safe mode active, no mail will be sent", "reason", d.Reason, "inbox_folder", inboxFolder, "hint", EnvAllowTestFolder+"=true")
	default:
		slog.Warn("Live mode armed, mail will be sent")
	}
}

// Sender is the part of the mailbox transport the guard needs.
type Sender interface {
	Send(ctx context.Context, draft *mailbox.Draft) error
}

// Guard gates every outbound send on the tick's decision.
type Guard struct {
	decision Decision
	sender   Sender
	audit    *Audit
	now      func() time.Time
}

func NewGuard(decision Decision, sender Sender, audit *Audit) *Guard {
	return &Guard{decision: decision, sender: sender, audit: audit, now: time.Now}
}

func (g *Guard) Decision() Decision {
	return g.decision
}

// Send delivers draft in live mode. In safe mode it logs and audits the
// suppressed send and reports false with no error.
func (g *Guard) Send(ctx context.Context, draft *mailbox.Draft, action string) (bool, error) {
	if g.decision.Live {
		if err := g.sender.Send(ctx, draft); err != nil {
			return false, err
		}
		return true, nil
	}

	slog.Warn("Send suppressed", "action", action, "reason", g.decision.Reason, "recipients", len(draft.Recipients()))
	if g.audit != nil {
		rec := &Record{
			Timestamp:  g.now(),
			Action:     action,
			Reason:     g.decision.Reason,
			Recipients: draft.Recipients(),
			Subject:    draft.Subject,
			SourceID:   draft.SourceID,
		}
		if err := g.audit.Append(rec); err != nil {
			slog.Error("Failed to audit suppressed send", "action", action, "error", err)
		}
	}
	return false, nil
}
