package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/mailtriage/internal/eventlog"
	"github.com/harunnryd/mailtriage/internal/logger"
	"github.com/harunnryd/mailtriage/internal/notify"
	"github.com/harunnryd/mailtriage/internal/watchdog"
)

const actionSLAEscalation = "SLA_ESCALATION"

// reviewSLA walks the urgent-ticket register after the inbox pass. Breaches are
// only logged unless enforcement is switched on.
func (p *Pipeline) reviewSLA(ctx context.Context, t *tick) {
	if t.sla.Disabled() {
		return
	}
	log := logger.From(ctx)
	for _, o := range t.sla.Review(p.now()) {
		if !o.Breached {
			continue
		}
		if !t.sla.Enforcing() {
			log.Info("SLA breach, review only",
				"msg_key", o.Key,
				"elapsed", o.Elapsed.Round(time.Second),
				"assigned_to", o.Ticket.AssignedTo,
				"escalations", o.Ticket.EscalationCount,
			)
			continue
		}
		p.escalate(ctx, t, o)
	}
}

// escalate reassigns a breached ticket through the rotation and tells the
// managers and the new assignee.
func (p *Pipeline) escalate(ctx context.Context, t *tick, o watchdog.Overdue) {
	log := logger.From(ctx).With("msg_key", o.Key)

	next, err := p.rotation.Next(t.roster)
	if err != nil {
		log.Error("SLA escalation has no staff to reassign to", "error", err)
		return
	}

	now := p.now()
	alert := notify.Alert{
		Kind:    "sla_breach",
		Subject: fmt.Sprintf("SLA Breach: %s", o.Ticket.Subject),
		Body: strings.Join([]string{
			fmt.Sprintf("Time: %s", now.Format("02 Jan 2006 15:04")),
			fmt.Sprintf("Subject: %s", o.Ticket.Subject),
			fmt.Sprintf("Risk: %s", o.Ticket.RiskType),
			fmt.Sprintf("Previously assigned: %s", o.Ticket.AssignedTo),
			fmt.Sprintf("Reassigned to: %s", next),
			fmt.Sprintf("Open for: %d min", int(o.Elapsed.Minutes())),
			fmt.Sprintf("Escalation: %d", o.Ticket.EscalationCount+1),
		}, "\n"),
		Audiences: [][]string{t.managers, {next}},
	}
	if err := t.alerts.Notify(ctx, alert); err != nil {
		log.Warn("SLA alert delivery incomplete", "error", err)
	}

	if err := t.sla.Escalated(o.Key, next, now); err != nil {
		log.Error("SLA register update failed", "error", err)
	}

	p.appendRow(ctx, eventlog.Row{
		Time:         now,
		Subject:      o.Ticket.Subject,
		AssignedTo:   next,
		Sender:       o.Ticket.Sender,
		Risk:         o.Ticket.RiskType,
		Action:       actionSLAEscalation,
		PolicySource: t.source,
		EventType:    eventlog.EventSLABreach,
		MsgKey:       o.Key,
		StatusAfter:  "reassigned",
	})
	log.Warn("SLA breach escalated", "from", o.Ticket.AssignedTo, "to", next, "elapsed", o.Elapsed.Round(time.Second))
}
