package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/harunnryd/mailtriage/internal/config"
	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/eventlog"
	"github.com/harunnryd/mailtriage/internal/ledger"
	"github.com/harunnryd/mailtriage/internal/logger"
	"github.com/harunnryd/mailtriage/internal/mailbox"
	"github.com/harunnryd/mailtriage/internal/policy"
	"github.com/harunnryd/mailtriage/internal/risk"
	"github.com/harunnryd/mailtriage/internal/watchdog"
)

// Actions written to the event log that are not bucket routes.
const (
	actionProcessingError = "PROCESSING_ERROR"
	actionQuarantined     = "QUARANTINED"
	actionWrongMailbox    = "WRONG_MAILBOX"
	actionRouteHIB        = "ROUTE_HIB"
	actionRouteQuarantine = "ROUTE_QUARANTINE"
	actionStaffSkip       = "STAFF_SKIP"
	actionJiraFollowUp    = "JIRA_FOLLOWUP"
	actionJiraAutomation  = "JIRA_AUTOMATION_NOTIFICATION"

	reasonUnknownDomain   = "UNKNOWN_DOMAIN"
	reasonAllowlistFailed = "ALLOWLIST_INVALID_FAILSAFE"
)

// job carries one message through the routing steps.
type job struct {
	p   *Pipeline
	t   *tick
	msg *mailbox.Message
	log *slog.Logger

	key    string
	sender string
	domain string
	ids    ledger.IDs
	class  policy.Classification
}

// handle routes msg and turns any failure into a terminal Result. Poison
// failures count toward quarantine; transport and staffing failures do not.
func (p *Pipeline) handle(ctx context.Context, t *tick, msg *mailbox.Message) Result {
	j := &job{
		p:   p,
		t:   t,
		msg: msg,
		ids: ledger.IDs{EntryID: msg.ID, StoreID: msg.StoreID, InternetMessageID: msg.InternetMessageID},
	}
	j.sender = canonicalSender(msg.Sender)
	j.setKey(ctx, ledger.Identity(j.ids, j.sender, msg.Subject, msg.Received))

	res, err := j.run(ctx)
	if err == nil {
		return res
	}
	res.Key = j.key
	res.Err = err

	switch {
	case errors.Is(err, mtErrors.ErrNoStaff):
		j.log.Error("No staff available for assignment, message left unread", "subject", msg.Subject)
		res.Outcome = OutcomeNoStaff
	case mtErrors.IsRetryable(err):
		j.log.Error("Transport error, will retry next tick", "action", res.Action, "error", err)
		res.Outcome = OutcomeTransportError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		j.log.Warn("Message interrupted", "error", err)
		res.Outcome = OutcomeError
	case !mtErrors.IsPoison(err):
		j.log.Warn("Message skipped", "action", res.Action, "error", err)
		res.Outcome = OutcomeSkipped
	default:
		return j.fail(ctx, err)
	}
	return res
}

// canonicalSender reduces display forms like "Name <a@b.c>" or "SMTP:a@b.c"
// to the bare lowercase address used by every staff and completion check.
func canonicalSender(raw string) string {
	if addr, ok := policy.NormalizeSender(raw); ok {
		return addr
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func (j *job) setKey(ctx context.Context, key string) {
	j.key = key
	j.log = logger.From(logger.WithMessageKey(ctx, key))
}

func (j *job) run(ctx context.Context) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while routing: %v: %w", r, mtErrors.ErrInternal)
		}
	}()
	return j.route(ctx)
}

func (j *job) route(ctx context.Context) (Result, error) {
	p, t, msg := j.p, j.t, j.msg

	sender, err := p.client.ResolveSenderAddress(ctx, msg)
	if err != nil {
		return Result{Action: actionProcessingError}, fmt.Errorf("resolve sender: %v: %w", err, mtErrors.ErrInternal)
	}
	sender = canonicalSender(sender)
	j.sender = sender
	j.domain = policy.SenderDomain(sender)
	if key := ledger.Identity(j.ids, sender, msg.Subject, msg.Received); key != j.key {
		j.setKey(ctx, key)
	}

	if t.ledger.Has(j.key) {
		j.log.Debug("Already processed", "subject", msg.Subject)
		return Result{Outcome: OutcomeDuplicate, Key: j.key}, nil
	}
	if p.poison.Poisoned(j.key) {
		return j.quarantine(ctx, p.poison.Count(j.key), nil), nil
	}
	if t.targetStore != "" && !strings.EqualFold(msg.Store, t.targetStore) {
		j.log.Warn("WRONG_MAILBOX", "expected", t.targetStore, "actual", msg.Store)
		p.appendRow(ctx, j.row(actionWrongMailbox, ledger.AssignedSkipped))
		return Result{Outcome: OutcomeSkipped, Action: actionWrongMailbox, Key: j.key}, nil
	}

	j.class = policy.Classify(sender, t.policy)

	if isHIBNotification(msg) || t.policy.HIBNoise.Matches(sender, msg.Subject) {
		return j.routeHIB(ctx)
	}

	if j.class.Bucket == policy.Quarantine {
		p.appendRow(ctx, j.row(actionRouteQuarantine, ledger.AssignedQuarantined))
		if err := j.move(ctx, t.quarantine); err != nil {
			return Result{Action: actionRouteQuarantine}, err
		}
		j.log.Info("Quarantined by policy", "match_level", j.class.Level.String())
		return j.done(actionRouteQuarantine), nil
	}

	isStaff := slices.Contains(t.staff, sender)
	keyword := ledger.IsStaffCompletion(sender, msg.Subject, t.staff)
	replyAll := t.ccEnabled && isStaff && ledger.IsReplySubject(msg.Subject) &&
		ledger.HasCompletionCC(msg.To, msg.CC, t.completionCC)
	internalReply := ledger.IsInternalReply(sender, msg.Subject, t.staff)

	if isStaff && j.class.Level != policy.MatchSender && !keyword && !replyAll && !internalReply {
		j.log.Info("Staff message left in inbox", "subject", msg.Subject)
		return Result{Outcome: OutcomeSkipped, Action: actionStaffSkip, Key: j.key}, nil
	}

	switch {
	case keyword:
		source := ledger.SourceStaffConfirmation
		if _, ok := t.ledger.FindByConversation(msg.ConversationID); ok {
			source = ledger.SourceSubjectKeyword
		}
		return j.complete(ctx, source, "COMPLETION_SUBJECT_KEYWORD", "STAFF_COMPLETED_CONFIRMATION")
	case replyAll:
		return j.complete(ctx, ledger.SourceReplyAllCC, "COMPLETION_MATCHED", "COMPLETION_UNMATCHED")
	case internalReply:
		return j.complete(ctx, ledger.SourceInternalReply, "SMART_FILTER_COMPLETION", "SMART_FILTER_COMPLETION")
	}

	if t.jiraEnabled && isJiraCandidate(msg.Subject, msg.Excerpt(jiraScanLimit), sender) &&
		isJiraComment(msg.Excerpt(jiraScanLimit)) {
		return j.jiraFollowUp(ctx)
	}
	if isJiraAutomation(j.domain, msg) {
		return j.jiraAutomation(ctx)
	}

	return j.routeBucket(ctx)
}

// routeBucket is the policy-driven routing for everything not handled earlier.
func (j *job) routeBucket(ctx context.Context) (Result, error) {
	t := j.t
	suffix := ""
	if j.class.Level != policy.MatchNone {
		suffix = "/" + j.class.Level.String()
	}

	switch j.class.Bucket {
	case policy.ExternalImageRequest:
		return j.assign(ctx, "IMAGE_REQUEST_EXTERNAL"+suffix, nil)
	case policy.Internal:
		if t.policy.IsSupportStaff(j.sender) {
			return j.complete(ctx, ledger.SourceSupportStaff, "COMPLETION", "COMPLETION")
		}
		var cc []string
		if t.ccEnabled && t.completionCC != "" {
			cc = []string{t.completionCC}
		}
		return j.assign(ctx, "INTERNAL_QUERY"+suffix, cc)
	case policy.SystemNotification:
		return j.deliver(ctx, delivery{
			action:   "SYSTEM_NOTIFICATION" + suffix,
			assignee: ledger.AssignedSystemNotification,
			route:    "SYSTEM_NOTIFICATION",
			folder:   t.system,
		})
	case policy.Unknown, policy.Hold:
		return j.hold(ctx, "UNKNOWN_DOMAIN"+suffix)
	case policy.Quarantine:
		return Result{Action: actionRouteQuarantine}, mtErrors.Internal("quarantine bucket reached bucket routing")
	}
	return Result{}, mtErrors.Internal("unhandled bucket " + j.class.Bucket.String())
}

func (j *job) assign(ctx context.Context, action string, cc []string) (Result, error) {
	assignee, err := j.p.rotation.Next(j.t.roster)
	if err != nil {
		return Result{Action: action}, err
	}
	return j.deliver(ctx, delivery{
		action:   action,
		assignee: assignee,
		route:    j.class.Bucket.String(),
		to:       []string{assignee},
		cc:       cc,
		folder:   j.t.processed,
	})
}

func (j *job) hold(ctx context.Context, action string) (Result, error) {
	t := j.t
	reason := reasonUnknownDomain
	if !t.policy.KnownDomains() {
		reason = reasonAllowlistFailed
	}

	var to []string
	switch t.unknownMode {
	case config.UnknownDomainHoldApps:
		to = t.apps
	case config.UnknownDomainHoldBoth:
		to = dedupe(append(append([]string(nil), t.managers...), t.apps...))
	default:
		to = t.managers
	}
	if len(to) == 0 {
		j.log.Warn("No hold recipients, forward skipped", "mode", t.unknownMode, "domain", j.domain)
	}

	// Unknown senders wait in quarantine; held domains file as processed.
	folder := t.processed
	if j.class.Bucket == policy.Unknown || reason == reasonAllowlistFailed {
		folder = t.quarantine
	}

	return j.deliver(ctx, delivery{
		action:   action,
		assignee: ledger.AssignedHold,
		route:    "UNKNOWN_DOMAIN",
		reason:   reason,
		to:       to,
		trailer:  unknownNoticeBlock(),
		folder:   folder,
	})
}

// delivery is one routed outcome: a ledger entry, an event row, an optional
// forward and the final move.
type delivery struct {
	action   string
	assignee string
	route    string
	reason   string
	to       []string
	cc       []string
	trailer  string
	folder   mailbox.Folder
}

func (j *job) deliver(ctx context.Context, d delivery) (Result, error) {
	p, t, msg := j.p, j.t, j.msg
	assessment := t.detector.Assess(msg.Subject, msg.Excerpt(riskScanLimit), msg.HighImportance)
	staff := ledger.IsStaffAssignee(d.assignee)

	var draft *mailbox.Draft
	if len(d.to) > 0 {
		fw, err := p.client.Forward(ctx, msg)
		if err != nil {
			return Result{Action: d.action}, fmt.Errorf("forward: %w", err)
		}
		ref := ledger.SAMIRef(msg.ID, msg.Received, j.sender, msg.MessageClass)
		tagged := ledger.TagSubject(msg.Subject, ref)

		var head strings.Builder
		if assessment.Level.Elevated() {
			head.WriteString(risk.Banner(assessment))
		} else if staff {
			head.WriteString(risk.AssignmentBanner(d.assignee))
		}
		if staff && t.hotlink && !ledger.IsCompletionSubject(msg.Subject) {
			head.WriteString(hotlink{requester: j.sender, supportInbox: t.samiInbox, subject: tagged, source: msg}.notice())
		}

		fw.To = d.to
		fw.CC = d.cc
		fw.Subject = ledger.TagSubject(fw.Subject, ref)
		fw.Body = head.String() + fw.Body + d.trailer
		draft = fw
	}

	entry := j.entry(d.assignee, d.route)
	entry.Risk = assessment.Level.String()
	entry.Reason = d.reason
	if err := t.ledger.Put(j.key, entry); err != nil {
		return Result{Action: d.action}, fmt.Errorf("record ledger entry: %w", err)
	}

	row := j.row(d.action, d.assignee)
	row.Risk = assessment.Level.String()
	if staff {
		row.EventType = eventlog.EventAssigned
		row.StatusAfter = "assigned"
		row.AssignedTS = entry.TS
	}
	p.appendRow(ctx, row)

	if staff && assessment.Level.Elevated() {
		ticket := watchdog.Ticket{Subject: msg.Subject, AssignedTo: d.assignee, Sender: j.sender, RiskType: assessment.Reason}
		if err := t.sla.Add(j.key, ticket, p.now()); err != nil {
			j.log.Error("Urgent ticket register failed", "error", err)
		}
	}

	if draft != nil {
		if _, err := t.guard.Send(ctx, draft, d.action); err != nil {
			return Result{Action: d.action}, fmt.Errorf("send forward: %w", err)
		}
	}
	if err := j.move(ctx, d.folder); err != nil {
		return Result{Action: d.action}, err
	}

	j.log.Info("Message routed",
		"action", d.action,
		"assigned_to", d.assignee,
		"risk", assessment.Level.String(),
		"bucket", j.class.Bucket.String(),
	)
	return j.done(d.action), nil
}

// complete links a completion signal to its assignment and files the message.
func (j *job) complete(ctx context.Context, source, matchedAction, unmatchedAction string) (Result, error) {
	p, t, msg := j.p, j.t, j.msg
	now := p.now()

	link, err := t.ledger.LinkCompletion(ledger.Completion{
		Key:            j.key,
		ConversationID: msg.ConversationID,
		By:             j.sender,
		Source:         source,
		Subject:        msg.Subject,
		IDs:            j.ids,
	}, now)
	if err != nil {
		return Result{Action: unmatchedAction}, fmt.Errorf("link completion: %w", err)
	}

	row := j.row(unmatchedAction, ledger.AssignedCompleted)
	row.Risk = "COMPLETION_UNMATCHED"
	row.EventType = eventlog.EventCompleted
	row.StatusAfter = "completed"
	row.CompletedTS = ledger.FormatTime(now)
	if link.Matched {
		row.Action = matchedAction
		row.Risk = "COMPLETION_MATCHED"
		row.AssignedTo = link.AssignedTo
		row.MsgKey = link.Key
		if !link.AssignedAt.IsZero() {
			row.AssignedTS = ledger.FormatTime(link.AssignedAt)
			row.DurationSec = strconv.Itoa(int(link.Duration(now).Seconds()))
		}
		if _, err := t.sla.Remove(link.Key); err != nil {
			j.log.Warn("Urgent ticket clear failed", "error", err)
		}
	}
	p.appendRow(ctx, row)

	if err := j.move(ctx, t.completed); err != nil {
		return Result{Action: row.Action}, err
	}
	j.log.Info("Completion recorded", "source", source, "matched", link.Matched, "linked_key", link.Key)
	return j.done(row.Action), nil
}

func (j *job) routeHIB(ctx context.Context) (Result, error) {
	p, t, msg := j.p, j.t, j.msg

	entry := j.entry(ledger.AssignedHIB, "HIB")
	if contains16110(msg) && len(t.apps) > 0 {
		if err := j.forwardToApps(ctx); err != nil {
			j.log.Warn("HIB 16110 apps forward failed", "error", err)
		} else {
			entry.AppsFwd = true
		}
	}
	if err := t.ledger.Put(j.key, entry); err != nil {
		return Result{Action: actionRouteHIB}, fmt.Errorf("record ledger entry: %w", err)
	}
	p.appendRow(ctx, j.row(actionRouteHIB, ledger.AssignedHIB))

	if _, err := t.burst.Observe(ctx, p.now(), t.alerts, t.managers, t.apps); err != nil {
		j.log.Error("HIB watchdog update failed", "error", err)
	}
	if err := j.move(ctx, t.hib); err != nil {
		return Result{Action: actionRouteHIB}, err
	}
	return j.done(actionRouteHIB), nil
}

func (j *job) forwardToApps(ctx context.Context) error {
	fw, err := j.p.client.Forward(ctx, j.msg)
	if err != nil {
		return err
	}
	fw.To = j.t.apps
	_, err = j.t.guard.Send(ctx, fw, "HIB_16110_APPS")
	return err
}

func (j *job) jiraFollowUp(ctx context.Context) (Result, error) {
	p, t, msg := j.p, j.t, j.msg
	followKey := j.key + ledger.JiraFollowUpSuffix
	if t.ledger.Has(followKey) {
		return Result{Outcome: OutcomeDuplicate, Action: actionJiraFollowUp, Key: j.key}, nil
	}

	assignee, err := p.rotation.Next(t.roster)
	if err != nil {
		return Result{Action: actionJiraFollowUp}, err
	}
	fw, err := p.client.Forward(ctx, msg)
	if err != nil {
		return Result{Action: actionJiraFollowUp}, fmt.Errorf("forward: %w", err)
	}
	ref := ledger.SAMIRef(msg.ID, msg.Received, j.sender, msg.MessageClass)
	tagged := ledger.TagSubject(msg.Subject, ref)

	head := jiraFollowUpBanner
	if t.hotlink {
		head = hotlink{requester: j.sender, supportInbox: t.samiInbox, subject: tagged, jira: true, source: msg}.notice() + head
	}
	fw.To = []string{assignee}
	fw.Subject = jiraFollowUpPrefix + tagged
	fw.Body = head + fw.Body

	entry := j.entry(assignee, actionJiraFollowUp)
	if err := t.ledger.Put(j.key, entry); err != nil {
		return Result{Action: actionJiraFollowUp}, fmt.Errorf("record ledger entry: %w", err)
	}
	follow := entry
	follow.MsgKey = j.key
	if err := t.ledger.Put(followKey, follow); err != nil {
		return Result{Action: actionJiraFollowUp}, fmt.Errorf("record follow-up entry: %w", err)
	}

	row := j.row(actionJiraFollowUp, assignee)
	row.EventType = eventlog.EventJiraFollowUpAssigned
	row.StatusAfter = "jira_follow_up"
	row.AssignedTS = entry.TS
	p.appendRow(ctx, row)

	if _, err := t.guard.Send(ctx, fw, actionJiraFollowUp); err != nil {
		return Result{Action: actionJiraFollowUp}, fmt.Errorf("send forward: %w", err)
	}
	if err := j.move(ctx, t.jira); err != nil {
		return Result{Action: actionJiraFollowUp}, err
	}
	j.log.Info("Jira follow-up assigned", "assigned_to", assignee)
	return j.done(actionJiraFollowUp), nil
}

func (j *job) jiraAutomation(ctx context.Context) (Result, error) {
	p, t := j.p, j.t
	entry := j.entry(ledger.AssignedNonActionable, "JIRA_AUTOMATION")
	entry.Reason = actionJiraAutomation
	if err := t.ledger.Put(j.key, entry); err != nil {
		return Result{Action: actionJiraAutomation}, fmt.Errorf("record ledger entry: %w", err)
	}
	p.appendRow(ctx, j.row(actionJiraAutomation, ledger.AssignedNonActionable))
	if err := j.move(ctx, t.nonActionable); err != nil {
		return Result{Action: actionJiraAutomation}, err
	}
	j.log.Info("Jira automation filed", "domain", j.domain)
	return j.done(actionJiraAutomation), nil
}

// fail records a poison failure and quarantines at the threshold.
func (j *job) fail(ctx context.Context, cause error) Result {
	p := j.p
	j.log.Error("Message processing failed", "subject", j.msg.Subject, "category", mtErrors.Category(cause), "error", cause)

	row := j.row(actionProcessingError, ledger.AssignedError)
	row.StatusAfter = "error"
	p.appendRow(ctx, row)

	count, quarantine, err := p.poison.Fail(j.key)
	if err != nil {
		j.log.Error("Poison counter update failed", "error", err)
	}
	if !quarantine {
		j.log.Warn("Poison counter incremented", "failures", count, "threshold", p.poison.Threshold())
		return Result{Outcome: OutcomeError, Action: actionProcessingError, Key: j.key, Err: cause}
	}
	return j.quarantine(ctx, count, cause)
}

func (j *job) quarantine(ctx context.Context, failures int, cause error) Result {
	if err := j.move(ctx, j.t.quarantine); err != nil {
		j.log.Error("Poison quarantine move failed", "error", err)
		return Result{Outcome: OutcomeTransportError, Action: actionQuarantined, Key: j.key, Err: err}
	}
	row := j.row(actionQuarantined, ledger.AssignedQuarantined)
	row.StatusAfter = "quarantined"
	j.p.appendRow(ctx, row)
	j.log.Warn("Message quarantined after repeated failures", "failures", failures, "folder", j.t.quarantine.Path)
	return Result{Outcome: OutcomeQuarantined, Action: actionQuarantined, Key: j.key, Err: cause}
}

func (j *job) move(ctx context.Context, folder mailbox.Folder) error {
	if err := j.p.client.Move(ctx, j.msg, folder); err != nil {
		return fmt.Errorf("move to %s: %w", folder.Path, err)
	}
	return nil
}

func (j *job) done(action string) Result {
	return Result{Outcome: OutcomeProcessed, Action: action, Key: j.key}
}

func (j *job) entry(assigned, route string) ledger.Entry {
	e := ledger.Entry{
		TS:             ledger.FormatTime(j.p.now()),
		AssignedTo:     assigned,
		Risk:           risk.Normal.String(),
		Route:          route,
		ConversationID: j.msg.ConversationID,
		MsgKey:         j.key,
	}
	if j.class.Level != policy.MatchNone {
		e.MatchLevel = j.class.Level.String()
	}
	j.ids.Stamp(&e)
	return e
}

func (j *job) row(action, assigned string) eventlog.Row {
	return eventlog.Row{
		Time:         j.p.now(),
		Subject:      j.msg.Subject,
		AssignedTo:   assigned,
		Sender:       j.sender,
		Risk:         risk.Normal.String(),
		DomainBucket: j.class.Bucket.String(),
		Action:       action,
		PolicySource: j.t.source,
		MsgKey:       j.key,
	}
}

func dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		k := strings.ToLower(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}
