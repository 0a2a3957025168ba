package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/mailtriage/internal/config"
	"github.com/harunnryd/mailtriage/internal/configstore"
	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/eventlog"
	"github.com/harunnryd/mailtriage/internal/ledger"
	"github.com/harunnryd/mailtriage/internal/logger"
	"github.com/harunnryd/mailtriage/internal/mailbox"
	"github.com/harunnryd/mailtriage/internal/notify"
	"github.com/harunnryd/mailtriage/internal/policy"
	"github.com/harunnryd/mailtriage/internal/risk"
	"github.com/harunnryd/mailtriage/internal/rotation"
	"github.com/harunnryd/mailtriage/internal/safemode"
	"github.com/harunnryd/mailtriage/internal/store"
	"github.com/harunnryd/mailtriage/internal/watchdog"

	"github.com/oklog/ulid/v2"
)

// Tick skip reasons.
const (
	SkipStateMissing   = "STATE_REQUIRED_MISSING"
	SkipInboxMissing   = "INBOX_NOT_FOUND"
	SkipProcessMissing = "PROCESSED_FOLDER_NOT_FOUND"
	SkipListFailed     = "LIST_UNREAD_FAILED"
	SkipLedgerInvalid  = "LEDGER_UNREADABLE"
)

type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeDuplicate
	OutcomeSkipped
	OutcomeNoStaff
	OutcomeTransportError
	OutcomeError
	OutcomeQuarantined
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNoStaff:
		return "no_staff"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeError:
		return "error"
	case OutcomeQuarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}

// Result is the terminal state of one message.
type Result struct {
	Outcome Outcome
	Action  string
	Key     string
	Err     error
}

// TickReport summarises one pass over the inbox.
type TickReport struct {
	TickID     string
	Started    time.Time
	Finished   time.Time
	Live       bool
	Scanned    int
	Processed  int
	Skipped    int
	Errors     int
	SkipReason string
	Results    []Result
}

func (r TickReport) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

func (r *TickReport) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeProcessed:
		r.Processed++
	case OutcomeDuplicate, OutcomeSkipped:
		r.Skipped++
	default:
		r.Errors++
	}
}

// Deps are the collaborators a pipeline is built from.
type Deps struct {
	Client  mailbox.Client
	Configs *configstore.Store
	Events  *eventlog.Log
	// Chat sinks receive ops alerts in live mode only.
	Chat   []notify.Sink
	Getenv func(string) string
	Now    func() time.Time
}

// Pipeline triages the shared mailbox one tick at a time. Ticks never overlap.
type Pipeline struct {
	cfg     *config.Config
	client  mailbox.Client
	configs *configstore.Store
	events  *eventlog.Log
	chat    []notify.Sink
	getenv  func(string) string
	now     func() time.Time

	layout    store.Layout
	heartbeat *eventlog.Heartbeat
	rotation  *rotation.Rotation
	poison    *watchdog.Poison
	audit     *safemode.Audit

	hibWindow   time.Duration
	hibCooldown time.Duration

	mu         sync.Mutex
	jiraWarned bool
}

func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, mtErrors.InvalidConfig("pipeline config is nil")
	}
	if deps.Client == nil {
		return nil, mtErrors.InvalidInput("mailbox client is required")
	}

	layout := store.NewLayout(cfg.Paths.StateDir, cfg.Paths.ConfigDir)
	if err := layout.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("prepare state dirs: %w", err)
	}

	configs := deps.Configs
	if configs == nil {
		var err error
		configs, err = configstore.New(cfg.Paths.ConfigDir, cfg.Routing.InternalDomains)
		if err != nil {
			return nil, fmt.Errorf("init config store: %w", err)
		}
	}
	events := deps.Events
	if events == nil {
		events = eventlog.New(cfg.Paths.EventLog)
	}
	getenv := deps.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	heartbeatInterval, err := config.DurationOrDefault(cfg.Scheduler.HeartbeatInterval, config.DefaultSchedulerHeartbeatInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler.heartbeat_interval: %w", err)
	}
	hibWindow, err := config.DurationOrDefault(cfg.Watchdog.HIBWindow, config.DefaultHIBWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid watchdog.hib_window: %w", err)
	}
	hibCooldown, err := config.DurationOrDefault(cfg.Watchdog.HIBCooldown, config.DefaultHIBCooldown)
	if err != nil {
		return nil, fmt.Errorf("invalid watchdog.hib_cooldown: %w", err)
	}

	audit, err := safemode.NewAudit(layout.SuppressedSends())
	if err != nil {
		return nil, fmt.Errorf("init suppressed-send audit: %w", err)
	}

	return &Pipeline{
		cfg:         cfg,
		client:      deps.Client,
		configs:     configs,
		events:      events,
		chat:        deps.Chat,
		getenv:      getenv,
		now:         now,
		layout:      layout,
		heartbeat:   eventlog.NewHeartbeat(events, heartbeatInterval),
		rotation:    rotation.New(layout.RotationState()),
		poison:      watchdog.NewPoison(layout.PoisonCounts(), cfg.Watchdog.PoisonThreshold),
		audit:       audit,
		hibWindow:   hibWindow,
		hibCooldown: hibCooldown,
	}, nil
}

func (p *Pipeline) Layout() store.Layout {
	return p.layout
}

func (p *Pipeline) Rotation() *rotation.Rotation {
	return p.rotation
}

// tick is everything resolved once at the start of a pass.
type tick struct {
	id     string
	now    time.Time
	policy *policy.PolicySet
	source string
	ledger *ledger.Ledger
	guard  *safemode.Guard
	alerts notify.Notifier

	roster   []string
	staff    []string
	managers []string
	apps     []string

	inbox         mailbox.Folder
	processed     mailbox.Folder
	completed     mailbox.Folder
	nonActionable mailbox.Folder
	quarantine    mailbox.Folder
	hib           mailbox.Folder
	system        mailbox.Folder
	jira          mailbox.Folder
	jiraEnabled   bool

	detector *risk.Detector
	sla      *watchdog.SLA
	burst    *watchdog.Burst

	folderNames map[string]string

	unknownMode  string
	targetStore  string
	completionCC string
	ccEnabled    bool
	workflow     bool
	hotlink      bool
	samiInbox    string
}

// RunTick processes every unread inbox message once. The report is always
// filled in; the error is set only when the tick was skipped.
func (p *Pipeline) RunTick(ctx context.Context) (report TickReport, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report = TickReport{TickID: ulid.Make().String(), Started: p.now()}
	ctx = logger.WithTickID(ctx, report.TickID)
	log := logger.From(ctx)

	defer func() {
		report.Finished = p.now()
		attrs := []any{
			"scanned", report.Scanned,
			"processed", report.Processed,
			"skipped", report.Skipped,
			"errors", report.Errors,
			"duration", report.Duration(),
		}
		if report.SkipReason != "" {
			log.Warn("TICK_SKIP", append(attrs, "reason", report.SkipReason)...)
			return
		}
		log.Info("Tick finished", attrs...)
	}()

	t := p.prepare(ctx, report.TickID, report.Started)
	report.Live = t.guard.Decision().Live

	if reason, err := p.resolveFolders(ctx, t); err != nil {
		report.SkipReason = reason
		return report, err
	}

	msgs, err := p.client.ListUnread(ctx, t.inbox)
	if err != nil {
		report.SkipReason = SkipListFailed
		return report, fmt.Errorf("list unread %s: %w", t.inbox.Path, err)
	}
	report.Scanned = len(msgs)

	t.ledger, err = ledger.Open(p.layout.Ledger())
	if err != nil {
		if errors.Is(err, mtErrors.ErrStateMissing) {
			report.SkipReason = SkipStateMissing
		} else {
			report.SkipReason = SkipLedgerInvalid
		}
		return report, err
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			log.Warn("Tick interrupted", "remaining", report.Scanned-len(report.Results))
			break
		}
		report.add(p.handle(ctx, t, msg))
	}

	p.reviewSLA(ctx, t)
	return report, nil
}

// prepare loads the hot configuration and records config events and the heartbeat.
func (p *Pipeline) prepare(ctx context.Context, id string, now time.Time) *tick {
	log := logger.From(ctx)
	overrides := configstore.LoadOverrides(p.layout.ConfigFile("settings_overrides.json"))
	snap, events := p.configs.Load()

	for _, ev := range events {
		row := eventlog.Row{
			Time:         now,
			Subject:      fmt.Sprintf("%s %s", ev.Type, ev.Name),
			AssignedTo:   ledger.AssignedBot,
			Sender:       "system",
			Risk:         string(ev.Type),
			Action:       ev.Name,
			PolicySource: snap.PolicySource,
			EventType:    string(ev.Type),
			StatusAfter:  "loaded",
		}
		if ev.Type == configstore.EventInvalid {
			row.Subject += ": " + ev.Reason
			row.StatusAfter = "rejected"
		}
		p.appendRow(ctx, row)
	}

	cfg := p.cfg
	t := &tick{
		id:           id,
		now:          now,
		policy:       snap.Policy,
		source:       snap.PolicySource,
		folderNames:  snap.Folders,
		roster:       rotation.ActiveRoster(snap.Roster.Staff, snap.Roster.OffRotation, snap.Roster.Leave),
		staff:        lowerAll(snap.Roster.Staff),
		managers:     firstNonEmpty(snap.Managers, overrides.ManagerCCAddrs),
		apps:         firstNonEmpty(snap.Apps, overrides.AppsCCAddrs),
		detector:     risk.NewDetector(cfg.Routing.RiskFilterEnabled),
		unknownMode:  firstString(overrides.UnknownDomainMode, cfg.Routing.UnknownDomainMode),
		targetStore:  firstString(overrides.TargetMailboxStore, cfg.Mailbox.TargetStore),
		completionCC: firstString(overrides.CompletionCCAddr, cfg.Routing.CompletionCCAddr),
		workflow:     cfg.Routing.EnableCompletionWorkflow,
		ccEnabled:    cfg.Routing.EnableCompletionWorkflow && cfg.Routing.EnableCompletionCC,
		hotlink:      cfg.Routing.CompletionHotlink,
		samiInbox:    cfg.Routing.SAMIInbox,
	}

	if t.policy == nil {
		t.policy = &policy.PolicySet{}
	}
	if !t.policy.KnownDomains() {
		log.Warn("Domain allowlist empty, unknown senders will be held", "reason", reasonAllowlistFailed)
	}

	inboxName := firstString(overrides.InboxFolder, cfg.Mailbox.InboxFolder)
	processedName := firstString(overrides.ProcessedFolder, cfg.Mailbox.ProcessedFolder)
	t.inbox = mailbox.Folder{Path: inboxName}
	t.processed = mailbox.Folder{Path: processedName}

	decision := safemode.Decide(p.getenv, inboxName)
	safemode.LogStatus(decision, inboxName)
	t.guard = safemode.NewGuard(decision, p.client, p.audit)

	sinks := []notify.Sink{notify.NewMail(t.guard)}
	if decision.Live {
		sinks = append(sinks, p.chat...)
	}
	t.alerts = notify.NewMulti(sinks...)

	t.sla = watchdog.NewSLA(p.layout.SLARegister(), watchdog.SLAOptions{
		Disabled: !cfg.Routing.RiskFilterEnabled || overrides.DisableUrgentWatchdog,
		Enforce:  cfg.Watchdog.SLAEnforcement,
		Limit:    time.Duration(cfg.Routing.SLAMinutes) * time.Minute,
	})

	if _, err := p.heartbeat.Maybe(now, inboxName, processedName); err != nil {
		log.Error("Heartbeat write failed", "error", err)
	}

	log.Info("Tick started",
		"policy_source", t.source,
		"roster", len(t.roster),
		"live", decision.Live,
		"unknown_domain_mode", t.unknownMode,
	)
	return t
}

// resolveFolders fills in every destination. Inbox and processed are required.
func (p *Pipeline) resolveFolders(ctx context.Context, t *tick) (string, error) {
	log := logger.From(ctx)

	inbox, err := p.client.ResolveFolder(ctx, t.inbox.Path)
	if err != nil {
		return SkipInboxMissing, fmt.Errorf("inbox folder %q: %w", t.inbox.Path, err)
	}
	processed, err := p.client.ResolveFolder(ctx, t.processed.Path)
	if err != nil {
		return SkipProcessMissing, fmt.Errorf("processed folder %q: %w", t.processed.Path, err)
	}
	t.inbox, t.processed = inbox, processed

	folders := p.cfg.Folders
	under := func(key, fallback string) string {
		name := strings.TrimSpace(t.folderNames[key])
		if name == "" {
			name = fallback
		}
		if strings.ContainsAny(name, "/\\") {
			return name
		}
		return inbox.Path + "/" + name
	}
	optional := func(key, fallback string) mailbox.Folder {
		path := under(key, fallback)
		f, err := p.client.ResolveFolder(ctx, path)
		if err != nil {
			log.Warn("Folder not found, using processed", "folder", key, "path", path)
			return processed
		}
		return f
	}
	ensured := func(key, fallback string) mailbox.Folder {
		path := under(key, fallback)
		f, err := p.client.EnsureFolder(ctx, path)
		if err != nil {
			log.Error("Folder could not be created, using processed", "folder", key, "path", path, "error", err)
			return processed
		}
		return f
	}

	t.completed = optional("completed", folders.Completed)
	t.nonActionable = optional("non_actionable", folders.NonActionable)
	t.system = optional("system_notification", folders.SystemNotification)
	t.quarantine = ensured("quarantine", folders.Quarantine)
	t.hib = ensured("hold", folders.Hold)
	t.burst = watchdog.NewBurst(p.layout.BurstWatchdog(), watchdog.BurstConfig{
		Window:    p.hibWindow,
		Threshold: p.cfg.Watchdog.HIBThreshold,
		Cooldown:  p.hibCooldown,
		Folder:    t.hib.Path,
	})

	jiraPath := folders.JiraFollowUp
	if !strings.ContainsAny(jiraPath, "/\\") {
		jiraPath = inbox.Path + "/" + jiraPath
	}
	if f, err := p.client.ResolveFolder(ctx, jiraPath); err == nil {
		t.jira, t.jiraEnabled = f, true
	} else if !p.jiraWarned {
		p.jiraWarned = true
		log.Warn("Jira follow-up folder not found, feature disabled", "path", jiraPath)
	}
	return "", nil
}

func (p *Pipeline) appendRow(ctx context.Context, row eventlog.Row) {
	if err := p.events.Append(row); err != nil {
		logger.From(ctx).Error("Event row write failed", "action", row.Action, "error", err)
	}
}

func lowerAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

func firstString(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
