package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/mailtriage/internal/config"
	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/ledger"
	"github.com/harunnryd/mailtriage/internal/rotation"
	"github.com/harunnryd/mailtriage/internal/safemode"
	"github.com/harunnryd/mailtriage/internal/scheduler"
	"github.com/harunnryd/mailtriage/internal/store"
	"github.com/harunnryd/mailtriage/internal/watchdog"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dispatcher state",
	Long:  `Reads the state directory and prints the safety mode, rotation position, ledger size, open urgent tickets, quarantined messages and recent ticks. It does not take the instance lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		limit, _ := cmd.Flags().GetInt("ticks")

		out, err := renderStatus(cfg, os.Getenv, time.Now(), limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func renderStatus(cfg *config.Config, getenv func(string) string, now time.Time, tickLimit int) (string, error) {
	layout := store.NewLayout(cfg.Paths.StateDir, cfg.Paths.ConfigDir)
	var b strings.Builder

	decision := safemode.Decide(getenv, cfg.Mailbox.InboxFolder)
	mode := "SAFE (no mail sent)"
	if decision.Live {
		mode = "LIVE"
	}

	lockState := "free"
	if store.Exists(layout.LockFile()) {
		stale, pid, err := store.IsStale(layout.LockFile(), store.ProcessAlive)
		switch {
		case err != nil:
			lockState = "unreadable"
		case stale:
			lockState = fmt.Sprintf("stale (pid %d)", pid)
		default:
			lockState = fmt.Sprintf("held (pid %d)", pid)
		}
	}

	var rotIndex, rotTotal string
	if rot, err := rotation.New(layout.RotationState()).State(); err != nil {
		rotIndex = "unreadable, resets on next assignment"
		rotTotal = "unknown"
	} else {
		rotIndex, rotTotal = strconv.Itoa(rot.CurrentIndex), strconv.Itoa(rot.TotalProcessed)
	}

	ledgerState := "missing, run 'mailtriage init'"
	open := 0
	if l, err := ledger.Open(layout.Ledger()); err == nil {
		for _, key := range l.Keys() {
			if e, ok := l.Get(key); ok && ledger.IsStaffAssignee(e.AssignedTo) && e.CompletedAt == "" {
				open++
			}
		}
		ledgerState = fmt.Sprintf("%d entries, %d awaiting completion", l.Len(), open)
	} else if !errors.Is(err, mtErrors.ErrStateMissing) {
		ledgerState = "unreadable: " + err.Error()
	}

	b.WriteString(title("Dispatcher"))
	b.WriteString("\n")
	b.WriteString(fieldTable([][2]string{
		{"Mailbox", firstNonBlank(cfg.Mailbox.Address, cfg.Mailbox.TargetStore, "-")},
		{"Mode", mode + " [" + decision.Reason + "]"},
		{"Instance lock", lockState},
		{"Rotation index", rotIndex},
		{"Total assigned", rotTotal},
		{"Ledger", ledgerState},
		{"State dir", layout.StateDir},
	}))

	threshold := cfg.Watchdog.PoisonThreshold
	if threshold < 1 {
		threshold = config.DefaultPoisonThreshold
	}
	var poisoned [][]string
	for key, count := range watchdog.NewPoison(layout.PoisonCounts(), threshold).All() {
		if count >= threshold {
			poisoned = append(poisoned, []string{truncateString(key, 60), strconv.Itoa(count)})
		}
	}
	sort.Slice(poisoned, func(i, j int) bool { return poisoned[i][0] < poisoned[j][0] })
	b.WriteString("\n")
	b.WriteString(title(fmt.Sprintf("Quarantined messages (%d)", len(poisoned))))
	if len(poisoned) > 0 {
		b.WriteString("\n")
		b.WriteString(listTable([]string{"Message", "Failures"}, poisoned))
	}

	sla := watchdog.NewSLA(layout.SLARegister(), watchdog.SLAOptions{
		Disabled: !cfg.Routing.RiskFilterEnabled,
		Enforce:  cfg.Watchdog.SLAEnforcement,
		Limit:    time.Duration(cfg.Routing.SLAMinutes) * time.Minute,
	})
	var tickets [][]string
	for _, o := range sla.Review(now) {
		state := "open"
		if o.Breached {
			state = "BREACHED"
		}
		tickets = append(tickets, []string{
			truncateString(o.Ticket.Subject, 40),
			o.Ticket.AssignedTo,
			o.Ticket.RiskType,
			fmt.Sprintf("%d min", int(o.Elapsed.Minutes())),
			strconv.Itoa(o.Ticket.EscalationCount),
			state,
		})
	}
	b.WriteString("\n")
	b.WriteString(title(fmt.Sprintf("Urgent tickets (%d)", len(tickets))))
	if len(tickets) > 0 {
		b.WriteString("\n")
		b.WriteString(listTable([]string{"Subject", "Assigned", "Risk", "Open", "Escalations", "State"}, tickets))
	}

	history, err := scheduler.NewStore(layout.TickHistory(), cfg.Scheduler.HistoryLimit)
	if err != nil {
		return "", err
	}
	var ticks [][]string
	for _, run := range history.Recent(tickLimit) {
		note := run.SkipReason
		if run.Error != "" {
			note = truncateString(run.Error, 40)
		}
		ticks = append(ticks, []string{
			run.Started.Local().Format("2006-01-02 15:04:05"),
			string(run.Status),
			strconv.Itoa(run.Scanned),
			strconv.Itoa(run.Processed),
			strconv.Itoa(run.Skipped),
			strconv.Itoa(run.Errors),
			run.Duration().Round(time.Millisecond).String(),
			note,
		})
	}
	b.WriteString("\n")
	b.WriteString(title("Recent ticks"))
	b.WriteString("\n")
	if len(ticks) == 0 {
		b.WriteString("No ticks recorded yet.")
	} else {
		b.WriteString(listTable([]string{"Started", "Status", "Scanned", "Processed", "Skipped", "Errors", "Took", "Note"}, ticks))
	}

	if audit, err := safemode.NewAudit(layout.SuppressedSends()); err == nil {
		if records, err := audit.Records(now.Add(-24 * time.Hour)); err == nil && len(records) > 0 {
			b.WriteString("\n")
			b.WriteString(title(fmt.Sprintf("Suppressed sends, last 24h: %d", len(records))))
		}
	}

	return b.String(), nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Int("ticks", 10, "number of recent ticks to show")
}
