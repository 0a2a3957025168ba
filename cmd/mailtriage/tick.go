package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/pipeline"
	"github.com/harunnryd/mailtriage/internal/scheduler"
	"github.com/harunnryd/mailtriage/internal/store"

	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single pass over the inbox and exit",
	Long:  `Takes the instance lock, processes every unread message once and prints the outcome. Fails immediately if a daemon already holds the lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}
		layout := rt.pipeline.Layout()

		lock := store.NewInstanceLock(layout.LockFile())
		acquired, err := lock.TryAcquire()
		if err != nil {
			return fmt.Errorf("failed to acquire instance lock: %w", err)
		}
		if !acquired {
			return fmt.Errorf("state dir %s is locked by another instance: %w", layout.StateDir, mtErrors.ErrLocked)
		}
		defer lock.Release()

		if _, err := rt.events.RotateLegacy(); err != nil {
			return fmt.Errorf("rotate legacy event log: %w", err)
		}

		history, err := scheduler.NewStore(layout.TickHistory(), cfg.Scheduler.HistoryLimit)
		if err != nil {
			return err
		}
		sched, err := scheduler.NewScheduler(history, rt.pipeline, cfg.Scheduler)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := sched.RunOnce(ctx)
		fmt.Println(renderReport(report, verbose))
		return err
	},
}

func renderReport(r pipeline.TickReport, verbose bool) string {
	mode := "safe"
	if r.Live {
		mode = "live"
	}
	rows := [][2]string{
		{"Tick", r.TickID},
		{"Mode", mode},
		{"Duration", r.Duration().Round(time.Millisecond).String()},
		{"Scanned", strconv.Itoa(r.Scanned)},
		{"Processed", strconv.Itoa(r.Processed)},
		{"Skipped", strconv.Itoa(r.Skipped)},
		{"Errors", strconv.Itoa(r.Errors)},
	}
	if r.SkipReason != "" {
		rows = append(rows, [2]string{"Skip reason", r.SkipReason})
	}
	out := fieldTable(rows)

	if verbose && len(r.Results) > 0 {
		var results [][]string
		for _, res := range r.Results {
			errText := ""
			if res.Err != nil {
				errText = truncateString(res.Err.Error(), 40)
			}
			results = append(results, []string{truncateString(res.Key, 40), res.Outcome.String(), res.Action, errText})
		}
		out += "\n" + listTable([]string{"Message", "Outcome", "Action", "Error"}, results)
	}
	return out
}

func init() {
	rootCmd.AddCommand(tickCmd)
	tickCmd.Flags().BoolP("verbose", "v", false, "list every message outcome")
}
