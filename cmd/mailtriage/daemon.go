package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/mailtriage/internal/daemon"
	"github.com/harunnryd/mailtriage/internal/daemon/components"
	"github.com/harunnryd/mailtriage/internal/notify"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the dispatcher until interrupted",
	Long:  `Holds the instance lock and runs a tick on the configured schedule until SIGINT or SIGTERM. The in-flight message finishes before exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		forceClean, _ := cmd.Flags().GetBool("force-clean-locks")

		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}

		daemonMgr, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}
		daemonMgr.SetForceCleanup(forceClean)

		layout := rt.pipeline.Layout()
		sinks := append([]notify.Sink{}, rt.chat...)

		daemonMgr.AddComponent(components.NewInstanceLockComponent(layout))
		daemonMgr.AddComponent(components.NewEventLogComponent(rt.events))
		daemonMgr.AddComponent(components.NewConfigWatcherComponent(layout.ConfigDir, cfg.Daemon.WatchConfig, rt.configs))
		daemonMgr.AddComponent(components.NewAlertsComponent(sinks...))
		daemonMgr.AddComponent(components.NewSchedulerComponent(cfg, rt.pipeline, layout))

		err = daemonMgr.Start(context.Background())
		if err != nil {
			// Cancellation via signal is the normal way out.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Mailtriage daemon stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Mailtriage daemon stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().Bool("force-clean-locks", false, "Remove a lock file left by a dead process before starting (default: cleared on acquire)")
}
