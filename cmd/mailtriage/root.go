package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/harunnryd/mailtriage/internal/config"
	"github.com/harunnryd/mailtriage/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	cfg         *config.Config
	activityLog io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "mailtriage",
	Short: "Shared-mailbox triage and dispatch",
	Long: `mailtriage watches a clinical-support shared mailbox, classifies each unread
message and forwards it to the next rostered staff member, holding unknown
senders for managers and archiving system noise.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		if cfg.Server.ActivityLog == "" {
			logger.Setup(cfg.Server.LogLevel)
			return nil
		}
		activityLog, err = logger.SetupWithActivityLog(cfg.Server.LogLevel, cfg.Server.ActivityLog)
		if err != nil {
			return fmt.Errorf("open activity log: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if activityLog != nil {
			if err := activityLog.Close(); err != nil {
				slog.Warn("Failed to close activity log", "error", err)
			}
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mailtriage/config.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("server.activity_log", "", "also write logs, uncoloured, to this file")
}
