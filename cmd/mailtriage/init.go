package main

import (
	"fmt"

	"github.com/harunnryd/mailtriage/internal/ledger"
	"github.com/harunnryd/mailtriage/internal/store"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the state directories and an empty ledger",
	Long:  `Ticks refuse to run without processed_ledger.json. init creates it, along with the state and config directories, and leaves an existing ledger untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		layout := store.NewLayout(cfg.Paths.StateDir, cfg.Paths.ConfigDir)
		if err := layout.EnsureDirs(); err != nil {
			return err
		}

		created, err := ledger.Bootstrap(layout.Ledger())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if created {
			fmt.Fprintf(out, "✓ Created ledger at %s\n", layout.Ledger())
		} else {
			fmt.Fprintf(out, "Ledger already exists at %s\n", layout.Ledger())
		}
		fmt.Fprintf(out, "State dir:  %s\nConfig dir: %s\n", layout.StateDir, layout.ConfigDir)
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "1. Put staff.json, manager_config.json, apps_team.json and system_buckets.json in the config dir")
		fmt.Fprintln(out, "2. Run 'mailtriage config check' to validate them")
		fmt.Fprintln(out, "3. Export TRANSFER_BOT_LIVE=true when ready to send mail")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
