package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/harunnryd/mailtriage/internal/config"
	"github.com/harunnryd/mailtriage/internal/configstore"
	"github.com/harunnryd/mailtriage/internal/policy"
	"github.com/harunnryd/mailtriage/internal/rotation"
	"github.com/harunnryd/mailtriage/internal/store"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
	Long:  `Inspect the resolved daemon configuration and validate the hot-reloaded JSON files.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Dump fully resolved configuration",
	Long:  `Display current configuration with all defaults applied and environment variables resolved. Tokens are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(redactConfigSecrets(loadedCfg)); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return enc.Close()
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the JSON config files",
	Long:  `Loads staff, manager, apps, bucket and override files from the config dir the same way a tick does and reports what was accepted. Exits non-zero when any file is rejected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return checkConfigFiles(cmd.OutOrStdout(), loadedCfg)
	},
}

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	return config.Load(cmd)
}

func checkConfigFiles(w io.Writer, c *config.Config) error {
	layout := store.NewLayout(c.Paths.StateDir, c.Paths.ConfigDir)
	if _, err := os.Stat(layout.ConfigDir); err != nil {
		return fmt.Errorf("config dir %s: %w", layout.ConfigDir, err)
	}

	cs, err := configstore.New(layout.ConfigDir, c.Routing.InternalDomains)
	if err != nil {
		return err
	}
	snap, events := cs.Load()

	invalid := 0
	var rows [][]string
	for _, ev := range events {
		status := "ok"
		if ev.Type == configstore.EventInvalid {
			status = "REJECTED"
			invalid++
		}
		rows = append(rows, []string{ev.Name, status, truncateString(ev.Reason, 60)})
	}

	fmt.Fprintln(w, title("Config files"))
	if len(rows) == 0 {
		fmt.Fprintln(w, "No JSON config files found; legacy .txt lists and built-in defaults apply.")
	} else {
		fmt.Fprintln(w, listTable([]string{"File", "Status", "Reason"}, rows))
	}

	roster := rotation.ActiveRoster(snap.Roster.Staff, snap.Roster.OffRotation, snap.Roster.Leave)
	p := snap.Policy
	fmt.Fprintln(w, title("Resolved policy"))
	fmt.Fprintln(w, fieldTable([][2]string{
		{"Policy source", snap.PolicySource},
		{"Staff", strconv.Itoa(len(snap.Roster.Staff))},
		{"Active roster", strconv.Itoa(len(roster))},
		{"Managers", strconv.Itoa(len(snap.Managers))},
		{"Apps team", strconv.Itoa(len(snap.Apps))},
		{"Quarantine rules", ruleSize(p.Quarantine)},
		{"Hold rules", ruleSize(p.Hold)},
		{"System notification rules", ruleSize(p.SystemNotification)},
		{"Image request rules", ruleSize(p.ExternalImageRequest)},
		{"Internal domains", strings.Join(p.InternalDomains, ", ")},
		{"Folder overrides", folderSummary(snap.Folders)},
	}))

	ov := configstore.LoadOverrides(layout.ConfigFile("settings_overrides.json"))
	var set []string
	for name, on := range map[string]bool{
		"inbox_folder":            ov.InboxFolder != "",
		"processed_folder":        ov.ProcessedFolder != "",
		"target_mailbox_store":    ov.TargetMailboxStore != "",
		"completion_cc_addr":      ov.CompletionCCAddr != "",
		"apps_cc_addr":            len(ov.AppsCCAddrs) > 0,
		"manager_cc_addr":         len(ov.ManagerCCAddrs) > 0,
		"unknown_domain_mode":     ov.UnknownDomainMode != "",
		"disable_urgent_watchdog": ov.DisableUrgentWatchdog,
	} {
		if on {
			set = append(set, name)
		}
	}
	if len(set) > 0 {
		sort.Strings(set)
		fmt.Fprintf(w, "Overrides in effect: %s\n", strings.Join(set, ", "))
	}

	if len(roster) == 0 {
		fmt.Fprintln(w, "Warning: no staff on rotation; image requests will stay unread.")
	}
	if invalid > 0 {
		return fmt.Errorf("%d config file(s) rejected", invalid)
	}
	return nil
}

func ruleSize(r policy.Rule) string {
	return fmt.Sprintf("%d senders, %d domains", len(r.Senders), len(r.Domains))
}

func folderSummary(folders map[string]string) string {
	if len(folders) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(folders))
	for k := range folders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+folders[k])
	}
	return strings.Join(parts, ", ")
}

func redactConfigSecrets(in *config.Config) *config.Config {
	if in == nil {
		return nil
	}

	out := *in
	out.Alerts.Slack.BotToken = maskSecret(out.Alerts.Slack.BotToken)
	out.Alerts.Slack.WebhookURL = maskSecret(out.Alerts.Slack.WebhookURL)
	out.Alerts.Telegram.BotToken = maskSecret(out.Alerts.Telegram.BotToken)
	return &out
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

func init() {
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
