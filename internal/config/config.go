package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Mailbox   MailboxConfig   `koanf:"mailbox"`
	Folders   FoldersConfig   `koanf:"folders"`
	Paths     PathsConfig     `koanf:"paths"`
	Routing   RoutingConfig   `koanf:"routing"`
	Watchdog  WatchdogConfig  `koanf:"watchdog"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Daemon    DaemonConfig    `koanf:"daemon"`
	Alerts    AlertsConfig    `koanf:"alerts"`
}

type ServerConfig struct {
	LogLevel    string `koanf:"log_level"`
	ActivityLog string `koanf:"activity_log"`
}

// MailboxConfig describes the shared mailbox the dispatcher serves.
type MailboxConfig struct {
	Address         string `koanf:"address"`
	SpoolPath       string `koanf:"spool_path"`
	InboxFolder     string `koanf:"inbox_folder"`
	ProcessedFolder string `koanf:"processed_folder"`
	TargetStore     string `koanf:"target_store"`
}

// FoldersConfig holds destination folders below Inbox. system_buckets.json may override
// every key except jira_follow_up.
type FoldersConfig struct {
	Completed          string `koanf:"completed"`
	NonActionable      string `koanf:"non_actionable"`
	Quarantine         string `koanf:"quarantine"`
	Hold               string `koanf:"hold"`
	SystemNotification string `koanf:"system_notification"`
	JiraFollowUp       string `koanf:"jira_follow_up"`
}

type PathsConfig struct {
	StateDir  string `koanf:"state_dir"`
	ConfigDir string `koanf:"config_dir"`
	EventLog  string `koanf:"event_log"`
}

type RoutingConfig struct {
	CompletionCCAddr         string   `koanf:"completion_cc_addr"`
	SAMIInbox                string   `koanf:"sami_inbox"`
	EnableCompletionWorkflow bool     `koanf:"enable_completion_workflow"`
	EnableCompletionCC       bool     `koanf:"enable_completion_cc"`
	UnknownDomainMode        string   `koanf:"unknown_domain_mode"`
	RiskFilterEnabled        bool     `koanf:"risk_filter_enabled"`
	SLAMinutes               int      `koanf:"sla_minutes"`
	InternalDomains          []string `koanf:"internal_domains"`
	CompletionHotlink        bool     `koanf:"completion_hotlink"`
}

type WatchdogConfig struct {
	HIBWindow       string `koanf:"hib_window"`
	HIBThreshold    int    `koanf:"hib_threshold"`
	HIBCooldown     string `koanf:"hib_cooldown"`
	PoisonThreshold int    `koanf:"poison_threshold"`
	SLAEnforcement  bool   `koanf:"sla_enforcement"`
}

type SchedulerConfig struct {
	TickInterval      string `koanf:"tick_interval"`
	Schedule          string `koanf:"schedule"`
	HeartbeatInterval string `koanf:"heartbeat_interval"`
	ShutdownTimeout   string `koanf:"shutdown_timeout"`
	HistoryLimit      int    `koanf:"history_limit"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
	WatchConfig            bool   `koanf:"watch_config"`
}

type AlertsConfig struct {
	Slack    SlackAlertConfig    `koanf:"slack"`
	Telegram TelegramAlertConfig `koanf:"telegram"`
}

type SlackAlertConfig struct {
	Enabled    bool   `koanf:"enabled"`
	BotToken   string `koanf:"bot_token"`
	Channel    string `koanf:"channel"`
	WebhookURL string `koanf:"webhook_url"`
}

type TelegramAlertConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BotToken string `koanf:"bot_token"`
	ChatID   int64  `koanf:"chat_id"`
}

// Load layers defaults, the YAML config file, MAILTRIAGE_ environment variables
// and command flags, in that order.
func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	home := os.Getenv("HOME")
	defaults := map[string]interface{}{
		"server.log_level":                   DefaultServerLogLevel,
		"mailbox.inbox_folder":               DefaultInboxFolder,
		"mailbox.processed_folder":           DefaultProcessedFolder,
		"mailbox.spool_path":                 filepath.Join(home, ".mailtriage", "spool"),
		"folders.completed":                  DefaultFolderCompleted,
		"folders.non_actionable":             DefaultFolderNonActionable,
		"folders.quarantine":                 DefaultFolderQuarantine,
		"folders.hold":                       DefaultFolderHold,
		"folders.system_notification":        DefaultFolderSystemNotification,
		"folders.jira_follow_up":             DefaultFolderJiraFollowUp,
		"paths.state_dir":                    filepath.Join(home, ".mailtriage", "state"),
		"paths.config_dir":                   filepath.Join(home, ".mailtriage", "config"),
		"routing.completion_cc_addr":         DefaultCompletionCCAddr,
		"routing.sami_inbox":                 DefaultSAMIInbox,
		"routing.enable_completion_workflow": DefaultEnableCompletionWorkflow,
		"routing.enable_completion_cc":       DefaultEnableCompletionCC,
		"routing.unknown_domain_mode":        DefaultUnknownDomainMode,
		"routing.risk_filter_enabled":        DefaultRiskFilterEnabled,
		"routing.sla_minutes":                DefaultSLAMinutes,
		"routing.completion_hotlink":         DefaultCompletionHotlink,
		"routing.internal_domains":           []string{DefaultInternalDomain},
		"watchdog.hib_window":                DefaultHIBWindow,
		"watchdog.hib_threshold":             DefaultHIBThreshold,
		"watchdog.hib_cooldown":              DefaultHIBCooldown,
		"watchdog.poison_threshold":          DefaultPoisonThreshold,
		"watchdog.sla_enforcement":           DefaultSLAEnforcement,
		"scheduler.tick_interval":            DefaultSchedulerTickInterval,
		"scheduler.heartbeat_interval":       DefaultSchedulerHeartbeatInterval,
		"scheduler.shutdown_timeout":         DefaultSchedulerShutdownTimeout,
		"scheduler.history_limit":            DefaultSchedulerHistoryLimit,
		"daemon.shutdown_timeout":            DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":       DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout":    DefaultDaemonStartupShutdownTimeout,
		"daemon.watch_config":                DefaultDaemonWatchConfig,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else if home != "" {
		globalPath := filepath.Join(home, ".mailtriage", "config.yaml")
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	// MAILTRIAGE_ROUTING_SLA_MINUTES -> routing.sla_minutes
	k.Load(env.Provider("MAILTRIAGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "MAILTRIAGE_")), "_", ".", 1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}
	if cfg.Paths.EventLog == "" {
		cfg.Paths.EventLog = filepath.Join(cfg.Paths.StateDir, "daily_stats.csv")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a tick.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Mailbox.InboxFolder) == "" {
		return fmt.Errorf("mailbox.inbox_folder is required")
	}
	if strings.TrimSpace(cfg.Mailbox.ProcessedFolder) == "" {
		return fmt.Errorf("mailbox.processed_folder is required")
	}
	switch cfg.Routing.UnknownDomainMode {
	case UnknownDomainHoldManager, UnknownDomainHoldApps, UnknownDomainHoldBoth:
	default:
		return fmt.Errorf("routing.unknown_domain_mode %q is not one of hold_manager, hold_apps, hold_both", cfg.Routing.UnknownDomainMode)
	}
	if cfg.Watchdog.PoisonThreshold < 1 {
		return fmt.Errorf("watchdog.poison_threshold must be >= 1")
	}
	if cfg.Watchdog.HIBThreshold < 1 {
		return fmt.Errorf("watchdog.hib_threshold must be >= 1")
	}
	for name, value := range map[string]string{
		"watchdog.hib_window":          cfg.Watchdog.HIBWindow,
		"watchdog.hib_cooldown":        cfg.Watchdog.HIBCooldown,
		"scheduler.tick_interval":      cfg.Scheduler.TickInterval,
		"scheduler.heartbeat_interval": cfg.Scheduler.HeartbeatInterval,
	} {
		if _, err := DurationOrDefault(value, ""); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	for _, field := range []*string{
		&cfg.Paths.StateDir,
		&cfg.Paths.ConfigDir,
		&cfg.Paths.EventLog,
		&cfg.Mailbox.SpoolPath,
		&cfg.Server.ActivityLog,
	} {
		expanded, err := ExpandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}
