package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/harunnryd/mailtriage/internal/config"
	"github.com/harunnryd/mailtriage/internal/configstore"
	"github.com/harunnryd/mailtriage/internal/eventlog"
	"github.com/harunnryd/mailtriage/internal/mailbox"
	"github.com/harunnryd/mailtriage/internal/notify"
	"github.com/harunnryd/mailtriage/internal/pipeline"
)

// runtime is the object graph shared by the daemon and one-shot commands.
type runtime struct {
	pipeline *pipeline.Pipeline
	configs  *configstore.Store
	events   *eventlog.Log
	chat     []notify.Sink
	spool    *mailbox.Spool
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	spoolPath := cfg.Mailbox.SpoolPath
	if spoolPath == "" {
		spoolPath = filepath.Join(cfg.Paths.StateDir, "spool")
	}
	storeName := cfg.Mailbox.TargetStore
	if storeName == "" {
		storeName = cfg.Mailbox.Address
	}
	spool, err := mailbox.NewSpool(spoolPath, storeName)
	if err != nil {
		return nil, err
	}

	configs, err := configstore.New(cfg.Paths.ConfigDir, cfg.Routing.InternalDomains)
	if err != nil {
		return nil, fmt.Errorf("init config store: %w", err)
	}
	events := eventlog.New(cfg.Paths.EventLog)
	chat := chatSinks(cfg)

	p, err := pipeline.New(cfg, pipeline.Deps{
		Client:  spool,
		Configs: configs,
		Events:  events,
		Chat:    chat,
		Getenv:  os.Getenv,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	return &runtime{
		pipeline: p,
		configs:  configs,
		events:   events,
		chat:     chat,
		spool:    spool,
	}, nil
}

func chatSinks(cfg *config.Config) []notify.Sink {
	var sinks []notify.Sink
	if s := cfg.Alerts.Slack; s.Enabled {
		if s.BotToken == "" && s.WebhookURL == "" {
			slog.Warn("Slack alerts enabled without a bot token or webhook, skipping")
		} else {
			sinks = append(sinks, notify.NewSlack(s.BotToken, s.Channel, s.WebhookURL))
		}
	}
	if t := cfg.Alerts.Telegram; t.Enabled {
		if t.BotToken == "" || t.ChatID == 0 {
			slog.Warn("Telegram alerts enabled without a bot token or chat id, skipping")
		} else {
			sinks = append(sinks, notify.NewTelegram(t.BotToken, t.ChatID))
		}
	}
	return sinks
}
