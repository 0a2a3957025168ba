package notify

import (
	"context"
	"log/slog"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"

	"github.com/slack-go/slack"
)

// Slack posts alerts to a channel with a bot token, or to an incoming webhook.
type Slack struct {
	client     *slack.Client
	channel    string
	webhookURL string
}

func NewSlack(botToken, channel, webhookURL string) *Slack {
	s := &Slack{channel: channel, webhookURL: webhookURL}
	if botToken != "" {
		s.client = slack.New(botToken)
	}
	return s
}

func (s *Slack) Name() string {
	return "slack"
}

func (s *Slack) Notify(ctx context.Context, alert Alert) error {
	if s.webhookURL != "" {
		err := slack.PostWebhookContext(ctx, s.webhookURL, &slack.WebhookMessage{Text: alert.Text()})
		if err != nil {
			return mtErrors.WrapTransient(err, "failed to post Slack webhook")
		}
		slog.Debug("Slack alert posted", "kind", alert.Kind, "via", "webhook")
		return nil
	}

	if s.client == nil || s.channel == "" {
		return mtErrors.InvalidConfig("slack alerts need a bot token and channel, or a webhook url")
	}
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(alert.Text(), false))
	if err != nil {
		return mtErrors.WrapTransient(err, "failed to send Slack message")
	}
	slog.Debug("Slack alert posted", "kind", alert.Kind, "channel", s.channel)
	return nil
}

func (s *Slack) Health(ctx context.Context) error {
	if s.webhookURL != "" {
		return nil
	}
	if s.client == nil {
		return mtErrors.InvalidConfig("slack client not configured")
	}
	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return mtErrors.Transient("Slack auth failed: " + err.Error())
	}
	return nil
}
