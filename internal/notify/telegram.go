package notify

import (
	"context"
	"log/slog"
	"sync"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram posts alerts to one chat. The bot connects on first use.
type Telegram struct {
	token  string
	chatID int64

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegram(token string, chatID int64) *Telegram {
	return &Telegram{token: token, chatID: chatID}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) connect() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	if t.token == "" || t.chatID == 0 {
		return nil, mtErrors.InvalidConfig("telegram alerts need a bot token and chat id")
	}
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return nil, mtErrors.WrapTransient(err, "failed to init telegram bot")
	}
	slog.Info("Telegram alert sink connected", "user", bot.Self.UserName)
	t.bot = bot
	return bot, nil
}

func (t *Telegram) Notify(ctx context.Context, alert Alert) error {
	bot, err := t.connect()
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, alert.Text())
	if _, err := bot.Send(msg); err != nil {
		return mtErrors.WrapTransient(err, "failed to send telegram message")
	}
	slog.Debug("Telegram alert sent", "kind", alert.Kind, "chat_id", t.chatID)
	return nil
}

func (t *Telegram) Health(ctx context.Context) error {
	bot, err := t.connect()
	if err != nil {
		return err
	}
	if _, err := bot.GetMe(); err != nil {
		return mtErrors.Transient("Telegram connection failed: " + err.Error())
	}
	return nil
}
