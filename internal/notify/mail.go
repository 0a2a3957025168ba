package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/harunnryd/mailtriage/internal/mailbox"
)

// Guard is the safe-mode send gate.
type Guard interface {
	Send(ctx context.Context, draft *mailbox.Draft, action string) (bool, error)
}

// Mail sends one message per audience through the safe-mode guard.
type Mail struct {
	guard Guard
}

func NewMail(guard Guard) *Mail {
	return &Mail{guard: guard}
}

func (m *Mail) Name() string {
	return "mail"
}

func (m *Mail) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, to := range alert.Audiences {
		if len(to) == 0 {
			continue
		}
		draft := mailbox.Compose(to, alert.Subject, alert.Body)
		sent, err := m.guard.Send(ctx, draft, alert.Kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if sent {
			slog.Info("Alert mailed", "kind", alert.Kind, "recipients", len(to))
		}
	}
	return errors.Join(errs...)
}

func (m *Mail) Health(ctx context.Context) error {
	return nil
}
