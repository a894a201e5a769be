package notify

import (
	"context"
	"io"
	"log/slog"

	"github.com/qawaq/fieldwatch/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Dispatcher — channel fan-out
// ─────────────────────────────────────────────────────────────────────────────

// Dispatcher fans one alert out to both channels. Channels fail independently:
// an email transport error never blocks the telegram sends, and vice versa.
type Dispatcher struct {
	email    *EmailSender
	telegram *TelegramSender
	logger   *slog.Logger
}

// NewDispatcher wires a dispatcher. Either sender may be nil, which reports
// that channel as disabled.
func NewDispatcher(email *EmailSender, telegram *TelegramSender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{email: email, telegram: telegram, logger: logger}
}

// Dispatch sends the summaries over both channels and returns each channel's
// result. Both channels receive the same pre-built summary data; formatting
// is each sender's own concern.
func (d *Dispatcher) Dispatch(ctx context.Context, summaries []models.DeviceSummary, recipients []models.Recipient) (email, telegram models.ChannelResult) {
	if d.email != nil {
		email = d.email.Send(ctx, summaries)
	} else {
		email = models.ChannelResult{Success: false, Error: "disabled"}
	}

	if d.telegram != nil {
		telegram = d.telegram.Send(ctx, summaries, recipients)
	} else {
		telegram = models.ChannelResult{Success: false, Error: "disabled"}
	}

	if !email.Success && !telegram.Success {
		d.logger.Warn("notify: no channel delivered the alert",
			"email_error", email.Error,
			"telegram_error", telegram.Error,
		)
	}
	return email, telegram
}
