package notify

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/config"
)

// ─────────────────────────────────────────────────────────────────────────────
// EmailSender — one message per alert cycle to the operator list
// ─────────────────────────────────────────────────────────────────────────────

// sendFunc matches smtp.SendMail, injected so tests can capture the outbound
// message without a mail server.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender delivers the alert summary to a fixed operator address list as
// a multipart message carrying both an HTML body and a plain-text fallback.
type EmailSender struct {
	cfg    config.SMTPSettings
	send   sendFunc
	logger *slog.Logger
	now    func() time.Time
}

// NewEmailSender wires a sender onto smtp.SendMail.
func NewEmailSender(cfg config.SMTPSettings, logger *slog.Logger) *EmailSender {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EmailSender{cfg: cfg, send: smtp.SendMail, logger: logger, now: time.Now}
}

// Send delivers one alert message. A missing host or empty recipient list
// reports the channel as disabled without touching the network.
func (s *EmailSender) Send(_ context.Context, summaries []models.DeviceSummary) models.ChannelResult {
	if s.cfg.Host == "" || len(s.cfg.AdminRecipients) == 0 {
		return models.ChannelResult{Success: false, Error: "disabled"}
	}

	msg, err := s.buildMessage(summaries)
	if err != nil {
		s.logger.Error("notify: email build failed", "error", err.Error())
		return models.ChannelResult{
			Success:         false,
			TotalRecipients: len(s.cfg.AdminRecipients),
			Error:           err.Error(),
		}
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := s.send(s.cfg.Addr(), auth, s.cfg.From, s.cfg.AdminRecipients, msg); err != nil {
		s.logger.Error("notify: email send failed", "error", err.Error())
		return models.ChannelResult{
			Success:         false,
			FailedCount:     len(s.cfg.AdminRecipients),
			TotalRecipients: len(s.cfg.AdminRecipients),
			Error:           err.Error(),
		}
	}

	s.logger.Info("notify: email sent", "recipients", len(s.cfg.AdminRecipients), "devices", len(summaries))
	return models.ChannelResult{
		Success:         true,
		SentCount:       len(s.cfg.AdminRecipients),
		TotalRecipients: len(s.cfg.AdminRecipients),
	}
}

// buildMessage renders headers plus a multipart/alternative body. The plain
// part comes first so legacy clients show it as the fallback.
func (s *EmailSender) buildMessage(summaries []models.DeviceSummary) ([]byte, error) {
	var body strings.Builder
	writer := multipart.NewWriter(&body)

	plain, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("plain part: %w", err)
	}
	if _, err := io.WriteString(plain, plainBody(summaries, s.now())); err != nil {
		return nil, err
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=utf-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("html part: %w", err)
	}
	if _, err := io.WriteString(htmlPart, htmlBody(summaries, s.now())); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(s.cfg.AdminRecipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject(summaries))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", writer.Boundary())
	msg.WriteString("\r\n")
	msg.WriteString(body.String())
	return []byte(msg.String()), nil
}

func subject(summaries []models.DeviceSummary) string {
	return fmt.Sprintf("[fieldwatch] %d critical device(s) offline", len(summaries))
}

func plainBody(summaries []models.DeviceSummary, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Critical equipment offline as of %s\n\n", now.Format("2006-01-02 15:04"))
	for _, sum := range summaries {
		fmt.Fprintf(&b, "- %s (%s)\n", sum.Code, sum.IP)
		fmt.Fprintf(&b, "  down: %s, meters: %d, portions: %s\n", sum.Downtime, sum.MeterCount, sum.Portions)
	}
	return b.String()
}

func htmlBody(summaries []models.DeviceSummary, now time.Time) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<p>Critical equipment offline as of <b>%s</b></p>", now.Format("2006-01-02 15:04"))
	b.WriteString("<table border=\"1\" cellpadding=\"4\">")
	b.WriteString("<tr><th>Device</th><th>IP</th><th>Downtime</th><th>Meters</th><th>Portions</th></tr>")
	for _, sum := range summaries {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>",
			html.EscapeString(sum.Code),
			html.EscapeString(sum.IP),
			html.EscapeString(sum.Downtime),
			sum.MeterCount,
			html.EscapeString(sum.Portions),
		)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}
