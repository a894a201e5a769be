package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/config"
)

// ─────────────────────────────────────────────────────────────────────────────
// TelegramSender — per-recipient bot messages
// ─────────────────────────────────────────────────────────────────────────────

// TelegramSender posts alert messages to the Bot API, one send per opted-in
// recipient. An empty bot token disables the channel entirely.
type TelegramSender struct {
	token   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewTelegramSender wires a sender. client may be nil, in which case a
// 10-second-timeout client is used.
func NewTelegramSender(cfg config.TelegramSettings, client *http.Client, logger *slog.Logger) *TelegramSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TelegramSender{
		token:   cfg.BotToken,
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// Enabled reports whether a bot token is configured.
func (s *TelegramSender) Enabled() bool { return s.token != "" }

// Send fans the alert out to every recipient with the channel opted in and a
// chat id set. Sends are independent: a failure for one recipient is recorded
// and the rest still go out.
func (s *TelegramSender) Send(ctx context.Context, summaries []models.DeviceSummary, recipients []models.Recipient) models.ChannelResult {
	if !s.Enabled() {
		return models.ChannelResult{Success: false, Error: "disabled"}
	}

	targets := eligibleRecipients(recipients)
	result := models.ChannelResult{TotalRecipients: len(targets)}
	if len(targets) == 0 {
		result.Error = "no recipients"
		return result
	}

	text := telegramText(summaries)
	for _, r := range targets {
		if err := s.sendMessage(ctx, r.TelegramChatID, text); err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Username, err))
			s.logger.Warn("notify: telegram send failed",
				"recipient", r.Username,
				"error", err.Error(),
			)
			continue
		}
		result.SentCount++
	}

	result.Success = result.SentCount > 0
	s.logger.Info("notify: telegram dispatched",
		"sent", result.SentCount,
		"failed", result.FailedCount,
		"total", result.TotalRecipients,
	)
	return result
}

// SendTest delivers a short test message to one chat id, for the diagnostic
// command line flag.
func (s *TelegramSender) SendTest(ctx context.Context, chatID string) error {
	if !s.Enabled() {
		return fmt.Errorf("telegram channel disabled: no bot token")
	}
	return s.sendMessage(ctx, chatID, "fieldwatch test message")
}

// VerifyBot calls getMe and returns the bot username, confirming the token is
// valid and the API reachable.
func (s *TelegramSender) VerifyBot(ctx context.Context) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("telegram channel disabled: no bot token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.methodURL("getMe"), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("getMe: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		OK     bool `json:"ok"`
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("getMe: decode: %w", err)
	}
	if !payload.OK {
		return "", fmt.Errorf("getMe: %s", payload.Description)
	}
	return payload.Result.Username, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func eligibleRecipients(recipients []models.Recipient) []models.Recipient {
	var out []models.Recipient
	for _, r := range recipients {
		if r.TelegramEnable && r.TelegramChatID != "" {
			out = append(out, r)
		}
	}
	return out
}

func (s *TelegramSender) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", s.baseURL, s.token, method)
}

func (s *TelegramSender) sendMessage(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("sendMessage: decode: %w", err)
	}
	if !payload.OK {
		return fmt.Errorf("sendMessage: %s", payload.Description)
	}
	return nil
}

// telegramText renders the per-recipient message body with the Bot API's HTML
// markup.
func telegramText(summaries []models.DeviceSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ <b>%d critical device(s) offline</b>\n\n", len(summaries))
	for _, sum := range summaries {
		fmt.Fprintf(&b, "<b>%s</b> (%s)\n", sum.Code, sum.IP)
		fmt.Fprintf(&b, "down %s · %d meters · %s\n\n", sum.Downtime, sum.MeterCount, sum.Portions)
	}
	return strings.TrimRight(b.String(), "\n")
}
