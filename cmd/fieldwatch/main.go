// Command fieldwatch is the availability monitor daemon.
//
// It loads YAML configuration (path from -config or FIELDWATCH_CONFIG), wires
// the monitoring components, and runs until interrupted (SIGINT / SIGTERM).
// A handful of flags turn it into a one-shot diagnostic tool instead: probe a
// single device, run an alert cycle, or test a notification channel.
//
// Usage:
//
//	fieldwatch [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/app"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fieldwatch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	var (
		cfgPath  string
		logLevel string
		logFmt   string

		probeCode    string
		alertNow     bool
		verifyBot    bool
		testChatID   string
		testEmailFlg bool
	)

	flag.StringVar(&cfgPath, "config", "", "Path to the YAML config file (default: $FIELDWATCH_CONFIG or /etc/fieldwatch/fieldwatch.yml)")
	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")

	flag.StringVar(&probeCode, "probe", "", "Probe one device by code, print the result, and exit")
	flag.BoolVar(&alertNow, "alert-now", false, "Run one alert cycle immediately and exit")
	flag.BoolVar(&verifyBot, "verify-bot", false, "Verify the Telegram bot token and exit")
	flag.StringVar(&testChatID, "test-telegram", "", "Send a test Telegram message to the given chat id and exit")
	flag.BoolVar(&testEmailFlg, "test-email", false, "Send a test email to the operator list and exit")

	flag.Parse()

	// ── Logger ───────────────────────────────────────────────────────────
	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}

	// ── Config ───────────────────────────────────────────────────────────
	path := config.PathFromEnv(cfgPath)
	settings, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	// ── Build App ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer application.Stop()

	// ── One-shot modes ───────────────────────────────────────────────────
	switch {
	case probeCode != "":
		return probeOnce(ctx, application, probeCode)
	case alertNow:
		return alertOnce(ctx, application)
	case verifyBot:
		name, err := application.VerifyTelegram(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("bot verified: @%s\n", name)
		return nil
	case testChatID != "":
		if err := application.SendTestTelegram(ctx, testChatID); err != nil {
			return err
		}
		fmt.Printf("test message sent to chat %s\n", testChatID)
		return nil
	case testEmailFlg:
		result := application.SendTestEmail(ctx)
		if !result.Success {
			return fmt.Errorf("test email failed: %s", result.Error)
		}
		fmt.Printf("test email sent to %d recipient(s)\n", result.SentCount)
		return nil
	}

	// ── Daemon mode ──────────────────────────────────────────────────────
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	logger.Info("fieldwatch: running, press Ctrl-C to stop")

	<-ctx.Done()
	logger.Info("fieldwatch: received shutdown signal")
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// One-shot helpers
// ─────────────────────────────────────────────────────────────────────────────

func probeOnce(ctx context.Context, application *app.App, code string) error {
	rec, err := application.ProbeDevice(ctx, code)
	if err != nil {
		return fmt.Errorf("probe %s: %w", code, err)
	}
	if rec.LatencyMS != nil {
		fmt.Printf("%s: %s latency=%.1fms\n", code, rec.Status, *rec.LatencyMS)
	} else {
		fmt.Printf("%s: %s loss=%.0f%%\n", code, rec.Status, rec.PacketLoss)
	}
	return nil
}

func alertOnce(ctx context.Context, application *app.App) error {
	report, err := application.RunAlertCheck(ctx)
	if err != nil {
		return fmt.Errorf("alert check: %w", err)
	}

	fmt.Printf("report %s\n", report.ID)
	fmt.Printf("critical devices: %d, offline past threshold: %d\n",
		report.CriticalCount, report.OfflineCriticalCount)
	for _, code := range report.DeviceCodes {
		fmt.Printf("  - %s\n", code)
	}
	if report.OfflineCriticalCount == 0 {
		return nil
	}

	// Per-channel outcomes, so partial failures are visible without log access.
	printChannel("email", report.Email)
	printChannel("telegram", report.Telegram)
	return nil
}

func printChannel(name string, result models.ChannelResult) {
	if result.Success {
		fmt.Printf("%s: sent %d/%d\n", name, result.SentCount, result.TotalRecipients)
	} else if result.Error != "" {
		fmt.Printf("%s: failed: %s\n", name, result.Error)
	} else {
		fmt.Printf("%s: sent %d, failed %d of %d\n", name, result.SentCount, result.FailedCount, result.TotalRecipients)
	}
	for _, e := range result.Errors {
		fmt.Printf("  %s\n", e)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}
