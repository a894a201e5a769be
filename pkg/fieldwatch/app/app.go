// Package app wires the fieldwatch components together and manages their
// lifecycle.
//
// Check path:
//
//	Scheduler → Pool → jobRunner → DeviceChecker / ServerChecker →
//	Store + Journal
//
// Alert path (parallel, on its own interval):
//
//	Scheduler → alert.Engine → notify.Dispatcher → SMTP / Bot API
//
// The same components also back the one-shot operator commands (probe-now,
// alert-now, channel tests), so a diagnostic run and the daemon share wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/alert"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/checker"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/config"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/journal"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/notify"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/probe"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/scheduler"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store/memory"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store/postgres"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/sysmetrics"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/telemetry"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/worker"
)

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App owns every component. Create one with New, run the monitoring loops
// with Start, and shut down with Stop. The one-shot methods (ProbeDevice,
// RunAlertCheck, channel tests) work with or without Start.
type App struct {
	cfg    config.Settings
	logger *slog.Logger

	st    store.Store
	pg    *postgres.Store // nil when running on the in-memory store
	jrnl  *journal.Journal
	telem *telemetry.Metrics

	deviceChecker *checker.DeviceChecker
	serverChecker *checker.ServerChecker
	engine        *alert.Engine
	email         *notify.EmailSender
	telegram      *notify.TelegramSender
	pool          *worker.Pool
	sched         *scheduler.Scheduler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs the full component graph. A non-empty DatabaseDSN selects
// the Postgres store and runs migrations; otherwise everything lives in
// memory, which is only useful for tests and dry runs.
func New(ctx context.Context, cfg config.Settings, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		telem:  telemetry.New(),
	}

	if cfg.DatabaseDSN != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("app: open store: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("app: migrate: %w", err)
		}
		a.pg = pg
		a.st = pg
	} else {
		logger.Warn("app: no database configured, using in-memory store")
		a.st = memory.New()
	}

	if cfg.JournalPath != "" {
		jrnl, err := journal.Open(journal.Config{
			Path:       cfg.JournalPath,
			MaxBytes:   cfg.JournalMaxBytes,
			MaxBackups: cfg.JournalMaxBackups,
		}, logger)
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("app: open journal: %w", err)
		}
		a.jrnl = jrnl
	}

	pinger := probe.NewExecPinger(logger)
	collector := sysmetrics.New(logger)

	var journalRec checker.Recorder
	if a.jrnl != nil {
		journalRec = a.jrnl
	}
	a.deviceChecker = checker.NewDeviceChecker(a.st, pinger, journalRec, a.telem, logger)
	a.serverChecker = checker.NewServerChecker(a.st, pinger, collector, a.telem, logger)

	a.email = notify.NewEmailSender(cfg.SMTP, logger)
	a.telegram = notify.NewTelegramSender(cfg.Telegram, nil, logger)
	dispatcher := notify.NewDispatcher(a.email, a.telegram, logger)
	a.engine = alert.New(a.st, dispatcher, a.telem, logger)

	runner := &jobRunner{app: a}
	a.pool = worker.New(cfg.Workers, cfg.QueueSize, runner, logger)
	a.sched = scheduler.New(a.st, a.pool, a.engine, a.telem, logger)

	return a, nil
}

// Start launches the worker pool, the scheduler loops, and the metrics
// endpoint. The caller must eventually call Stop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.pool.Start(runCtx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sched.Start(runCtx)
	}()

	if a.cfg.MetricsListenAddr != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.telem.Serve(runCtx, a.cfg.MetricsListenAddr, a.logger)
		}()
	}

	a.logger.Info("app: monitoring started",
		"workers", a.cfg.Workers,
		"store", a.storeKind(),
		"journal", a.cfg.JournalPath != "",
		"telegram", a.telegram.Enabled(),
	)
	return nil
}

// Stop performs a graceful shutdown.
//
// Shutdown order:
//  1. Cancel the run context (stops the scheduler loops and metrics server).
//  2. Wait for the scheduler goroutine to exit so nothing new is enqueued.
//  3. Drain the worker pool (in-flight checks complete and their history
//     rows land).
//  4. Close the journal and the database.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")

	// The loops only exist after Start; a one-shot run skips straight to
	// resource cleanup.
	if a.cancel != nil {
		a.cancel()
		a.sched.Stop()
		a.wg.Wait()
		a.pool.Stop()
	}

	if a.jrnl != nil {
		if err := a.jrnl.Close(); err != nil {
			a.logger.Error("app: journal close error", "error", err.Error())
		}
	}
	a.closeStores()

	a.logger.Info("app: shutdown complete")
}

// ─────────────────────────────────────────────────────────────────────────────
// Operator one-shots
// ─────────────────────────────────────────────────────────────────────────────

// ProbeDevice runs a single synchronous probe and returns the history record
// it wrote. Used by the -probe flag for field diagnostics.
func (a *App) ProbeDevice(ctx context.Context, code string) (models.HistoryRecord, error) {
	return a.deviceChecker.ProbeNow(ctx, code)
}

// RunAlertCheck runs one alert cycle immediately, identical to the periodic
// trigger.
func (a *App) RunAlertCheck(ctx context.Context) (models.AlertReport, error) {
	return a.engine.CheckAndAlert(ctx)
}

// VerifyTelegram confirms the bot token against the Bot API and returns the
// bot username.
func (a *App) VerifyTelegram(ctx context.Context) (string, error) {
	return a.telegram.VerifyBot(ctx)
}

// SendTestTelegram delivers a test message to one chat id.
func (a *App) SendTestTelegram(ctx context.Context, chatID string) error {
	return a.telegram.SendTest(ctx, chatID)
}

// SendTestEmail sends a sample alert to the configured operator list so the
// SMTP path can be verified end to end.
func (a *App) SendTestEmail(ctx context.Context) models.ChannelResult {
	return a.email.Send(ctx, []models.DeviceSummary{
		{Code: "TEST-000", IP: "0.0.0.0", Downtime: "0h 0m", MeterCount: 0, Portions: "N/A"},
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) storeKind() string {
	if a.pg != nil {
		return "postgres"
	}
	return "memory"
}

func (a *App) closeStores() {
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.logger.Error("app: store close error", "error", err.Error())
		}
	}
}

// jobRunner routes pool jobs to the matching checker. Check errors other than
// a vanished target are already logged inside the checkers; here we only keep
// the scheduler loop alive.
type jobRunner struct {
	app *App
}

func (r *jobRunner) Run(ctx context.Context, job worker.Job) {
	var err error
	switch job.Kind {
	case "server":
		err = r.app.serverChecker.Check(ctx, job.Code, job.Config)
	default:
		err = r.app.deviceChecker.Check(ctx, job.Code, job.Config)
	}
	if err != nil {
		r.app.logger.Warn("app: check failed",
			"kind", job.Kind,
			"code", job.Code,
			"error", err.Error(),
		)
	}
}
