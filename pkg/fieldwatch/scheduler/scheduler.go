package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/telemetry"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/worker"
)

// ─────────────────────────────────────────────────────────────────────────────
// Collaborator interfaces — for dependency injection
// ─────────────────────────────────────────────────────────────────────────────

// JobSubmitter is the subset of worker.Pool consumed by the scheduler. Using
// an interface lets tests inject a mock without importing the full pool.
type JobSubmitter interface {
	TrySubmit(worker.Job) bool
}

// AlertRunner runs one alert evaluation cycle. Implemented by alert.Engine.
type AlertRunner interface {
	CheckAndAlert(ctx context.Context) (models.AlertReport, error)
}

// inventory is the slice of the store the scheduler reads each tick.
type inventory interface {
	store.DeviceStore
	store.ServerStore
	store.ConfigStore
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

// Scheduler drives the two periodic loops: the availability sweep, which
// enqueues one check job per eligible device and server, and the alert cycle.
// Both intervals come from the stored operating config and are re-read every
// tick, so operators can retune without a restart.
type Scheduler struct {
	store  inventory
	pool   JobSubmitter
	alerts AlertRunner
	telem  *telemetry.Metrics
	logger *slog.Logger

	done chan struct{}
}

// New creates a Scheduler. It does not start automatically — call Start.
// alerts and telem may be nil.
func New(st inventory, pool JobSubmitter, alerts AlertRunner, telem *telemetry.Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Scheduler{
		store:  st,
		pool:   pool,
		alerts: alerts,
		telem:  telem,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start runs both loops. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sweepLoop(ctx)
	}()
	if s.alerts != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.alertLoop(ctx)
		}()
	}
	wg.Wait()
}

// Stop waits for the loops to exit. The caller must cancel the context passed
// to Start before calling Stop.
func (s *Scheduler) Stop() {
	<-s.done
}

// ─────────────────────────────────────────────────────────────────────────────
// Availability sweep
// ─────────────────────────────────────────────────────────────────────────────

// sweepLoop fires a sweep immediately, then every PollInterval. The interval
// is re-read from the config store after each sweep.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	for {
		interval := s.sweep(ctx)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// sweep takes one config snapshot, enqueues a job per eligible device and per
// server, and returns the interval until the next sweep. Every job in a sweep
// carries the same snapshot.
func (s *Scheduler) sweep(ctx context.Context) time.Duration {
	cfg, err := s.store.LoadConfig(ctx)
	if err != nil {
		s.logger.Error("scheduler: config load failed", "error", err.Error())
		return models.DefaultGlobalConfig().PollInterval()
	}

	devices, err := s.store.ListEligibleDevices(ctx)
	if err != nil {
		s.logger.Error("scheduler: device list failed", "error", err.Error())
		return cfg.PollInterval()
	}
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		s.logger.Error("scheduler: server list failed", "error", err.Error())
		servers = nil
	}

	submitted, dropped := 0, 0
	for _, dev := range devices {
		if s.submit(worker.Job{Kind: "device", Code: dev.Code, Config: cfg}) {
			submitted++
		} else {
			dropped++
		}
	}
	for _, srv := range servers {
		if s.submit(worker.Job{Kind: "server", Code: srv.Code, Config: cfg}) {
			submitted++
		} else {
			dropped++
		}
	}

	s.updateOnlineGauge(ctx)

	s.logger.Debug("scheduler: sweep complete",
		"devices", len(devices),
		"servers", len(servers),
		"submitted", submitted,
		"dropped", dropped,
	)
	return cfg.PollInterval()
}

// submit enqueues without blocking. A full queue means the workers are behind;
// dropping the check is safer than stalling the sweep, the next tick retries.
func (s *Scheduler) submit(job worker.Job) bool {
	if !s.pool.TrySubmit(job) {
		s.logger.Warn("scheduler: job queue full, dropping check",
			"kind", job.Kind,
			"code", job.Code,
		)
		return false
	}
	return true
}

func (s *Scheduler) updateOnlineGauge(ctx context.Context) {
	if s.telem == nil {
		return
	}
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return
	}
	online := 0
	for _, dev := range devices {
		if dev.IsOnline {
			online++
		}
	}
	s.telem.SetDevicesOnline(online)
}

// ─────────────────────────────────────────────────────────────────────────────
// Alert cycle
// ─────────────────────────────────────────────────────────────────────────────

// alertLoop waits one AlertInterval before the first cycle, so a restart does
// not immediately re-notify about outages the previous run already reported.
func (s *Scheduler) alertLoop(ctx context.Context) {
	for {
		interval := s.alertInterval(ctx)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		report, err := s.alerts.CheckAndAlert(ctx)
		if err != nil {
			s.logger.Error("scheduler: alert cycle failed", "error", err.Error())
			continue
		}
		s.logger.Info("scheduler: alert cycle complete",
			"report_id", report.ID,
			"critical", report.CriticalCount,
			"offline_critical", report.OfflineCriticalCount,
			"alert_sent", report.AlertSent,
		)
	}
}

func (s *Scheduler) alertInterval(ctx context.Context) time.Duration {
	cfg, err := s.store.LoadConfig(ctx)
	if err != nil {
		s.logger.Error("scheduler: config load failed", "error", err.Error())
		return models.DefaultGlobalConfig().AlertInterval()
	}
	return cfg.AlertInterval()
}

// ─────────────────────────────────────────────────────────────────────────────
// noopWriter — discard log output when no logger is provided
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
