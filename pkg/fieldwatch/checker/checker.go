// Package checker executes per-target availability checks and owns the
// online/offline evaluation rules.
//
// Within one device's check the steps run strictly in order: probe →
// evaluate → record history → update cached state. Across devices there is no
// ordering at all; the worker pool runs checks concurrently and the scheduler
// guarantees each target is checked at most once per cycle.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/probe"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/telemetry"
)

// ─────────────────────────────────────────────────────────────────────────────
// Pure status evaluation
// ─────────────────────────────────────────────────────────────────────────────

// Evaluate reports whether a device counts as online right now, with a
// diagnostic reason. It is a pure function of LastSeen, the device's medium,
// the config snapshot, and now — it must give the same answer whether called
// from the scheduler or from an ad hoc read, and must not depend on the
// cached IsOnline flag being fresh.
func Evaluate(dev models.Device, cfg models.GlobalConfig, now time.Time) (bool, string) {
	if dev.LastSeen == nil {
		return false, "never seen"
	}
	threshold := cfg.ThresholdFor(dev.Medium)
	elapsed := now.Sub(*dev.LastSeen)
	if elapsed > threshold {
		return false, fmt.Sprintf("timeout (%ds > %ds)",
			int(elapsed.Seconds()), int(threshold.Seconds()))
	}
	return true, "online"
}

// ─────────────────────────────────────────────────────────────────────────────
// Journal hook
// ─────────────────────────────────────────────────────────────────────────────

// Recorder receives a copy of every history record written by a check.
// Implemented by the journal package; nil disables journaling.
type Recorder interface {
	Record(rec models.HistoryRecord) error
}

// ─────────────────────────────────────────────────────────────────────────────
// DeviceChecker
// ─────────────────────────────────────────────────────────────────────────────

// deviceStore is the slice of store.Store a device check needs.
type deviceStore interface {
	store.DeviceStore
	store.HistoryStore
}

// DeviceChecker runs availability checks against field devices.
type DeviceChecker struct {
	store   deviceStore
	pinger  probe.Pinger
	journal Recorder
	telem   *telemetry.Metrics
	logger  *slog.Logger

	now func() time.Time
}

// NewDeviceChecker wires a checker. journal and telem may be nil.
func NewDeviceChecker(st deviceStore, pinger probe.Pinger, journal Recorder, telem *telemetry.Metrics, logger *slog.Logger) *DeviceChecker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &DeviceChecker{
		store:   st,
		pinger:  pinger,
		journal: journal,
		telem:   telem,
		logger:  logger,
		now:     time.Now,
	}
}

// Check runs one scheduled availability check for the device identified by
// code, using the config snapshot handed down by the scheduler.
//
// Inactive and in-maintenance devices are skipped entirely: no probe, no
// history row, no state change. A missing device returns store.ErrNotFound;
// the caller logs it and proceeds with the rest of the cycle.
func (c *DeviceChecker) Check(ctx context.Context, code string, cfg models.GlobalConfig) error {
	dev, err := c.store.GetDevice(ctx, code)
	if err != nil {
		return err
	}
	if !dev.Eligible() {
		c.logger.Debug("checker: skipping ineligible device", "device", dev.Code, "state", dev.State)
		return nil
	}

	started := c.now()
	policy := probe.DefaultRetryPolicy(cfg.RetryCount)
	latency := policy.Run(ctx, c.pinger, dev.IP)

	status := models.StatusTimeout
	if latency != nil {
		status = models.StatusOnline
	}
	if err := c.finish(ctx, dev, latency, status); err != nil {
		return err
	}
	c.telem.ObserveCheck("device", string(status), c.now().Sub(started))
	return nil
}

// ProbeNow is the operator-triggered single probe: one attempt, no retries,
// immediate history write, used by the interactive diagnostic command. A
// failure records the explicit OFFLINE status rather than TIMEOUT. Probing a
// device in maintenance records a MAINTENANCE row without touching the
// network.
func (c *DeviceChecker) ProbeNow(ctx context.Context, code string) (models.HistoryRecord, error) {
	dev, err := c.store.GetDevice(ctx, code)
	if err != nil {
		return models.HistoryRecord{}, err
	}

	if dev.InMaintenance || dev.State == models.StateMaintenance {
		rec := models.HistoryRecord{
			DeviceCode: dev.Code,
			Timestamp:  c.now(),
			Status:     models.StatusMaintenance,
		}
		if err := c.store.AppendHistory(ctx, rec); err != nil {
			return rec, err
		}
		c.record(rec)
		return rec, nil
	}

	latency, _ := c.pinger.Ping(ctx, dev.IP, 2*time.Second)
	status := models.StatusOffline
	if latency != nil {
		status = models.StatusOnline
	}
	if err := c.finish(ctx, dev, latency, status); err != nil {
		return models.HistoryRecord{}, err
	}

	rec, err := c.store.LatestHistory(ctx, dev.Code)
	if err != nil {
		return models.HistoryRecord{}, err
	}
	return rec, nil
}

// finish writes the history row and updates the device's cached state.
// LastSeen advances only on success; IsOnline always reflects this check.
func (c *DeviceChecker) finish(ctx context.Context, dev models.Device, latency *float64, status models.CheckStatus) error {
	now := c.now()
	rec := models.HistoryRecord{
		DeviceCode: dev.Code,
		Timestamp:  now,
		LatencyMS:  latency,
		Status:     status,
		PacketLoss: 100,
	}
	online := status == models.StatusOnline
	if online {
		rec.PacketLoss = 0
	}

	if err := c.store.AppendHistory(ctx, rec); err != nil {
		return fmt.Errorf("checker: record history %s: %w", dev.Code, err)
	}
	c.record(rec)

	var lastSeen *time.Time
	if online {
		lastSeen = &now
	}
	if err := c.store.UpdateDeviceStatus(ctx, dev.Code, lastSeen, online); err != nil {
		return fmt.Errorf("checker: update device %s: %w", dev.Code, err)
	}

	c.logger.Debug("checker: device checked",
		"device", dev.Code,
		"status", string(status),
		"latency_ms", latencyValue(latency),
	)
	return nil
}

func (c *DeviceChecker) record(rec models.HistoryRecord) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(rec); err != nil {
		c.logger.Warn("checker: journal write failed", "device", rec.DeviceCode, "error", err.Error())
	}
}

func latencyValue(l *float64) float64 {
	if l == nil {
		return -1
	}
	return *l
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
