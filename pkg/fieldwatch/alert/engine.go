package alert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/telemetry"
)

// ─────────────────────────────────────────────────────────────────────────────
// Engine — critical-device alert cycle
// ─────────────────────────────────────────────────────────────────────────────

// Notifier delivers one alert to both channels. Implemented by
// notify.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, summaries []models.DeviceSummary, recipients []models.Recipient) (email, telegram models.ChannelResult)
}

// engineStore is the slice of the store one alert cycle reads.
type engineStore interface {
	store.DeviceStore
	store.ConfigStore
	store.MeterStore
	store.RecipientStore
}

// Engine runs alert cycles. A device is critical when it has billed meter
// points or carries a pilot annotation. A critical device alerts once it has
// been offline longer than the configured threshold.
//
// The engine is stateless between cycles: two cycles over the same outage
// produce two notifications. Suppression is the operator's job via the alert
// interval, not the engine's.
type Engine struct {
	store    engineStore
	notifier Notifier
	telem    *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New wires an engine. notifier may be nil, which turns cycles into dry runs
// that still produce reports. telem may be nil.
func New(st engineStore, notifier Notifier, telem *telemetry.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		store:    st,
		notifier: notifier,
		telem:    telem,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckAndAlert runs one cycle: resolve the critical set, find the members
// offline past the threshold, and dispatch notifications when any exist.
func (e *Engine) CheckAndAlert(ctx context.Context) (models.AlertReport, error) {
	started := e.now()
	report := models.AlertReport{
		ID:        uuid.NewString(),
		CheckedAt: started,
	}

	cfg, err := e.store.LoadConfig(ctx)
	if err != nil {
		return report, fmt.Errorf("alert: load config: %w", err)
	}

	critical, err := e.criticalDevices(ctx)
	if err != nil {
		return report, err
	}
	report.CriticalCount = len(critical)

	threshold := cfg.AlertOfflineThreshold()
	var offline []models.Device
	for _, dev := range critical {
		if e.offlinePastThreshold(dev, threshold, started) {
			offline = append(offline, dev)
		}
	}
	report.OfflineCriticalCount = len(offline)
	for _, dev := range offline {
		report.DeviceCodes = append(report.DeviceCodes, dev.Code)
	}

	defer e.telem.ObserveAlertCycle()

	if len(offline) == 0 {
		e.logger.Debug("alert: all critical devices reachable", "critical", report.CriticalCount)
		return report, nil
	}

	summaries, err := e.summarize(ctx, offline, started)
	if err != nil {
		return report, err
	}

	e.logger.Warn("alert: critical devices offline",
		"report_id", report.ID,
		"count", len(summaries),
		"devices", strings.Join(report.DeviceCodes, ","),
	)

	if e.notifier == nil {
		return report, nil
	}

	recipients, err := e.store.ListRecipients(ctx)
	if err != nil {
		return report, fmt.Errorf("alert: load recipients: %w", err)
	}

	report.Email, report.Telegram = e.notifier.Dispatch(ctx, summaries, recipients)
	report.AlertSent = report.Email.Success || report.Telegram.Success
	e.observeChannel("email", report.Email)
	e.observeChannel("telegram", report.Telegram)

	return report, nil
}

// criticalDevices returns the union of billed-meter devices and pilot-annotated
// devices, sorted by code for stable notification ordering.
func (e *Engine) criticalDevices(ctx context.Context) ([]models.Device, error) {
	billed, err := e.store.DeviceCodesWithBilledMeters(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert: billed meter lookup: %w", err)
	}
	codes := make(map[string]struct{}, len(billed))
	for _, code := range billed {
		codes[code] = struct{}{}
	}

	devices, err := e.store.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("alert: list devices: %w", err)
	}

	var critical []models.Device
	for _, dev := range devices {
		_, hasMeters := codes[dev.Code]
		if hasMeters || dev.Pilot != "" {
			critical = append(critical, dev)
		}
	}
	sort.Slice(critical, func(i, j int) bool { return critical[i].Code < critical[j].Code })
	return critical, nil
}

// offlinePastThreshold reports whether dev has been unreachable long enough to
// alert. A device that has never been seen has no downtime reference and is
// left to the inventory review instead of the alert channel.
func (e *Engine) offlinePastThreshold(dev models.Device, threshold time.Duration, now time.Time) bool {
	if dev.IsOnline || dev.LastSeen == nil {
		return false
	}
	return now.Sub(*dev.LastSeen) > threshold
}

// summarize builds one DeviceSummary per offline device, pulling the meter
// count and affected portions for the notification body.
func (e *Engine) summarize(ctx context.Context, offline []models.Device, now time.Time) ([]models.DeviceSummary, error) {
	summaries := make([]models.DeviceSummary, 0, len(offline))
	for _, dev := range offline {
		count, err := e.store.CountMetersByDevice(ctx, dev.Code)
		if err != nil {
			return nil, fmt.Errorf("alert: meter count for %s: %w", dev.Code, err)
		}
		portions, err := e.store.PortionsByDevice(ctx, dev.Code)
		if err != nil {
			return nil, fmt.Errorf("alert: portions for %s: %w", dev.Code, err)
		}
		portionText := "N/A"
		if len(portions) > 0 {
			portionText = strings.Join(portions, ", ")
		}
		summaries = append(summaries, models.DeviceSummary{
			Code:       dev.Code,
			IP:         dev.IP,
			Downtime:   FormatDowntime(now.Sub(*dev.LastSeen)),
			MeterCount: count,
			Portions:   portionText,
		})
	}
	return summaries, nil
}

func (e *Engine) observeChannel(channel string, result models.ChannelResult) {
	outcome := "sent"
	if !result.Success {
		outcome = "failed"
	}
	e.telem.ObserveNotification(channel, outcome)
}

// FormatDowntime renders a duration as hours and minutes, the shape operators
// read in alert bodies. Sub-minute outages render as "0h 0m".
func FormatDowntime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Minutes())
	return fmt.Sprintf("%dh %dm", total/60, total%60)
}
