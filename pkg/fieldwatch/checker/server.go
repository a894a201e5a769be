package checker

import (
	"context"
	"log/slog"
	"time"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/probe"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/telemetry"
)

// MetricsCollector fetches one cycle of system metrics from a server.
// Implemented by the sysmetrics package.
type MetricsCollector interface {
	Collect(ctx context.Context, host string, creds models.SNMPCredentials) (models.ServerMetrics, error)
}

// ServerChecker runs ping + metrics checks against infrastructure servers.
// Servers are polled unconditionally — there is no lifecycle state to skip.
type ServerChecker struct {
	store     store.ServerStore
	pinger    probe.Pinger
	collector MetricsCollector
	telem     *telemetry.Metrics
	logger    *slog.Logger

	now func() time.Time
}

// NewServerChecker wires a server checker. collector and telem may be nil.
func NewServerChecker(st store.ServerStore, pinger probe.Pinger, collector MetricsCollector, telem *telemetry.Metrics, logger *slog.Logger) *ServerChecker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &ServerChecker{
		store:     st,
		pinger:    pinger,
		collector: collector,
		telem:     telem,
		logger:    logger,
		now:       time.Now,
	}
}

// Check pings the server and, on success with an SNMP username configured,
// collects system metrics. Metrics are best-effort: any collection error is
// logged and the server's online state stands as determined by the ping.
func (c *ServerChecker) Check(ctx context.Context, code string, cfg models.GlobalConfig) error {
	srv, err := c.store.GetServer(ctx, code)
	if err != nil {
		return err
	}

	started := c.now()
	policy := probe.DefaultRetryPolicy(cfg.RetryCount)
	latency := policy.Run(ctx, c.pinger, srv.IP)
	online := latency != nil

	var lastSeen *time.Time
	status := models.StatusTimeout
	if online {
		now := c.now()
		lastSeen = &now
		status = models.StatusOnline
	}
	if err := c.store.UpdateServerStatus(ctx, code, lastSeen, online); err != nil {
		return err
	}
	c.telem.ObserveCheck("server", string(status), c.now().Sub(started))

	if !online || c.collector == nil || cfg.SNMP.Username == "" {
		return nil
	}

	m, err := c.collector.Collect(ctx, srv.IP, cfg.SNMP)
	if err != nil {
		// Aborts this cycle's metrics update only.
		c.logger.Warn("checker: server metrics collection failed",
			"server", srv.Code, "error", err.Error())
		return nil
	}
	if err := c.store.UpdateServerMetrics(ctx, code, m); err != nil {
		c.logger.Warn("checker: server metrics write failed",
			"server", srv.Code, "error", err.Error())
	}
	return nil
}
