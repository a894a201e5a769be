// Package telemetry exposes Prometheus instrumentation for the monitoring
// core. All helpers are nil-receiver safe so callers can run without metrics
// configured.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the registry and every instrument used by the core.
type Metrics struct {
	registry *prometheus.Registry

	ChecksTotal        *prometheus.CounterVec
	ProbeDuration      prometheus.Histogram
	AlertCyclesTotal   prometheus.Counter
	NotificationsTotal *prometheus.CounterVec
	DevicesOnline      prometheus.Gauge
}

// New creates the instrument set on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldwatch_checks_total",
			Help: "Availability checks executed, by target kind and resulting status.",
		}, []string{"kind", "status"}),
		ProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldwatch_probe_seconds",
			Help:    "Wall time of a full per-target check including retries.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		}),
		AlertCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldwatch_alert_cycles_total",
			Help: "Alert engine invocations.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldwatch_notifications_total",
			Help: "Notification sends, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		DevicesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldwatch_devices_online",
			Help: "Devices currently marked online.",
		}),
	}
	m.registry.MustRegister(
		m.ChecksTotal,
		m.ProbeDuration,
		m.AlertCyclesTotal,
		m.NotificationsTotal,
		m.DevicesOnline,
	)
	return m
}

// ObserveCheck records one completed check.
func (m *Metrics) ObserveCheck(kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(kind, status).Inc()
	m.ProbeDuration.Observe(elapsed.Seconds())
}

// ObserveAlertCycle records one alert engine invocation.
func (m *Metrics) ObserveAlertCycle() {
	if m == nil {
		return
	}
	m.AlertCyclesTotal.Inc()
}

// ObserveNotification records one channel outcome.
func (m *Metrics) ObserveNotification(channel, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(channel, outcome).Inc()
}

// SetDevicesOnline updates the online gauge.
func (m *Metrics) SetDevicesOnline(n int) {
	if m == nil {
		return
	}
	m.DevicesOnline.Set(float64(n))
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics listener on addr until ctx is cancelled. Errors are
// logged, never fatal: metrics are best-effort.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) {
	if m == nil || addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info("telemetry: metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("telemetry: metrics listener failed", "error", err.Error())
	}
}
