// Package store defines the persistence contracts consumed by the monitoring
// core. Implementations must support concurrent writes of distinct devices'
// state and history rows; the scheduler guarantees no two workers ever write
// the same device concurrently within a cycle.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/qawaq/fieldwatch/models"
)

// ErrNotFound reports a lookup for an entity that does not exist (e.g. a
// probe requested for a deleted device). It must not crash the scheduler loop
// for other devices.
var ErrNotFound = errors.New("store: not found")

// DeviceStore provides device reads and monitoring-state writes. CRUD beyond
// this surface belongs to the management layer, not the core.
type DeviceStore interface {
	ListDevices(ctx context.Context) ([]models.Device, error)

	// ListEligibleDevices returns devices with state ACTIVE and the
	// maintenance flag clear — the scheduled polling population.
	ListEligibleDevices(ctx context.Context) ([]models.Device, error)

	GetDevice(ctx context.Context, code string) (models.Device, error)

	// UpdateDeviceStatus writes the cached online flag and, when lastSeen is
	// non-nil, advances the last-seen timestamp. Implementations must never
	// move LastSeen backward and never clear it.
	UpdateDeviceStatus(ctx context.Context, code string, lastSeen *time.Time, online bool) error
}

// ServerStore is the analogous surface for infrastructure servers.
type ServerStore interface {
	ListServers(ctx context.Context) ([]models.Server, error)
	GetServer(ctx context.Context, code string) (models.Server, error)
	UpdateServerStatus(ctx context.Context, code string, lastSeen *time.Time, online bool) error

	// UpdateServerMetrics overwrites the metric fields whose Has* flags are
	// set. Fields the collector did not return are left untouched.
	UpdateServerMetrics(ctx context.Context, code string, m models.ServerMetrics) error
}

// HistoryStore is the append-only availability ledger.
type HistoryStore interface {
	AppendHistory(ctx context.Context, rec models.HistoryRecord) error
	LatestHistory(ctx context.Context, deviceCode string) (models.HistoryRecord, error)

	// HistoryByDevice returns all records for a device in ascending
	// timestamp order.
	HistoryByDevice(ctx context.Context, deviceCode string) ([]models.HistoryRecord, error)
}

// ConfigStore holds the GlobalConfig singleton.
type ConfigStore interface {
	// LoadConfig returns the singleton, lazily creating it with hard-coded
	// defaults on first access — never a hard failure for a missing row.
	LoadConfig(ctx context.Context) (models.GlobalConfig, error)

	SaveConfig(ctx context.Context, cfg models.GlobalConfig) error
}

// MeterStore exposes the metering-point associations that drive equipment
// criticality. The criticality predicate is recomputed on every alert cycle,
// never cached, because portion assignments change independently.
type MeterStore interface {
	CountMetersByDevice(ctx context.Context, deviceCode string) (int, error)

	// PortionsByDevice returns the distinct non-empty billing portions among
	// the device's meters.
	PortionsByDevice(ctx context.Context, deviceCode string) ([]string, error)

	// DeviceCodesWithBilledMeters returns codes of devices serving at least
	// one meter tied to a billing portion.
	DeviceCodesWithBilledMeters(ctx context.Context) ([]string, error)
}

// RecipientStore lists notification recipients, consumed read-only once per
// alert cycle.
type RecipientStore interface {
	ListRecipients(ctx context.Context) ([]models.Recipient, error)
}

// Store is the full persistence surface consumed by the application wiring.
type Store interface {
	DeviceStore
	ServerStore
	HistoryStore
	ConfigStore
	MeterStore
	RecipientStore
}
