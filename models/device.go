// Package models defines the core data structures shared across all layers of
// fieldwatch. These types are the canonical in-memory form of all monitored
// state; every other package depends on this package and nothing here depends
// on any other internal package.
package models

import (
	"fmt"
	"time"
)

// Medium is the transport class of a device's connectivity. It selects which
// offline threshold applies when evaluating availability.
type Medium string

const (
	MediumFiber    Medium = "FIBER"
	MediumCellular Medium = "CELLULAR"
)

// DeviceState is the lifecycle state of a device.
type DeviceState string

const (
	StateActive      DeviceState = "ACTIVE"
	StateInactive    DeviceState = "INACTIVE"
	StateMaintenance DeviceState = "MAINTENANCE"
)

// CheckStatus is the outcome of a single availability check.
type CheckStatus string

const (
	StatusOnline CheckStatus = "ONLINE"

	// StatusOffline is written only by operator-triggered single probes.
	// Scheduled checks that fail record StatusTimeout instead.
	StatusOffline CheckStatus = "OFFLINE"

	StatusTimeout     CheckStatus = "TIMEOUT"
	StatusMaintenance CheckStatus = "MAINTENANCE"
)

// Device is a monitored piece of field network equipment (router, collector).
// Code and IP are immutable identity fields, unique across all devices.
//
// IsOnline is a cached derived value; the ground truth is the age of LastSeen
// against the per-medium threshold (see the checker package's Evaluate).
type Device struct {
	Code string `json:"code"`
	IP   string `json:"ip"`

	Brand string `json:"brand,omitempty"`
	Type  string `json:"type,omitempty"`

	State         DeviceState `json:"state"`
	InMaintenance bool        `json:"in_maintenance"`
	Medium        Medium      `json:"medium"`

	// Pilot is a free-form monitoring annotation. A non-empty value marks the
	// device as business-critical regardless of meter associations.
	Pilot string `json:"pilot,omitempty"`

	// LastSeen is the time of the last successful probe. It is never moved
	// backward and never cleared, so an unreachable device still shows when
	// it was last reachable.
	LastSeen *time.Time `json:"last_seen,omitempty"`
	IsOnline bool       `json:"is_online"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Eligible reports whether the device participates in scheduled polling.
func (d Device) Eligible() bool {
	return d.State == StateActive && !d.InMaintenance
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Code, d.IP)
}

// Server is a monitored back-office infrastructure host. Beyond reachability
// it carries the last observed system metrics, overwritten wholesale on each
// successful collection.
type Server struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
	IP   string `json:"ip"`

	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedBytes   uint64  `json:"mem_used_bytes"`
	MemTotalBytes  uint64  `json:"mem_total_bytes"`
	DiskUsedBytes  uint64  `json:"disk_used_bytes"`
	DiskTotalBytes uint64  `json:"disk_total_bytes"`
	Uptime         string  `json:"uptime,omitempty"`

	LastSeen *time.Time `json:"last_seen,omitempty"`
	IsOnline bool       `json:"is_online"`
}

// ServerMetrics is one collection cycle's worth of SNMP readings. The Has*
// flags mark which fields were actually obtained; a parse failure on one
// field must not block persisting the others.
type ServerMetrics struct {
	Uptime    string `json:"uptime,omitempty"`
	HasUptime bool   `json:"-"`

	MemUsedBytes  uint64 `json:"mem_used_bytes,omitempty"`
	MemTotalBytes uint64 `json:"mem_total_bytes,omitempty"`
	HasMemory     bool   `json:"-"`

	// Load1 is the 1-minute load average, displayed as the server's CPU
	// figure on the dashboard.
	Load1   float64 `json:"load1,omitempty"`
	HasLoad bool    `json:"-"`
}

// HistoryRecord is one immutable probe outcome for one device at one point in
// time. Records are append-only; they are never updated or deleted except by
// cascading device deletion. All availability percentages and incident
// timelines are derived by scanning these rows.
type HistoryRecord struct {
	DeviceCode string      `json:"device_code"`
	Timestamp  time.Time   `json:"timestamp"`
	LatencyMS  *float64    `json:"latency_ms,omitempty"`
	Status     CheckStatus `json:"status"`

	// PacketLoss is 0 or 100 in this design: single-probe checks either
	// succeed or fail outright.
	PacketLoss float64 `json:"packet_loss"`
}

// MeterPoint associates a metering point with the device that serves it.
// A non-empty Portion ties the meter to a billing portion, which makes the
// serving device business-critical.
type MeterPoint struct {
	ID         string `json:"id"`
	DeviceCode string `json:"device_code"`
	Portion    string `json:"portion,omitempty"`
}

// Recipient is a user profile consumed read-only by the notification
// dispatcher. The two channel opt-ins are independent.
type Recipient struct {
	Username       string `json:"username"`
	Email          string `json:"email,omitempty"`
	EmailEnabled   bool   `json:"email_enabled"`
	TelegramEnable bool   `json:"telegram_enabled"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}
