package models

import "time"

// ChannelResult is the per-channel outcome of one notification fan-out.
// Counts are per recipient. The email channel sends a single message, so its
// counts move together: all recipients sent or all failed.
type ChannelResult struct {
	Success         bool     `json:"success"`
	SentCount       int      `json:"sent_count"`
	FailedCount     int      `json:"failed_count"`
	TotalRecipients int      `json:"total_recipients"`
	Errors          []string `json:"errors,omitempty"`

	// Error carries a channel-level condition such as "disabled" or the
	// transport failure message. Per-recipient failures go in Errors.
	Error string `json:"error,omitempty"`
}

// DeviceSummary is the pre-built per-device alert payload handed to both
// notification channels. Channel-specific formatting (HTML vs message markup)
// happens inside each channel, never here.
type DeviceSummary struct {
	Code string `json:"code"`
	IP   string `json:"ip"`

	// Downtime is the formatted offline duration, e.g. "1h 5m".
	Downtime string `json:"downtime"`

	// MeterCount is the number of metering points served by the device.
	MeterCount int `json:"meter_count"`

	// Portions is the comma-joined list of distinct affected billing
	// portions, or "N/A" when none.
	Portions string `json:"portions"`
}

// AlertReport is the first-class result of one alert cycle. It is consumed by
// the scheduling layer, by the operator CLI, and by tests alike.
type AlertReport struct {
	ID        string    `json:"id"`
	CheckedAt time.Time `json:"checked_at"`

	CriticalCount        int `json:"critical_count"`
	OfflineCriticalCount int `json:"offline_critical_count"`

	// DeviceCodes lists the affected devices, empty when nothing was offline.
	DeviceCodes []string `json:"device_codes,omitempty"`

	AlertSent bool          `json:"alert_sent"`
	Email     ChannelResult `json:"email"`
	Telegram  ChannelResult `json:"telegram"`
}
