package models

import "time"

// AuthProtocol is the SNMPv3 authentication hash choice.
type AuthProtocol string

const (
	AuthNone AuthProtocol = ""
	AuthMD5  AuthProtocol = "MD5"
	AuthSHA  AuthProtocol = "SHA"
)

// PrivProtocol is the SNMPv3 privacy cipher choice.
type PrivProtocol string

const (
	PrivNone PrivProtocol = ""
	PrivDES  PrivProtocol = "DES"
	PrivAES  PrivProtocol = "AES"
)

// SNMPCredentials is the credential bundle used by the server metrics
// collector. An empty Username disables collection entirely.
type SNMPCredentials struct {
	Username     string       `json:"username" yaml:"username"`
	AuthProtocol AuthProtocol `json:"auth_protocol" yaml:"auth_protocol"`
	AuthKey      string       `json:"-" yaml:"auth_key"`
	PrivProtocol PrivProtocol `json:"priv_protocol" yaml:"priv_protocol"`
	PrivKey      string       `json:"-" yaml:"priv_key"`
	Port         int          `json:"port" yaml:"port"`
}

// GlobalConfig holds the operator-tunable monitoring parameters. It is stored
// as a singleton row, lazily created with defaults on first access, loaded
// once per scheduler tick and handed down the call chain as a snapshot.
// Changes take effect on the next tick, never retroactively.
type GlobalConfig struct {
	// PollIntervalSec is the time between poll cycles, in seconds.
	PollIntervalSec int `json:"poll_interval_sec"`

	// RetryCount is the number of fast retries after a failed first probe.
	RetryCount int `json:"retry_count"`

	// FiberThresholdSec is the LastSeen age beyond which a fiber device is
	// considered offline.
	FiberThresholdSec int `json:"fiber_threshold_sec"`

	// CellularThresholdSec is the same for cellular devices. Intentionally
	// larger than the fiber threshold to absorb cellular jitter.
	CellularThresholdSec int `json:"cellular_threshold_sec"`

	// AlertOfflineThresholdMin is how long (minutes) a critical device must
	// be offline before the alert engine reports it. Distinct from, and
	// typically longer than, the per-medium status thresholds.
	AlertOfflineThresholdMin int `json:"alert_offline_threshold_min"`

	// AlertIntervalMin is the cadence (minutes) of the periodic alert check.
	AlertIntervalMin int `json:"alert_interval_min"`

	SNMP SNMPCredentials `json:"snmp"`
}

// DefaultGlobalConfig returns the hard-coded defaults used when the singleton
// does not exist yet.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		PollIntervalSec:          60,
		RetryCount:               3,
		FiberThresholdSec:        60,
		CellularThresholdSec:     300,
		AlertOfflineThresholdMin: 30,
		AlertIntervalMin:         15,
		SNMP:                     SNMPCredentials{Port: 161},
	}
}

// PollInterval returns the poll cadence as a duration, with the default
// applied when the stored value is unusable.
func (c GlobalConfig) PollInterval() time.Duration {
	if c.PollIntervalSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.PollIntervalSec) * time.Second
}

// AlertInterval returns the alert check cadence as a duration.
func (c GlobalConfig) AlertInterval() time.Duration {
	if c.AlertIntervalMin <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.AlertIntervalMin) * time.Minute
}

// AlertOfflineThreshold returns the minimum offline age for alerting.
func (c GlobalConfig) AlertOfflineThreshold() time.Duration {
	if c.AlertOfflineThresholdMin <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.AlertOfflineThresholdMin) * time.Minute
}

// ThresholdFor returns the offline threshold for the given medium. The medium
// always selects the threshold; there is no shared lower default.
func (c GlobalConfig) ThresholdFor(m Medium) time.Duration {
	if m == MediumCellular {
		return time.Duration(c.CellularThresholdSec) * time.Second
	}
	return time.Duration(c.FiberThresholdSec) * time.Second
}
