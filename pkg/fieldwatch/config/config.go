// Package config provides YAML loading for the fieldwatch process settings.
//
// These are deployment-level settings fixed for the lifetime of the process
// (database DSN, notification transports, worker sizing). Operator-tunable
// monitoring parameters live in models.GlobalConfig and are loaded from the
// store once per scheduler tick — see pkg/fieldwatch/scheduler.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

// SMTPSettings configures the email notification transport.
type SMTPSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`

	// AdminRecipients is the fixed operator address list that receives one
	// message per alert cycle.
	AdminRecipients []string `yaml:"admin_recipients"`
}

// Addr returns the host:port dial address.
func (s SMTPSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TelegramSettings configures the messaging-bot channel. An empty BotToken
// disables the channel globally.
type TelegramSettings struct {
	BotToken string `yaml:"bot_token"`

	// APIBaseURL overrides the Bot API endpoint. Default
	// "https://api.telegram.org". Used by tests.
	APIBaseURL string `yaml:"api_base_url"`
}

// Settings holds the top-level process configuration.
// Zero-value fields fall back to documented defaults.
type Settings struct {
	// DatabaseDSN is the Postgres connection string. Empty selects the
	// in-memory store (useful for diagnostics and tests).
	DatabaseDSN string `yaml:"database_dsn"`

	// Workers is the size of the check worker pool. Default 50.
	Workers int `yaml:"workers"`

	// QueueSize is the capacity of the pending-job queue. Default 2×Workers.
	QueueSize int `yaml:"queue_size"`

	// JournalPath, when non-empty, enables the JSONL check-result journal.
	JournalPath       string `yaml:"journal_path"`
	JournalMaxBytes   int64  `yaml:"journal_max_bytes"`
	JournalMaxBackups int    `yaml:"journal_max_backups"`

	// MetricsListenAddr, when non-empty, serves Prometheus metrics on
	// /metrics at this address.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	SMTP     SMTPSettings     `yaml:"smtp"`
	Telegram TelegramSettings `yaml:"telegram"`
}

func (s *Settings) withDefaults() {
	if s.Workers <= 0 {
		s.Workers = 50
	}
	if s.QueueSize <= 0 {
		s.QueueSize = s.Workers * 2
	}
	if s.JournalMaxBytes <= 0 {
		s.JournalMaxBytes = 32 << 20
	}
	if s.SMTP.Port == 0 {
		s.SMTP.Port = 25
	}
	if s.Telegram.APIBaseURL == "" {
		s.Telegram.APIBaseURL = "https://api.telegram.org"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// DefaultPath is used when no path is given and FIELDWATCH_CONFIG is unset.
const DefaultPath = "/etc/fieldwatch/fieldwatch.yml"

// PathFromEnv resolves the settings file path: explicit argument, then the
// FIELDWATCH_CONFIG environment variable, then DefaultPath.
func PathFromEnv(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if v := os.Getenv("FIELDWATCH_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the settings file at path. A missing file is not an error: the
// returned Settings carry pure defaults, which allows bare diagnostic runs.
func Load(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.withDefaults()
			return s, nil
		}
		return s, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("config: parse %q: %w", path, err)
	}
	s.withDefaults()
	return s, nil
}
