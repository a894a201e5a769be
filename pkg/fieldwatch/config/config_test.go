package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qawaq/fieldwatch/pkg/fieldwatch/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Workers != 50 {
		t.Errorf("Workers = %d, want 50", s.Workers)
	}
	if s.QueueSize != 100 {
		t.Errorf("QueueSize = %d, want 100", s.QueueSize)
	}
	if s.SMTP.Port != 25 {
		t.Errorf("SMTP.Port = %d, want 25", s.SMTP.Port)
	}
	if s.Telegram.APIBaseURL != "https://api.telegram.org" {
		t.Errorf("APIBaseURL = %q", s.Telegram.APIBaseURL)
	}
}

func TestLoadParsesAndFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldwatch.yml")
	body := `
database_dsn: postgres://fieldwatch@db/fieldwatch
workers: 8
smtp:
  host: mail.example.net
  from: monitor@example.net
  admin_recipients:
    - noc@example.net
    - ops@example.net
telegram:
  bot_token: "123:abc"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DatabaseDSN != "postgres://fieldwatch@db/fieldwatch" {
		t.Errorf("DatabaseDSN = %q", s.DatabaseDSN)
	}
	if s.Workers != 8 {
		t.Errorf("Workers = %d, want 8", s.Workers)
	}
	if s.QueueSize != 16 {
		t.Errorf("QueueSize = %d, want 16 (2x workers)", s.QueueSize)
	}
	if got := s.SMTP.Addr(); got != "mail.example.net:25" {
		t.Errorf("SMTP.Addr() = %q", got)
	}
	if len(s.SMTP.AdminRecipients) != 2 {
		t.Errorf("AdminRecipients = %v", s.SMTP.AdminRecipients)
	}
	if s.Telegram.BotToken != "123:abc" {
		t.Errorf("BotToken = %q", s.Telegram.BotToken)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("workers: [not a number"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
}
