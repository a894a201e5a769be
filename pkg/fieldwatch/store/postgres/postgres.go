// Package postgres implements store.Store on PostgreSQL via database/sql and
// the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store"
)

// Store is a Postgres-backed store.Store. Safe for concurrent use; the
// database provides row-level isolation for distinct devices.
type Store struct {
	db *sql.DB
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection (used by tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

var _ store.Store = (*Store)(nil)

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the monitoring tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			code           text PRIMARY KEY,
			ip             text NOT NULL UNIQUE,
			brand          text NOT NULL DEFAULT '',
			type           text NOT NULL DEFAULT '',
			state          text NOT NULL DEFAULT 'ACTIVE',
			in_maintenance boolean NOT NULL DEFAULT false,
			medium         text NOT NULL DEFAULT 'FIBER',
			pilot          text NOT NULL DEFAULT '',
			last_seen      timestamptz,
			is_online      boolean NOT NULL DEFAULT false,
			created_at     timestamptz NOT NULL DEFAULT now(),
			updated_at     timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS servers (
			code             text PRIMARY KEY,
			name             text NOT NULL DEFAULT '',
			ip               text NOT NULL,
			cpu_percent      double precision NOT NULL DEFAULT 0,
			mem_used_bytes   bigint NOT NULL DEFAULT 0,
			mem_total_bytes  bigint NOT NULL DEFAULT 0,
			disk_used_bytes  bigint NOT NULL DEFAULT 0,
			disk_total_bytes bigint NOT NULL DEFAULT 0,
			uptime           text NOT NULL DEFAULT '',
			last_seen        timestamptz,
			is_online        boolean NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS availability_history (
			id          bigserial PRIMARY KEY,
			device_code text NOT NULL REFERENCES devices(code) ON DELETE CASCADE,
			ts          timestamptz NOT NULL,
			latency_ms  double precision,
			status      text NOT NULL,
			packet_loss double precision NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS availability_history_device_ts
			ON availability_history (device_code, ts)`,
		`CREATE TABLE IF NOT EXISTS global_config (
			id                          integer PRIMARY KEY CHECK (id = 1),
			poll_interval_sec           integer NOT NULL,
			retry_count                 integer NOT NULL,
			fiber_threshold_sec         integer NOT NULL,
			cellular_threshold_sec      integer NOT NULL,
			alert_offline_threshold_min integer NOT NULL,
			alert_interval_min          integer NOT NULL,
			snmp_username               text NOT NULL DEFAULT '',
			snmp_auth_protocol          text NOT NULL DEFAULT '',
			snmp_auth_key               text NOT NULL DEFAULT '',
			snmp_priv_protocol          text NOT NULL DEFAULT '',
			snmp_priv_key               text NOT NULL DEFAULT '',
			snmp_port                   integer NOT NULL DEFAULT 161
		)`,
		`CREATE TABLE IF NOT EXISTS meter_points (
			id          text PRIMARY KEY,
			device_code text NOT NULL REFERENCES devices(code) ON DELETE CASCADE,
			portion     text NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			username         text PRIMARY KEY,
			email            text NOT NULL DEFAULT '',
			email_enabled    boolean NOT NULL DEFAULT false,
			telegram_enabled boolean NOT NULL DEFAULT false,
			telegram_chat_id text NOT NULL DEFAULT ''
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// DeviceStore
// ─────────────────────────────────────────────────────────────────────────────

const deviceColumns = `code, ip, brand, type, state, in_maintenance, medium, pilot,
	last_seen, is_online, created_at, updated_at`

func scanDevice(row interface{ Scan(...any) error }) (models.Device, error) {
	var d models.Device
	var lastSeen sql.NullTime
	err := row.Scan(&d.Code, &d.IP, &d.Brand, &d.Type, &d.State, &d.InMaintenance,
		&d.Medium, &d.Pilot, &lastSeen, &d.IsOnline, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastSeen = &t
	}
	return d, nil
}

func (s *Store) listDevices(ctx context.Context, where string) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices `+where+` ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list devices: %w", err)
	}
	defer rows.Close()

	var out []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	return s.listDevices(ctx, "")
}

func (s *Store) ListEligibleDevices(ctx context.Context) ([]models.Device, error) {
	return s.listDevices(ctx, `WHERE state = 'ACTIVE' AND NOT in_maintenance`)
}

func (s *Store) GetDevice(ctx context.Context, code string) (models.Device, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE code = $1`, code)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Device{}, store.ErrNotFound
	}
	if err != nil {
		return models.Device{}, fmt.Errorf("postgres: get device %s: %w", code, err)
	}
	return d, nil
}

func (s *Store) UpdateDeviceStatus(ctx context.Context, code string, lastSeen *time.Time, online bool) error {
	// last_seen is advanced, never moved backward and never cleared.
	res, err := s.db.ExecContext(ctx, `
UPDATE devices SET
	is_online = $2,
	last_seen = CASE
		WHEN $3::timestamptz IS NULL THEN last_seen
		WHEN last_seen IS NULL OR last_seen < $3::timestamptz THEN $3::timestamptz
		ELSE last_seen
	END,
	updated_at = now()
WHERE code = $1`, code, online, nullableTime(lastSeen))
	if err != nil {
		return fmt.Errorf("postgres: update device status %s: %w", code, err)
	}
	return requireRow(res, code)
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func requireRow(res sql.Result, code string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, code)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ServerStore
// ─────────────────────────────────────────────────────────────────────────────

const serverColumns = `code, name, ip, cpu_percent, mem_used_bytes, mem_total_bytes,
	disk_used_bytes, disk_total_bytes, uptime, last_seen, is_online`

func scanServer(row interface{ Scan(...any) error }) (models.Server, error) {
	var srv models.Server
	var lastSeen sql.NullTime
	err := row.Scan(&srv.Code, &srv.Name, &srv.IP, &srv.CPUPercent,
		&srv.MemUsedBytes, &srv.MemTotalBytes, &srv.DiskUsedBytes,
		&srv.DiskTotalBytes, &srv.Uptime, &lastSeen, &srv.IsOnline)
	if err != nil {
		return srv, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		srv.LastSeen = &t
	}
	return srv, nil
}

func (s *Store) ListServers(ctx context.Context) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+serverColumns+` FROM servers ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list servers: %w", err)
	}
	defer rows.Close()

	var out []models.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan server: %w", err)
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

func (s *Store) GetServer(ctx context.Context, code string) (models.Server, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE code = $1`, code)
	srv, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Server{}, store.ErrNotFound
	}
	if err != nil {
		return models.Server{}, fmt.Errorf("postgres: get server %s: %w", code, err)
	}
	return srv, nil
}

func (s *Store) UpdateServerStatus(ctx context.Context, code string, lastSeen *time.Time, online bool) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE servers SET
	is_online = $2,
	last_seen = CASE
		WHEN $3::timestamptz IS NULL THEN last_seen
		WHEN last_seen IS NULL OR last_seen < $3::timestamptz THEN $3::timestamptz
		ELSE last_seen
	END
WHERE code = $1`, code, online, nullableTime(lastSeen))
	if err != nil {
		return fmt.Errorf("postgres: update server status %s: %w", code, err)
	}
	return requireRow(res, code)
}

func (s *Store) UpdateServerMetrics(ctx context.Context, code string, m models.ServerMetrics) error {
	// Only fields the collector returned are overwritten.
	res, err := s.db.ExecContext(ctx, `
UPDATE servers SET
	uptime          = CASE WHEN $2 THEN $3 ELSE uptime END,
	mem_used_bytes  = CASE WHEN $4 THEN $5 ELSE mem_used_bytes END,
	mem_total_bytes = CASE WHEN $4 THEN $6 ELSE mem_total_bytes END,
	cpu_percent     = CASE WHEN $7 THEN $8 ELSE cpu_percent END
WHERE code = $1`,
		code,
		m.HasUptime, m.Uptime,
		m.HasMemory, int64(m.MemUsedBytes), int64(m.MemTotalBytes),
		m.HasLoad, m.Load1)
	if err != nil {
		return fmt.Errorf("postgres: update server metrics %s: %w", code, err)
	}
	return requireRow(res, code)
}

// ─────────────────────────────────────────────────────────────────────────────
// HistoryStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) AppendHistory(ctx context.Context, rec models.HistoryRecord) error {
	var latency sql.NullFloat64
	if rec.LatencyMS != nil {
		latency = sql.NullFloat64{Float64: *rec.LatencyMS, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO availability_history (device_code, ts, latency_ms, status, packet_loss)
VALUES ($1, $2, $3, $4, $5)`,
		rec.DeviceCode, rec.Timestamp, latency, rec.Status, rec.PacketLoss)
	if err != nil {
		return fmt.Errorf("postgres: append history %s: %w", rec.DeviceCode, err)
	}
	return nil
}

func scanHistory(row interface{ Scan(...any) error }) (models.HistoryRecord, error) {
	var rec models.HistoryRecord
	var latency sql.NullFloat64
	err := row.Scan(&rec.DeviceCode, &rec.Timestamp, &latency, &rec.Status, &rec.PacketLoss)
	if err != nil {
		return rec, err
	}
	if latency.Valid {
		v := latency.Float64
		rec.LatencyMS = &v
	}
	return rec, nil
}

func (s *Store) LatestHistory(ctx context.Context, deviceCode string) (models.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT device_code, ts, latency_ms, status, packet_loss
FROM availability_history
WHERE device_code = $1
ORDER BY ts DESC
LIMIT 1`, deviceCode)
	rec, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryRecord{}, store.ErrNotFound
	}
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("postgres: latest history %s: %w", deviceCode, err)
	}
	return rec, nil
}

func (s *Store) HistoryByDevice(ctx context.Context, deviceCode string) ([]models.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT device_code, ts, latency_ms, status, packet_loss
FROM availability_history
WHERE device_code = $1
ORDER BY ts ASC`, deviceCode)
	if err != nil {
		return nil, fmt.Errorf("postgres: history %s: %w", deviceCode, err)
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// ConfigStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) LoadConfig(ctx context.Context) (models.GlobalConfig, error) {
	var cfg models.GlobalConfig
	err := s.db.QueryRowContext(ctx, `
SELECT poll_interval_sec, retry_count, fiber_threshold_sec, cellular_threshold_sec,
	alert_offline_threshold_min, alert_interval_min,
	snmp_username, snmp_auth_protocol, snmp_auth_key,
	snmp_priv_protocol, snmp_priv_key, snmp_port
FROM global_config WHERE id = 1`).Scan(
		&cfg.PollIntervalSec, &cfg.RetryCount, &cfg.FiberThresholdSec,
		&cfg.CellularThresholdSec, &cfg.AlertOfflineThresholdMin, &cfg.AlertIntervalMin,
		&cfg.SNMP.Username, &cfg.SNMP.AuthProtocol, &cfg.SNMP.AuthKey,
		&cfg.SNMP.PrivProtocol, &cfg.SNMP.PrivKey, &cfg.SNMP.Port)
	if errors.Is(err, sql.ErrNoRows) {
		// The singleton is lazily created with defaults on first access.
		cfg = models.DefaultGlobalConfig()
		if err := s.SaveConfig(ctx, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("postgres: load config: %w", err)
	}
	return cfg, nil
}

func (s *Store) SaveConfig(ctx context.Context, cfg models.GlobalConfig) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO global_config (
	id, poll_interval_sec, retry_count, fiber_threshold_sec, cellular_threshold_sec,
	alert_offline_threshold_min, alert_interval_min,
	snmp_username, snmp_auth_protocol, snmp_auth_key,
	snmp_priv_protocol, snmp_priv_key, snmp_port
) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	poll_interval_sec = EXCLUDED.poll_interval_sec,
	retry_count = EXCLUDED.retry_count,
	fiber_threshold_sec = EXCLUDED.fiber_threshold_sec,
	cellular_threshold_sec = EXCLUDED.cellular_threshold_sec,
	alert_offline_threshold_min = EXCLUDED.alert_offline_threshold_min,
	alert_interval_min = EXCLUDED.alert_interval_min,
	snmp_username = EXCLUDED.snmp_username,
	snmp_auth_protocol = EXCLUDED.snmp_auth_protocol,
	snmp_auth_key = EXCLUDED.snmp_auth_key,
	snmp_priv_protocol = EXCLUDED.snmp_priv_protocol,
	snmp_priv_key = EXCLUDED.snmp_priv_key,
	snmp_port = EXCLUDED.snmp_port`,
		cfg.PollIntervalSec, cfg.RetryCount, cfg.FiberThresholdSec,
		cfg.CellularThresholdSec, cfg.AlertOfflineThresholdMin, cfg.AlertIntervalMin,
		cfg.SNMP.Username, cfg.SNMP.AuthProtocol, cfg.SNMP.AuthKey,
		cfg.SNMP.PrivProtocol, cfg.SNMP.PrivKey, cfg.SNMP.Port)
	if err != nil {
		return fmt.Errorf("postgres: save config: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MeterStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) CountMetersByDevice(ctx context.Context, deviceCode string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM meter_points WHERE device_code = $1`, deviceCode).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count meters %s: %w", deviceCode, err)
	}
	return n, nil
}

func (s *Store) PortionsByDevice(ctx context.Context, deviceCode string) ([]string, error) {
	return s.stringList(ctx, `
SELECT DISTINCT portion FROM meter_points
WHERE device_code = $1 AND portion <> ''
ORDER BY portion`, deviceCode)
}

func (s *Store) DeviceCodesWithBilledMeters(ctx context.Context) ([]string, error) {
	return s.stringList(ctx, `
SELECT DISTINCT device_code FROM meter_points
WHERE portion <> ''
ORDER BY device_code`)
}

func (s *Store) stringList(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// RecipientStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) ListRecipients(ctx context.Context) ([]models.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT username, email, email_enabled, telegram_enabled, telegram_chat_id
FROM user_profiles ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recipients: %w", err)
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.Username, &r.Email, &r.EmailEnabled,
			&r.TelegramEnable, &r.TelegramChatID); err != nil {
			return nil, fmt.Errorf("postgres: scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
