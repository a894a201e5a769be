// Package memory is an in-memory store.Store used by tests and by bare
// diagnostic runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store"
)

// Store keeps everything in maps guarded by one mutex. History rows are
// copied on read so callers can never mutate the ledger.
type Store struct {
	mu         sync.Mutex
	devices    map[string]models.Device
	servers    map[string]models.Server
	history    map[string][]models.HistoryRecord
	meters     []models.MeterPoint
	recipients []models.Recipient

	cfg    models.GlobalConfig
	hasCfg bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		devices: make(map[string]models.Device),
		servers: make(map[string]models.Server),
		history: make(map[string][]models.HistoryRecord),
	}
}

var _ store.Store = (*Store)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Fixture helpers (not part of store.Store)
// ─────────────────────────────────────────────────────────────────────────────

// PutDevice inserts or replaces a device.
func (s *Store) PutDevice(d models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.Code] = d
}

// PutServer inserts or replaces a server.
func (s *Store) PutServer(srv models.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[srv.Code] = srv
}

// PutMeter appends a meter point.
func (s *Store) PutMeter(m models.MeterPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meters = append(s.meters, m)
}

// PutRecipient appends a recipient profile.
func (s *Store) PutRecipient(r models.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients = append(s.recipients, r)
}

// ─────────────────────────────────────────────────────────────────────────────
// DeviceStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) ListDevices(_ context.Context) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) ListEligibleDevices(ctx context.Context) ([]models.Device, error) {
	all, _ := s.ListDevices(ctx)
	out := all[:0]
	for _, d := range all {
		if d.Eligible() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) GetDevice(_ context.Context, code string) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[code]
	if !ok {
		return models.Device{}, store.ErrNotFound
	}
	return d, nil
}

func (s *Store) UpdateDeviceStatus(_ context.Context, code string, lastSeen *time.Time, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[code]
	if !ok {
		return store.ErrNotFound
	}
	d.IsOnline = online
	d.LastSeen = advance(d.LastSeen, lastSeen)
	d.UpdatedAt = time.Now()
	s.devices[code] = d
	return nil
}

// advance applies the never-backward, never-cleared rule.
func advance(current, candidate *time.Time) *time.Time {
	if candidate == nil {
		return current
	}
	if current != nil && candidate.Before(*current) {
		return current
	}
	t := *candidate
	return &t
}

// ─────────────────────────────────────────────────────────────────────────────
// ServerStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) ListServers(_ context.Context) ([]models.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, srv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) GetServer(_ context.Context, code string) (models.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[code]
	if !ok {
		return models.Server{}, store.ErrNotFound
	}
	return srv, nil
}

func (s *Store) UpdateServerStatus(_ context.Context, code string, lastSeen *time.Time, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[code]
	if !ok {
		return store.ErrNotFound
	}
	srv.IsOnline = online
	srv.LastSeen = advance(srv.LastSeen, lastSeen)
	s.servers[code] = srv
	return nil
}

func (s *Store) UpdateServerMetrics(_ context.Context, code string, m models.ServerMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[code]
	if !ok {
		return store.ErrNotFound
	}
	if m.HasUptime {
		srv.Uptime = m.Uptime
	}
	if m.HasMemory {
		srv.MemUsedBytes = m.MemUsedBytes
		srv.MemTotalBytes = m.MemTotalBytes
	}
	if m.HasLoad {
		srv.CPUPercent = m.Load1
	}
	s.servers[code] = srv
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// HistoryStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) AppendHistory(_ context.Context, rec models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[rec.DeviceCode] = append(s.history[rec.DeviceCode], rec)
	return nil
}

func (s *Store) LatestHistory(_ context.Context, deviceCode string) (models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.history[deviceCode]
	if len(recs) == 0 {
		return models.HistoryRecord{}, store.ErrNotFound
	}
	latest := recs[0]
	for _, r := range recs[1:] {
		if !r.Timestamp.Before(latest.Timestamp) {
			latest = r
		}
	}
	return latest, nil
}

func (s *Store) HistoryByDevice(_ context.Context, deviceCode string) ([]models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.history[deviceCode]
	out := make([]models.HistoryRecord, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ConfigStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) LoadConfig(_ context.Context) (models.GlobalConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCfg {
		s.cfg = models.DefaultGlobalConfig()
		s.hasCfg = true
	}
	return s.cfg, nil
}

func (s *Store) SaveConfig(_ context.Context, cfg models.GlobalConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.hasCfg = true
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MeterStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) CountMetersByDevice(_ context.Context, deviceCode string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.meters {
		if m.DeviceCode == deviceCode {
			n++
		}
	}
	return n, nil
}

func (s *Store) PortionsByDevice(_ context.Context, deviceCode string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, m := range s.meters {
		if m.DeviceCode != deviceCode || m.Portion == "" || seen[m.Portion] {
			continue
		}
		seen[m.Portion] = true
		out = append(out, m.Portion)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeviceCodesWithBilledMeters(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, m := range s.meters {
		if m.Portion == "" || seen[m.DeviceCode] {
			continue
		}
		seen[m.DeviceCode] = true
		out = append(out, m.DeviceCode)
	}
	sort.Strings(out)
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// RecipientStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) ListRecipients(_ context.Context) ([]models.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Recipient, len(s.recipients))
	copy(out, s.recipients)
	return out, nil
}
