package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qawaq/fieldwatch/models"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store/memory"
)

func ms(v float64) *float64 { return &v }

func TestHistoryAppendOnlyAndOrdered(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Append out of order; reads must come back ascending.
	for _, offset := range []int{2, 0, 1} {
		rec := models.HistoryRecord{
			DeviceCode: "RT-001",
			Timestamp:  base.Add(time.Duration(offset) * time.Minute),
			Status:     models.StatusOnline,
			LatencyMS:  ms(float64(offset)),
		}
		if err := s.AppendHistory(ctx, rec); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	recs, err := s.HistoryByDevice(ctx, "RT-001")
	if err != nil {
		t.Fatalf("HistoryByDevice: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("rows = %d, want 3", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Timestamp.Before(recs[i-1].Timestamp) {
			t.Errorf("rows not in ascending order: %v before %v", recs[i].Timestamp, recs[i-1].Timestamp)
		}
	}
}

func TestHistoryRoundTripLatest(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	rec := models.HistoryRecord{
		DeviceCode: "RT-002",
		Timestamp:  time.Now(),
		LatencyMS:  ms(42),
		Status:     models.StatusOnline,
	}
	if err := s.AppendHistory(ctx, rec); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	got, err := s.LatestHistory(ctx, "RT-002")
	if err != nil {
		t.Fatalf("LatestHistory: %v", err)
	}
	if got.LatencyMS == nil || *got.LatencyMS != 42 {
		t.Errorf("LatencyMS = %v, want 42", got.LatencyMS)
	}
	if got.Status != models.StatusOnline {
		t.Errorf("Status = %q, want ONLINE", got.Status)
	}
}

func TestUpdateDeviceStatusNeverMovesLastSeenBackward(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	newer := time.Now()
	older := newer.Add(-time.Hour)

	s.PutDevice(models.Device{Code: "RT-003", IP: "10.0.0.3", State: models.StateActive, LastSeen: &newer})

	if err := s.UpdateDeviceStatus(ctx, "RT-003", &older, true); err != nil {
		t.Fatalf("UpdateDeviceStatus: %v", err)
	}
	d, _ := s.GetDevice(ctx, "RT-003")
	if !d.LastSeen.Equal(newer) {
		t.Errorf("LastSeen moved backward to %v", d.LastSeen)
	}

	// A nil lastSeen must not clear the stored value.
	if err := s.UpdateDeviceStatus(ctx, "RT-003", nil, false); err != nil {
		t.Fatalf("UpdateDeviceStatus: %v", err)
	}
	d, _ = s.GetDevice(ctx, "RT-003")
	if d.LastSeen == nil {
		t.Fatal("LastSeen cleared by offline update")
	}
	if d.IsOnline {
		t.Error("IsOnline not updated")
	}
}

func TestListEligibleDevicesFiltersStateAndMaintenance(t *testing.T) {
	s := memory.New()
	s.PutDevice(models.Device{Code: "A", State: models.StateActive})
	s.PutDevice(models.Device{Code: "B", State: models.StateInactive})
	s.PutDevice(models.Device{Code: "C", State: models.StateActive, InMaintenance: true})
	s.PutDevice(models.Device{Code: "D", State: models.StateMaintenance})

	devs, err := s.ListEligibleDevices(context.Background())
	if err != nil {
		t.Fatalf("ListEligibleDevices: %v", err)
	}
	if len(devs) != 1 || devs[0].Code != "A" {
		t.Errorf("eligible = %v, want [A]", devs)
	}
}

func TestLoadConfigLazilyCreatesDefaults(t *testing.T) {
	s := memory.New()
	cfg, err := s.LoadConfig(context.Background())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := models.DefaultGlobalConfig()
	if cfg.PollIntervalSec != want.PollIntervalSec || cfg.CellularThresholdSec != want.CellularThresholdSec {
		t.Errorf("LoadConfig = %+v, want defaults %+v", cfg, want)
	}
}

func TestUpdateServerMetricsPartialWrite(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	s.PutServer(models.Server{Code: "SRV-1", IP: "10.1.0.1", Uptime: "old", CPUPercent: 9})

	m := models.ServerMetrics{
		MemUsedBytes:  2048,
		MemTotalBytes: 4096,
		HasMemory:     true,
		// No uptime, no load: those fields must survive.
	}
	if err := s.UpdateServerMetrics(ctx, "SRV-1", m); err != nil {
		t.Fatalf("UpdateServerMetrics: %v", err)
	}
	srv, _ := s.GetServer(ctx, "SRV-1")
	if srv.MemUsedBytes != 2048 || srv.MemTotalBytes != 4096 {
		t.Errorf("memory not written: %+v", srv)
	}
	if srv.Uptime != "old" || srv.CPUPercent != 9 {
		t.Errorf("untouched fields overwritten: %+v", srv)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	s := memory.New()
	_, err := s.GetDevice(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMeterQueries(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	s.PutMeter(models.MeterPoint{ID: "M1", DeviceCode: "A", Portion: "P-NORTH"})
	s.PutMeter(models.MeterPoint{ID: "M2", DeviceCode: "A", Portion: "P-NORTH"})
	s.PutMeter(models.MeterPoint{ID: "M3", DeviceCode: "A", Portion: "P-SOUTH"})
	s.PutMeter(models.MeterPoint{ID: "M4", DeviceCode: "B", Portion: ""})

	if n, _ := s.CountMetersByDevice(ctx, "A"); n != 3 {
		t.Errorf("CountMetersByDevice(A) = %d, want 3", n)
	}
	portions, _ := s.PortionsByDevice(ctx, "A")
	if len(portions) != 2 {
		t.Errorf("PortionsByDevice(A) = %v, want 2 distinct", portions)
	}
	codes, _ := s.DeviceCodesWithBilledMeters(ctx)
	if len(codes) != 1 || codes[0] != "A" {
		t.Errorf("DeviceCodesWithBilledMeters = %v, want [A]", codes)
	}
}
