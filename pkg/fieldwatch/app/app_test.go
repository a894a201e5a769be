package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/qawaq/fieldwatch/pkg/fieldwatch/config"
	"github.com/qawaq/fieldwatch/pkg/fieldwatch/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWithoutDatabaseUsesMemoryStore(t *testing.T) {
	a, err := New(context.Background(), config.Settings{}, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop()

	if a.storeKind() != "memory" {
		t.Errorf("storeKind = %q, want memory", a.storeKind())
	}
}

func TestProbeDeviceNotFound(t *testing.T) {
	a, err := New(context.Background(), config.Settings{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Stop()

	_, err = a.ProbeDevice(context.Background(), "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunAlertCheckEmptyInventory(t *testing.T) {
	a, err := New(context.Background(), config.Settings{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Stop()

	report, err := a.RunAlertCheck(context.Background())
	if err != nil {
		t.Fatalf("RunAlertCheck: %v", err)
	}
	if report.CriticalCount != 0 || report.AlertSent {
		t.Errorf("report = %+v, want empty dry report", report)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	a, err := New(context.Background(), config.Settings{Workers: 2}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not complete within 3s")
	}
}

func TestSendTestEmailDisabledWithoutSMTP(t *testing.T) {
	a, err := New(context.Background(), config.Settings{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Stop()

	result := a.SendTestEmail(context.Background())
	if result.Success || result.Error != "disabled" {
		t.Errorf("result = %+v, want disabled", result)
	}
}
