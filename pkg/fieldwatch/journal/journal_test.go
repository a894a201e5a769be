package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qawaq/fieldwatch/models"
)

func record(code string, status models.CheckStatus, latency *float64) models.HistoryRecord {
	loss := 100.0
	if latency != nil {
		loss = 0
	}
	return models.HistoryRecord{
		DeviceCode: code,
		Timestamp:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		LatencyMS:  latency,
		Status:     status,
		PacketLoss: loss,
	}
}

func TestRecordWritesOneJSONLinePerCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checks.jsonl")
	j, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatal(err)
	}

	lat := 42.0
	if err := j.Record(record("RT-001", models.StatusOnline, &lat)); err != nil {
		t.Fatal(err)
	}
	if err := j.Record(record("RT-002", models.StatusTimeout, nil)); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, e)
	}

	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Device != "RT-001" || lines[0].Status != "ONLINE" {
		t.Errorf("line 0 = %+v", lines[0])
	}
	if lines[0].LatencyMS == nil || *lines[0].LatencyMS != 42 {
		t.Errorf("line 0 latency = %v, want 42", lines[0].LatencyMS)
	}
	if lines[1].Status != "TIMEOUT" || lines[1].LatencyMS != nil || lines[1].PacketLoss != 100 {
		t.Errorf("line 1 = %+v", lines[1])
	}
}

func TestJournalAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checks.jsonl")

	for i := 0; i < 2; i++ {
		j, err := Open(Config{Path: path}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := j.Record(record("RT-001", models.StatusTimeout, nil)); err != nil {
			t.Fatal(err)
		}
		if err := j.Close(); err != nil {
			t.Fatal(err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	if count != 2 {
		t.Errorf("got %d records after reopen, want 2", count)
	}
}

func TestJournalRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checks.jsonl")
	// Each record line is ~100 bytes, so a 150-byte cap forces rotation on
	// every second write.
	j, err := Open(Config{Path: path, MaxBytes: 150, MaxBackups: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		if err := j.Record(record("RT-001", models.StatusTimeout, nil)); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"checks.jsonl", "checks.jsonl.1", "checks.jsonl.2"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	// MaxBackups=2 means .3 must have been pruned.
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("checks.jsonl.3 should have been pruned, stat err = %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}, nil); err == nil {
		t.Fatal("Open with empty path succeeded")
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "checks.jsonl")
	j, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent dir missing: %v", err)
	}
}
