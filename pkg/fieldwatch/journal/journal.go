// Package journal appends every availability check outcome to a local JSONL
// file, one object per line. The journal is the field technicians' offline
// audit trail: it survives database outages and can be shipped or grepped
// without tooling.
//
// The active file rotates by size. When MaxBytes is exceeded the file is
// renamed with a numeric suffix (checks.jsonl → checks.jsonl.1) and a fresh
// file is opened. Up to MaxBackups rotated files are kept; older ones are
// removed.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/qawaq/fieldwatch/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the journal location and rotation behaviour.
type Config struct {
	// Path is the active journal file name (required).
	Path string

	// MaxBytes triggers rotation when the active file exceeds this size.
	// Zero disables rotation (the file grows without bound).
	MaxBytes int64

	// MaxBackups is the number of rotated files to keep.
	// Zero means keep all rotated files.
	MaxBackups int
}

// ─────────────────────────────────────────────────────────────────────────────
// Journal
// ─────────────────────────────────────────────────────────────────────────────

// entry is the on-disk line format. Field names stay stable so external
// tooling can parse old journals.
type entry struct {
	Time       time.Time `json:"time"`
	Device     string    `json:"device"`
	Status     string    `json:"status"`
	LatencyMS  *float64  `json:"latency_ms,omitempty"`
	PacketLoss float64   `json:"packet_loss"`
}

// Journal is an append-only JSONL writer with size-based rotation. It is safe
// for concurrent use.
type Journal struct {
	mu     sync.Mutex
	cfg    Config
	file   *os.File
	size   int64
	logger *slog.Logger
}

// Open opens (or creates) the journal at cfg.Path. The caller must call Close
// when finished.
func Open(cfg Config, logger *slog.Logger) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal: Path is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir %s: %w", dir, err)
	}

	j := &Journal{cfg: cfg, logger: logger}
	if err := j.openFile(); err != nil {
		return nil, err
	}
	return j, nil
}

// Record appends one check outcome as a single JSON line.
func (j *Journal) Record(rec models.HistoryRecord) error {
	line, err := json.Marshal(entry{
		Time:       rec.Timestamp,
		Device:     rec.DeviceCode,
		Status:     string(rec.Status),
		LatencyMS:  rec.LatencyMS,
		PacketLoss: rec.PacketLoss,
	})
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cfg.MaxBytes > 0 && j.size+int64(len(line)) > j.cfg.MaxBytes {
		if err := j.rotate(); err != nil {
			j.logger.Error("journal: rotate failed", "error", err.Error())
			// Keep writing to the current file rather than losing the record.
		}
	}

	n, err := j.file.Write(line)
	j.size += int64(n)
	if err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// openFile opens (or creates) the active file and sets the current size.
func (j *Journal) openFile() error {
	f, err := os.OpenFile(j.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", j.cfg.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("journal: stat %s: %w", j.cfg.Path, err)
	}
	j.file = f
	j.size = info.Size()
	return nil
}

// rotate renames the active file with numbered suffixes and opens a new one.
//
// Rotation scheme:
//
//	checks.jsonl   → checks.jsonl.1
//	checks.jsonl.1 → checks.jsonl.2
//	...
//	checks.jsonl.N → (removed if N > MaxBackups)
func (j *Journal) rotate() error {
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			j.logger.Warn("journal: rotate: close error", "error", err.Error())
		}
		j.file = nil
	}

	base := j.cfg.Path

	if j.cfg.MaxBackups > 0 {
		// Remove the oldest if it would exceed MaxBackups.
		oldest := fmt.Sprintf("%s.%d", base, j.cfg.MaxBackups)
		_ = os.Remove(oldest) // ignore error if it doesn't exist
	}

	// Shift .N-1 → .N, .N-2 → .N-1, etc.
	limit := j.cfg.MaxBackups
	if limit == 0 {
		// When unlimited, find the highest existing backup.
		limit = j.findMaxBackup()
	}
	for i := limit; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", base, i)
		dst := fmt.Sprintf("%s.%d", base, i+1)
		_ = os.Rename(src, dst) // ignore error if src doesn't exist
	}

	if err := os.Rename(base, base+".1"); err != nil && !os.IsNotExist(err) {
		j.logger.Warn("journal: rotate: rename error", "error", err.Error())
	}

	if j.cfg.MaxBackups > 0 {
		j.prune()
	}

	j.logger.Info("journal: rotated", "file", base)

	j.size = 0
	return j.openFile()
}

// findMaxBackup returns the highest numbered backup that currently exists.
func (j *Journal) findMaxBackup() int {
	base := j.cfg.Path
	max := 0
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s.%d", base, i)
		if _, err := os.Stat(name); os.IsNotExist(err) {
			break
		}
		max = i
	}
	return max
}

// prune removes backup files beyond MaxBackups.
func (j *Journal) prune() {
	base := j.cfg.Path
	for i := j.cfg.MaxBackups + 1; ; i++ {
		name := fmt.Sprintf("%s.%d", base, i)
		if err := os.Remove(name); err != nil {
			break // no more files
		}
		j.logger.Debug("journal: pruned old backup", "file", name)
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
