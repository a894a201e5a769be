// Package probe issues single reachability probes by invoking the platform
// ping tool, and provides the retry policy applied around failed first
// attempts.
//
// A failed probe is a valid outcome, not an error: Ping returns a nil latency
// for an unreachable host and reserves its error return for cases where the
// tool could not be invoked at all.
package probe

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Pinger interface
// ─────────────────────────────────────────────────────────────────────────────

// Pinger issues one reachability probe with a bounded timeout and returns the
// measured round-trip latency in milliseconds, or nil when unreachable.
type Pinger interface {
	Ping(ctx context.Context, host string, timeout time.Duration) (*float64, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecPinger — platform ping tool
// ─────────────────────────────────────────────────────────────────────────────

// defaultLatencyMS is reported when the tool exits successfully but its
// output carries no parsable timing (very low latency firmware variants).
// Success with unparsable timing is still a success.
const defaultLatencyMS = 1.0

// latencyPattern accepts both the English "time=3.4 ms" and the localized
// "tiempo=3ms" variants, with either '=' or '<' as the separator.
var latencyPattern = regexp.MustCompile(`(?i)(?:time|tiempo)[=<](\d+(?:\.\d+)?) ?ms`)

// ExecPinger probes by running the platform ping executable with a single
// echo request and the given timeout. It performs no retries — retries are
// the caller's responsibility so that timeout shrinkage can be applied
// between attempts (see RetryPolicy).
type ExecPinger struct {
	logger *slog.Logger

	// goos is overridable for argument-construction tests.
	goos string
}

// NewExecPinger returns a pinger that shells out to the platform tool.
func NewExecPinger(logger *slog.Logger) *ExecPinger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &ExecPinger{logger: logger, goos: runtime.GOOS}
}

// Ping runs one echo request against host. A non-zero exit status means
// unreachable and yields (nil, nil). The error return is reserved for the
// tool being unavailable or the context being cancelled.
func (p *ExecPinger) Ping(ctx context.Context, host string, timeout time.Duration) (*float64, error) {
	name, args := pingArgs(p.goos, host, timeout)

	runCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	out, err := exec.CommandContext(runCtx, name, args...).Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// Unreachable — a valid outcome, not an error.
			return nil, nil
		}
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.logger.Error("probe: ping invocation failed", "host", host, "error", err.Error())
		return nil, err
	}

	ms := ParseLatency(string(out))
	return &ms, nil
}

// pingArgs builds the platform-specific command line. Windows takes the
// timeout in milliseconds, everything else in whole seconds.
func pingArgs(goos, host string, timeout time.Duration) (string, []string) {
	if goos == "windows" {
		return "ping", []string{"-n", "1", "-w", strconv.Itoa(int(timeout.Milliseconds())), host}
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	return "ping", []string{"-c", "1", "-W", strconv.Itoa(secs), host}
}

// ParseLatency extracts the round-trip time from the tool's human-readable
// output, falling back to defaultLatencyMS when no timing matches.
func ParseLatency(out string) float64 {
	m := latencyPattern.FindStringSubmatch(out)
	if m == nil {
		return defaultLatencyMS
	}
	ms, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return defaultLatencyMS
	}
	return ms
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
