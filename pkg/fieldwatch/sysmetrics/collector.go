// Package sysmetrics collects system metrics from infrastructure servers over
// SNMPv3. It runs only after a server's ping succeeds and only when an SNMP
// username is configured; every collection is best-effort and never affects
// the server's online/offline state.
package sysmetrics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/qawaq/fieldwatch/models"
)

// The fixed metric set, fetched in one batched Get per cycle.
const (
	oidSysUptime = ".1.3.6.1.2.1.1.3.0"        // SNMPv2-MIB::sysUpTime.0, TimeTicks
	oidMemTotal  = ".1.3.6.1.4.1.2021.4.5.0"   // UCD-SNMP-MIB::memTotalReal.0, kB
	oidMemAvail  = ".1.3.6.1.4.1.2021.4.6.0"   // UCD-SNMP-MIB::memAvailReal.0, kB
	oidLoad1     = ".1.3.6.1.4.1.2021.10.1.3.1" // UCD-SNMP-MIB::laLoad.1, string
)

// ─────────────────────────────────────────────────────────────────────────────
// Collector
// ─────────────────────────────────────────────────────────────────────────────

// session is the subset of *gosnmp.GoSNMP the collector uses. Tests inject a
// fake without a live agent.
type session interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
}

// dialFunc opens a connected session and returns it with its closer.
type dialFunc func(host string, creds models.SNMPCredentials) (session, func() error, error)

// Collector queries the fixed metric set from one server per call.
type Collector struct {
	dial   dialFunc
	logger *slog.Logger
}

// New returns a Collector that dials real SNMPv3 sessions.
func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Collector{dial: dialSession, logger: logger}
}

// newWithDial is the test constructor.
func newWithDial(dial dialFunc, logger *slog.Logger) *Collector {
	c := New(logger)
	c.dial = dial
	return c
}

// Collect fetches the metric set from host. A transport-level error aborts
// the whole update and is returned to the caller; individual value parse
// failures are logged per-field and the remaining fields are still reported.
func (c *Collector) Collect(ctx context.Context, host string, creds models.SNMPCredentials) (models.ServerMetrics, error) {
	var m models.ServerMetrics
	if err := ctx.Err(); err != nil {
		return m, err
	}

	sess, closeSession, err := c.dial(host, creds)
	if err != nil {
		return m, fmt.Errorf("sysmetrics: connect %s: %w", host, err)
	}
	defer func() { _ = closeSession() }()

	pkt, err := sess.Get([]string{oidSysUptime, oidMemTotal, oidMemAvail, oidLoad1})
	if err != nil {
		return m, fmt.Errorf("sysmetrics: get %s: %w", host, err)
	}

	var memTotalKB, memAvailKB uint64
	var haveTotal, haveAvail bool

	for _, v := range pkt.Variables {
		switch normalizeOID(v.Name) {
		case oidSysUptime:
			ticks, ok := toUint64(v.Value)
			if !ok {
				c.logger.Warn("sysmetrics: unparsable uptime", "host", host, "value", v.Value)
				continue
			}
			m.Uptime = FormatUptime(ticks)
			m.HasUptime = true

		case oidMemTotal:
			memTotalKB, haveTotal = toUint64(v.Value)
			if !haveTotal {
				c.logger.Warn("sysmetrics: unparsable total memory", "host", host, "value", v.Value)
			}

		case oidMemAvail:
			memAvailKB, haveAvail = toUint64(v.Value)
			if !haveAvail {
				c.logger.Warn("sysmetrics: unparsable available memory", "host", host, "value", v.Value)
			}

		case oidLoad1:
			load, err := parseLoad(v.Value)
			if err != nil {
				c.logger.Warn("sysmetrics: unparsable load", "host", host, "error", err.Error())
				continue
			}
			m.Load1 = load
			m.HasLoad = true
		}
	}

	if haveTotal && haveAvail && memAvailKB <= memTotalKB {
		m.MemTotalBytes = memTotalKB * 1024
		m.MemUsedBytes = (memTotalKB - memAvailKB) * 1024
		m.HasMemory = true
	}

	return m, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Session factory — SNMPCredentials → *gosnmp.GoSNMP
// ─────────────────────────────────────────────────────────────────────────────

func dialSession(host string, creds models.SNMPCredentials) (session, func() error, error) {
	port := creds.Port
	if port <= 0 {
		port = 161
	}
	g := &gosnmp.GoSNMP{
		Target:        host,
		Port:          uint16(port),
		Version:       gosnmp.Version3,
		SecurityModel: gosnmp.UserSecurityModel,
		Timeout:       5 * time.Second,
		Retries:       1,
		MsgFlags:      msgFlags(creds),
		SecurityParameters: &gosnmp.UsmSecurityParameters{
			UserName:                 creds.Username,
			AuthenticationProtocol:   mapAuthProto(creds.AuthProtocol),
			AuthenticationPassphrase: creds.AuthKey,
			PrivacyProtocol:          mapPrivProto(creds.PrivProtocol),
			PrivacyPassphrase:        creds.PrivKey,
		},
	}
	if err := g.Connect(); err != nil {
		return nil, nil, fmt.Errorf("snmp connect %s:%d: %w", host, port, err)
	}
	closer := func() error {
		if g.Conn != nil {
			return g.Conn.Close()
		}
		return nil
	}
	return g, closer, nil
}

func msgFlags(creds models.SNMPCredentials) gosnmp.SnmpV3MsgFlags {
	hasAuth := creds.AuthProtocol != models.AuthNone
	hasPriv := creds.PrivProtocol != models.PrivNone

	switch {
	case hasAuth && hasPriv:
		return gosnmp.AuthPriv
	case hasAuth:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func mapAuthProto(p models.AuthProtocol) gosnmp.SnmpV3AuthProtocol {
	switch p {
	case models.AuthMD5:
		return gosnmp.MD5
	case models.AuthSHA:
		return gosnmp.SHA
	default:
		return gosnmp.NoAuth
	}
}

func mapPrivProto(p models.PrivProtocol) gosnmp.SnmpV3PrivProtocol {
	switch p {
	case models.PrivDES:
		return gosnmp.DES
	case models.PrivAES:
		return gosnmp.AES
	default:
		return gosnmp.NoPriv
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Value conversion
// ─────────────────────────────────────────────────────────────────────────────

func normalizeOID(oid string) string {
	if !strings.HasPrefix(oid, ".") {
		return "." + oid
	}
	return oid
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func parseLoad(v any) (float64, error) {
	switch s := v.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	case float64:
		return s, nil
	default:
		return 0, fmt.Errorf("unexpected load type %T", v)
	}
}

// FormatUptime renders a TimeTicks value (hundredths of a second) as a short
// human-readable duration, e.g. "12d 3h 45m".
func FormatUptime(ticks uint64) string {
	secs := ticks / 100
	days := secs / 86400
	hours := (secs % 86400) / 3600
	mins := (secs % 3600) / 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
