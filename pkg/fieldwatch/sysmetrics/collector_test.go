package sysmetrics

import (
	"context"
	"errors"
	"testing"

	"github.com/gosnmp/gosnmp"

	"github.com/qawaq/fieldwatch/models"
)

// fakeSession returns a canned packet or error.
type fakeSession struct {
	pkt *gosnmp.SnmpPacket
	err error
}

func (f *fakeSession) Get(_ []string) (*gosnmp.SnmpPacket, error) {
	return f.pkt, f.err
}

func fakeDial(sess session, dialErr error) dialFunc {
	return func(string, models.SNMPCredentials) (session, func() error, error) {
		if dialErr != nil {
			return nil, nil, dialErr
		}
		return sess, func() error { return nil }, nil
	}
}

func pdu(name string, value any) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: name, Value: value}
}

func TestCollectFullMetricSet(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{Variables: []gosnmp.SnmpPDU{
		pdu(oidSysUptime, uint32(8640000)), // 1 day
		pdu(oidMemTotal, 4096),             // kB
		pdu(oidMemAvail, 1024),             // kB
		pdu(oidLoad1, "0.52"),
	}}
	c := newWithDial(fakeDial(&fakeSession{pkt: pkt}, nil), nil)

	m, err := c.Collect(context.Background(), "10.1.0.1", models.SNMPCredentials{Username: "monitor"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !m.HasUptime || m.Uptime != "1d 0h 0m" {
		t.Errorf("Uptime = %q (has=%v), want 1d 0h 0m", m.Uptime, m.HasUptime)
	}
	if !m.HasMemory {
		t.Fatal("HasMemory = false")
	}
	if m.MemTotalBytes != 4096*1024 {
		t.Errorf("MemTotalBytes = %d, want %d", m.MemTotalBytes, 4096*1024)
	}
	// usedBytes = (total − available) × 1024
	if m.MemUsedBytes != (4096-1024)*1024 {
		t.Errorf("MemUsedBytes = %d, want %d", m.MemUsedBytes, (4096-1024)*1024)
	}
	if !m.HasLoad || m.Load1 != 0.52 {
		t.Errorf("Load1 = %v (has=%v), want 0.52", m.Load1, m.HasLoad)
	}
}

func TestCollectPartialParseFailureKeepsOtherFields(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{Variables: []gosnmp.SnmpPDU{
		pdu(oidSysUptime, uint32(360000)),
		pdu(oidMemTotal, 2048),
		pdu(oidMemAvail, 512),
		pdu(oidLoad1, "not-a-number"),
	}}
	c := newWithDial(fakeDial(&fakeSession{pkt: pkt}, nil), nil)

	m, err := c.Collect(context.Background(), "10.1.0.1", models.SNMPCredentials{Username: "monitor"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if m.HasLoad {
		t.Error("HasLoad = true for unparsable load")
	}
	if !m.HasMemory || !m.HasUptime {
		t.Errorf("parse failure on one field blocked others: %+v", m)
	}
}

func TestCollectTransportErrorAbortsUpdate(t *testing.T) {
	c := newWithDial(fakeDial(nil, errors.New("connection refused")), nil)
	if _, err := c.Collect(context.Background(), "10.1.0.1", models.SNMPCredentials{Username: "monitor"}); err == nil {
		t.Fatal("Collect succeeded on dial error")
	}

	c = newWithDial(fakeDial(&fakeSession{err: errors.New("timeout")}, nil), nil)
	if _, err := c.Collect(context.Background(), "10.1.0.1", models.SNMPCredentials{Username: "monitor"}); err == nil {
		t.Fatal("Collect succeeded on request error")
	}
}

func TestProtocolMapping(t *testing.T) {
	authTests := []struct {
		in   models.AuthProtocol
		want gosnmp.SnmpV3AuthProtocol
	}{
		{models.AuthMD5, gosnmp.MD5},
		{models.AuthSHA, gosnmp.SHA},
		{models.AuthNone, gosnmp.NoAuth},
	}
	for _, tt := range authTests {
		if got := mapAuthProto(tt.in); got != tt.want {
			t.Errorf("mapAuthProto(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	privTests := []struct {
		in   models.PrivProtocol
		want gosnmp.SnmpV3PrivProtocol
	}{
		{models.PrivDES, gosnmp.DES},
		{models.PrivAES, gosnmp.AES},
		{models.PrivNone, gosnmp.NoPriv},
	}
	for _, tt := range privTests {
		if got := mapPrivProto(tt.in); got != tt.want {
			t.Errorf("mapPrivProto(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMsgFlags(t *testing.T) {
	tests := []struct {
		auth models.AuthProtocol
		priv models.PrivProtocol
		want gosnmp.SnmpV3MsgFlags
	}{
		{models.AuthSHA, models.PrivAES, gosnmp.AuthPriv},
		{models.AuthMD5, models.PrivNone, gosnmp.AuthNoPriv},
		{models.AuthNone, models.PrivNone, gosnmp.NoAuthNoPriv},
	}
	for _, tt := range tests {
		creds := models.SNMPCredentials{AuthProtocol: tt.auth, PrivProtocol: tt.priv}
		if got := msgFlags(creds); got != tt.want {
			t.Errorf("msgFlags(%q,%q) = %v, want %v", tt.auth, tt.priv, got, tt.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ticks uint64
		want  string
	}{
		{0, "0m"},
		{6000, "1m"},
		{360000, "1h 0m"},
		{8640000 + 360000 + 6000, "1d 1h 1m"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.ticks); got != tt.want {
			t.Errorf("FormatUptime(%d) = %q, want %q", tt.ticks, got, tt.want)
		}
	}
}
