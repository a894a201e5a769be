package probe_test

import (
	"context"
	"testing"
	"time"

	"github.com/qawaq/fieldwatch/pkg/fieldwatch/probe"
)

// ─────────────────────────────────────────────────────────────────────────────
// Latency parsing
// ─────────────────────────────────────────────────────────────────────────────

func TestParseLatency(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want float64
	}{
		{
			name: "linux english",
			out:  "64 bytes from 10.0.0.1: icmp_seq=1 ttl=64 time=3.42 ms",
			want: 3.42,
		},
		{
			name: "windows english",
			out:  "Reply from 10.0.0.1: bytes=32 time=3ms TTL=64",
			want: 3,
		},
		{
			name: "windows spanish",
			out:  "Respuesta desde 10.0.0.1: bytes=32 tiempo=7ms TTL=64",
			want: 7,
		},
		{
			name: "sub-millisecond",
			out:  "Reply from 10.0.0.1: bytes=32 time<1ms TTL=64",
			want: 1,
		},
		{
			name: "uppercase keyword",
			out:  "respuesta: TIEMPO=12.5 ms",
			want: 12.5,
		},
		{
			name: "unparsable output falls back",
			out:  "1 packets transmitted, 1 received, 0% packet loss",
			want: 1.0,
		},
		{
			name: "empty output falls back",
			out:  "",
			want: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := probe.ParseLatency(tt.out); got != tt.want {
				t.Errorf("ParseLatency(%q) = %v, want %v", tt.out, got, tt.want)
			}
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Retry policy
// ─────────────────────────────────────────────────────────────────────────────

// scriptPinger returns canned results in order and records the timeout each
// attempt was given.
type scriptPinger struct {
	results  []*float64
	timeouts []time.Duration
}

func (s *scriptPinger) Ping(_ context.Context, _ string, timeout time.Duration) (*float64, error) {
	s.timeouts = append(s.timeouts, timeout)
	if len(s.results) == 0 {
		return nil, nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r, nil
}

func ms(v float64) *float64 { return &v }

func TestRetryPolicyFirstAttemptSucceeds(t *testing.T) {
	p := &scriptPinger{results: []*float64{ms(42)}}
	rp := probe.DefaultRetryPolicy(3)

	got := rp.Run(context.Background(), p, "10.0.0.1")
	if got == nil || *got != 42 {
		t.Fatalf("Run = %v, want 42", got)
	}
	if len(p.timeouts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(p.timeouts))
	}
	if p.timeouts[0] != 2*time.Second {
		t.Errorf("first timeout = %v, want 2s", p.timeouts[0])
	}
}

func TestRetryPolicyShrinksTimeoutAndStopsAtFirstSuccess(t *testing.T) {
	p := &scriptPinger{results: []*float64{nil, nil, ms(9)}}
	rp := probe.DefaultRetryPolicy(3)

	got := rp.Run(context.Background(), p, "10.0.0.1")
	if got == nil || *got != 9 {
		t.Fatalf("Run = %v, want 9", got)
	}
	want := []time.Duration{2 * time.Second, time.Second, time.Second}
	if len(p.timeouts) != len(want) {
		t.Fatalf("attempts = %d, want %d", len(p.timeouts), len(want))
	}
	for i, d := range want {
		if p.timeouts[i] != d {
			t.Errorf("attempt %d timeout = %v, want %v", i, p.timeouts[i], d)
		}
	}
}

func TestRetryPolicyExhaustsRetries(t *testing.T) {
	p := &scriptPinger{}
	rp := probe.DefaultRetryPolicy(2)

	if got := rp.Run(context.Background(), p, "10.0.0.1"); got != nil {
		t.Fatalf("Run = %v, want nil", got)
	}
	if len(p.timeouts) != 3 { // 1 initial + 2 retries
		t.Errorf("attempts = %d, want 3", len(p.timeouts))
	}
}

func TestRetryPolicyZeroRetriesPingsOnce(t *testing.T) {
	p := &scriptPinger{}
	rp := probe.DefaultRetryPolicy(0)

	rp.Run(context.Background(), p, "10.0.0.1")
	if len(p.timeouts) != 1 {
		t.Errorf("attempts = %d, want 1", len(p.timeouts))
	}
}

func TestRetryPolicyHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &scriptPinger{}
	rp := probe.DefaultRetryPolicy(5)

	if got := rp.Run(ctx, p, "10.0.0.1"); got != nil {
		t.Fatalf("Run = %v, want nil", got)
	}
	// Initial attempt happens, retries are abandoned.
	if len(p.timeouts) != 1 {
		t.Errorf("attempts = %d, want 1", len(p.timeouts))
	}
}
