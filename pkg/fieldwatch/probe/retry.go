package probe

import (
	"context"
	"time"
)

// RetryPolicy is the explicit retry schedule applied to a device check: one
// generous first attempt, then up to MaxRetries fast attempts with a shorter
// timeout, stopping at the first success.
type RetryPolicy struct {
	// InitialTimeout bounds the first attempt. Default 2s.
	InitialTimeout time.Duration

	// RetryTimeout bounds each retry attempt. Default 1s.
	RetryTimeout time.Duration

	// MaxRetries is the number of retries after a failed first attempt.
	MaxRetries int
}

// DefaultRetryPolicy builds the standard schedule with the configured retry
// count.
func DefaultRetryPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		InitialTimeout: 2 * time.Second,
		RetryTimeout:   time.Second,
		MaxRetries:     retries,
	}
}

func (rp RetryPolicy) withDefaults() RetryPolicy {
	if rp.InitialTimeout <= 0 {
		rp.InitialTimeout = 2 * time.Second
	}
	if rp.RetryTimeout <= 0 {
		rp.RetryTimeout = time.Second
	}
	return rp
}

// Run executes the schedule against host using pinger. It returns the latency
// of the first successful attempt, or nil when every attempt failed. Probe
// invocation errors count as failed attempts.
func (rp RetryPolicy) Run(ctx context.Context, pinger Pinger, host string) *float64 {
	rp = rp.withDefaults()

	latency, _ := pinger.Ping(ctx, host, rp.InitialTimeout)
	if latency != nil {
		return latency
	}

	for i := 0; i < rp.MaxRetries; i++ {
		if ctx.Err() != nil {
			return nil
		}
		latency, _ = pinger.Ping(ctx, host, rp.RetryTimeout)
		if latency != nil {
			return latency
		}
	}
	return nil
}
