package retry

import (
	"context"
	"time"
)

// Sleeper suspends the caller for one backoff delay. Tests substitute a
// recording no-op so the retry algorithm runs without real waiting.
type Sleeper func(ctx context.Context, d time.Duration)

// Policy is a fixed backoff schedule: Delays[n] is the wait before the n+1-th
// retry. Total attempts are len(Delays)+1 (one initial attempt plus one retry
// per delay). The schedule is a lookup table, never computed.
type Policy struct {
	Delays []time.Duration
	Sleep  Sleeper
}

// DefaultDelays matches the external provider's documented retry contract.
var DefaultDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

func NewPolicy(delays []time.Duration) Policy {
	if delays == nil {
		delays = DefaultDelays
	}
	return Policy{Delays: delays, Sleep: sleepContext}
}

// MaxAttempts is the total attempt budget, counting the initial attempt.
func (p Policy) MaxAttempts() int {
	return len(p.Delays) + 1
}

// Wait blocks for the delay scheduled before retry number retryIndex
// (1-based). Out-of-range indexes are a no-op.
func (p Policy) Wait(ctx context.Context, retryIndex int) {
	if retryIndex < 1 || retryIndex > len(p.Delays) {
		return
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	sleep(ctx, p.Delays[retryIndex-1])
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
