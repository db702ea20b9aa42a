package provider

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ErrProviderUnavailable is the transient failure signal from the external
// issuing provider. The fulfillment worker treats every gateway error as
// transient and counts it against the retry budget.
var ErrProviderUnavailable = errors.New("external provider timeout")

// Gateway is the narrow contract the worker holds on the external card
// issuing provider: an opaque fallible call with bounded latency.
type Gateway interface {
	Attempt(ctx context.Context, forceFailure bool, attempt int) error
}

// Simulator stands in for the real issuing provider. Each call sleeps a
// uniform random latency and then fails either when forced by the request's
// fault-injection flag or at the configured random rate.
type Simulator struct {
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64
	rng         *rand.Rand
	logger      *zap.Logger
}

func NewSimulator(minLatency, maxLatency time.Duration, failureRate float64, l *zap.Logger) *Simulator {
	return &Simulator{
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      l,
	}
}

func (s *Simulator) Attempt(ctx context.Context, forceFailure bool, attempt int) error {
	latency := s.minLatency
	if s.maxLatency > s.minLatency {
		latency += time.Duration(s.rng.Int63n(int64(s.maxLatency - s.minLatency + 1)))
	}
	s.logger.Debug("Simulating external provider call",
		zap.Int("attempt", attempt+1),
		zap.Duration("latency", latency))

	t := time.NewTimer(latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	if forceFailure || s.rng.Float64() < s.failureRate {
		return ErrProviderUnavailable
	}
	return nil
}
