package provider

import (
	"context"
	"sync"
	"time"

	"github.com/ip-report-scanner/internal/logging"
	"github.com/ip-report-scanner/internal/types"
)

// BreakerState represents the circuit state of a provider
type BreakerState string

const (
	// BreakerClosed means calls flow through normally
	BreakerClosed BreakerState = "closed"
	// BreakerOpen means calls are rejected without reaching the provider
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen means a limited number of probe calls are allowed
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig configures a circuit-breaking adapter
type BreakerConfig struct {
	MaxFailures      int           // Consecutive infrastructure failures before opening
	Timeout          time.Duration // How long the circuit stays open before probing
	HalfOpenMaxCalls int           // Probe calls allowed while half-open
}

// DefaultBreakerConfig returns the default breaker parameters
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// BreakerAdapter wraps an adapter with a circuit breaker so a provider
// outage sheds load fast instead of burning every job's retry budget on
// calls that cannot succeed. Rejections are classified unavailable, which
// the tracker retries with backoff, so jobs survive a short outage.
type BreakerAdapter struct {
	inner  Adapter
	cfg    BreakerConfig
	logger *logging.Logger

	mu               sync.Mutex
	state            BreakerState
	consecutiveFails int
	halfOpenCalls    int
	halfOpenOK       int
	openedAt         time.Time
}

// Break wraps an adapter with a circuit breaker
func Break(inner Adapter, cfg BreakerConfig, logger *logging.Logger) *BreakerAdapter {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = DefaultBreakerConfig().MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBreakerConfig().Timeout
	}
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = DefaultBreakerConfig().HalfOpenMaxCalls
	}
	return &BreakerAdapter{
		inner:  inner,
		cfg:    cfg,
		state:  BreakerClosed,
		logger: logger.WithField("provider", inner.ID()),
	}
}

// ID returns the wrapped provider's identifier
func (b *BreakerAdapter) ID() string {
	return b.inner.ID()
}

// State returns the current circuit state
func (b *BreakerAdapter) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Scan delegates to the wrapped adapter when the circuit allows it
func (b *BreakerAdapter) Scan(ctx context.Context, address string) (*types.ScanResult, error) {
	if err := b.before(); err != nil {
		return nil, err
	}

	result, err := b.inner.Scan(ctx, address)
	b.after(err)
	return result, err
}

// before decides whether a call may proceed
func (b *BreakerAdapter) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		if time.Since(b.openedAt) < b.cfg.Timeout {
			return NewError(types.ErrorClassUnavailable, "provider circuit open")
		}
		b.state = BreakerHalfOpen
		b.halfOpenCalls = 0
		b.halfOpenOK = 0
		b.logger.Info("Provider circuit half-open, probing")
		return nil

	case BreakerHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return NewError(types.ErrorClassUnavailable, "provider circuit probing")
		}
		b.halfOpenCalls++
		return nil
	}

	return nil
}

// after records the call outcome. Only infrastructure failures move the
// circuit: rate limiting and per-address rejections say nothing about
// provider health.
func (b *BreakerAdapter) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && !countsAsOutage(err) {
		err = nil
	}

	if err == nil {
		b.consecutiveFails = 0
		if b.state == BreakerHalfOpen {
			b.halfOpenOK++
			if b.halfOpenOK >= b.cfg.HalfOpenMaxCalls {
				b.state = BreakerClosed
				b.logger.Info("Provider circuit closed after recovery")
			}
		}
		return
	}

	b.consecutiveFails++

	switch b.state {
	case BreakerClosed:
		if b.consecutiveFails >= b.cfg.MaxFailures {
			b.open()
		}
	case BreakerHalfOpen:
		b.open()
	}
}

func (b *BreakerAdapter) open() {
	b.state = BreakerOpen
	b.openedAt = time.Now()
	b.logger.WithField("consecutiveFails", b.consecutiveFails).Warn("Provider circuit opened")
}

// countsAsOutage reports whether a failure indicates provider-side
// unhealthiness rather than a property of the individual request.
func countsAsOutage(err error) bool {
	class, _ := Classify(err)
	switch class {
	case types.ErrorClassUnavailable, types.ErrorClassTimeout, types.ErrorClassUnknown:
		return true
	default:
		return false
	}
}
