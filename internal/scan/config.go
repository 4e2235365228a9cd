// Package scan implements the scan orchestration and report aggregation
// engine: job fan-out, the retryable job state machine, the shared worker
// pool and the report snapshot computation.
package scan

import (
	"math"
	"math/rand"
	"time"
)

// Config holds the scan engine parameters. The zero value is usable;
// missing fields fall back to the defaults below.
type Config struct {
	Workers      int           // Shared worker pool size across all reports
	QueueSize    int           // Ready-queue capacity
	MaxAttempts  int           // Attempts before a retryable failure is terminal
	BackoffBase  time.Duration // Delay after the first failed attempt
	BackoffCap   time.Duration // Ceiling for retry delays
	JitterFactor float64       // ±fraction of jitter applied to delays
	CallTimeout  time.Duration // Per provider call deadline
}

// Defaults applied by withDefaults
const (
	DefaultWorkers      = 16
	DefaultQueueSize    = 1024
	DefaultMaxAttempts  = 3
	DefaultBackoffBase  = 500 * time.Millisecond
	DefaultBackoffCap   = 30 * time.Second
	DefaultJitterFactor = 0.2
	DefaultCallTimeout  = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return c
}

// backoffDelay calculates the delay before re-claiming a job that just
// failed its n-th attempt: base * 2^(attempt-1), capped, with ± jitter
// to avoid thundering-herd retries against a recovering provider.
func backoffDelay(base, ceiling time.Duration, jitterFactor float64, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(ceiling) {
		delay = float64(ceiling)
	}

	if jitterFactor > 0 {
		jitter := (rand.Float64()*2 - 1) * jitterFactor * delay
		delay += jitter
		if delay < 0 {
			delay = 0
		}
	}

	return time.Duration(delay)
}
