package types

import (
	"context"
	"time"
)

// Default contention settings.
const (
	DefaultBusyTimeout = 1000 * time.Millisecond
	DefaultMaxRetries  = 5
	DefaultRetryDelay  = 5000 * time.Microsecond
)

// RetryPolicy bounds how often a contended engine call is retried and how long the
// caller sleeps between attempts. A policy is copied into every object derived from
// its owner; later changes to the owner do not reach objects already created.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy returns five retries spaced five milliseconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay}
}

// CanRetry reports whether another retry is allowed after tries retries.
func (p RetryPolicy) CanRetry(tries int) bool {
	return tries < p.MaxRetries
}

// Wait sleeps for the policy delay. It returns early with the context error when ctx
// is done first.
func (p RetryPolicy) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
