package reconnect

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/DoyleJ11/groupsync/internal/session"
	"github.com/DoyleJ11/groupsync/internal/transport"
)

// Policy controls how a dropped session is reconnected with exponential backoff.
type Policy struct {
	// MaxAttempts bounds consecutive failures; zero or less retries forever.
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultPolicy returns 10 attempts, 1s initial delay, 2x multiplier, 30s max delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  10,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// ShouldRetry reports whether err is retryable and attempt (1-indexed) is within budget.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return false
	}
	return Retryable(err)
}

// NextDelay is InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Retryable separates transient failures from permanent ones. A refused join, a closed
// session and cancellation are permanent; socket failures and anything unknown are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, transport.ErrJoinRejected) &&
		!errors.Is(err, session.ErrClosed) &&
		!errors.Is(err, context.Canceled)
}
