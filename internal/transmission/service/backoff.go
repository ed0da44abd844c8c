package service

import (
	"math/rand/v2"
	"time"
)

// BackoffPolicy computes the wait before the next attempt:
// min(base * 2^(n-1) + jitter, cap) with jitter uniform in [0, base).
type BackoffPolicy struct {
	Base time.Duration
	Cap  time.Duration

	// jitter overrides the random source in tests.
	jitter func(max time.Duration) time.Duration
}

func NewBackoffPolicy(base, cap time.Duration) BackoffPolicy {
	return BackoffPolicy{Base: base, Cap: cap}
}

// Delay returns the wait after the attempt-th failed attempt (1-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.Cap {
			delay = p.Cap
			break
		}
	}

	delay += p.jitterIn(p.Base)
	if delay > p.Cap {
		delay = p.Cap
	}
	return delay
}

func (p BackoffPolicy) jitterIn(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	if p.jitter != nil {
		return p.jitter(max)
	}
	return time.Duration(rand.Int64N(int64(max)))
}
