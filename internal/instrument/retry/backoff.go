// Package retry is the Retry Orchestrator (C8): the attempt loop that turns
// a failed fast-path or slow-path attempt into a repair prompt carrying
// Learning Store context, regenerates, re-applies, and re-validates, up to a
// ceiling, with exponential backoff and model escalation between attempts.
package retry

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes the delay before attempt n (1-indexed), generalized
// from an exponential-backoff-with-jitter helper: base * 2^(n-1), capped,
// with up to ±jitterFraction randomization
// so many concurrently-retrying files don't all wake up in lockstep.
type BackoffPolicy struct {
	Base           time.Duration
	Max            time.Duration
	JitterFraction float64
	rng            *rand.Rand
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:           500 * time.Millisecond,
		Max:            20 * time.Second,
		JitterFraction: 0.2,
	}
}

// Delay returns the backoff duration before attempt n (n>=1).
func (p BackoffPolicy) Delay(n int, rng *rand.Rand) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.Base
	for i := 1; i < n; i++ {
		d *= 2
		if d > p.Max {
			d = p.Max
			break
		}
	}
	if p.JitterFraction <= 0 {
		return d
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(n)))
	}
	jitter := float64(d) * p.JitterFraction
	offset := (rng.Float64()*2 - 1) * jitter
	result := float64(d) + offset
	if result < 0 {
		result = 0
	}
	return time.Duration(result)
}
