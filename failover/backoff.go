package failover

import "time"

// linearBackOff grows the wait by step on every attempt and never exceeds maxDelay.
// It satisfies backoff.BackOff.
type linearBackOff struct {
	step     time.Duration
	maxDelay time.Duration
	attempt  int64
}

func newLinearBackOff(step, maxDelay time.Duration) *linearBackOff {
	return &linearBackOff{step: step, maxDelay: maxDelay}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := time.Duration(b.attempt) * b.step
	if b.maxDelay > 0 && d > b.maxDelay {
		return b.maxDelay
	}
	return d
}

func (b *linearBackOff) Reset() { b.attempt = 0 }
