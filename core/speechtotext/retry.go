package speechtotext

import "time"

// RetryPolicy bounds reconnection after an unclean close.
type RetryPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Initial: 2 * time.Second, Max: 10 * time.Second, MaxAttempts: 3}
}

// Backoff is the retry state machine: it hands out doubling, capped delays
// until the attempt budget is spent.
type Backoff struct {
	policy   RetryPolicy
	attempts int
}

func NewBackoff(policy RetryPolicy) *Backoff {
	if policy.Initial <= 0 {
		policy.Initial = DefaultRetryPolicy().Initial
	}
	if policy.Max < policy.Initial {
		policy.Max = policy.Initial
	}
	return &Backoff{policy: policy}
}

// Next records an attempt and returns the delay to wait before it. ok is
// false once MaxAttempts have been handed out.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	if b.Exhausted() {
		return 0, false
	}

	delay = b.policy.Initial
	for i := 0; i < b.attempts && delay < b.policy.Max; i++ {
		delay *= 2
	}
	b.attempts++
	return min(delay, b.policy.Max), true
}

func (b *Backoff) Exhausted() bool {
	return b.attempts >= b.policy.MaxAttempts
}

func (b *Backoff) Attempts() int {
	return b.attempts
}

func (b *Backoff) Reset() {
	b.attempts = 0
}
