package amqp

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// breaker opens after maxFailures consecutive publish failures and lets one
// trial through once cooldown has passed. A failed trial reopens it. A trial
// that never reports back is replaced after another cooldown.
type breaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time
	trialStart  time.Time

	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	return &breaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

// allow reports whether a call may go ahead, moving an open breaker to
// half-open when its cooldown is over.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case stateClosed:
		return true
	case stateHalfOpen:
		if now.Sub(b.trialStart) <= b.cooldown {
			return false
		}
	default:
		if now.Sub(b.lastFailure) <= b.cooldown {
			return false
		}
		b.state = stateHalfOpen
	}
	b.trialStart = now
	return true
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.maxFailures || b.state == stateHalfOpen {
		b.state = stateOpen
	}
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = stateClosed
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
