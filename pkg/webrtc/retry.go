package webrtc

import (
	"math/rand"
	"time"
)

// Clock schedules deferred work. The returned cancel is idempotent.
// A seam for tests to drive recovery without real timers.
type Clock interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

type realClock struct{}

func (realClock) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

func NewClock() Clock { return realClock{} }

// RetryPolicy bounds connection recovery: up to MaxRestarts ICE
// restarts with a delay growing linearly with the attempt number,
// then one destructive recreation after a randomized pause.
type RetryPolicy struct {
	MaxRestarts    int
	RestartDelay   time.Duration // multiplied by the attempt number
	RecreateMin    time.Duration
	RecreateSpread time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRestarts:    3,
		RestartDelay:   2 * time.Second,
		RecreateMin:    time.Second,
		RecreateSpread: 2 * time.Second,
	}
}

func (p RetryPolicy) RestartDelayFor(attempt int) time.Duration {
	return time.Duration(attempt) * p.RestartDelay
}

func (p RetryPolicy) RecreateDelay() time.Duration {
	if p.RecreateSpread <= 0 {
		return p.RecreateMin
	}
	return p.RecreateMin + time.Duration(rand.Int63n(int64(p.RecreateSpread)))
}

// Exhausted reports whether the attempt has gone past the restart
// budget and the peer should be rebuilt from scratch.
func (p RetryPolicy) Exhausted(attempt int) bool { return attempt > p.MaxRestarts }
