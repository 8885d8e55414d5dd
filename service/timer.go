package service

import (
	"sync"
	"time"
)

// TickSource produces the one-second ticks of the resend countdown.
type TickSource func(interval time.Duration) (c <-chan time.Time, stop func())

// RealTicks is the TickSource backed by time.Ticker.
func RealTicks(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// ResendTimer gates when a new code may be requested. Each Start gets a new
// token, and ticks carrying an older token are dropped, so a cancelled
// countdown never fires into a newer one.
type ResendTimer struct {
	mu        sync.Mutex
	cooldown  time.Duration
	remaining time.Duration
	running   bool
	token     uint64
	stop      func()
	ticks     TickSource
}

// NewResendTimer creates a timer. A nil TickSource means the countdown only
// moves through Advance.
func NewResendTimer(cooldown time.Duration, ticks TickSource) *ResendTimer {
	return &ResendTimer{cooldown: cooldown, ticks: ticks}
}

// Start resets the countdown to the full cooldown.
func (t *ResendTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.token++
	t.remaining = t.cooldown
	t.running = t.remaining > 0
	if !t.running || t.ticks == nil {
		return
	}
	c, stopTicker := t.ticks(time.Second)
	done := make(chan struct{})
	t.stop = func() {
		stopTicker()
		close(done)
	}
	go t.run(t.token, c, done)
}

func (t *ResendTimer) run(token uint64, c <-chan time.Time, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-c:
			if !t.tick(token) {
				return
			}
		}
	}
}

// tick moves the countdown of the given token by one second and reports whether it keeps running.
func (t *ResendTimer) tick(token uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if token != t.token || !t.running {
		return false
	}
	t.remaining -= time.Second
	if t.remaining <= 0 {
		t.remaining = 0
		t.running = false
		t.cancelLocked()
		return false
	}
	return true
}

// Advance simulates d worth of ticks.
func (t *ResendTimer) Advance(d time.Duration) {
	for i := time.Duration(0); i < d/time.Second; i++ {
		t.mu.Lock()
		token := t.token
		t.mu.Unlock()
		if !t.tick(token) {
			return
		}
	}
}

// Cancel stops the countdown. The remaining time is kept.
func (t *ResendTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.running = false
	t.token++
}

func (t *ResendTimer) cancelLocked() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
}

func (t *ResendTimer) CanResend() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining <= 0
}

func (t *ResendTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}
