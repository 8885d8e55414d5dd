package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResendTimerManual(t *testing.T) {
	timer := NewResendTimer(60*time.Second, nil)
	timer.Start()
	assert.False(t, timer.CanResend())
	assert.Equal(t, 60*time.Second, timer.Remaining())

	timer.Advance(59 * time.Second)
	assert.False(t, timer.CanResend())
	assert.Equal(t, time.Second, timer.Remaining())

	timer.Advance(time.Second)
	assert.True(t, timer.CanResend())
	assert.Equal(t, time.Duration(0), timer.Remaining())

	// a restart begins a full cooldown again
	timer.Start()
	assert.False(t, timer.CanResend())
	timer.Advance(30 * time.Second)
	assert.Equal(t, 30*time.Second, timer.Remaining())
}

func TestResendTimerCancel(t *testing.T) {
	timer := NewResendTimer(10*time.Second, nil)
	timer.Start()
	timer.Advance(4 * time.Second)
	timer.Cancel()
	timer.Advance(20 * time.Second)
	assert.Equal(t, 6*time.Second, timer.Remaining())
	assert.False(t, timer.CanResend())
}

// fakeTicks hands out channels the test can fire by hand.
type fakeTicks struct {
	chans   []chan time.Time
	stopped int
}

func (f *fakeTicks) source(time.Duration) (<-chan time.Time, func()) {
	c := make(chan time.Time)
	f.chans = append(f.chans, c)
	return c, func() { f.stopped++ }
}

func TestResendTimerTicks(t *testing.T) {
	ticks := &fakeTicks{}
	timer := NewResendTimer(3*time.Second, ticks.source)
	timer.Start()
	first := ticks.chans[0]
	first <- time.Now()
	first <- time.Now()
	assert.Eventually(t, func() bool { return timer.Remaining() == time.Second }, time.Second, time.Millisecond)

	// restarting stops the old ticker and ignores it from then on
	timer.Start()
	assert.Len(t, ticks.chans, 2)
	assert.Equal(t, 3*time.Second, timer.Remaining())
	second := ticks.chans[1]
	for i := 0; i < 3; i++ {
		second <- time.Now()
	}
	assert.Eventually(t, timer.CanResend, time.Second, time.Millisecond)
}
