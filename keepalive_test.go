package mqttcore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingSchedulerFiresAtHalfKeepAlive(t *testing.T) {
	var mu sync.Mutex
	var fired []time.Time
	start := time.Now()

	// keepAlive of 1s pings every 500ms.
	s := newPingScheduler(1, func() {
		mu.Lock()
		fired = append(fired, time.Now())
		mu.Unlock()
	})
	defer s.Stop()

	time.Sleep(1200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(fired), 2, "two pings within 1.2s at a 500ms period")

	first := fired[0].Sub(start)
	assert.InDelta(t, 500, first.Milliseconds(), 200, "first ping near t=500ms")
	second := fired[1].Sub(start)
	assert.InDelta(t, 1000, second.Milliseconds(), 300, "second ping near t=1s")
}

func TestPingSchedulerZeroKeepAliveNeverFires(t *testing.T) {
	var fired int
	s := newPingScheduler(0, func() { fired++ })
	defer s.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, fired)
}

func TestPingSchedulerStop(t *testing.T) {
	var mu sync.Mutex
	count := 0
	s := newPingSchedulerInterval(30*time.Millisecond, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)
	s.Stop()

	mu.Lock()
	stopped := count
	mu.Unlock()
	require.Greater(t, stopped, 0)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, stopped, count, "no fires after Stop")
}

func TestIdleTimerExpiresAtOneAndAHalfKeepAlive(t *testing.T) {
	expired := make(chan time.Time, 1)
	start := time.Now()

	timer := NewIdleTimer(1, func() { expired <- time.Now() })
	defer timer.Stop()

	select {
	case at := <-expired:
		assert.InDelta(t, 1500, at.Sub(start).Milliseconds(), 300)
	case <-time.After(3 * time.Second):
		t.Fatal("idle timer never fired")
	}
}

func TestIdleTimerResetDefersExpiry(t *testing.T) {
	expired := make(chan struct{}, 1)
	timer := NewIdleTimer(1, func() { close(expired) })
	defer timer.Stop()

	// Keep resetting for longer than the 1.5s window.
	for i := 0; i < 4; i++ {
		time.Sleep(500 * time.Millisecond)
		select {
		case <-expired:
			t.Fatal("expired despite activity")
		default:
		}
		timer.Reset()
	}

	select {
	case <-expired:
	case <-time.After(3 * time.Second):
		t.Fatal("idle timer never fired after activity stopped")
	}
}

func TestIdleTimerZeroKeepAliveNeverExpires(t *testing.T) {
	fired := false
	timer := NewIdleTimer(0, func() { fired = true })
	defer timer.Stop()

	time.Sleep(150 * time.Millisecond)
	timer.Reset()
	assert.False(t, fired)
}
