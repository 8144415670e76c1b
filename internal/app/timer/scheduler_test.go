package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := NewScheduler(Config{Resolution: 5 * time.Millisecond})
	t.Cleanup(s.Close)
	return s
}

func TestScheduler_ArmFires(t *testing.T) {
	s := newTestScheduler(t)

	fired := make(chan time.Time, 1)
	deadline := time.Now().Add(30 * time.Millisecond)
	s.Arm("k", deadline, func() { fired <- time.Now() })
	assert.Equal(t, 1, s.Pending())

	select {
	case at := <-fired:
		assert.False(t, at.Before(deadline), "fired before deadline")
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_PastDeadlineFiresImmediately(t *testing.T) {
	s := newTestScheduler(t)

	fired := make(chan struct{})
	s.Arm("k", time.Now().Add(-time.Second), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestScheduler_Cancel(t *testing.T) {
	s := newTestScheduler(t)

	var count atomic.Int32
	s.Arm("k", time.Now().Add(20*time.Millisecond), func() { count.Add(1) })

	assert.True(t, s.Cancel("k"))
	assert.False(t, s.Cancel("k"))
	assert.Equal(t, 0, s.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}

func TestScheduler_RearmReplacesPrevious(t *testing.T) {
	s := newTestScheduler(t)

	var first, second atomic.Int32
	s.Arm("k", time.Now().Add(20*time.Millisecond), func() { first.Add(1) })
	s.Arm("k", time.Now().Add(30*time.Millisecond), func() { second.Add(1) })
	assert.Equal(t, 1, s.Pending())

	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestHandle_StopRacesFire(t *testing.T) {
	s := newTestScheduler(t)

	for i := 0; i < 50; i++ {
		var count atomic.Int32
		h := s.Arm("k", time.Now(), func() { count.Add(1) })

		stopped := h.Stop()

		time.Sleep(15 * time.Millisecond)
		// Exactly one of fire/stop wins.
		if stopped {
			assert.Equal(t, int32(0), count.Load())
		} else {
			assert.Equal(t, int32(1), count.Load())
		}
	}
}

func TestScheduler_Close(t *testing.T) {
	s := NewScheduler(Config{Resolution: 5 * time.Millisecond})

	var count atomic.Int32
	for _, k := range []string{"a", "b", "c"} {
		s.Arm(k, time.Now().Add(50*time.Millisecond), func() { count.Add(1) })
	}
	require.Equal(t, 3, s.Pending())

	s.Close()
	assert.Equal(t, 0, s.Pending())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())

	// Arming after close never fires.
	h := s.Arm("d", time.Now(), func() { count.Add(1) })
	assert.False(t, h.Stop())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}
