// Package timer provides the per-session expiry scheduler.
package timer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// DefaultResolution is the wall-clock polling interval used when none is configured.
const DefaultResolution = 100 * time.Millisecond

// Config holds scheduler configuration.
type Config struct {
	Resolution time.Duration    // Wall-clock polling interval
	Now        func() time.Time // Clock; time.Now when nil
}

// Handle is one armed expiry. Fire and Stop race on a single flag, so the
// callback runs at most once and never after a successful Stop.
type Handle struct {
	key      string
	deadline time.Time
	done     atomic.Bool
	cancel   context.CancelFunc
}

// Deadline returns the time the handle fires at.
func (h *Handle) Deadline() time.Time {
	return h.deadline
}

// Stop cancels the handle. It reports whether the callback was prevented.
func (h *Handle) Stop() bool {
	if !h.done.CompareAndSwap(false, true) {
		return false
	}
	h.cancel()
	return true
}

// Scheduler arms one expiry per key.
type Scheduler struct {
	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool

	config Config
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler.
func NewScheduler(config Config) *Scheduler {
	if config.Resolution <= 0 {
		config.Resolution = DefaultResolution
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Scheduler{
		handles: make(map[string]*Handle),
		config:  config,
	}
}

// Arm schedules fn to run on its own goroutine once the wall clock passes deadline.
// A handle already armed for key is stopped first.
func (s *Scheduler) Arm(key string, deadline time.Time, fn func()) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		key:      key,
		deadline: toWallTime(deadline),
		cancel:   cancel,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.done.Store(true)
		cancel()
		return h
	}
	if prev, ok := s.handles[key]; ok {
		prev.Stop()
	}
	s.handles[key] = h
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, h, fn)

	zlog.Debug().Msgf("expiry armed: key=%s deadline=%s", key, deadline.Format(time.RFC3339Nano))
	return h
}

// Cancel stops the handle armed for key, if any.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	h, ok := s.handles[key]
	if ok {
		delete(s.handles, key)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	return h.Stop()
}

// Pending returns the number of armed handles.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close stops every handle and waits for running callbacks to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	handles := s.handles
	s.handles = make(map[string]*Handle)
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, h *Handle, fn func()) {
	defer s.wg.Done()
	defer s.release(h)

	// Sleep most of the way, then poll the wall clock so a skewed
	// monotonic clock cannot delay expiry.
	if wait := h.deadline.Sub(toWallTime(s.config.Now())) - s.config.Resolution; wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	ticker := time.NewTicker(s.config.Resolution)
	defer ticker.Stop()

	for {
		if toWallTime(s.config.Now()).After(h.deadline) {
			s.fire(h, fn)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) fire(h *Handle, fn func()) {
	if !h.done.CompareAndSwap(false, true) {
		return
	}
	s.release(h)

	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("expiry callback panicked: key=%s panic=%v", h.key, r)
		}
	}()
	fn()
}

// release forgets h unless key has been re-armed since.
func (s *Scheduler) release(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.handles[h.key]; ok && cur == h {
		delete(s.handles, h.key)
	}
}

// toWallTime returns the time with the monotonic clock reading stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
