// Package notification provides the notification manager for fanning out game events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/chopbox/internal/domain/event"
	"github.com/osa030/chopbox/internal/domain/session"
)

// DefaultSendTimeout bounds a single subscriber send.
const DefaultSendTimeout = 500 * time.Millisecond

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(event.Notification) error
}

// Filter selects which notifications a subscriber receives.
type Filter struct {
	// Key limits delivery to one session. Leaderboard snapshots not tied to a
	// session are always delivered.
	Key *session.Key
}

func (f Filter) matches(n event.Notification) bool {
	if f.Key == nil {
		return true
	}
	if n.Kind == event.KindLeaderboardSnapshot && n.SessionKey == (session.Key{}) {
		return true
	}
	return n.SessionKey == *f.Key
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
	filter Filter
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   DefaultSendTimeout,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream, filter Filter) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
		filter: filter,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Stamp assigns the next sequence number to n without delivering it.
// Callers that stamp under a lock and deliver after releasing it keep
// per-session ordering recoverable from SequenceNo.
func (m *Manager) Stamp(n event.Notification) event.Notification {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	n.SequenceNo = m.sequenceNo
	return n
}

// Publish stamps n and delivers it. It returns the stamped notification.
func (m *Manager) Publish(n event.Notification) event.Notification {
	n = m.Stamp(n)
	m.Deliver(n)
	return n
}

// Deliver sends n to every matching subscriber. Sends run in parallel,
// each bounded by the send timeout.
func (m *Manager) Deliver(n event.Notification) {
	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.filter.matches(n) {
			subs = append(subs, sub)
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification send failed: subscription=%s kind=%s err=%v", s.id, n.Kind, err)
				}
			case <-ctx.Done():
				zlog.Warn().Msgf("notification send timed out: subscription=%s kind=%s", s.id, n.Kind)
			}
		}(sub)
	}

	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
