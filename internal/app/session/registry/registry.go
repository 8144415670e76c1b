// Package registry provides the in-memory session registry with per-key locking.
package registry

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/chopbox/internal/domain/session"
)

var ErrNotFound = errors.New("session not found")

// SessionRegistry maps session keys to session state.
//
// Map access is guarded by a registry-wide RWMutex held only for the map
// operation itself. State mutation is serialized per key through Lock:
// callers hold the key lock across Get/GetOrCreate, the state transition and
// Remove, so a click and an expiry for the same key never interleave while
// unrelated keys proceed in parallel.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[session.Key]*session.State

	locks *keyedMutex
}

// NewSessionRegistry creates a new session registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[session.Key]*session.State),
		locks:    newKeyedMutex(),
	}
}

// Lock acquires the exclusive lock for key and returns its release func.
func (r *SessionRegistry) Lock(key session.Key) (unlock func()) {
	return r.locks.lock(key)
}

// GetOrCreate returns the session for key, creating an unregistered one if absent.
// The caller must hold the key lock.
func (r *SessionRegistry) GetOrCreate(key session.Key) *session.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s
	}
	s := session.New(uuid.New().String(), key)
	r.sessions[key] = s
	return s
}

// Get retrieves the session for key.
func (r *SessionRegistry) Get(key session.Key) (*session.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove deletes the session for key if its generation matches id.
// An empty id removes unconditionally. It reports whether an entry was removed.
func (r *SessionRegistry) Remove(key session.Key, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return false
	}
	if id != "" && s.ID != id {
		return false
	}
	delete(r.sessions, key)
	return true
}

// Count returns the number of sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshots returns a copy of every session, taking each key lock in turn.
func (r *SessionRegistry) Snapshots() []session.Snapshot {
	r.mu.RLock()
	keys := make([]session.Key, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	result := make([]session.Snapshot, 0, len(keys))
	for _, k := range keys {
		unlock := r.Lock(k)
		if s, err := r.Get(k); err == nil {
			result = append(result, s.Snapshot())
		}
		unlock()
	}
	return result
}

// keyedMutex hands out one mutex per key and frees it when the last holder
// or waiter releases it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[session.Key]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[session.Key]*refMutex)}
}

func (k *keyedMutex) lock(key session.Key) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

// size returns the number of live key mutexes.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
