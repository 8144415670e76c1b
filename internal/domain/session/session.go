package session

import (
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotRegistered   = errors.New("session is not registered")
	ErrAlreadyPlaying  = errors.New("session is already playing")
	ErrNotActive       = errors.New("session is not active")
	ErrSessionFinished = errors.New("session is finished")
	ErrEmptyIdentity   = errors.New("identity is empty")
	ErrInvalidDuration = errors.New("duration must be positive")
)

// ClickOutcome describes what a click did to the session.
type ClickOutcome int

const (
	ClickIgnored  ClickOutcome = iota // Session not active, nothing changed
	ClickAccepted                     // Score incremented
	ClickExpired                      // Deadline passed, session finished instead
)

// String returns the string representation of the outcome.
func (o ClickOutcome) String() string {
	switch o {
	case ClickIgnored:
		return "ignored"
	case ClickAccepted:
		return "accepted"
	case ClickExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ClickResult is returned by RecordClick.
type ClickResult struct {
	Outcome ClickOutcome
	Score   int
	// Transitioned is true only for the click that moved the session to Finished.
	Transitioned bool
}

// FinishResult is returned by Finish.
type FinishResult struct {
	Score        int
	Transitioned bool
}

// State is one player's session. It is not safe for concurrent use;
// callers serialize access per key (see the registry package).
type State struct {
	ID         string
	Key        Key
	identity   Identity
	phase      Phase
	score      int
	startedAt  time.Time
	deadline   time.Time
	finishedAt time.Time
}

// New creates an unregistered session.
func New(id string, key Key) *State {
	return &State{
		ID:       id,
		Key:      key,
		identity: NoIdentity,
		phase:    PhaseUnregistered,
	}
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	return s.phase
}

// Identity returns the registered identity (NoIdentity before registration).
func (s *State) Identity() Identity {
	return s.identity
}

// Score returns the current score.
func (s *State) Score() int {
	return s.score
}

// Deadline returns the end of the play window. Zero before Begin.
func (s *State) Deadline() time.Time {
	return s.deadline
}

// Register sets the identity and moves to Idle.
// Once past Unregistered it is a no-op: the first registration wins.
func (s *State) Register(identity Identity) error {
	if s.phase != PhaseUnregistered {
		return nil
	}
	if !identity.IsSet() {
		return ErrEmptyIdentity
	}
	s.identity = identity
	s.phase = PhaseIdle
	return nil
}

// Begin starts the play window at now and returns the deadline.
func (s *State) Begin(now time.Time, duration time.Duration) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, ErrInvalidDuration
	}

	switch s.phase {
	case PhaseUnregistered:
		return time.Time{}, ErrNotRegistered
	case PhaseActive:
		return time.Time{}, ErrAlreadyPlaying
	case PhaseFinished:
		return time.Time{}, ErrSessionFinished
	}

	if !s.identity.IsSet() {
		return time.Time{}, ErrNotRegistered
	}

	s.score = 0
	s.startedAt = now
	s.deadline = now.Add(duration)
	s.phase = PhaseActive
	return s.deadline, nil
}

// RecordClick counts a click observed at now.
// A click at exactly the deadline still counts; a later one finishes the session.
func (s *State) RecordClick(now time.Time) ClickResult {
	if s.phase != PhaseActive {
		return ClickResult{Outcome: ClickIgnored, Score: s.score}
	}

	if now.After(s.deadline) {
		res, _ := s.Finish(now)
		return ClickResult{Outcome: ClickExpired, Score: res.Score, Transitioned: res.Transitioned}
	}

	s.score++
	return ClickResult{Outcome: ClickAccepted, Score: s.score}
}

// Finish freezes the score. Repeated calls return the frozen score with
// Transitioned=false.
func (s *State) Finish(now time.Time) (FinishResult, error) {
	switch s.phase {
	case PhaseFinished:
		return FinishResult{Score: s.score}, nil
	case PhaseActive:
		s.phase = PhaseFinished
		s.finishedAt = now
		return FinishResult{Score: s.score, Transitioned: true}, nil
	default:
		return FinishResult{}, ErrNotActive
	}
}

// Snapshot is an immutable copy of a session, safe to use after the key lock is released.
type Snapshot struct {
	ID         string
	Key        Key
	Identity   Identity
	Phase      Phase
	Score      int
	StartedAt  time.Time
	Deadline   time.Time
	FinishedAt time.Time
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		ID:         s.ID,
		Key:        s.Key,
		Identity:   s.identity,
		Phase:      s.phase,
		Score:      s.score,
		StartedAt:  s.startedAt,
		Deadline:   s.deadline,
		FinishedAt: s.finishedAt,
	}
}
