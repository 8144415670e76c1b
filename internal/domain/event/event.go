// Package event defines the inbound game events and outbound notifications.
package event

import (
	"time"

	"github.com/osa030/chopbox/internal/domain/score"
	"github.com/osa030/chopbox/internal/domain/session"
)

// RegisterIdentity asks to attach a display name to a session key.
type RegisterIdentity struct {
	SessionKey   session.Key
	IdentityText string
}

// StartSession asks to open the play window.
type StartSession struct {
	SessionKey session.Key
}

// Click is one button press. A zero Timestamp means "now".
type Click struct {
	SessionKey session.Key
	Timestamp  time.Time
}

// QueryLeaderboard asks for the top entries. Limit <= 0 means the configured default.
type QueryLeaderboard struct {
	Limit int
}

// Kind represents the notification kind.
type Kind int

const (
	KindSessionStarted      Kind = iota // Play window opened
	KindClickAcknowledged               // Click counted
	KindSessionEnded                    // Score frozen and committed
	KindLeaderboardSnapshot             // Ranked entries
	KindRejected                        // User-flow rejection
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindSessionStarted:
		return "session_started"
	case KindClickAcknowledged:
		return "click_acknowledged"
	case KindSessionEnded:
		return "session_ended"
	case KindLeaderboardSnapshot:
		return "leaderboard_snapshot"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Reason is the rejection code carried by a Rejected notification.
type Reason string

const (
	ReasonNotRegistered  Reason = "not_registered"
	ReasonAlreadyPlaying Reason = "already_playing"
	ReasonNotFound       Reason = "not_found"
	ReasonInternal       Reason = "internal"
)

// Notification is an outbound event for the transport to render.
// Only the fields relevant to Kind are set.
type Notification struct {
	Kind       Kind
	SequenceNo uint64 // Assigned by the notification manager
	SessionKey session.Key

	Deadline     time.Time     // SessionStarted
	CurrentScore int           // ClickAcknowledged
	Identity     string        // SessionEnded
	FinalScore   int           // SessionEnded
	Entries      []score.Entry // LeaderboardSnapshot
	Stale        bool          // LeaderboardSnapshot served from cache
	Reason       Reason        // Rejected
}

// SessionStarted builds a SessionStarted notification.
func SessionStarted(key session.Key, deadline time.Time) Notification {
	return Notification{Kind: KindSessionStarted, SessionKey: key, Deadline: deadline}
}

// ClickAcknowledged builds a ClickAcknowledged notification.
func ClickAcknowledged(key session.Key, currentScore int) Notification {
	return Notification{Kind: KindClickAcknowledged, SessionKey: key, CurrentScore: currentScore}
}

// SessionEnded builds a SessionEnded notification.
func SessionEnded(key session.Key, identity string, finalScore int) Notification {
	return Notification{Kind: KindSessionEnded, SessionKey: key, Identity: identity, FinalScore: finalScore}
}

// LeaderboardSnapshot builds a LeaderboardSnapshot notification.
// The key is set when the snapshot follows a finished session.
func LeaderboardSnapshot(key session.Key, entries []score.Entry, stale bool) Notification {
	return Notification{Kind: KindLeaderboardSnapshot, SessionKey: key, Entries: entries, Stale: stale}
}

// Rejected builds a Rejected notification.
func Rejected(key session.Key, reason Reason) Notification {
	return Notification{Kind: KindRejected, SessionKey: key, Reason: reason}
}
