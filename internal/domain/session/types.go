// Package session provides the click-session domain entity and its state machine.
package session

import (
	"strconv"
	"strings"
)

// Phase represents the session lifecycle phase.
type Phase int

const (
	PhaseUnregistered Phase = iota // No identity yet
	PhaseIdle                      // Registered, waiting for start
	PhaseActive                    // Clicks are being counted
	PhaseFinished                  // Score frozen (terminal)
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseUnregistered:
		return "unregistered"
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Key addresses one session: a user inside a chat.
type Key struct {
	ChatID int64
	UserID int64
}

// String returns the "chat:user" form used in logs and lock names.
func (k Key) String() string {
	return strconv.FormatInt(k.ChatID, 10) + ":" + strconv.FormatInt(k.UserID, 10)
}

// Identity is the display name a player registers with.
// The zero value is the unregistered variant.
type Identity struct {
	name string
}

// NoIdentity is the identity of a session that has not registered yet.
var NoIdentity = Identity{}

// NewIdentity trims the given text and returns it as an identity.
// Blank text yields NoIdentity.
func NewIdentity(text string) Identity {
	return Identity{name: strings.TrimSpace(text)}
}

// IsSet reports whether the identity carries a name.
func (i Identity) IsSet() bool {
	return i.name != ""
}

// String returns the display name.
func (i Identity) String() string {
	return i.name
}
