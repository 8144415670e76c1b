// Package gamev1 defines the wire messages of the game and admin RPC services.
package gamev1

// Notification kinds on the wire.
const (
	KindSessionStarted      = "session_started"
	KindClickAcknowledged   = "click_acknowledged"
	KindSessionEnded        = "session_ended"
	KindLeaderboardSnapshot = "leaderboard_snapshot"
	KindRejected            = "rejected"
)

// SessionKey identifies one player in one chat.
type SessionKey struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

// RegisterRequest attaches a display name to a session key.
type RegisterRequest struct {
	Key      SessionKey `json:"key"`
	Identity string     `json:"identity" validate:"required,max=64"`
}

// RegisterResponse reports the identity in effect after registration.
type RegisterResponse struct {
	SessionID string `json:"session_id"`
	Identity  string `json:"identity"`
	Phase     string `json:"phase"`
}

// StartRequest opens the play window.
type StartRequest struct {
	Key SessionKey `json:"key"`
}

// StartResponse carries the emitted notifications.
type StartResponse struct {
	Notifications []*Notification `json:"notifications"`
}

// ClickRequest is one button press. TimestampUnixMs is optional; the server
// clock is used when it is zero.
type ClickRequest struct {
	Key             SessionKey `json:"key"`
	TimestampUnixMs int64      `json:"timestamp_unix_ms,omitempty" validate:"gte=0"`
}

// ClickResponse carries the emitted notifications. It is empty when the
// click was ignored.
type ClickResponse struct {
	Notifications []*Notification `json:"notifications"`
}

// GetLeaderboardRequest asks for the top entries. Zero means the server default.
type GetLeaderboardRequest struct {
	Limit int `json:"limit,omitempty" validate:"gte=0"`
}

// GetLeaderboardResponse is one leaderboard snapshot.
type GetLeaderboardResponse struct {
	Leaderboard *Notification `json:"leaderboard"`
}

// SubscribeRequest opens a notification stream. A nil key subscribes to
// every session.
type SubscribeRequest struct {
	Key *SessionKey `json:"key,omitempty"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	Identity    string `json:"identity"`
	Score       int    `json:"score"`
	CommittedAt string `json:"committed_at"`
}

// Notification is an outbound game event.
type Notification struct {
	Kind       string     `json:"kind"`
	SequenceNo uint64     `json:"sequence_no"`
	Key        SessionKey `json:"key"`

	Deadline     string              `json:"deadline,omitempty"`
	CurrentScore int                 `json:"current_score,omitempty"`
	Identity     string              `json:"identity,omitempty"`
	FinalScore   int                 `json:"final_score,omitempty"`
	Entries      []*LeaderboardEntry `json:"entries,omitempty"`
	Stale        bool                `json:"stale,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	Message      string              `json:"message,omitempty"`
}
