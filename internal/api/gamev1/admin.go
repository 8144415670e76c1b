package gamev1

// GetStatusRequest is the request for AdminService.GetStatus.
type GetStatusRequest struct{}

// GetStatusResponse reports server counters.
type GetStatusResponse struct {
	ActiveSessions int    `json:"active_sessions"`
	ArmedTimers    int    `json:"armed_timers"`
	PendingCommits int    `json:"pending_commits"`
	Subscribers    int    `json:"subscribers"`
	Store          string `json:"store"`
}

// ListSessionsRequest is the request for AdminService.ListSessions.
type ListSessionsRequest struct{}

// SessionInfo describes one live session.
type SessionInfo struct {
	Key       SessionKey `json:"key"`
	SessionID string     `json:"session_id"`
	Identity  string     `json:"identity"`
	Phase     string     `json:"phase"`
	Score     int        `json:"score"`
	Deadline  string     `json:"deadline,omitempty"`
}

// ListSessionsResponse lists live sessions.
type ListSessionsResponse struct {
	Sessions []*SessionInfo `json:"sessions"`
}

// FlushPendingRequest is the request for AdminService.FlushPending.
type FlushPendingRequest struct{}

// FlushPendingResponse reports the result of retrying queued commits.
type FlushPendingResponse struct {
	Success   bool   `json:"success"`
	Flushed   int    `json:"flushed"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message"`
}
