package connect

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	gamev1 "github.com/osa030/chopbox/internal/api/gamev1"
	"github.com/osa030/chopbox/internal/api/gamev1/gamev1connect"
	"github.com/osa030/chopbox/internal/app/game"
	"github.com/osa030/chopbox/internal/domain/session"
)

// Admin is the game service as seen by the admin RPC layer.
type Admin interface {
	Status() game.Status
	Sessions() []session.Snapshot
	FlushPending(ctx context.Context) (int, error)
}

// AdminService implements the AdminService RPC.
type AdminService struct {
	admin Admin
}

// NewAdminService creates a new AdminService.
func NewAdminService(admin Admin) *AdminService {
	return &AdminService{admin: admin}
}

// Ensure AdminService implements the interface.
var _ gamev1connect.AdminServiceHandler = (*AdminService)(nil)

// GetStatus returns the current service status.
func (s *AdminService) GetStatus(
	ctx context.Context,
	req *connect.Request[gamev1.GetStatusRequest],
) (*connect.Response[gamev1.GetStatusResponse], error) {
	status := s.admin.Status()

	return connect.NewResponse(&gamev1.GetStatusResponse{
		ActiveSessions: status.ActiveSessions,
		ArmedTimers:    status.ArmedTimers,
		PendingCommits: status.PendingCommits,
		Subscribers:    status.Subscribers,
		Store:          status.Store,
	}), nil
}

// ListSessions lists all live sessions.
func (s *AdminService) ListSessions(
	ctx context.Context,
	req *connect.Request[gamev1.ListSessionsRequest],
) (*connect.Response[gamev1.ListSessionsResponse], error) {
	snaps := s.admin.Sessions()
	infos := make([]*gamev1.SessionInfo, len(snaps))

	for i, snap := range snaps {
		infos[i] = &gamev1.SessionInfo{
			Key:       fromKey(snap.Key),
			SessionID: snap.ID,
			Identity:  snap.Identity.String(),
			Phase:     snap.Phase.String(),
			Score:     snap.Score,
			Deadline:  formatTime(snap.Deadline),
		}
	}

	return connect.NewResponse(&gamev1.ListSessionsResponse{
		Sessions: infos,
	}), nil
}

// FlushPending retries queued score commits.
func (s *AdminService) FlushPending(
	ctx context.Context,
	req *connect.Request[gamev1.FlushPendingRequest],
) (*connect.Response[gamev1.FlushPendingResponse], error) {
	flushed, err := s.admin.FlushPending(ctx)
	remaining := s.admin.Status().PendingCommits
	if err != nil {
		return connect.NewResponse(&gamev1.FlushPendingResponse{
			Success:   false,
			Flushed:   flushed,
			Remaining: remaining,
			Message:   err.Error(),
		}), nil
	}

	return connect.NewResponse(&gamev1.FlushPendingResponse{
		Success:   true,
		Flushed:   flushed,
		Remaining: remaining,
		Message:   fmt.Sprintf("Flushed %d pending commits", flushed),
	}), nil
}
