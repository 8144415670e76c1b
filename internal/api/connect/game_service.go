package connect

import (
	"context"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	gamev1 "github.com/osa030/chopbox/internal/api/gamev1"
	"github.com/osa030/chopbox/internal/api/gamev1/gamev1connect"
	"github.com/osa030/chopbox/internal/app/notification"
	"github.com/osa030/chopbox/internal/domain/event"
	"github.com/osa030/chopbox/internal/domain/session"
	"github.com/osa030/chopbox/internal/infra/config"
	"github.com/osa030/chopbox/internal/infra/scorestore"
)

// Game is the game service as seen by the RPC layer.
type Game interface {
	Register(ev event.RegisterIdentity) (session.Snapshot, error)
	Start(ev event.StartSession) []event.Notification
	Click(ev event.Click) []event.Notification
	Leaderboard(ctx context.Context, q event.QueryLeaderboard) (event.Notification, error)
	Done() <-chan struct{}
}

// Subscriptions registers notification streams.
type Subscriptions interface {
	Subscribe(stream notification.Stream, filter notification.Filter) string
	Unsubscribe(subscriptionID string)
}

// GameService implements the GameService RPC.
type GameService struct {
	game          Game
	subscriptions Subscriptions
	config        *config.Config
	validate      *validator.Validate
}

// NewGameService creates a new GameService.
func NewGameService(game Game, subscriptions Subscriptions, cfg *config.Config) *GameService {
	return &GameService{
		game:          game,
		subscriptions: subscriptions,
		config:        cfg,
		validate:      validator.New(),
	}
}

// Ensure GameService implements the interface.
var _ gamev1connect.GameServiceHandler = (*GameService)(nil)

// Register handles identity registration.
func (s *GameService) Register(
	ctx context.Context,
	req *connect.Request[gamev1.RegisterRequest],
) (*connect.Response[gamev1.RegisterResponse], error) {
	if err := s.validate.Struct(req.Msg); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	snap, err := s.game.Register(event.RegisterIdentity{
		SessionKey:   toKey(req.Msg.Key),
		IdentityText: req.Msg.Identity,
	})
	if err != nil {
		if errors.Is(err, session.ErrEmptyIdentity) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&gamev1.RegisterResponse{
		SessionID: snap.ID,
		Identity:  snap.Identity.String(),
		Phase:     snap.Phase.String(),
	}), nil
}

// Start handles session start requests.
func (s *GameService) Start(
	ctx context.Context,
	req *connect.Request[gamev1.StartRequest],
) (*connect.Response[gamev1.StartResponse], error) {
	out := s.game.Start(event.StartSession{SessionKey: toKey(req.Msg.Key)})
	return connect.NewResponse(&gamev1.StartResponse{
		Notifications: toNotifications(out, s.config),
	}), nil
}

// Click handles one button press.
func (s *GameService) Click(
	ctx context.Context,
	req *connect.Request[gamev1.ClickRequest],
) (*connect.Response[gamev1.ClickResponse], error) {
	if err := s.validate.Struct(req.Msg); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	ev := event.Click{SessionKey: toKey(req.Msg.Key)}
	if req.Msg.TimestampUnixMs > 0 {
		ev.Timestamp = time.UnixMilli(req.Msg.TimestampUnixMs)
	}

	out := s.game.Click(ev)
	return connect.NewResponse(&gamev1.ClickResponse{
		Notifications: toNotifications(out, s.config),
	}), nil
}

// GetLeaderboard returns the current top entries.
func (s *GameService) GetLeaderboard(
	ctx context.Context,
	req *connect.Request[gamev1.GetLeaderboardRequest],
) (*connect.Response[gamev1.GetLeaderboardResponse], error) {
	if err := s.validate.Struct(req.Msg); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	board, err := s.game.Leaderboard(ctx, event.QueryLeaderboard{Limit: req.Msg.Limit})
	if err != nil {
		switch {
		case scorestore.IsUnavailable(err):
			return nil, connect.NewError(connect.CodeUnavailable, err)
		case errors.Is(err, context.Canceled):
			return nil, connect.NewError(connect.CodeCanceled, err)
		default:
			return nil, connect.NewError(connect.CodeInternal, err)
		}
	}

	return connect.NewResponse(&gamev1.GetLeaderboardResponse{
		Leaderboard: toNotification(board, s.config),
	}), nil
}

// Subscribe streams notifications until the client goes away or the
// service shuts down.
func (s *GameService) Subscribe(
	ctx context.Context,
	req *connect.Request[gamev1.SubscribeRequest],
	stream *connect.ServerStream[gamev1.Notification],
) error {
	var filter notification.Filter
	if req.Msg.Key != nil {
		key := toKey(*req.Msg.Key)
		filter.Key = &key
	}

	adapter := &notificationStreamAdapter{stream: stream, config: s.config}
	subscriptionID := s.subscriptions.Subscribe(adapter, filter)
	zlog.Debug().Msgf("subscriber attached: subscription=%s", subscriptionID)

	// Wait for context cancellation or service shutdown
	select {
	case <-ctx.Done():
	case <-s.game.Done():
	}

	// Unsubscribe when done
	s.subscriptions.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("subscriber detached: subscription=%s", subscriptionID)

	return nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Sends are serialized; the stream is not safe for concurrent use.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[gamev1.Notification]
	config *config.Config
}

func (a *notificationStreamAdapter) Send(n event.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(toNotification(n, a.config))
}
