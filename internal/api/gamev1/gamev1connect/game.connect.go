// Package gamev1connect wires the gamev1 messages to connect handlers and clients.
package gamev1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	gamev1 "github.com/osa030/chopbox/internal/api/gamev1"
)

const (
	// GameServiceName is the fully-qualified name of the GameService service.
	GameServiceName = "chopbox.game.v1.GameService"
	// AdminServiceName is the fully-qualified name of the AdminService service.
	AdminServiceName = "chopbox.game.v1.AdminService"
)

// Procedure paths.
const (
	GameServiceRegisterProcedure       = "/chopbox.game.v1.GameService/Register"
	GameServiceStartProcedure          = "/chopbox.game.v1.GameService/Start"
	GameServiceClickProcedure          = "/chopbox.game.v1.GameService/Click"
	GameServiceGetLeaderboardProcedure = "/chopbox.game.v1.GameService/GetLeaderboard"
	GameServiceSubscribeProcedure      = "/chopbox.game.v1.GameService/Subscribe"

	AdminServiceGetStatusProcedure    = "/chopbox.game.v1.AdminService/GetStatus"
	AdminServiceListSessionsProcedure = "/chopbox.game.v1.AdminService/ListSessions"
	AdminServiceFlushPendingProcedure = "/chopbox.game.v1.AdminService/FlushPending"
)

// withCodec prepends the JSON codec so callers may still override it.
func withCodec[T any](opts []T, codec T) []T {
	return append([]T{codec}, opts...)
}

// GameServiceHandler is implemented by the game RPC server.
type GameServiceHandler interface {
	Register(context.Context, *connect.Request[gamev1.RegisterRequest]) (*connect.Response[gamev1.RegisterResponse], error)
	Start(context.Context, *connect.Request[gamev1.StartRequest]) (*connect.Response[gamev1.StartResponse], error)
	Click(context.Context, *connect.Request[gamev1.ClickRequest]) (*connect.Response[gamev1.ClickResponse], error)
	GetLeaderboard(context.Context, *connect.Request[gamev1.GetLeaderboardRequest]) (*connect.Response[gamev1.GetLeaderboardResponse], error)
	Subscribe(context.Context, *connect.Request[gamev1.SubscribeRequest], *connect.ServerStream[gamev1.Notification]) error
}

// NewGameServiceHandler builds an HTTP handler for svc and returns the path
// to mount it on.
func NewGameServiceHandler(svc GameServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts, connect.HandlerOption(connect.WithCodec(gamev1.Codec{})))

	register := connect.NewUnaryHandler(GameServiceRegisterProcedure, svc.Register, opts...)
	start := connect.NewUnaryHandler(GameServiceStartProcedure, svc.Start, opts...)
	click := connect.NewUnaryHandler(GameServiceClickProcedure, svc.Click, opts...)
	leaderboard := connect.NewUnaryHandler(GameServiceGetLeaderboardProcedure, svc.GetLeaderboard, opts...)
	subscribe := connect.NewServerStreamHandler(GameServiceSubscribeProcedure, svc.Subscribe, opts...)

	return "/" + GameServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GameServiceRegisterProcedure:
			register.ServeHTTP(w, r)
		case GameServiceStartProcedure:
			start.ServeHTTP(w, r)
		case GameServiceClickProcedure:
			click.ServeHTTP(w, r)
		case GameServiceGetLeaderboardProcedure:
			leaderboard.ServeHTTP(w, r)
		case GameServiceSubscribeProcedure:
			subscribe.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// GameServiceClient calls GameService.
type GameServiceClient struct {
	register    *connect.Client[gamev1.RegisterRequest, gamev1.RegisterResponse]
	start       *connect.Client[gamev1.StartRequest, gamev1.StartResponse]
	click       *connect.Client[gamev1.ClickRequest, gamev1.ClickResponse]
	leaderboard *connect.Client[gamev1.GetLeaderboardRequest, gamev1.GetLeaderboardResponse]
	subscribe   *connect.Client[gamev1.SubscribeRequest, gamev1.Notification]
}

// NewGameServiceClient creates a client for the server at baseURL.
func NewGameServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *GameServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = withCodec(opts, connect.ClientOption(connect.WithCodec(gamev1.Codec{})))

	return &GameServiceClient{
		register:    connect.NewClient[gamev1.RegisterRequest, gamev1.RegisterResponse](httpClient, baseURL+GameServiceRegisterProcedure, opts...),
		start:       connect.NewClient[gamev1.StartRequest, gamev1.StartResponse](httpClient, baseURL+GameServiceStartProcedure, opts...),
		click:       connect.NewClient[gamev1.ClickRequest, gamev1.ClickResponse](httpClient, baseURL+GameServiceClickProcedure, opts...),
		leaderboard: connect.NewClient[gamev1.GetLeaderboardRequest, gamev1.GetLeaderboardResponse](httpClient, baseURL+GameServiceGetLeaderboardProcedure, opts...),
		subscribe:   connect.NewClient[gamev1.SubscribeRequest, gamev1.Notification](httpClient, baseURL+GameServiceSubscribeProcedure, opts...),
	}
}

// Register calls GameService.Register.
func (c *GameServiceClient) Register(ctx context.Context, req *connect.Request[gamev1.RegisterRequest]) (*connect.Response[gamev1.RegisterResponse], error) {
	return c.register.CallUnary(ctx, req)
}

// Start calls GameService.Start.
func (c *GameServiceClient) Start(ctx context.Context, req *connect.Request[gamev1.StartRequest]) (*connect.Response[gamev1.StartResponse], error) {
	return c.start.CallUnary(ctx, req)
}

// Click calls GameService.Click.
func (c *GameServiceClient) Click(ctx context.Context, req *connect.Request[gamev1.ClickRequest]) (*connect.Response[gamev1.ClickResponse], error) {
	return c.click.CallUnary(ctx, req)
}

// GetLeaderboard calls GameService.GetLeaderboard.
func (c *GameServiceClient) GetLeaderboard(ctx context.Context, req *connect.Request[gamev1.GetLeaderboardRequest]) (*connect.Response[gamev1.GetLeaderboardResponse], error) {
	return c.leaderboard.CallUnary(ctx, req)
}

// Subscribe calls GameService.Subscribe.
func (c *GameServiceClient) Subscribe(ctx context.Context, req *connect.Request[gamev1.SubscribeRequest]) (*connect.ServerStreamForClient[gamev1.Notification], error) {
	return c.subscribe.CallServerStream(ctx, req)
}

// AdminServiceHandler is implemented by the admin RPC server.
type AdminServiceHandler interface {
	GetStatus(context.Context, *connect.Request[gamev1.GetStatusRequest]) (*connect.Response[gamev1.GetStatusResponse], error)
	ListSessions(context.Context, *connect.Request[gamev1.ListSessionsRequest]) (*connect.Response[gamev1.ListSessionsResponse], error)
	FlushPending(context.Context, *connect.Request[gamev1.FlushPendingRequest]) (*connect.Response[gamev1.FlushPendingResponse], error)
}

// NewAdminServiceHandler builds an HTTP handler for svc and returns the path
// to mount it on.
func NewAdminServiceHandler(svc AdminServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withCodec(opts, connect.HandlerOption(connect.WithCodec(gamev1.Codec{})))

	status := connect.NewUnaryHandler(AdminServiceGetStatusProcedure, svc.GetStatus, opts...)
	sessions := connect.NewUnaryHandler(AdminServiceListSessionsProcedure, svc.ListSessions, opts...)
	flush := connect.NewUnaryHandler(AdminServiceFlushPendingProcedure, svc.FlushPending, opts...)

	return "/" + AdminServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case AdminServiceGetStatusProcedure:
			status.ServeHTTP(w, r)
		case AdminServiceListSessionsProcedure:
			sessions.ServeHTTP(w, r)
		case AdminServiceFlushPendingProcedure:
			flush.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// AdminServiceClient calls AdminService.
type AdminServiceClient struct {
	status   *connect.Client[gamev1.GetStatusRequest, gamev1.GetStatusResponse]
	sessions *connect.Client[gamev1.ListSessionsRequest, gamev1.ListSessionsResponse]
	flush    *connect.Client[gamev1.FlushPendingRequest, gamev1.FlushPendingResponse]
}

// NewAdminServiceClient creates a client for the server at baseURL.
func NewAdminServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AdminServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = withCodec(opts, connect.ClientOption(connect.WithCodec(gamev1.Codec{})))

	return &AdminServiceClient{
		status:   connect.NewClient[gamev1.GetStatusRequest, gamev1.GetStatusResponse](httpClient, baseURL+AdminServiceGetStatusProcedure, opts...),
		sessions: connect.NewClient[gamev1.ListSessionsRequest, gamev1.ListSessionsResponse](httpClient, baseURL+AdminServiceListSessionsProcedure, opts...),
		flush:    connect.NewClient[gamev1.FlushPendingRequest, gamev1.FlushPendingResponse](httpClient, baseURL+AdminServiceFlushPendingProcedure, opts...),
	}
}

// GetStatus calls AdminService.GetStatus.
func (c *AdminServiceClient) GetStatus(ctx context.Context, req *connect.Request[gamev1.GetStatusRequest]) (*connect.Response[gamev1.GetStatusResponse], error) {
	return c.status.CallUnary(ctx, req)
}

// ListSessions calls AdminService.ListSessions.
func (c *AdminServiceClient) ListSessions(ctx context.Context, req *connect.Request[gamev1.ListSessionsRequest]) (*connect.Response[gamev1.ListSessionsResponse], error) {
	return c.sessions.CallUnary(ctx, req)
}

// FlushPending calls AdminService.FlushPending.
func (c *AdminServiceClient) FlushPending(ctx context.Context, req *connect.Request[gamev1.FlushPendingRequest]) (*connect.Response[gamev1.FlushPendingResponse], error) {
	return c.flush.CallUnary(ctx, req)
}
