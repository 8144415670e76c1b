// Package main provides the player CLI entry point for testing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	gamev1 "github.com/osa030/chopbox/internal/api/gamev1"
	"github.com/osa030/chopbox/internal/api/gamev1/gamev1connect"
)

var (
	app    = kingpin.New("chopbox-playercli", "chopbox player client for testing")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	chatID = app.Flag("chat", "Chat ID").Default("1").Int64()
	userID = app.Flag("user", "User ID").Default("1").Int64()

	// register command
	registerCmd  = app.Command("register", "Register a display name")
	registerName = registerCmd.Arg("name", "Display name").Required().String()

	// start command
	startCmd = app.Command("start", "Start a game")

	// click command
	clickCmd   = app.Command("click", "Click the button")
	clickCount = clickCmd.Flag("count", "Number of clicks").Default("1").Int()

	// leaderboard command
	leaderboardCmd   = app.Command("leaderboard", "Show the leaderboard").Alias("top")
	leaderboardLimit = leaderboardCmd.Flag("limit", "Number of entries (0 = server default)").Default("0").Int()

	// play command
	playCmd      = app.Command("play", "Register, start and click until the game ends")
	playName     = playCmd.Arg("name", "Display name").Required().String()
	playInterval = playCmd.Flag("interval", "Delay between clicks").Default("100ms").Duration()

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Subscribe to notifications")
	subscribeAll = subscribeCmd.Flag("all", "Receive notifications for every session").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := gamev1connect.NewGameServiceClient(
		http.DefaultClient,
		*server,
	)

	ctx := context.Background()
	key := gamev1.SessionKey{ChatID: *chatID, UserID: *userID}

	// Execute command
	switch command {
	case registerCmd.FullCommand():
		register(ctx, client, key, *registerName)
	case startCmd.FullCommand():
		start(ctx, client, key)
	case clickCmd.FullCommand():
		for i := 0; i < *clickCount; i++ {
			if ended := click(ctx, client, key); ended {
				break
			}
		}
	case leaderboardCmd.FullCommand():
		leaderboard(ctx, client, *leaderboardLimit)
	case playCmd.FullCommand():
		play(ctx, client, key, *playName, *playInterval)
	case subscribeCmd.FullCommand():
		var filter *gamev1.SessionKey
		if !*subscribeAll {
			filter = &key
		}
		subscribe(ctx, client, filter)
	}
}

func register(ctx context.Context, client *gamev1connect.GameServiceClient, key gamev1.SessionKey, name string) {
	resp, err := client.Register(ctx, connect.NewRequest(&gamev1.RegisterRequest{
		Key:      key,
		Identity: name,
	}))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Registered as %s (phase: %s)\n", resp.Msg.Identity, resp.Msg.Phase)
}

func start(ctx context.Context, client *gamev1connect.GameServiceClient, key gamev1.SessionKey) bool {
	resp, err := client.Start(ctx, connect.NewRequest(&gamev1.StartRequest{Key: key}))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	started := false
	for _, n := range resp.Msg.Notifications {
		printNotification(n)
		started = started || n.Kind == gamev1.KindSessionStarted
	}
	return started
}

// click sends one click and reports whether the game has ended.
func click(ctx context.Context, client *gamev1connect.GameServiceClient, key gamev1.SessionKey) bool {
	resp, err := client.Click(ctx, connect.NewRequest(&gamev1.ClickRequest{Key: key}))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ended := false
	for _, n := range resp.Msg.Notifications {
		printNotification(n)
		if n.Kind == gamev1.KindSessionEnded || n.Kind == gamev1.KindRejected {
			ended = true
		}
	}
	return ended
}

func leaderboard(ctx context.Context, client *gamev1connect.GameServiceClient, limit int) {
	resp, err := client.GetLeaderboard(ctx, connect.NewRequest(&gamev1.GetLeaderboardRequest{Limit: limit}))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printNotification(resp.Msg.Leaderboard)
}

func play(ctx context.Context, client *gamev1connect.GameServiceClient, key gamev1.SessionKey, name string, interval time.Duration) {
	register(ctx, client, key, name)
	if !start(ctx, client, key) {
		os.Exit(1)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if click(ctx, client, key) {
			return
		}
	}
}

func subscribe(ctx context.Context, client *gamev1connect.GameServiceClient, key *gamev1.SessionKey) {
	stream, err := client.Subscribe(ctx, connect.NewRequest(&gamev1.SubscribeRequest{Key: key}))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		os.Exit(0)
	}()

	// Receive notifications
	for stream.Receive() {
		printNotification(stream.Msg())
	}

	if err := stream.Err(); err != nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printNotification(n *gamev1.Notification) {
	if n == nil {
		return
	}

	prefix := fmt.Sprintf("[%d] %d:%d", n.SequenceNo, n.Key.ChatID, n.Key.UserID)
	switch n.Kind {
	case gamev1.KindSessionStarted:
		fmt.Printf("%s Go! Click until %s\n", prefix, n.Deadline)
	case gamev1.KindClickAcknowledged:
		fmt.Printf("%s Score: %d\n", prefix, n.CurrentScore)
	case gamev1.KindSessionEnded:
		fmt.Printf("%s Time's up, %s! Final score: %d\n", prefix, n.Identity, n.FinalScore)
	case gamev1.KindLeaderboardSnapshot:
		title := "Leaderboard"
		if n.Stale {
			title += " (cached)"
		}
		fmt.Printf("%s %s:\n", prefix, title)
		if len(n.Entries) == 0 {
			fmt.Println("  (no scores yet)")
		}
		for _, e := range n.Entries {
			fmt.Printf("  %2d. %-20s %d\n", e.Rank, e.Identity, e.Score)
		}
	case gamev1.KindRejected:
		fmt.Printf("%s Rejected [%s]: %s\n", prefix, n.Reason, n.Message)
	default:
		fmt.Printf("%s Unknown notification (%s)\n", prefix, n.Kind)
	}
}
