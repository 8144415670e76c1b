// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/chopbox/internal/api/connect"
	gamev1 "github.com/osa030/chopbox/internal/api/gamev1"
	"github.com/osa030/chopbox/internal/api/gamev1/gamev1connect"
)

var (
	app    = kingpin.New("chopbox-admincli", "chopbox admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Get server status")

	// list-sessions command
	listCmd = app.Command("list-sessions", "List live sessions").Alias("list")

	// flush command
	flushCmd = app.Command("flush", "Retry queued score commits")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Check admin token
	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	// Create client
	client := gamev1connect.NewAdminServiceClient(
		http.DefaultClient,
		*server,
	)

	ctx := context.Background()

	// Execute command
	switch command {
	case statusCmd.FullCommand():
		status(ctx, client, *token)
	case listCmd.FullCommand():
		listSessions(ctx, client, *token)
	case flushCmd.FullCommand():
		flush(ctx, client, *token)
	}
}

func status(ctx context.Context, client *gamev1connect.AdminServiceClient, token string) {
	req := connect.NewRequest(&gamev1.GetStatusRequest{})
	req.Header().Set(apiconnect.AdminTokenHeader, token)
	resp, err := client.GetStatus(ctx, req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	s := resp.Msg
	fmt.Println("\n=== SERVER STATUS ===")
	fmt.Printf("Store: %s\n", s.Store)
	fmt.Printf("Active Sessions: %d\n", s.ActiveSessions)
	fmt.Printf("Armed Timers: %d\n", s.ArmedTimers)
	fmt.Printf("Pending Commits: %d\n", s.PendingCommits)
	fmt.Printf("Subscribers: %d\n", s.Subscribers)
	fmt.Println()
}

func listSessions(ctx context.Context, client *gamev1connect.AdminServiceClient, token string) {
	req := connect.NewRequest(&gamev1.ListSessionsRequest{})
	req.Header().Set(apiconnect.AdminTokenHeader, token)
	resp, err := client.ListSessions(ctx, req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sessions (%d):\n", len(resp.Msg.Sessions))
	for _, s := range resp.Msg.Sessions {
		line := fmt.Sprintf("  %d:%d %s [%s] score=%d", s.Key.ChatID, s.Key.UserID, s.Identity, s.Phase, s.Score)
		if s.Deadline != "" {
			line += " deadline=" + s.Deadline
		}
		fmt.Println(line)
	}
}

func flush(ctx context.Context, client *gamev1connect.AdminServiceClient, token string) {
	req := connect.NewRequest(&gamev1.FlushPendingRequest{})
	req.Header().Set(apiconnect.AdminTokenHeader, token)
	resp, err := client.FlushPending(ctx, req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if resp.Msg.Success {
		fmt.Printf("%s (remaining: %d)\n", resp.Msg.Message, resp.Msg.Remaining)
	} else {
		fmt.Printf("Failed: %s (flushed: %d, remaining: %d)\n", resp.Msg.Message, resp.Msg.Flushed, resp.Msg.Remaining)
	}
}
