// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	apiconnect "github.com/osa030/chopbox/internal/api/connect"
	"github.com/osa030/chopbox/internal/api/gamev1/gamev1connect"
	"github.com/osa030/chopbox/internal/app/game"
	"github.com/osa030/chopbox/internal/app/notification"
	"github.com/osa030/chopbox/internal/infra/config"
	"github.com/osa030/chopbox/internal/infra/logger"
	"github.com/osa030/chopbox/internal/infra/scorestore"
)

const shutdownTimeout = 10 * time.Second

var (
	app        = kingpin.New("chopbox-server", "chopbox click game server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		fmt.Printf("config OK: store=%s duration=%s\n", cfg.Store.Type, cfg.Duration())
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output:     "stdout",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}
	if cfg.Log.File != "" {
		loggerConfig.Output = "file"
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loaded config from %s", *configPath)

	err = run(cfg)
	_ = logCloser.Close()
	if err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open score store
	store, err := scorestore.NewFromConfig(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open score store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			zlog.Error().Msgf("Failed to close score store: %v", err)
		}
	}()

	// Create game service
	notifications := notification.NewManager()
	gameSvc := game.NewService(game.ConfigFrom(cfg), store, notifications)

	// Create HTTP mux
	mux := http.NewServeMux()

	// Register services
	gamePath, gameHandler := gamev1connect.NewGameServiceHandler(
		apiconnect.NewGameService(gameSvc, notifications, cfg),
	)

	// Create admin auth interceptor
	adminAuthInterceptor := apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)
	adminPath, adminHandler := gamev1connect.NewAdminServiceHandler(
		apiconnect.NewAdminService(gameSvc),
		connect.WithInterceptors(adminAuthInterceptor),
	)

	mux.Handle(gamePath, gameHandler)
	mux.Handle(adminPath, adminHandler)
	mux.Handle("/healthz", healthHandler(gameSvc))

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlog.Info().Msgf("Starting server: addr=%s store=%s", cfg.Server.Addr, store.Name())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		gameSvc.RunRetryLoop(gctx, cfg.Store.Retry.FlushInterval())
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zlog.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Close the game service first to end subscriber streams
		if err := gameSvc.Close(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to flush pending commits: %v", err)
		}
		notifications.Close()

		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown server: %v", err)
		}
		return nil
	})

	// Execute startup hook if configured (after server is running)
	go func() {
		time.Sleep(100 * time.Millisecond)
		if gctx.Err() == nil {
			executeHooks(cfg.Server.Hooks.OnStarted, "on_started")
		}
	}()

	err = g.Wait()
	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return err
}

type healthResponse struct {
	Status         string `json:"status"`
	Store          string `json:"store"`
	ActiveSessions int    `json:"active_sessions"`
	PendingCommits int    `json:"pending_commits"`
}

// healthHandler reports liveness and a few counters.
func healthHandler(svc *game.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := svc.Status()
		body, err := json.Marshal(healthResponse{
			Status:         "ok",
			Store:          status.Store,
			ActiveSessions: status.ActiveSessions,
			PendingCommits: status.PendingCommits,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
