// Command taskforged is the taskforge server daemon. It serves the task API,
// GitHub login and the GitHub webhook from a single YAML config file.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/taskforge/taskforge/auth"
	"github.com/taskforge/taskforge/comms"
	"github.com/taskforge/taskforge/config"
	"github.com/taskforge/taskforge/internal/sqldb"
	"github.com/taskforge/taskforge/internal/version"
	"github.com/taskforge/taskforge/server"
	"github.com/taskforge/taskforge/server/sse"
	"github.com/taskforge/taskforge/task"
	"github.com/taskforge/taskforge/webhook"
)

var configPath = flag.String("config", "", "path to YAML config file (optional)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting taskforged",
		"version", version.Version,
		"commit", version.Commit,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("taskforged exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	bus := comms.NewInMemoryBus()
	tasks := task.NewService(task.NewSQLStore(db), bus, cfg.Webhook.CloseBonus, logger)

	sessions := auth.NewSQLSessionStore(db, cfg.Auth.MaxSessions)
	go sessions.Run(ctx, cfg.Auth.SweepInterval, logger)

	if cfg.Auth.GitHubClientID == "" {
		logger.Warn("auth.github_client_id is empty; GitHub login will fail")
	}
	github := auth.NewGitHubClient(auth.GitHubConfig{
		ClientID:     cfg.Auth.GitHubClientID,
		ClientSecret: cfg.Auth.GitHubClientSecret,
		RedirectURL:  cfg.Auth.RedirectURL,
		AuthorizeURL: cfg.Auth.AuthorizeURL,
		TokenURL:     cfg.Auth.TokenURL,
		APIURL:       cfg.Auth.APIURL,
		Timeout:      cfg.Auth.HTTPTimeout,
	})
	if cfg.Auth.Secret == "" {
		logger.Warn("auth.secret is empty; sessions will not survive a restart")
	}
	gate, err := auth.NewGate(github, sessions, cfg.Auth.Secret, cfg.Auth.SessionTTL, logger)
	if err != nil {
		return err
	}

	if cfg.Webhook.Secret == "" {
		logger.Warn("webhook.secret is empty; webhook signatures are not verified")
	}
	processor := webhook.NewProcessor(tasks, webhook.Config{
		ProtectedBranches: cfg.Webhook.ProtectedBranches,
		CloseBonus:        cfg.Webhook.CloseBonus,
	}, logger)

	hub := sse.NewHub(logger)
	detach := hub.Attach(bus)
	defer detach()

	srv := server.New(*cfg, server.Deps{
		Tasks:   tasks,
		Gate:    gate,
		Webhook: processor,
		Hub:     hub,
		Health:  db.PingContext,
	}, version.Version, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
