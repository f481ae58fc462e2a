package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miguel-bm/repobot/internal/api"
	"github.com/miguel-bm/repobot/internal/bot"
	"github.com/miguel-bm/repobot/internal/dispatch"
	"github.com/miguel-bm/repobot/internal/github"
	"github.com/miguel-bm/repobot/internal/telegram"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	sender, err := telegram.NewBotSender(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	defer sender.Close()

	gh, err := github.NewClient(cfg.GitHub.APIURL, nil)
	if err != nil {
		return fmt.Errorf("create github client: %w", err)
	}

	logger := slog.Default()
	workflow := bot.NewWorkflow(database, gh, cfg.EnrichTimeout, logger)
	router := dispatch.NewRouter(logger)
	bot.NewHandlers(workflow, database, cfg.ServerURL).Register(router)
	gate := dispatch.NewGate(database, dispatch.PublicCommands...)
	ingestor := dispatch.NewIngestor(gate, router, sender, database, logger)

	server := api.NewServer(database, api.Options{
		Ingestor:       ingestor,
		Sender:         sender,
		GitHub:         gh,
		OAuth:          api.NewOAuthConfig(cfg),
		StateSecret:    []byte(cfg.StateSecret),
		WebhookSecret:  cfg.Telegram.WebhookSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	slog.Info("starting repobot server", "addr", cfg.Addr, "bot", sender.Username())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(cfg.Addr)
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error after shutdown: %w", err)
		}
	}
	return nil
}
