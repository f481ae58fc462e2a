package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/miguel-bm/repobot/internal/bot"
	"github.com/miguel-bm/repobot/internal/config"
	"github.com/miguel-bm/repobot/internal/telegram"
)

var (
	webhookMaxConnections int
	webhookDropPending    bool
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the Telegram webhook registration",
}

var webhookSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Point Telegram at this server's webhook URL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, sender, err := connectBot()
		if err != nil {
			return err
		}
		defer sender.Close()
		if cfg.ServerURL == "" {
			return errors.New("server_url is not configured")
		}

		if err := sender.SetWebhook(cfg.WebhookURL(), cfg.Telegram.WebhookSecret, webhookMaxConnections); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		slog.Info("webhook registered", "url", cfg.WebhookURL(), "secret", cfg.Telegram.WebhookSecret != "")
		return nil
	},
}

var webhookDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the Telegram webhook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, sender, err := connectBot()
		if err != nil {
			return err
		}
		defer sender.Close()

		if err := sender.DeleteWebhook(webhookDropPending); err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
		slog.Info("webhook deleted", "drop_pending", webhookDropPending)
		return nil
	},
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Publish the bot command menu to Telegram",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, sender, err := connectBot()
		if err != nil {
			return err
		}
		defer sender.Close()

		if err := sender.SetCommands(bot.Commands); err != nil {
			return fmt.Errorf("set commands: %w", err)
		}
		slog.Info("bot commands published", "count", len(bot.Commands))
		return nil
	},
}

func init() {
	webhookSetCmd.Flags().IntVar(&webhookMaxConnections, "max-connections", 40, "Maximum simultaneous webhook connections")
	webhookDeleteCmd.Flags().BoolVar(&webhookDropPending, "drop-pending", false, "Drop updates queued while no webhook was set")
	webhookCmd.AddCommand(webhookSetCmd)
	webhookCmd.AddCommand(webhookDeleteCmd)
}

func connectBot() (*config.Config, *telegram.BotSender, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Telegram.BotToken == "" {
		return nil, nil, errors.New("telegram.bot_token is not configured")
	}
	sender, err := telegram.NewBotSender(cfg.Telegram.BotToken)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return cfg, sender, nil
}
