package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trusight/logger"
	"trusight/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot against a running API",
	Long: `Run the Telegram front end. It forwards links, pasted text and
forwarded channel posts to the API at API_BASE.

Uses long polling unless WEBHOOK_URL is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.TelegramToken == "" {
			return errors.New("TELEGRAM_TOKEN is not set")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bot, err := telegram.NewBot(cfg.TelegramToken, cfg.BotAPIBase)
		if err != nil {
			return err
		}
		logger.Log.Infof("[BOT] running as @%s, API %s", bot.Username(), cfg.BotAPIBase)

		if cfg.WebhookURL != "" {
			return bot.RunWebhook(ctx, cfg.WebhookURL, cfg.WebhookPort)
		}
		return bot.RunPolling(ctx)
	},
}
