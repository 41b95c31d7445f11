package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	APIBase  string // Bot API server; empty uses the public one
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

// TelegramNotifier sends messages through the Bot API sendMessage method.
type TelegramNotifier struct {
	config TelegramConfig
	bot    *bot.Bot
	logger *zap.Logger
}

// NewTelegramNotifier creates a notifier. Token and chat id are required.
// The bot is not contacted until the first Send.
func NewTelegramNotifier(config TelegramConfig, logger *zap.Logger) (*TelegramNotifier, error) {
	if config.BotToken == "" || config.ChatID == "" {
		return nil, errors.New("telegram bot token and chat id are required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(config.Timeout, &http.Client{Timeout: config.Timeout}),
	}
	if config.APIBase != "" {
		opts = append(opts, bot.WithServerURL(strings.TrimRight(config.APIBase, "/")))
	}

	b, err := bot.New(config.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", redactToken(err, config.BotToken))
	}
	return &TelegramNotifier{config: config, bot: b, logger: logger}, nil
}

func (n *TelegramNotifier) Send(ctx context.Context, message string) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.config.ChatID,
		Text:      message,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		// Transport errors carry the request URL, which embeds the token.
		return fmt.Errorf("failed to send telegram message: %w", redactToken(err, n.config.BotToken))
	}

	n.logger.Debug("telegram message sent")
	return nil
}

func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

// LogNotifier writes messages to the log when no remote notifier is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, message string) error {
	n.logger.Info("notification", zap.String("message", message))
	return nil
}

// Ensure notifiers implement domain.Notifier.
var (
	_ domain.Notifier = (*TelegramNotifier)(nil)
	_ domain.Notifier = (*LogNotifier)(nil)
)
