package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stagebot/core/logger"
)

// WebhookAPI is the part of *tele.Bot that manages the webhook registration.
type WebhookAPI interface {
	SetWebhook(w *tele.Webhook) error
	RemoveWebhook(dropPending ...bool) error
}

// Admin performs one-off Bot API maintenance calls.
type Admin struct {
	api WebhookAPI
}

// NewAdmin wraps an already constructed bot.
func NewAdmin(api WebhookAPI) *Admin {
	return &Admin{api: api}
}

// DialAdmin creates a bot for token and verifies it with getMe.
func DialAdmin(token string) (*Admin, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram: empty token")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: BuildHTTPClient(0),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return NewAdmin(bot), nil
}

// SetWebhook registers publicURL as the webhook. It must be an https URL.
func (a *Admin) SetWebhook(ctx context.Context, publicURL string, dropPending bool) error {
	u, err := url.Parse(strings.TrimSpace(publicURL))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("telegram: webhook url must be an absolute https url, got %q", publicURL)
	}
	wh := &tele.Webhook{
		Endpoint:    &tele.WebhookEndpoint{PublicURL: u.String()},
		DropUpdates: dropPending,
	}
	if err := a.api.SetWebhook(wh); err != nil {
		logger.LogEvent(ctx, logger.TWire, slog.LevelError, "webhook.set",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	logger.LogEvent(ctx, logger.TWire, slog.LevelInfo, "webhook.set",
		slog.String("status", "ok"),
		slog.String("host", u.Host),
		slog.Bool("drop_pending", dropPending),
	)
	return nil
}

// RemoveWebhook deletes the webhook so long polling can be used.
func (a *Admin) RemoveWebhook(ctx context.Context, dropPending bool) error {
	if err := a.api.RemoveWebhook(dropPending); err != nil {
		logger.LogEvent(ctx, logger.TWire, slog.LevelWarn, "webhook.delete",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("telegram: delete webhook: %w", err)
	}
	logger.LogEvent(ctx, logger.TWire, slog.LevelInfo, "webhook.delete",
		slog.String("status", "ok"),
		slog.Bool("drop_pending", dropPending),
	)
	return nil
}
