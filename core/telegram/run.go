package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stagebot/core/config"
	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/logger"
	"github.com/m3rciful/stagebot/core/session"
	tghelpers "github.com/m3rciful/stagebot/core/telegram/helpers"
	tgsender "github.com/m3rciful/stagebot/core/telegram/sender"
)

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *conversation.Registry
	// Store holds session snapshots; an in-memory store when nil.
	Store         session.Store
	RouterOptions []session.Option

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware

	DisableWebhookCleanup bool
	DisableCommandMenu    bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Transport  *Transport
	Router     *session.Router
}

// RunTelegram composes and runs a Telegram bot until the provided context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if opts.Registry == nil {
		return fmt.Errorf("telegram: nil command registry")
	}

	cfg := opts.Config
	pollerOpts := PollerOptionsFrom(cfg)
	poller := BuildPoller(pollerOpts)

	settings := tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  BuildHTTPClient(pollerOpts.LongPollTimeout()),
		OnError: onError,
	}

	buildStart := time.Now()
	bot, err := tele.NewBot(settings)
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	buildTook := time.Since(buildStart)

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	defer dispatcher.Close()

	store := opts.Store
	if store == nil {
		store = session.NewMemoryStore()
	}
	transport := NewTransport(bot, dispatcher)
	router := session.NewRouter(opts.Registry, store, transport, opts.RouterOptions...)

	rt := Runtime{
		Bot:        bot,
		Dispatcher: dispatcher,
		Transport:  transport,
		Router:     router,
	}

	switch p := poller.(type) {
	case *tele.Webhook:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	default:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Int("timeout_seconds", int(pollerOpts.LongPollTimeout()/time.Second)),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
		if !opts.DisableWebhookCleanup {
			// A leftover webhook makes getUpdates fail with 409 Conflict.
			_ = NewAdmin(bot).RemoveWebhook(ctx, false)
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}

	bindUpdates(bot, NewUpdateHandler(router, dispatcher).Handle)

	if !opts.DisableCommandMenu {
		InitBotCommands(ctx, bot, opts.Registry)
	}

	logger.LogEvent(ctx, logger.TWire, slog.LevelInfo, "wire.ready",
		slog.Int("commands", opts.Registry.Len()),
		slog.Int("middlewares", len(opts.Middlewares)),
	)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// onError receives errors returned by handlers and poller failures. Handler
// errors were already logged with their update, so only those without a
// context are logged at error level.
func onError(err error, c tele.Context) {
	if err == nil {
		return
	}
	if c == nil {
		logger.LogEvent(context.Background(), logger.TG, slog.LevelError, "tg.error",
			slog.String("status", "fail"),
			slog.String("err", tgsender.SanitizeError(err)),
		)
		return
	}
	logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelDebug, "tg.error",
		slog.String("status", "fail"),
		slog.String("err", tgsender.SanitizeError(err)),
	)
}

// routedEndpoints are the update kinds handed to the router. Messages that
// carry no text arrive as text events with empty text, so an active session
// answers them with its usual hint.
var routedEndpoints = []string{
	tele.OnText,
	tele.OnMedia,
	tele.OnContact,
	tele.OnLocation,
	tele.OnVenue,
	tele.OnDice,
	tele.OnCallback,
}

type handlerBinder interface {
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
}

func bindUpdates(b handlerBinder, h tele.HandlerFunc) {
	for _, endpoint := range routedEndpoints {
		b.Handle(endpoint, h)
	}
}
