package telegram

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/logger"
	tghelpers "github.com/m3rciful/stagebot/core/telegram/helpers"
	tgsender "github.com/m3rciful/stagebot/core/telegram/sender"
)

// EventRouter receives converted events. *session.Router implements it.
type EventRouter interface {
	Route(ctx context.Context, ev conversation.Event) error
}

// UpdateHandler feeds text messages and callback queries into the router.
type UpdateHandler struct {
	router EventRouter
	sender *tgsender.Dispatcher
	answer func(c tele.Context) error
}

// NewUpdateHandler builds the handler bound to OnText and OnCallback.
// Callback answers are queued on sender; a nil sender answers inline.
func NewUpdateHandler(router EventRouter, sender *tgsender.Dispatcher) *UpdateHandler {
	return &UpdateHandler{
		router: router,
		sender: sender,
		answer: func(c tele.Context) error { return c.Respond() },
	}
}

// Handle is a tele.HandlerFunc.
func (h *UpdateHandler) Handle(c tele.Context) error {
	start := time.Now()
	ev, ok := EventFromContext(c)
	if !ok {
		return nil
	}
	name := "route." + ev.Kind.String()
	ctx := tghelpers.WithHandler(c, name)

	if ev.IsCallback() {
		h.acknowledge(ctx, c)
	}

	err := h.router.Route(ctx, ev)
	logHandlerSummary(ctx, name, start, err)
	return err
}

// acknowledge answers the callback query so the client stops its spinner.
func (h *UpdateHandler) acknowledge(ctx context.Context, c tele.Context) {
	run := func() error { return h.answer(c) }
	if h.sender != nil {
		err := h.sender.Enqueue(ctx, "answer_callback", "", run)
		if err == nil {
			return
		}
		if !errors.Is(err, tgsender.ErrQueueFull) && !errors.Is(err, tgsender.ErrQueueClosed) {
			return
		}
	}
	if err := run(); err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "callback.answer",
			slog.String("status", "fail"),
			slog.String("err", tgsender.SanitizeError(err)),
		)
	}
}

func logHandlerSummary(ctx context.Context, handler string, start time.Time, err error) {
	status := "ok"
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("handler", handler),
		slog.Int("duration_ms", logger.DurationMS(time.Since(start))),
	}
	if err != nil {
		status = "fail"
		level = slog.LevelError
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(tgsender.SanitizeError(err), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	attrs = append([]slog.Attr{slog.String("status", status)}, attrs...)
	logger.LogEvent(ctx, logger.TG, level, "handler.handled", attrs...)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return "TELEGRAM_" + strings.ToUpper(strings.ReplaceAll(tgsender.ClassifyError(err), " ", "_"))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "DEADLINE_EXCEEDED"
	}
	if errors.Is(err, context.Canceled) {
		return "CANCELED"
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}
