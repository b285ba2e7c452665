package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stagebot/core/logger"
	"github.com/m3rciful/stagebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/stagebot/core/telegram/helpers"
)

// recentUpdates keeps a short-lived set of processed update IDs to avoid double logging.
type recentUpdates struct {
	mu      sync.Mutex
	seen    map[int]time.Time
	keepFor time.Duration
}

func newRecentUpdates(keepFor time.Duration) *recentUpdates {
	return &recentUpdates{seen: make(map[int]time.Time), keepFor: keepFor}
}

func (r *recentUpdates) alreadyLogged(updateID int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ts := range r.seen {
		if now.Sub(ts) > r.keepFor {
			delete(r.seen, id)
		}
	}
	if _, ok := r.seen[updateID]; ok {
		return true
	}
	r.seen[updateID] = now
	return false
}

var recent = newRecentUpdates(10 * time.Second)

// LoggerMiddleware sets the rid of the update, stores the logging context
// and logs one receipt line and one completion line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		upd := c.Update()
		chatID, userID := tghelpers.IDs(c)

		rid := logger.BuildRID(upd.ID, chatID, userID)
		tghelpers.SetRID(c, rid)
		ctx := tghelpers.BuildContext(c)

		if logger.ShouldSampleDebug() && !recent.alreadyLogged(upd.ID, start) {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c, chatID, userID)...)
		}

		err := next(c)

		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.Int("duration_ms", logger.DurationMS(time.Since(start))),
		}
		if h := logger.HandlerFrom(tghelpers.BuildContext(c)); h != "" {
			attrs = append(attrs, slog.String("handler", h))
		}
		if err != nil {
			attrs[0] = slog.String("status", "fail")
			attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
			logger.Warn(ctx, "tg", "update.done", attrs...)
			return err
		}
		logger.Debug(ctx, "tg", "update.done", attrs...)
		return nil
	}
}

func receiptAttrs(c tele.Context, chatID, userID int64) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil && userID != 0 {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}
	switch {
	case upd.Callback != nil:
		attrs = append(attrs, slog.String("kind", "callback"))
		if key := callbacks.CallbackKey(upd.Callback); key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload := callbacks.Data(upd.Callback); payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil:
		attrs = append(attrs, slog.String("kind", "message"))
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}
