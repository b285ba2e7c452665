package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/logger"
)

// Notices are the texts the router sends on its own behalf.
type Notices struct {
	Cancelled       string
	NothingToCancel string
	Expired         string
	NotUnderstood   string
	// ActiveSession is a format string receiving the active command name.
	ActiveSession string
}

// DefaultNotices returns the stock English notices.
func DefaultNotices() Notices {
	return Notices{
		Cancelled:       "Current command aborted",
		NothingToCancel: "Nothing to cancel.",
		Expired:         "Your previous session has expired. Please start again.",
		NotUnderstood:   "Sorry, I do not understand that.",
		ActiveSession:   "Sorry, I do not understand that. You have an ongoing /%s session, use /cancel to abort.",
	}
}

// Router owns the per-chat decision of which session receives an event.
type Router struct {
	registry    *conversation.Registry
	store       Store
	locker      Locker
	transport   conversation.Transport
	dispatcher  *conversation.Dispatcher
	notices     Notices
	lockTimeout time.Duration
	onDelete    conversation.DeleteErrorPolicy
}

// Option customizes a Router.
type Option func(*Router)

// WithLocker replaces the default in-process KeyedMutex.
func WithLocker(l Locker) Option {
	return func(r *Router) {
		if l != nil {
			r.locker = l
		}
	}
}

// WithNotices overrides the router's own messages.
func WithNotices(n Notices) Option {
	return func(r *Router) { r.notices = n }
}

// WithLockTimeout bounds how long an event waits for its chat. Zero waits
// as long as the event context allows.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Router) { r.lockTimeout = d }
}

// WithDeleteErrorPolicy sets what happens when cleanup cannot delete a message.
func WithDeleteErrorPolicy(p conversation.DeleteErrorPolicy) Option {
	return func(r *Router) { r.onDelete = p }
}

// NewRouter wires a router over an immutable registry.
func NewRouter(reg *conversation.Registry, store Store, transport conversation.Transport, opts ...Option) *Router {
	r := &Router{
		registry:  reg,
		store:     store,
		transport: transport,
		notices:   DefaultNotices(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.locker == nil {
		r.locker = NewKeyedMutex()
	}
	r.dispatcher = conversation.NewDispatcher(transport, r.onDelete)
	return r
}

// Registry returns the command catalog the router scans.
func (r *Router) Registry() *conversation.Registry { return r.registry }

// Route handles one inbound event. Events for the same chat are serialized
// around the fetch, handle and persist sequence.
func (r *Router) Route(ctx context.Context, ev conversation.Event) error {
	if ev.IsBot {
		logger.Debug(ctx, "session", "route.skip_bot",
			slog.Int64("chat_id", ev.ChatID),
		)
		return nil
	}

	start := time.Now()
	lockCtx := ctx
	if r.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, r.lockTimeout)
		defer cancel()
	}
	unlock, err := r.locker.Lock(lockCtx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("session: lock chat %d: %w", ev.ChatID, err)
	}
	defer unlock()
	wait := time.Since(start)

	eng, err := r.load(ctx, ev.ChatID)
	if err != nil {
		if !isExpired(err) {
			return err
		}
		logger.Warn(ctx, "session", "route.expired",
			slog.Int64("chat_id", ev.ChatID),
			slog.String("err", err.Error()),
		)
		if err := r.store.Delete(ctx, ev.ChatID); err != nil {
			return fmt.Errorf("session: evict chat %d: %w", ev.ChatID, err)
		}
		return r.notify(ctx, ev.ChatID, r.notices.Expired, conversation.Options{})
	}

	if isCancel(ev) {
		return r.cancel(ctx, ev, eng)
	}

	if eng != nil {
		return r.continueSession(ctx, ev, eng, wait)
	}
	return r.scan(ctx, ev, wait)
}

// load restores the chat's engine. A nil engine means no live session; an
// ended one is evicted on the way.
func (r *Router) load(ctx context.Context, chatID int64) (*conversation.Engine, error) {
	snap, found, err := r.store.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, conversation.ErrCorruptSnapshot) {
			return nil, err
		}
		return nil, fmt.Errorf("session: load chat %d: %w", chatID, err)
	}
	if !found {
		return nil, nil
	}
	eng, err := conversation.Restore(r.registry, r.dispatcher, snap)
	if err != nil {
		return nil, err
	}
	if eng.Ended() {
		if err := r.store.Delete(ctx, chatID); err != nil {
			return nil, fmt.Errorf("session: evict ended chat %d: %w", chatID, err)
		}
		return nil, nil
	}
	return eng, nil
}

func (r *Router) cancel(ctx context.Context, ev conversation.Event, eng *conversation.Engine) error {
	if eng == nil {
		return r.notify(ctx, ev.ChatID, r.notices.NothingToCancel, conversation.Options{})
	}
	eng.Cleanup(ctx)
	if err := r.store.Delete(ctx, ev.ChatID); err != nil {
		return fmt.Errorf("session: evict chat %d: %w", ev.ChatID, err)
	}
	logger.Info(ctx, "session", "route.cancelled",
		slog.String("command", eng.Name()),
		slog.Int("stage", eng.StageIndex()),
	)
	return r.notify(ctx, ev.ChatID, r.notices.Cancelled, conversation.Options{RemoveKeyboard: true})
}

func (r *Router) continueSession(ctx context.Context, ev conversation.Event, eng *conversation.Engine, wait time.Duration) error {
	handled, err := eng.Handle(ctx, ev)
	if handled {
		if perr := r.persist(ctx, ev.ChatID, eng); perr != nil {
			return errors.Join(err, perr)
		}
		r.logHandled(ctx, eng, "continue", wait)
		return err
	}
	if err != nil {
		return err
	}
	return r.notify(ctx, ev.ChatID, fmt.Sprintf(r.notices.ActiveSession, eng.Name()), conversation.Options{})
}

func (r *Router) scan(ctx context.Context, ev conversation.Event, wait time.Duration) error {
	for _, def := range r.registry.Definitions() {
		eng, err := conversation.NewEngine(def, r.dispatcher)
		if err != nil {
			return err
		}
		handled, err := eng.Handle(ctx, ev)
		if !handled {
			if err != nil {
				return err
			}
			continue
		}
		if perr := r.persist(ctx, ev.ChatID, eng); perr != nil {
			return errors.Join(err, perr)
		}
		r.logHandled(ctx, eng, "start", wait)
		return err
	}

	opts := conversation.Options{RemoveKeyboard: true}
	if ev.IsText() {
		opts.ReplyToMessageID = ev.MessageID
	}
	logger.Debug(ctx, "session", "route.unmatched",
		slog.String("event_kind", ev.Kind.String()),
	)
	return r.notify(ctx, ev.ChatID, r.notices.NotUnderstood, opts)
}

func (r *Router) persist(ctx context.Context, chatID int64, eng *conversation.Engine) error {
	if eng.Ended() {
		if err := r.store.Delete(ctx, chatID); err != nil {
			return fmt.Errorf("session: evict chat %d: %w", chatID, err)
		}
		return nil
	}
	if err := r.store.Put(ctx, chatID, eng.Snapshot()); err != nil {
		return fmt.Errorf("session: save chat %d: %w", chatID, err)
	}
	return nil
}

func (r *Router) notify(ctx context.Context, chatID int64, text string, opts conversation.Options) error {
	if text == "" {
		return nil
	}
	if _, err := r.transport.SendText(ctx, chatID, text, opts); err != nil {
		return fmt.Errorf("session: notify chat %d: %w", chatID, err)
	}
	return nil
}

func (r *Router) logHandled(ctx context.Context, eng *conversation.Engine, outcome string, wait time.Duration) {
	logger.Info(ctx, "session", "route.handled",
		slog.String("command", eng.Name()),
		slog.Int("stage", eng.StageIndex()),
		slog.Bool("ended", eng.Ended()),
		slog.String("outcome", outcome),
		slog.Duration("lock_wait", wait),
	)
}

func isCancel(ev conversation.Event) bool {
	if !ev.IsText() {
		return false
	}
	name, ok := conversation.CommandName(ev.Text)
	return ok && name == conversation.CancelCommand
}

func isExpired(err error) bool {
	return errors.Is(err, conversation.ErrUnknownCommand) || errors.Is(err, conversation.ErrCorruptSnapshot)
}
