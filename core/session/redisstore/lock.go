package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/m3rciful/stagebot/core/logger"
	"github.com/m3rciful/stagebot/core/session"
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// minLockTTL keeps the renewal interval and PEXPIRE argument above zero.
const minLockTTL = 30 * time.Millisecond

// Locker is a session.Locker built on SET NX PX. The TTL caps how long a
// crashed holder can block a chat; a live holder renews it every ttl/3
// until unlock.
type Locker struct {
	client redis.Cmdable
	keys   Keys
	ttl    time.Duration
	retry  time.Duration
	renew  time.Duration
}

var _ session.Locker = (*Locker)(nil)

// NewLocker returns a Locker whose locks expire after ttl.
func NewLocker(client redis.Cmdable, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if ttl < minLockTTL {
		ttl = minLockTTL
	}
	return &Locker{
		client: client,
		keys:   Keys{Prefix: prefix},
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		renew:  ttl / 3,
	}
}

// Lock polls until the chat lock is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, chatID int64) (func(), error) {
	key := l.keys.Lock(chatID)
	token := uuid.NewString()

	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: lock %d: %w", chatID, err)
		}
		if ok {
			if attempt > 1 {
				logger.LogEvent(ctx, logger.Store, slog.LevelDebug, "lock.acquired",
					slog.Int64("chat_id", chatID),
					slog.Int("attempts", attempt),
				)
			}
			stop := make(chan struct{})
			done := make(chan struct{})
			go l.keepAlive(chatID, key, token, stop, done)
			return l.unlocker(key, token, stop, done), nil
		}
		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// keepAlive renews the lease until stop is closed or the lease is lost.
func (l *Locker) keepAlive(chatID int64, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.renew)
	defer ticker.Stop()
	ttl := l.ttl.Milliseconds()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.renew)
		n, err := renewScript.Run(ctx, l.client, []string{key}, token, ttl).Int64()
		cancel()
		if err != nil {
			logger.LogEvent(context.Background(), logger.Store, slog.LevelWarn, "lock.renew_failed",
				slog.Int64("chat_id", chatID),
				slog.String("err", err.Error()),
			)
			continue
		}
		if n == 0 {
			logger.LogEvent(context.Background(), logger.Store, slog.LevelError, "lock.lost",
				slog.Int64("chat_id", chatID),
			)
			return
		}
	}
}

func (l *Locker) unlocker(key, token string, stop chan<- struct{}, done <-chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// the caller's context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				logger.LogEvent(ctx, logger.Store, slog.LevelWarn, "lock.release_failed",
					slog.String("store", "redis"),
					slog.String("err", err.Error()),
				)
			}
		})
	}
}
