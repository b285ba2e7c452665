// Package redisstore keeps session snapshots in Redis and serializes chats
// across processes with a token-guarded lock.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/m3rciful/stagebot/core/config"
	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/logger"
	"github.com/m3rciful/stagebot/core/session"
)

// Keys builds the Redis key names for a prefix.
type Keys struct {
	Prefix string
}

// Session returns the key holding the snapshot of chatID.
func (k Keys) Session(chatID int64) string {
	return k.Prefix + "session:" + strconv.FormatInt(chatID, 10)
}

// Lock returns the key guarding chatID.
func (k Keys) Lock(chatID int64) string {
	return k.Prefix + "lock:" + strconv.FormatInt(chatID, 10)
}

// NewClient opens a client from cfg and checks it answers.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.LogEvent(ctx, logger.Store, slog.LevelError, "redis.connect",
			slog.String("status", "fail"),
			slog.String("host", cfg.Addr),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("redisstore: ping %s: %w", cfg.Addr, err)
	}
	logger.LogEvent(ctx, logger.Store, slog.LevelInfo, "redis.connect",
		slog.String("status", "ok"),
		slog.String("host", cfg.Addr),
		slog.Int("db", cfg.DB),
	)
	return client, nil
}

// Store is a session.Store on Redis strings. A positive TTL makes abandoned
// sessions expire; every Put refreshes it.
type Store struct {
	client redis.Cmdable
	keys   Keys
	ttl    time.Duration
}

var _ session.Store = (*Store)(nil)

// New returns a store using prefix for its keys.
func New(client redis.Cmdable, prefix string, ttl time.Duration) *Store {
	if ttl < 0 {
		ttl = 0
	}
	return &Store{client: client, keys: Keys{Prefix: prefix}, ttl: ttl}
}

// Get loads the snapshot of a chat.
func (s *Store) Get(ctx context.Context, chatID int64) (conversation.Snapshot, bool, error) {
	data, err := s.client.Get(ctx, s.keys.Session(chatID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return conversation.Snapshot{}, false, nil
		}
		return conversation.Snapshot{}, false, fmt.Errorf("redisstore: get %d: %w", chatID, err)
	}
	snap, err := conversation.DecodeSnapshot(data)
	if err != nil {
		logger.LogEvent(ctx, logger.Store, slog.LevelWarn, "session.decode",
			slog.String("store", "redis"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return conversation.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Put stores the snapshot of a chat.
func (s *Store) Put(ctx context.Context, chatID int64, snap conversation.Snapshot) error {
	data, err := conversation.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.keys.Session(chatID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: put %d: %w", chatID, err)
	}
	return nil
}

// Delete removes the snapshot of a chat.
func (s *Store) Delete(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, s.keys.Session(chatID)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %d: %w", chatID, err)
	}
	return nil
}
