package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/stagebot/core/config"
	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/session"
	"github.com/m3rciful/stagebot/core/session/redisstore"
	"github.com/m3rciful/stagebot/core/session/sqlstore"
)

func noLogger(*coreconfig.Config) error { return nil }

func testConfig(t *testing.T, store string) *coreconfig.Config {
	t.Helper()
	cfg := &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{Token: "t"},
		Session:  coreconfig.SessionConfig{Store: store},
		SQLite:   coreconfig.SQLiteConfig{Path: filepath.Join(t.TempDir(), "sessions.db")},
		Redis:    coreconfig.RedisConfig{Addr: "127.0.0.1:6379"},
	}
	require.NoError(t, coreconfig.Normalize(cfg))
	return cfg
}

func TestRunMemory(t *testing.T) {
	res, err := Run(context.Background(), Options{Config: testConfig(t, coreconfig.StoreMemory), LoggerInit: noLogger})
	require.NoError(t, err)
	defer res.Close()

	assert.IsType(t, &session.MemoryStore{}, res.Store)
	assert.Len(t, res.RouterOptions, 1)
	assert.Nil(t, res.DB)
}

func TestRunSQLiteMigratesAndReopens(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, coreconfig.StoreSQLite)

	res, err := Run(ctx, Options{Config: cfg, LoggerInit: noLogger})
	require.NoError(t, err)
	require.IsType(t, &sqlstore.Store{}, res.Store)
	require.NoError(t, res.Store.Put(ctx, 7, conversation.Snapshot{CommandName: "retired", State: []byte(`{}`)}))
	require.NoError(t, res.Close())

	reg := conversation.MustRegistry()
	res, err = Run(ctx, Options{Config: cfg, Registry: reg, LoggerInit: noLogger})
	require.NoError(t, err)
	defer res.Close()

	snap, found, err := res.Store.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "retired", snap.CommandName)
}

func TestRunClosesDBWhenMigrationFails(t *testing.T) {
	cfg := testConfig(t, coreconfig.StoreSQLite)
	var opened *sqlx.DB
	_, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		ConnectSQLite: func(ctx context.Context, path string) (*sqlx.DB, error) {
			db, err := sqlx.Open("sqlite", path)
			opened = db
			return db, err
		},
		Migrate: func(context.Context, *sqlx.DB) error { return errors.New("dirty") },
	})
	require.Error(t, err)
	require.NotNil(t, opened)
	assert.Error(t, opened.Ping(), "db must be closed")
}

func TestRunRedis(t *testing.T) {
	cfg := testConfig(t, coreconfig.StoreRedis)
	res, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		ConnectRedis: func(_ context.Context, rc coreconfig.RedisConfig) (*redis.Client, error) {
			return redis.NewClient(&redis.Options{Addr: rc.Addr}), nil
		},
	})
	require.NoError(t, err)
	defer res.Close()

	assert.IsType(t, &redisstore.Store{}, res.Store)
	assert.Len(t, res.RouterOptions, 2)
	assert.NotNil(t, res.Redis)
}

func TestRunErrors(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)

	_, err = Run(context.Background(), Options{
		Config:     testConfig(t, coreconfig.StoreMemory),
		LoggerInit: func(*coreconfig.Config) error { return errors.New("no log dir") },
	})
	assert.ErrorContains(t, err, "logger init failed")

	_, err = Run(context.Background(), Options{
		Config:     testConfig(t, coreconfig.StoreRedis),
		LoggerInit: noLogger,
		ConnectRedis: func(context.Context, coreconfig.RedisConfig) (*redis.Client, error) {
			return nil, errors.New("connection refused")
		},
	})
	assert.ErrorContains(t, err, "redis initialization failed")
}
