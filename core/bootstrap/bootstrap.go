// Package bootstrap initializes logging and the session storage selected by configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/stagebot/core/config"
	"github.com/m3rciful/stagebot/core/conversation"
	coredatabase "github.com/m3rciful/stagebot/core/database"
	"github.com/m3rciful/stagebot/core/logger"
	"github.com/m3rciful/stagebot/core/session"
	"github.com/m3rciful/stagebot/core/session/redisstore"
	"github.com/m3rciful/stagebot/core/session/sqlstore"
)

// Options control the bootstrap pipeline. Nil functions use the real implementations.
type Options struct {
	Config *coreconfig.Config
	// Registry is used to report persisted sessions whose command is gone.
	Registry *conversation.Registry

	LoggerInit      func(*coreconfig.Config) error
	ConnectPostgres func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	ConnectSQLite   func(context.Context, string) (*sqlx.DB, error)
	Migrate         func(context.Context, *sqlx.DB) error
	ConnectRedis    func(context.Context, coreconfig.RedisConfig) (*redis.Client, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store         session.Store
	RouterOptions []session.Option

	DB    *sqlx.DB
	Redis *redis.Client
}

// Close releases database and Redis connections.
func (r *Result) Close() error {
	var errs []error
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	return errors.Join(errs...)
}

// Run initializes the logger and builds the session store and locker.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{
		RouterOptions: []session.Option{
			session.WithLockTimeout(time.Duration(cfg.Session.LockTimeoutMS) * time.Millisecond),
		},
	}

	var err error
	switch cfg.Session.Store {
	case coreconfig.StorePostgres:
		connect := opts.ConnectPostgres
		if connect == nil {
			connect = coredatabase.ConnectPostgres
		}
		err = res.openSQL(ctx, opts, func(ctx context.Context) (*sqlx.DB, error) {
			return connect(ctx, cfg.Database)
		})
	case coreconfig.StoreSQLite:
		connect := opts.ConnectSQLite
		if connect == nil {
			connect = coredatabase.ConnectSQLite
		}
		err = res.openSQL(ctx, opts, func(ctx context.Context) (*sqlx.DB, error) {
			return connect(ctx, cfg.SQLite.Path)
		})
	case coreconfig.StoreRedis:
		err = res.openRedis(ctx, opts)
	default:
		res.Store = session.NewMemoryStore()
	}
	if err != nil {
		_ = res.Close()
		return nil, err
	}

	logger.Info(ctx, "app", "bootstrap.store",
		slog.String("status", "ok"),
		slog.String("store", cfg.Session.Store),
		slog.Int("lock_timeout_ms", cfg.Session.LockTimeoutMS),
	)
	return res, nil
}

func (r *Result) openSQL(ctx context.Context, opts Options, connect func(context.Context) (*sqlx.DB, error)) error {
	db, err := connect(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	r.DB = db

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, db); err != nil {
		return fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	store := sqlstore.New(db)
	r.Store = store
	reportSessions(ctx, store, opts.Registry)
	return nil
}

func (r *Result) openRedis(ctx context.Context, opts Options) error {
	cfg := opts.Config.Redis
	connect := opts.ConnectRedis
	if connect == nil {
		connect = redisstore.NewClient
	}
	client, err := connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: redis initialization failed: %w", err)
	}
	r.Redis = client

	ttl := time.Duration(cfg.SessionTTLSeconds) * time.Second
	r.Store = redisstore.New(client, cfg.Prefix, ttl)
	r.RouterOptions = append(r.RouterOptions,
		session.WithLocker(redisstore.NewLocker(client, cfg.Prefix, time.Duration(cfg.LockTTLMS)*time.Millisecond)),
	)
	return nil
}

// reportSessions logs how many sessions survived the restart and warns
// about those whose command is no longer registered; they expire on the
// next event of their chat.
func reportSessions(ctx context.Context, store *sqlstore.Store, reg *conversation.Registry) {
	counts, err := store.CountByCommand(ctx)
	if err != nil {
		logger.Warn(ctx, "store", "sessions.count",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	total := 0
	var orphaned []string
	for name, n := range counts {
		total += n
		if reg == nil {
			continue
		}
		if _, err := reg.Lookup(name); err != nil {
			orphaned = append(orphaned, name)
		}
	}
	logger.Info(ctx, "store", "sessions.restored",
		slog.String("status", "ok"),
		slog.Int("sessions", total),
		slog.Int("commands", len(counts)),
	)
	if len(orphaned) == 0 {
		return
	}
	sort.Strings(orphaned)
	summary, _ := logger.SummarizeStrings(orphaned, 10)
	logger.Warn(ctx, "store", "sessions.orphaned",
		slog.String("status", "skip"),
		slog.String("commands", summary),
	)
}
