package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/stagebot/core/config"
	"github.com/m3rciful/stagebot/core/logger"
)

const (
	// DriverPostgres is the database/sql driver name registered by lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite is the database/sql driver name registered by modernc.org/sqlite.
	DriverSQLite = "sqlite"
)

// PostgresDSN builds a libpq connection URL from cfg.
func PostgresDSN(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": []string{cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

// SQLiteDSN turns a file path into a modernc DSN with foreign keys and a busy timeout.
func SQLiteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + q.Encode()
}

// ConnectPostgres waits for PostgreSQL to accept connections, then opens the pool.
func ConnectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := PostgresDSN(cfg)
	if err := WaitForDB(ctx, DriverPostgres, dsn, 30*time.Second); err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.wait",
			slog.String("status", "fail"),
			slog.String("host", cfg.Host),
			slog.String("port", cfg.Port),
			slog.String("err", err.Error()),
		)
		return nil, err
	}
	db, err := connect(ctx, DriverPostgres, dsn, cfg.Name)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "db.pool",
		slog.Int("pool_open", cfg.MaxConnections),
	)
	return db, nil
}

// ConnectSQLite opens a SQLite database. A single connection is used so
// writers never contend for the file lock.
func ConnectSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := connect(ctx, DriverSQLite, SQLiteDSN(path), path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func connect(ctx context.Context, driver, dsn, name string) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	took := logger.Took(start)
	if err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect",
			slog.String("status", "fail"),
			slog.String("driver", driver),
			slog.String("db", name),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect %s: %w", driver, err)
	}

	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect",
		slog.String("status", "ok"),
		slog.String("driver", driver),
		slog.String("db", name),
		slog.Duration("duration", took),
	)
	return db, nil
}

// WaitForDB pings the database until it answers, timeout passes or ctx is done.
func WaitForDB(ctx context.Context, driver, dsn string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for attempt := 1; ; attempt++ {
		db, err := sqlx.Open(driver, dsn)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = db.PingContext(pingCtx)
			cancel()
			_ = db.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout reached waiting for database after %d attempts: %w", attempt, lastErr)
		}
		logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "db.wait",
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
