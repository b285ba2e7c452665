// Package sqlstore keeps session snapshots in a SQL table through sqlx.
// PostgreSQL and SQLite share the same queries.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/logger"
	"github.com/m3rciful/stagebot/core/session"
)

// Store is a session.Store backed by the sessions table.
type Store struct {
	db  *sqlx.DB
	now func() time.Time

	getQuery    string
	upsertQuery string
	deleteQuery string
}

var _ session.Store = (*Store)(nil)

type row struct {
	ChatID      int64  `db:"chat_id"`
	CommandName string `db:"command_name"`
	Snapshot    string `db:"snapshot"`
	UpdatedAt   int64  `db:"updated_at"`
}

// New returns a store over a migrated database.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:          db,
		now:         time.Now,
		getQuery:    db.Rebind(`SELECT chat_id, command_name, snapshot, updated_at FROM sessions WHERE chat_id = ?`),
		upsertQuery: db.Rebind(upsertSQL),
		deleteQuery: db.Rebind(`DELETE FROM sessions WHERE chat_id = ?`),
	}
}

const upsertSQL = `INSERT INTO sessions (chat_id, command_name, snapshot, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (chat_id) DO UPDATE SET
    command_name = excluded.command_name,
    snapshot = excluded.snapshot,
    updated_at = excluded.updated_at`

// Get loads the snapshot of a chat.
func (s *Store) Get(ctx context.Context, chatID int64) (conversation.Snapshot, bool, error) {
	var r row
	if err := s.db.GetContext(ctx, &r, s.getQuery, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conversation.Snapshot{}, false, nil
		}
		return conversation.Snapshot{}, false, fmt.Errorf("sqlstore: get %d: %w", chatID, err)
	}
	snap, err := conversation.DecodeSnapshot([]byte(r.Snapshot))
	if err != nil {
		logger.LogEvent(ctx, logger.Store, slog.LevelWarn, "session.decode",
			slog.String("store", s.db.DriverName()),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return conversation.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Put upserts the snapshot of a chat.
func (s *Store) Put(ctx context.Context, chatID int64, snap conversation.Snapshot) error {
	data, err := conversation.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.upsertQuery, chatID, snap.CommandName, string(data), s.now().Unix()); err != nil {
		return fmt.Errorf("sqlstore: put %d: %w", chatID, err)
	}
	return nil
}

// Delete removes the snapshot of a chat.
func (s *Store) Delete(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, s.deleteQuery, chatID); err != nil {
		return fmt.Errorf("sqlstore: delete %d: %w", chatID, err)
	}
	return nil
}

// CountByCommand reports how many live sessions each command has.
func (s *Store) CountByCommand(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		CommandName string `db:"command_name"`
		Count       int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT command_name, COUNT(*) AS n FROM sessions GROUP BY command_name`); err != nil {
		return nil, fmt.Errorf("sqlstore: count sessions: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.CommandName] = r.Count
	}
	return out, nil
}
