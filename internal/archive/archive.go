// Package archive keeps a local SQLite transcript of every message the
// engine sees. It is an export convenience: the engine only writes to
// it, the CLI reads it for offline history, and it is never consulted
// for synchronization decisions.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"lmsync/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteArchive implements domain.MessageArchive.
type SQLiteArchive struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.MessageArchive = (*SQLiteArchive)(nil)

func New(dbPath string, logger *slog.Logger) (*SQLiteArchive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create archive directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open archive: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	a := &SQLiteArchive{db: db, logger: logger}

	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive migration failed: %w", err)
	}

	return a, nil
}

func (a *SQLiteArchive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id            INTEGER PRIMARY KEY,
		from_user_id  INTEGER NOT NULL,
		to_user_id    INTEGER NOT NULL,
		content       TEXT,
		created_at    DATETIME NOT NULL,
		is_read       INTEGER NOT NULL DEFAULT 0,
		archived_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(from_user_id, to_user_id, created_at);
	`

	_, err := a.db.Exec(schema)
	return err
}

// Record upserts one message. The same ID may be seen twice (REST
// history plus the push event for the same send); the later write wins
// so the stored is_read tracks the freshest sighting.
func (a *SQLiteArchive) Record(ctx context.Context, msg domain.Message) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO messages (id, from_user_id, to_user_id, content, created_at, is_read)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET is_read=excluded.is_read`,
		msg.ID, msg.FromUserID, msg.ToUserID, msg.Content, msg.CreatedAt.UTC(), msg.IsRead,
	)
	return err
}

// History returns the archived conversation with a partner in
// created_at ascending order, capped at limit.
func (a *SQLiteArchive) History(ctx context.Context, viewerID, partnerID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, from_user_id, to_user_id, content, created_at, is_read
		 FROM messages
		 WHERE (from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)
		 ORDER BY created_at ASC LIMIT ?`,
		viewerID, partnerID, partnerID, viewerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.FromUserID, &m.ToUserID, &m.Content, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Count returns the number of archived messages.
func (a *SQLiteArchive) Count(ctx context.Context) (int64, error) {
	var n int64
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
