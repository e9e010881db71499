package out

import (
	"context"
	"database/sql"
	"fmt"

	depout "shiftwatch/internal/modules/departure/port/out"
	"shiftwatch/internal/platform/sqlitedb"
)

// SQLiteBottleArchive stores departure statements in the bottles table, the
// message archive shared with the rest of the workspace.
type SQLiteBottleArchive struct {
	db *sql.DB
}

func NewSQLiteBottleArchive(ctx context.Context, db *sql.DB) (depout.MessageArchive, error) {
	archive := &SQLiteBottleArchive{db: db}
	if err := archive.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return archive, nil
}

func (a *SQLiteBottleArchive) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS bottles (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS bottles_session ON bottles (session_id);
`
	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create bottles table: %w", err)
	}
	return nil
}

func (a *SQLiteBottleArchive) Archive(ctx context.Context, msg depout.Message) error {
	const stmt = `
INSERT INTO bottles (id, session_id, kind, content, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;
`
	if _, err := a.db.ExecContext(ctx, stmt, msg.ID, msg.SessionID, msg.Kind, msg.Content, sqlitedb.FormatTime(msg.CreatedAt)); err != nil {
		return fmt.Errorf("archive message %s: %w", msg.ID, err)
	}
	return nil
}

// BySession lists archived messages for one session, oldest first.
func (a *SQLiteBottleArchive) BySession(ctx context.Context, sessionID string) ([]depout.Message, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, session_id, kind, content, created_at FROM bottles WHERE session_id = ? ORDER BY created_at, id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query bottles: %w", err)
	}
	defer rows.Close()
	msgs := []depout.Message{}
	for rows.Next() {
		var (
			m  depout.Message
			at string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Kind, &m.Content, &at); err != nil {
			return nil, fmt.Errorf("scan bottle: %w", err)
		}
		if m.CreatedAt, err = sqlitedb.ParseTime(at); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bottles: %w", err)
	}
	return msgs, nil
}
