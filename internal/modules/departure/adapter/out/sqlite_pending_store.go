package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	depout "shiftwatch/internal/modules/departure/port/out"
	apperrors "shiftwatch/internal/platform/errors"
	"shiftwatch/internal/platform/sqlitedb"
)

// SQLitePendingStore keeps the frozen submission of an unfinished departure,
// one row per session.
type SQLitePendingStore struct {
	db *sql.DB
}

func NewSQLitePendingStore(ctx context.Context, db *sql.DB) (*SQLitePendingStore, error) {
	store := &SQLitePendingStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLitePendingStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS departure_pending (
  session_id TEXT PRIMARY KEY,
  session_start TEXT NOT NULL,
  audit_id TEXT NOT NULL,
  at TEXT NOT NULL,
  reason TEXT NOT NULL,
  statement TEXT NOT NULL,
  details TEXT NOT NULL,
  is_emergency INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create departure_pending table: %w", err)
	}
	return nil
}

// Save keeps the first submission frozen for a session; a later Save for the
// same session is ignored.
func (s *SQLitePendingStore) Save(ctx context.Context, p depout.PendingSubmission) error {
	const stmt = `
INSERT INTO departure_pending (session_id, session_start, audit_id, at, reason, statement, details, is_emergency)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO NOTHING;
`
	_, err := s.db.ExecContext(ctx, stmt,
		p.SessionID, sqlitedb.FormatTime(p.SessionStart), p.AuditID, sqlitedb.FormatTime(p.At),
		p.Reason, p.Statement, p.Details, p.IsEmergency)
	if err != nil {
		return fmt.Errorf("save pending departure %s: %w", p.SessionID, err)
	}
	return nil
}

func (s *SQLitePendingStore) Load(ctx context.Context, sessionID string) (depout.PendingSubmission, error) {
	var (
		p         depout.PendingSubmission
		start, at string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT session_id, session_start, audit_id, at, reason, statement, details, is_emergency
FROM departure_pending WHERE session_id = ?`, sessionID).
		Scan(&p.SessionID, &start, &p.AuditID, &at, &p.Reason, &p.Statement, &p.Details, &p.IsEmergency)
	if errors.Is(err, sql.ErrNoRows) {
		return depout.PendingSubmission{}, apperrors.ErrNotFound
	}
	if err != nil {
		return depout.PendingSubmission{}, fmt.Errorf("load pending departure %s: %w", sessionID, err)
	}
	if p.SessionStart, err = sqlitedb.ParseTime(start); err != nil {
		return depout.PendingSubmission{}, err
	}
	if p.At, err = sqlitedb.ParseTime(at); err != nil {
		return depout.PendingSubmission{}, err
	}
	return p, nil
}

func (s *SQLitePendingStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM departure_pending WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear pending departure %s: %w", sessionID, err)
	}
	return nil
}
