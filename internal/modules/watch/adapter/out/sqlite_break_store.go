package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shiftwatch/internal/modules/watch/domain"
	apperrors "shiftwatch/internal/platform/errors"
	"shiftwatch/internal/platform/sqlitedb"
)

// SQLiteBreakStore keeps the active break next to the sessions so separate
// CLI invocations agree on whether the user is away.
type SQLiteBreakStore struct {
	db *sql.DB
}

func NewSQLiteBreakStore(ctx context.Context, db *sql.DB) (*SQLiteBreakStore, error) {
	store := &SQLiteBreakStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// The CHECK on slot admits a single row, so at most one break is active.
func (s *SQLiteBreakStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS active_break (
  slot INTEGER PRIMARY KEY CHECK (slot = 1),
  id TEXT NOT NULL,
  kind TEXT NOT NULL,
  away_start TEXT NOT NULL,
  planned_ns INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create active_break table: %w", err)
	}
	return nil
}

func (s *SQLiteBreakStore) Save(ctx context.Context, b domain.Break) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO active_break (slot, id, kind, away_start, planned_ns)
VALUES (1, ?, ?, ?, ?)`, b.ID, string(b.Kind), sqlitedb.FormatTime(b.AwayStart), int64(b.Planned))
	if sqlitedb.IsUniqueViolation(err) {
		return apperrors.ErrAlreadyOnBreak
	}
	if err != nil {
		return fmt.Errorf("save break %s: %w", b.ID, err)
	}
	return nil
}

func (s *SQLiteBreakStore) Load(ctx context.Context) (domain.Break, error) {
	var (
		b         domain.Break
		kind, at  string
		plannedNs int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, kind, away_start, planned_ns FROM active_break WHERE slot = 1`).
		Scan(&b.ID, &kind, &at, &plannedNs)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Break{}, apperrors.ErrNotOnBreak
	}
	if err != nil {
		return domain.Break{}, fmt.Errorf("load break: %w", err)
	}
	if b.Kind, err = domain.ParseKind(kind); err != nil {
		return domain.Break{}, fmt.Errorf("load break %s: %w", b.ID, err)
	}
	if b.AwayStart, err = sqlitedb.ParseTime(at); err != nil {
		return domain.Break{}, err
	}
	b.Planned = time.Duration(plannedNs)
	return b, nil
}

func (s *SQLiteBreakStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM active_break`); err != nil {
		return fmt.Errorf("clear break: %w", err)
	}
	return nil
}
