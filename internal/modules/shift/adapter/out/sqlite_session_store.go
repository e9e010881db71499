package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shiftwatch/internal/modules/shift/domain"
	shiftout "shiftwatch/internal/modules/shift/port/out"
	apperrors "shiftwatch/internal/platform/errors"
	"shiftwatch/internal/platform/sqlitedb"
)

type SQLiteSessionStore struct {
	db *sql.DB
}

func NewSQLiteSessionStore(ctx context.Context, db *sql.DB) (shiftout.SessionStore, error) {
	store := &SQLiteSessionStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// sessions_single_open admits one row with a NULL end_time; the triggers make
// a row closable exactly once and never deletable.
func (s *SQLiteSessionStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  start_time TEXT NOT NULL,
  end_time TEXT,
  items_completed INTEGER,
  CHECK ((end_time IS NULL) = (items_completed IS NULL))
);
CREATE UNIQUE INDEX IF NOT EXISTS sessions_single_open ON sessions ((end_time IS NULL)) WHERE end_time IS NULL;
CREATE TRIGGER IF NOT EXISTS sessions_close_once BEFORE UPDATE ON sessions
WHEN OLD.end_time IS NOT NULL
BEGIN
  SELECT RAISE(ABORT, 'session already closed');
END;
CREATE TRIGGER IF NOT EXISTS sessions_no_delete BEFORE DELETE ON sessions
BEGIN
  SELECT RAISE(ABORT, 'sessions are never deleted');
END;
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) Insert(ctx context.Context, session domain.Session) error {
	if !session.IsOpen() {
		return fmt.Errorf("insert session %s: only open sessions can be inserted", session.ID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var open int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE end_time IS NULL`).Scan(&open); err != nil {
		return fmt.Errorf("count open sessions: %w", err)
	}
	if open > 0 {
		return apperrors.ErrSessionAlreadyOpen
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, start_time, end_time, items_completed) VALUES (?, ?, NULL, NULL)`,
		session.ID, sqlitedb.FormatTime(session.StartTime))
	if err != nil {
		if sqlitedb.IsUniqueViolation(err) {
			return apperrors.ErrSessionAlreadyOpen
		}
		return fmt.Errorf("insert session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert session: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) Close(ctx context.Context, id string, end time.Time, itemsCompleted int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET end_time = ?, items_completed = ? WHERE id = ? AND end_time IS NULL`,
		sqlitedb.FormatTime(end), itemsCompleted, id)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session rows: %w", err)
	}
	if n == 0 {
		return apperrors.ErrNoSuchOpenSession
	}
	return nil
}

func (s *SQLiteSessionStore) FindOpen(ctx context.Context) (domain.Session, error) {
	var id, start string
	err := s.db.QueryRowContext(ctx, `SELECT id, start_time FROM sessions WHERE end_time IS NULL`).Scan(&id, &start)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, apperrors.ErrNoActiveSession
		}
		return domain.Session{}, fmt.Errorf("find open session: %w", err)
	}
	startTime, err := sqlitedb.ParseTime(start)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.NewSession(id, startTime), nil
}

func (s *SQLiteSessionStore) ListClosed(ctx context.Context, limit int) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, start_time, end_time, items_completed FROM sessions
WHERE end_time IS NOT NULL
ORDER BY end_time DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list closed sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		var (
			id, start, end string
			items          int
		)
		if err := rows.Scan(&id, &start, &end, &items); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		startTime, err := sqlitedb.ParseTime(start)
		if err != nil {
			return nil, err
		}
		endTime, err := sqlitedb.ParseTime(end)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, domain.Session{
			ID:        id,
			StartTime: startTime,
			State:     domain.Closed{EndTime: endTime, ItemsCompleted: items},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
