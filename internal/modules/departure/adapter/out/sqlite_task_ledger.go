package out

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	depout "shiftwatch/internal/modules/departure/port/out"
	"shiftwatch/internal/platform/sqlitedb"
)

const taskDone = "DONE"

// SQLiteTaskLedger is a read-only view over the task and holding-area tables
// owned by the workspace. The tables are created empty if missing so lookups
// on a fresh database report zeros instead of failing.
type SQLiteTaskLedger struct {
	db *sql.DB
}

func NewSQLiteTaskLedger(ctx context.Context, db *sql.DB) (*SQLiteTaskLedger, error) {
	ledger := &SQLiteTaskLedger{db: db}
	if err := ledger.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return ledger, nil
}

var (
	_ depout.TaskStats      = (*SQLiteTaskLedger)(nil)
	_ depout.HoldingCounter = (*SQLiteTaskLedger)(nil)
)

func (l *SQLiteTaskLedger) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  completed_at TEXT
);
CREATE TABLE IF NOT EXISTS holding_items (
  id TEXT PRIMARY KEY,
  content TEXT NOT NULL DEFAULT '',
  archived INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create task tables: %w", err)
	}
	return nil
}

func (l *SQLiteTaskLedger) TaskCounts(ctx context.Context) (int, int, error) {
	var completed, total int
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0), COUNT(*) FROM tasks`,
		taskDone).Scan(&completed, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("count tasks: %w", err)
	}
	return completed, total, nil
}

func (l *SQLiteTaskLedger) UnarchivedHoldingItems(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM holding_items WHERE archived = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count holding items: %w", err)
	}
	return n, nil
}

// CompletedSince counts tasks finished at or after since. The engine uses it
// for the items_completed figure recorded when a shift closes.
func (l *SQLiteTaskLedger) CompletedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = ? AND completed_at >= ?`,
		taskDone, sqlitedb.FormatTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed tasks: %w", err)
	}
	return n, nil
}
