package out

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"shiftwatch/internal/modules/audit/domain"
	auditout "shiftwatch/internal/modules/audit/port/out"
	"shiftwatch/internal/platform/sqlitedb"
)

type SQLiteAuditStore struct {
	db *sql.DB
}

func NewSQLiteAuditStore(ctx context.Context, db *sql.DB) (auditout.AuditStore, error) {
	store := &SQLiteAuditStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// The triggers make the table append-only for every writer, not just this adapter.
func (s *SQLiteAuditStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_logs (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  kind TEXT NOT NULL,
  timestamp TEXT NOT NULL,
  details TEXT NOT NULL,
  reason_code TEXT,
  duration_ms INTEGER
);
CREATE INDEX IF NOT EXISTS audit_logs_kind_ts ON audit_logs (kind, timestamp);
CREATE TRIGGER IF NOT EXISTS audit_logs_no_update BEFORE UPDATE ON audit_logs
BEGIN
  SELECT RAISE(ABORT, 'audit_logs is append-only');
END;
CREATE TRIGGER IF NOT EXISTS audit_logs_no_delete BEFORE DELETE ON audit_logs
BEGIN
  SELECT RAISE(ABORT, 'audit_logs is append-only');
END;
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create audit_logs table: %w", err)
	}
	return nil
}

func (s *SQLiteAuditStore) Append(ctx context.Context, entry domain.Entry) error {
	const stmt = `
INSERT INTO audit_logs (id, kind, timestamp, details, reason_code, duration_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;
`
	var reason sql.NullString
	if entry.ReasonCode != nil {
		reason = sql.NullString{String: string(*entry.ReasonCode), Valid: true}
	}
	var duration sql.NullInt64
	if entry.Duration != nil {
		duration = sql.NullInt64{Int64: entry.Duration.Milliseconds(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, stmt,
		entry.ID,
		string(entry.Kind),
		sqlitedb.FormatTime(entry.Timestamp),
		entry.Details,
		reason,
		duration,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Query returns the newest matching entries, oldest first.
func (s *SQLiteAuditStore) Query(ctx context.Context, query auditout.Query) ([]domain.Entry, error) {
	where, args := whereClause(query)
	stmt := `SELECT id, kind, timestamp, details, reason_code, duration_ms FROM audit_logs` + where + ` ORDER BY seq DESC`
	if query.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, query.Limit)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit_logs: %w", err)
	}
	defer rows.Close()

	entries := []domain.Entry{}
	for rows.Next() {
		var (
			e        domain.Entry
			kind     string
			ts       string
			reason   sql.NullString
			duration sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &kind, &ts, &e.Details, &reason, &duration); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Kind = domain.Kind(kind)
		if e.Timestamp, err = sqlitedb.ParseTime(ts); err != nil {
			return nil, err
		}
		if reason.Valid {
			code := domain.ReasonCode(reason.String)
			e.ReasonCode = &code
		}
		if duration.Valid {
			d := time.Duration(duration.Int64) * time.Millisecond
			e.Duration = &d
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit_logs: %w", err)
	}
	for l, r := 0, len(entries)-1; l < r; l, r = l+1, r-1 {
		entries[l], entries[r] = entries[r], entries[l]
	}
	return entries, nil
}

func (s *SQLiteAuditStore) Count(ctx context.Context, query auditout.Query) (int, error) {
	where, args := whereClause(query)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit_logs: %w", err)
	}
	return n, nil
}

func whereClause(query auditout.Query) (string, []any) {
	conds := []string{}
	args := []any{}
	if len(query.Kinds) > 0 {
		marks := make([]string, 0, len(query.Kinds))
		for _, k := range query.Kinds {
			marks = append(marks, "?")
			args = append(args, string(k))
		}
		conds = append(conds, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	if !query.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, sqlitedb.FormatTime(query.Since))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
