package out_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	auditadapter "shiftwatch/internal/modules/audit/adapter/out"
	"shiftwatch/internal/modules/audit/domain"
	auditout "shiftwatch/internal/modules/audit/port/out"
	"shiftwatch/internal/platform/sqlitedb"
)

func newStore(t *testing.T) (auditout.AuditStore, func(string) error) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := auditadapter.NewSQLiteAuditStore(ctx, db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	exec := func(stmt string) error {
		_, err := db.ExecContext(ctx, stmt)
		return err
	}
	return store, exec
}

func TestAppendQueryRoundTrip(t *testing.T) {
	t.Parallel()
	store, _ := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	reason := domain.ReasonPersonal
	dur := 754 * time.Second
	entries := []domain.Entry{
		{ID: "1", Kind: domain.KindEarlyExit, Timestamp: base, Details: "doctor", ReasonCode: &reason},
		{ID: "2", Kind: domain.KindSafetyCheck, Timestamp: base.Add(time.Minute), Details: "GALLEY duration=754", Duration: &dur},
		{ID: "3", Kind: domain.KindDrift, Timestamp: base.Add(2 * time.Minute), Details: "tab hidden"},
	}
	for _, e := range entries {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("append %s: %v", e.ID, err)
		}
	}
	got, err := store.Query(ctx, auditout.Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	drift, err := store.Count(ctx, auditout.Query{Kinds: []domain.Kind{domain.KindDrift}, Since: base.Add(time.Minute)})
	if err != nil || drift != 1 {
		t.Fatalf("expected one drift entry, got %d (%v)", drift, err)
	}
	latest, err := store.Query(ctx, auditout.Query{Limit: 2})
	if err != nil {
		t.Fatalf("query limit: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != "2" || latest[1].ID != "3" {
		t.Fatalf("expected newest two entries oldest-first, got %+v", latest)
	}
}

func TestAppendIsIdempotentPerID(t *testing.T) {
	t.Parallel()
	store, _ := newStore(t)
	ctx := context.Background()
	e := domain.Entry{ID: "same", Kind: domain.KindSOSBeacon, Timestamp: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), Details: "sos"}
	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("append attempt %d: %v", i, err)
		}
	}
	n, err := store.Count(ctx, auditout.Query{})
	if err != nil || n != 1 {
		t.Fatalf("expected one stored entry, got %d (%v)", n, err)
	}
}

func TestTableRejectsUpdateAndDelete(t *testing.T) {
	t.Parallel()
	store, exec := newStore(t)
	ctx := context.Background()
	e := domain.Entry{ID: "x", Kind: domain.KindSecurity, Timestamp: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), Details: "original"}
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := exec(`UPDATE audit_logs SET details = 'edited' WHERE id = 'x'`); err == nil {
		t.Fatalf("update must be rejected")
	}
	if err := exec(`DELETE FROM audit_logs WHERE id = 'x'`); err == nil {
		t.Fatalf("delete must be rejected")
	}
	got, err := store.Query(ctx, auditout.Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Details != "original" {
		t.Fatalf("entry changed: %+v", got)
	}
}
