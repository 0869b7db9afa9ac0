package storage

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"dropin/internal/adapters/http/perf"
)

func openTimedTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("CREATE TABLE test (id TEXT PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	return db
}

// TestTimedDB_RecordsEachCall verifies every wrapped method records one entry.
func TestTimedDB_RecordsEachCall(t *testing.T) {
	ctx := context.Background()
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector, 0)

	if _, err := tdb.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	rows, err := tdb.QueryContext(ctx, "SELECT id, val FROM test")
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	rows.Close()
	var val string
	if err := tdb.QueryRowContext(ctx, "SELECT val FROM test WHERE id = ?", "1").Scan(&val); err != nil || val != "hello" {
		t.Fatalf("QueryRowContext = %q, %v", val, err)
	}
	tx, err := tdb.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	tx.Rollback()

	if collector.TotalRecorded() != 4 {
		t.Errorf("TotalRecorded = %d, want 4", collector.TotalRecorded())
	}
}

// TestTimedDB_GroupsByStatement verifies queries aggregate under their label.
func TestTimedDB_GroupsByStatement(t *testing.T) {
	ctx := context.Background()
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector, time.Hour)

	for _, id := range []string{"a", "b", "c"} {
		tdb.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", id, id)
	}
	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	if len(snap.SlowestQueries) != 1 {
		t.Fatalf("SlowestQueries = %+v, want one label", snap.SlowestQueries)
	}
	if snap.SlowestQueries[0].Path != "INSERT test" || snap.SlowestQueries[0].Count != 3 {
		t.Errorf("stat = %+v, want INSERT test x3", snap.SlowestQueries[0])
	}
}

// TestTimedDB_FailedQuery marks errors as failed.
func TestTimedDB_FailedQuery(t *testing.T) {
	collector := perf.NewCollector(1)
	tdb := NewTimedDB(openTimedTestDB(t), collector, 0)

	if _, err := tdb.ExecContext(context.Background(), "INSERT INTO missing (id) VALUES (1)"); err == nil {
		t.Fatal("expected error for missing table")
	}
	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	if len(snap.SlowestQueries) != 1 || snap.SlowestQueries[0].Failed != 1 {
		t.Errorf("SlowestQueries = %+v, want one failed", snap.SlowestQueries)
	}
}

// TestTimedDB_NilCollector verifies no panic when collector is nil.
func TestTimedDB_NilCollector(t *testing.T) {
	tdb := NewTimedDB(openTimedTestDB(t), nil, 0)
	if _, err := tdb.ExecContext(context.Background(), "INSERT INTO test (id, val) VALUES (?, ?)", "1", "x"); err != nil {
		t.Errorf("ExecContext: %v", err)
	}
}

// TestTimedDB_Concurrent verifies concurrent use is safe.
func TestTimedDB_Concurrent(t *testing.T) {
	collector := perf.NewCollector(1000)
	tdb := NewTimedDB(openTimedTestDB(t), collector, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n int
			tdb.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM test").Scan(&n)
		}()
	}
	wg.Wait()
	if collector.TotalRecorded() != 20 {
		t.Errorf("TotalRecorded = %d, want 20", collector.TotalRecorded())
	}
}

// TestQueryLabel covers the statement shapes stores issue.
func TestQueryLabel(t *testing.T) {
	tests := map[string]string{
		"SELECT id FROM guest WHERE id = ?":             "SELECT guest",
		"INSERT INTO service_entry (id) VALUES (?)":     "INSERT service_entry",
		"DELETE FROM outbox WHERE id = ?":               "DELETE outbox",
		"UPDATE kv_item SET value = ?":                  "UPDATE kv_item",
		"  select count(*) from donation":               "SELECT donation",
		"PRAGMA journal_mode=WAL":                       "PRAGMA",
		"":                                              "EMPTY",
		"INSERT INTO kv_item(key, value) VALUES (?, ?)": "INSERT kv_item",
	}
	for q, want := range tests {
		if got := QueryLabel(q); got != want {
			t.Errorf("QueryLabel(%q) = %q, want %q", q, got, want)
		}
	}
}
