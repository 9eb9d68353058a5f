package session

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"collalearn/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	m := NewManager(db, time.Hour)
	ctx := context.Background()

	results := []string{"10", "11", "12"}
	sid, err := m.Create(ctx, 100, 1, results)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sid == "" {
		t.Fatalf("empty session id")
	}
	s, err := m.Get(ctx, sid, 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(s.Results, results) {
		t.Fatalf("results = %v, want %v", s.Results, results)
	}
	if s.GroupID != 1 || s.RequesterID != 100 {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestGetRejectsOtherUsers(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	m := NewManager(db, time.Hour)
	ctx := context.Background()

	sid, err := m.Create(ctx, 100, 1, []string{"10"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Get(ctx, sid, 200); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGetUnknownSession(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	m := NewManager(db, time.Hour)

	if _, err := m.Get(context.Background(), "no-such-session", 100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiredSessionReadsAsNotFoundForEveryone(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	m := NewManager(db, time.Hour)
	ctx := context.Background()

	sid, err := m.Create(ctx, 100, 1, []string{"10"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	// The owner and a stranger see the same ErrNotFound once expired, so
	// expiry does not leak whether the session ever existed.
	if _, err := m.Get(ctx, sid, 100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("owner: expected ErrNotFound, got %v", err)
	}
	if _, err := m.Get(ctx, sid, 200); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger: expected ErrNotFound, got %v", err)
	}
}

func TestGetPagePagination(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	m := NewManager(db, time.Hour)
	ctx := context.Background()

	sid, err := m.Create(ctx, 100, 1, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	page0, total, err := m.GetPage(ctx, sid, 100, 0, 2)
	if err != nil {
		t.Fatalf("page 0: %v", err)
	}
	if total != 3 || !reflect.DeepEqual(page0, []string{"a", "b"}) {
		t.Fatalf("page 0 = %v (total %d)", page0, total)
	}
	page1, _, err := m.GetPage(ctx, sid, 100, 1, 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if !reflect.DeepEqual(page1, []string{"c"}) {
		t.Fatalf("page 1 = %v", page1)
	}
	page2, _, err := m.GetPage(ctx, sid, 100, 2, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 0 {
		t.Fatalf("page past the end = %v, want empty", page2)
	}
}

func TestGetPageHugePageNumber(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	m := NewManager(db, time.Hour)
	ctx := context.Background()

	sid, err := m.Create(ctx, 100, 1, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Page numbers arrive from callback data, so any int must come back as
	// an empty page, including values that overflow page*pageSize.
	for _, page := range []int{4, 1 << 30, 3074457345618258603} {
		got, total, err := m.GetPage(ctx, sid, 100, page, 3)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if total != 3 || len(got) != 0 {
			t.Fatalf("page %d = %v (total %d), want empty", page, got, total)
		}
	}
}

func TestResolveIndex(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	m := NewManager(db, time.Hour)
	ctx := context.Background()

	sid, err := m.Create(ctx, 100, 1, []string{"x", "y"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i, want := range []string{"x", "y"} {
		got, err := m.ResolveIndex(ctx, sid, 100, i)
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("resolve %d = %q, want %q", i, got, want)
		}
	}
	for _, idx := range []int{-1, 2} {
		if _, err := m.ResolveIndex(ctx, sid, 100, idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("index %d: expected ErrIndexOutOfRange, got %v", idx, err)
		}
	}
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	m := NewManager(db, time.Hour)
	ctx := context.Background()

	if _, err := m.Create(ctx, 100, 1, []string{"a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	live, err := m.Create(ctx, 100, 1, []string{"b"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Age the first session only.
	if _, err := db.Exec(
		`UPDATE search_sessions SET expires_at = ? WHERE session_id != ?`,
		time.Now().UTC().Add(-time.Minute), live,
	); err != nil {
		t.Fatalf("age session: %v", err)
	}

	n, err := m.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("first sweep removed %d, want 1", n)
	}
	n, err = m.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("second sweep removed %d, want 0", n)
	}
	if _, err := m.Get(ctx, live, 100); err != nil {
		t.Fatalf("live session should survive the sweep: %v", err)
	}
}

func TestNewSearchKeepsOldSessionAlive(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	m := NewManager(db, time.Hour)
	ctx := context.Background()

	first, err := m.Create(ctx, 100, 1, []string{"a"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := m.Create(ctx, 100, 1, []string{"b"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	for _, sid := range []string{first, second} {
		if _, err := m.Get(ctx, sid, 100); err != nil {
			t.Fatalf("session %s should be alive: %v", sid, err)
		}
	}
}
