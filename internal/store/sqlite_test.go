package store_test

import (
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/store"
)

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(ctx, filepath.Join(t.TempDir(), "monitor.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_SaveAndGet_RoundTrip(t *testing.T) {
	s := newSQLite(t)
	tx := newTx("tx-001", 1234.5)
	tx.IsForeignIP = true
	tx.IsFraud = true
	tx.Reasons = []string{"Statistical Outlier", "Foreign IP"}

	if err := s.Save(ctx, tx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if tx.PersistedAt.IsZero() {
		t.Error("expected PersistedAt to be stamped")
	}

	got, err := s.Get(ctx, "tx-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, tx) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, tx)
	}
}

func TestSQLite_EmptyReasonsStayEmpty(t *testing.T) {
	s := newSQLite(t)
	tx := newTx("tx-clean", 20)
	tx.Reasons = []string{}
	_ = s.Save(ctx, tx)

	got, _ := s.Get(ctx, "tx-clean")
	if got.Reasons == nil || len(got.Reasons) != 0 {
		t.Errorf("expected empty non-nil reasons, got %#v", got.Reasons)
	}
}

func TestSQLite_Duplicate(t *testing.T) {
	s := newSQLite(t)
	_ = s.Save(ctx, newTx("dup", 1))
	if err := s.Save(ctx, newTx("dup", 2)); err != store.ErrDuplicate {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestSQLite_GetMissing(t *testing.T) {
	s := newSQLite(t)
	if _, err := s.Get(ctx, "missing"); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_RecentNewestFirstAndCapped(t *testing.T) {
	s := newSQLite(t)
	for i := 0; i < 60; i++ {
		_ = s.Save(ctx, newTx(fmt.Sprintf("tx-%02d", i), float64(i)))
	}
	got, err := s.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != domain.FeedLimit {
		t.Fatalf("expected %d, got %d", domain.FeedLimit, len(got))
	}
	if got[0].ID != "tx-59" || got[len(got)-1].ID != "tx-10" {
		t.Errorf("unexpected ordering %s..%s", got[0].ID, got[len(got)-1].ID)
	}
}

func TestSQLite_Prune(t *testing.T) {
	s := newSQLite(t)
	cutoff := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	old := newTx("old", 1)
	old.PersistedAt = cutoff.Add(-time.Hour)
	fresh := newTx("fresh", 1)
	fresh.PersistedAt = cutoff.Add(time.Hour)
	_ = s.Save(ctx, old)
	_ = s.Save(ctx, fresh)

	n, err := s.Prune(ctx, cutoff)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 pruned, got %d / %v", n, err)
	}
	if _, err := s.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh transaction should survive: %v", err)
	}
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.db")
	s, err := store.NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Save(ctx, newTx("persisted", 5))
	_ = s.Close()

	s2, err := store.NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.Get(ctx, "persisted"); err != nil {
		t.Errorf("expected transaction to survive reopen: %v", err)
	}
}
