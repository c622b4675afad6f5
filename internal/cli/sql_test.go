package cli

import (
	"path/filepath"
	"testing"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunOneQueryAllowsReadOnlySelect(t *testing.T) {
	s := newTestStore(t)
	if err := s.Accounts.Upsert(domain.Account{ID: "acc1", Phone: "+1"}); err != nil {
		t.Fatal(err)
	}

	if err := runOneQuery(s, "SELECT name FROM sqlite_master WHERE type='table'"); err != nil {
		t.Fatalf("expected one-shot select to succeed, got %v", err)
	}
}

func TestRunOneQueryDeniesWrite(t *testing.T) {
	s := newTestStore(t)

	err := runOneQuery(s, "DELETE FROM messages_cache")
	if err == nil {
		t.Fatal("expected write query to be rejected")
	}
	if domain.KindOf(err) != domain.KindSQLWriteDenied {
		t.Fatalf("expected SQL_WRITE_NOT_ALLOWED, got %v", err)
	}
}

func TestRunOneQueryClassifiesUnknownTable(t *testing.T) {
	s := newTestStore(t)

	err := runOneQuery(s, "SELECT * FROM no_such_table")
	if domain.KindOf(err) != domain.KindSQLTableNotFound {
		t.Fatalf("expected SQL_TABLE_NOT_FOUND, got %v", err)
	}
}

func TestPrintRegistryDoesNotPanic(t *testing.T) {
	printRegistry()
}
