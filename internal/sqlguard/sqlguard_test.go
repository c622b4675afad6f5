package sqlguard

import (
	"path/filepath"
	"testing"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/store"
)

func TestValidateAllowsReadOnlyPrefixes(t *testing.T) {
	for _, q := range []string{
		"SELECT * FROM messages_cache",
		"  select id from accounts ",
		"WITH recent AS (SELECT 1) SELECT * FROM recent",
		"PRAGMA table_info(messages_cache)",
	} {
		if err := Validate(q); err != nil {
			t.Fatalf("expected %q to be allowed, got %v", q, err)
		}
	}
}

func TestValidateRejectsWriteStatements(t *testing.T) {
	for _, q := range []string{
		"UPDATE accounts SET phone = 'x'",
		"DELETE FROM messages_cache",
		"DROP TABLE accounts",
		"SELECT * FROM accounts; DELETE FROM accounts",
	} {
		err := Validate(q)
		if err == nil {
			t.Fatalf("expected %q to be rejected", q)
		}
		if domain.KindOf(err) != domain.KindSQLWriteDenied {
			t.Fatalf("expected SQL_WRITE_NOT_ALLOWED for %q, got %v", q, domain.KindOf(err))
		}
	}
}

func TestValidateAllowsKeywordEmbeddedInIdentifier(t *testing.T) {
	// "update_time" contains "update" as a substring but not as a whole word,
	// and must not trip the deny list.
	if err := Validate("SELECT update_time FROM chats_cache"); err != nil {
		t.Fatalf("expected column named update_time to be allowed, got %v", err)
	}
}

func TestValidateRejectsEmptyQuery(t *testing.T) {
	if err := Validate("   "); err == nil {
		t.Fatal("expected empty query to be rejected")
	}
}

func TestRunExecutesSelectAgainstCacheOnly(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Accounts.Upsert(domain.Account{ID: "acc1", Phone: "+1"}); err != nil {
		t.Fatal(err)
	}

	result, err := Run(s, "SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Columns) != 1 || result.Columns[0] != "name" {
		t.Fatalf("unexpected columns: %+v", result.Columns)
	}

	found := false
	for _, row := range result.Rows {
		if row[0] == "messages_cache" {
			found = true
		}
		if row[0] == "accounts" {
			t.Fatal("query against cache.db must not see data.db's accounts table")
		}
	}
	if !found {
		t.Fatal("expected messages_cache table to be visible")
	}
}

func TestRunRejectsWriteBeforeTouchingDatabase(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_, err = Run(s, "DELETE FROM messages_cache")
	if domain.KindOf(err) != domain.KindSQLWriteDenied {
		t.Fatalf("expected SQL_WRITE_NOT_ALLOWED, got %v", err)
	}
}

func TestRunClassifiesUnknownTable(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "data.db"), filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_, err = Run(s, "SELECT * FROM no_such_table")
	if domain.KindOf(err) != domain.KindSQLTableNotFound {
		t.Fatalf("expected SQL_TABLE_NOT_FOUND, got %v", err)
	}
}
