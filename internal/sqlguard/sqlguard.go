// Package sqlguard enforces the read-only subset of SQL the `sql` command is
// allowed to run against the cache database: the normalized query must start
// with SELECT, WITH or PRAGMA, and must not contain any mutating keyword as a
// whole word anywhere in its body.
package sqlguard

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/store"
)

var allowedPrefixes = []string{"SELECT", "WITH", "PRAGMA"}

var deniedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "REPLACE", "DROP", "ALTER", "CREATE",
	"TRUNCATE", "ATTACH", "DETACH", "VACUUM", "REINDEX",
}

var deniedKeywordPattern = regexp.MustCompile(
	`(?i)\b(` + strings.Join(deniedKeywords, "|") + `)\b`,
)

// Validate rejects any query that isn't a read-only SELECT/WITH/PRAGMA
// statement, per the read-only enforcement rule: allow-list the prefix,
// deny-list mutating keywords as whole words anywhere in the body (so a
// SELECT that smuggles an UPDATE into a CTE or subquery is still rejected).
func Validate(query string) error {
	normalized := strings.ToUpper(strings.TrimSpace(query))
	if normalized == "" {
		return domain.NewError(domain.KindSQLSyntaxError, "empty query")
	}

	if !hasAllowedPrefix(normalized) {
		return domain.NewError(domain.KindSQLWriteDenied,
			"query must start with SELECT, WITH or PRAGMA")
	}
	if m := deniedKeywordPattern.FindString(normalized); m != "" {
		return domain.NewError(domain.KindSQLWriteDenied,
			fmt.Sprintf("query contains disallowed keyword %q", m))
	}
	return nil
}

func hasAllowedPrefix(normalized string) bool {
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

// Result is a rectangular query result ready for JSON or table rendering.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Run validates query, then executes it against the cache database and
// collects every row. It never touches data.db: the `sql` command is scoped
// to the cache the daemon populates, per the persisted-state split between
// data.db (accounts only) and cache.db (everything else).
func Run(s *store.Store, query string) (*Result, error) {
	if err := Validate(query); err != nil {
		return nil, err
	}

	rows, err := s.DB.Cache.Query(query)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, domain.Wrap(domain.KindSQLSyntaxError, "read columns", err)
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		values := make([]any, len(cols))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, domain.Wrap(domain.KindSQLSyntaxError, "scan row", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.KindSQLSyntaxError, "iterate rows", err)
	}
	return result, nil
}

// classify maps a raw *sql.DB query failure onto the engine's error
// taxonomy: an unknown-table message from SQLite becomes
// SQL_TABLE_NOT_FOUND, anything else a generic syntax error.
func classify(err error) error {
	if err == sql.ErrNoRows {
		return domain.Wrap(domain.KindSQLSyntaxError, "no rows", err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no such table") {
		return domain.Wrap(domain.KindSQLTableNotFound, "table not found", err)
	}
	return domain.Wrap(domain.KindSQLSyntaxError, "query failed", err)
}
