// Package owners declares the owner-collection collaborator. Tokens may be
// scoped to an owner (e.g. a user account) held by the host application; the
// store only needs an existence check against that collection to validate
// drafts. The association can be disabled entirely by passing a nil Checker
// to the store.
package owners

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/dbx"
)

// Checker reports whether an owner exists in the host's owner collection.
type Checker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Defaults for the owner association, matching the conventional host schema.
const (
	DefaultTable     = "users"
	DefaultKeyColumn = "id"
)

// SQLChecker checks owner existence against a host-owned table. The table
// and key column are host-configured; the placeholder depends on the SQL
// dialect, so use the per-driver constructors.
type SQLChecker struct {
	db          dbx.DBTX
	table       string
	column      string
	placeholder string
}

// NewPostgresChecker returns a Checker querying a PostgreSQL owner table.
// Empty table/column fall back to the defaults.
func NewPostgresChecker(db dbx.DBTX, table, column string) *SQLChecker {
	return newSQLChecker(db, table, column, "$1")
}

// NewSQLiteChecker returns a Checker querying a SQLite owner table.
func NewSQLiteChecker(db dbx.DBTX, table, column string) *SQLChecker {
	return newSQLChecker(db, table, column, "?")
}

func newSQLChecker(db dbx.DBTX, table, column, placeholder string) *SQLChecker {
	if table == "" {
		table = DefaultTable
	}
	if column == "" {
		column = DefaultKeyColumn
	}
	return &SQLChecker{db: db, table: table, column: column, placeholder: placeholder}
}

// Exists runs an EXISTS query against the configured owner table.
// Infrastructure failures propagate; this check never masks outages.
func (c *SQLChecker) Exists(ctx context.Context, id int64) (bool, error) {
	query := fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE %s = %s)",
		c.table, c.column, c.placeholder,
	)

	var exists bool
	if err := c.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("owner lookup error: %w", err)
	}
	return exists, nil
}

// StaticChecker is an in-memory Checker for tests and for hosts whose owner
// collection is not relational.
type StaticChecker map[int64]struct{}

// Exists reports membership in the static set.
func (c StaticChecker) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := c[id]
	return ok, nil
}
