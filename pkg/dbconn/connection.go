// Package dbconn defines the connection abstraction hooked connections decorate,
// with an adapter for database/sql and an in-memory mock.
package dbconn

import (
	"context"

	"github.com/nsxbet/sql-rewriter/pkg/types"
)

// Statement is SQL text with its bind arguments
type Statement struct {
	SQL  string
	Args []any
}

// NewStatement creates a statement
func NewStatement(sql string, args ...any) Statement {
	return Statement{SQL: sql, Args: args}
}

// ExecResult summarises a statement that returns no rows
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// Row is one result row. Values line up with Columns.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Connection executes statements against a database
type Connection interface {
	Backend() types.Engine
	SupportsReturning() bool
	IsMock() bool

	Execute(ctx context.Context, stmt Statement) (ExecResult, error)
	ExecuteUnprepared(ctx context.Context, sql string) (ExecResult, error)
	// QueryOne returns nil without error when the query yields no rows.
	QueryOne(ctx context.Context, stmt Statement) (*Row, error)
	QueryAll(ctx context.Context, stmt Statement) ([]Row, error)
}

// SupportsReturning reports whether engine accepts a RETURNING clause
func SupportsReturning(engine types.Engine) bool {
	switch engine {
	case types.Engine_POSTGRES, types.Engine_SQLITE:
		return true
	default:
		return false
	}
}
