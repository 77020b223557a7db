package dbconn

import (
	"context"
	"database/sql"

	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/pkg/errors"
)

// Querier is the subset of *sql.DB, *sql.Tx and *sql.Conn used by SQLConnection
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLConnection adapts a database/sql handle to Connection
type SQLConnection struct {
	q       Querier
	backend types.Engine
}

var _ Connection = (*SQLConnection)(nil)

// NewSQLConnection wraps q, which talks to a database of the given engine
func NewSQLConnection(q Querier, backend types.Engine) *SQLConnection {
	return &SQLConnection{q: q, backend: backend}
}

func (c *SQLConnection) Backend() types.Engine   { return c.backend }
func (c *SQLConnection) SupportsReturning() bool { return SupportsReturning(c.backend) }
func (c *SQLConnection) IsMock() bool            { return false }

// Execute runs a statement that returns no rows. Driver errors are returned as is.
func (c *SQLConnection) Execute(ctx context.Context, stmt Statement) (ExecResult, error) {
	res, err := c.q.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return ExecResult{}, err
	}
	return execResult(res), nil
}

// ExecuteUnprepared runs raw SQL without arguments
func (c *SQLConnection) ExecuteUnprepared(ctx context.Context, sql string) (ExecResult, error) {
	return c.Execute(ctx, Statement{SQL: sql})
}

func (c *SQLConnection) QueryOne(ctx context.Context, stmt Statement) (*Row, error) {
	rows, err := c.query(ctx, stmt, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (c *SQLConnection) QueryAll(ctx context.Context, stmt Statement) ([]Row, error) {
	return c.query(ctx, stmt, -1)
}

func (c *SQLConnection) query(ctx context.Context, stmt Statement, limit int) ([]Row, error) {
	rows, err := c.q.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read result columns")
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, Row{Columns: columns, Values: values})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func execResult(res sql.Result) ExecResult {
	var out ExecResult
	// Not every driver reports both values.
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out
}
