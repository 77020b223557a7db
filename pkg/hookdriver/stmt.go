package hookdriver

import (
	"context"
	"database/sql/driver"

	"github.com/nsxbet/sql-rewriter/pkg/hook"
)

// preparedStmt remembers the text it was prepared with so executions are
// reported with the rewritten statement.
type preparedStmt struct {
	driver.Stmt
	query string
	hook  hook.Hook
	intr  *interceptor
}

var (
	_ driver.StmtExecContext  = (*preparedStmt)(nil)
	_ driver.StmtQueryContext = (*preparedStmt)(nil)
)

func (s *preparedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	var (
		res driver.Result
		err error
	)
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		res, err = ec.ExecContext(ctx, args)
	} else {
		var values []driver.Value
		if values, err = toValues(args); err == nil {
			res, err = s.Stmt.Exec(values) //nolint:staticcheck
		}
	}
	s.intr.after(ctx, s.hook, s.query, err)
	return res, err
}

func (s *preparedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	var (
		rows driver.Rows
		err  error
	)
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, args)
	} else {
		var values []driver.Value
		if values, err = toValues(args); err == nil {
			rows, err = s.Stmt.Query(values) //nolint:staticcheck
		}
	}
	s.intr.after(ctx, s.hook, s.query, err)
	return rows, err
}

func (s *preparedStmt) ColumnConverter(idx int) driver.ValueConverter {
	if cc, ok := s.Stmt.(driver.ColumnConverter); ok { //nolint:staticcheck
		return cc.ColumnConverter(idx)
	}
	return driver.DefaultParameterConverter
}

func toValues(args []driver.NamedValue) ([]driver.Value, error) {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		if arg.Name != "" {
			return nil, driver.ErrSkip
		}
		values[i] = arg.Value
	}
	return values, nil
}
