// Package hookdriver applies a hook at the database/sql driver level, so code that
// uses a plain *sql.DB gets the same rewriting as a hooked connection.
//
//	parent, _ := dbconn.Driver(types.Engine_SQLITE)
//	hookdriver.Register("sqlite-hooked", parent, hookdriver.WithEngine(types.Engine_SQLITE))
//	db, _ := sql.Open("sqlite-hooked", "app.db")
//	rows, _ := db.QueryContext(scope.WithInfo(ctx, info), "SELECT * FROM orders")
package hookdriver

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"github.com/ngrok/sqlmw"
	"github.com/nsxbet/sql-rewriter/pkg/hook"
	"github.com/nsxbet/sql-rewriter/pkg/logger"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/pkg/errors"
)

// Option configures the interceptor
type Option func(*interceptor)

// WithHook fixes the hook. Without it the registered hook is looked up on every statement.
func WithHook(h hook.Hook) Option {
	return func(i *interceptor) { i.hook = h }
}

// WithEngine declares the engine behind the parent driver so statements are rendered
// in its dialect. Without it the hook uses its own default.
func WithEngine(engine types.Engine) Option {
	return func(i *interceptor) { i.engine = engine }
}

// WithLogger sets the logger used to report hook panics
func WithLogger(l logger.Interface) Option {
	return func(i *interceptor) {
		if l != nil {
			i.logger = l
		}
	}
}

// Wrap returns a driver that runs the hook around every statement sent through parent
func Wrap(parent driver.Driver, opts ...Option) driver.Driver {
	i := &interceptor{logger: logger.Nop()}
	for _, opt := range opts {
		opt(i)
	}
	return sqlmw.Driver(parent, i)
}

// Register wraps parent and registers it with database/sql under name.
// Like sql.Register, it panics if name is already taken.
func Register(name string, parent driver.Driver, opts ...Option) {
	sql.Register(name, Wrap(parent, opts...))
}

type interceptor struct {
	sqlmw.NullInterceptor
	hook   hook.Hook
	engine types.Engine
	logger logger.Interface
}

func (i *interceptor) active() hook.Hook {
	if i.hook != nil {
		return i.hook
	}
	h, _ := hook.Get()
	return h
}

func (i *interceptor) before(ctx context.Context, query string) (hook.Hook, string, error) {
	h := i.active()
	if h == nil {
		return nil, query, nil
	}
	if i.engine != types.Engine_ENGINE_UNSPECIFIED {
		ctx = hook.WithEngine(ctx, i.engine)
	}
	rewritten, changed, err := h.BeforeQuery(ctx, query)
	if err != nil {
		return nil, query, errors.Wrap(err, "statement rejected by hook")
	}
	if !changed {
		return h, query, nil
	}
	return h, rewritten, nil
}

func (i *interceptor) after(ctx context.Context, h hook.Hook, query string, err error) {
	// ErrSkip asks database/sql to retry through another path, where the hook runs again.
	if h == nil || err == driver.ErrSkip {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("AfterQuery hook panicked", "panic", r, logger.SQL("sql", query))
		}
	}()
	h.AfterQuery(ctx, query, err)
}

func (i *interceptor) ConnExecContext(ctx context.Context, conn driver.ExecerContext, query string, args []driver.NamedValue) (driver.Result, error) {
	h, query, err := i.before(ctx, query)
	if err != nil {
		return nil, err
	}
	res, err := conn.ExecContext(ctx, query, args)
	i.after(ctx, h, query, err)
	return res, err
}

// ConnQueryContext reports to AfterQuery once the query has started; row iteration
// errors surface through the returned rows.
func (i *interceptor) ConnQueryContext(ctx context.Context, conn driver.QueryerContext, query string, args []driver.NamedValue) (context.Context, driver.Rows, error) {
	h, query, err := i.before(ctx, query)
	if err != nil {
		return ctx, nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args)
	i.after(ctx, h, query, err)
	return ctx, rows, err
}

func (i *interceptor) ConnPrepareContext(ctx context.Context, conn driver.ConnPrepareContext, query string) (context.Context, driver.Stmt, error) {
	h, query, err := i.before(ctx, query)
	if err != nil {
		return ctx, nil, err
	}
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		i.after(ctx, h, query, err)
		return ctx, nil, err
	}
	return ctx, &preparedStmt{Stmt: stmt, query: query, hook: h, intr: i}, nil
}
