// Package hooked decorates a dbconn.Connection so every statement passes through a hook
// before it runs and the hook is told about the outcome afterwards.
package hooked

import (
	"context"

	"github.com/nsxbet/sql-rewriter/pkg/dbconn"
	"github.com/nsxbet/sql-rewriter/pkg/hook"
	"github.com/nsxbet/sql-rewriter/pkg/logger"
	"github.com/nsxbet/sql-rewriter/pkg/metrics"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/pkg/errors"
)

// Connection is a dbconn.Connection that runs a hook around every statement.
// Results and execution errors of the inner connection are returned unchanged.
type Connection struct {
	inner   dbconn.Connection
	hook    hook.Hook
	logger  logger.Interface
	metrics *metrics.Metrics
}

var _ dbconn.Connection = (*Connection)(nil)

// Option configures a Connection
type Option func(*Connection)

// WithHook fixes the hook. Without it the registered hook is looked up on every call.
func WithHook(h hook.Hook) Option {
	return func(c *Connection) { c.hook = h }
}

// WithLogger sets the logger used to report hook panics
func WithLogger(l logger.Interface) Option {
	return func(c *Connection) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records execution outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connection) { c.metrics = m }
}

// New wraps inner
func New(inner dbconn.Connection, opts ...Option) *Connection {
	c := &Connection{inner: inner, logger: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWithRegisteredHook wraps inner with the currently registered hook.
// It returns false when no hook is registered.
func NewWithRegisteredHook(inner dbconn.Connection, opts ...Option) (*Connection, bool) {
	h, ok := hook.Get()
	if !ok {
		return nil, false
	}
	return New(inner, append(opts, WithHook(h))...), true
}

// Inner returns the wrapped connection
func (c *Connection) Inner() dbconn.Connection { return c.inner }

func (c *Connection) Backend() types.Engine   { return c.inner.Backend() }
func (c *Connection) SupportsReturning() bool { return c.inner.SupportsReturning() }
func (c *Connection) IsMock() bool            { return c.inner.IsMock() }

func (c *Connection) Execute(ctx context.Context, stmt dbconn.Statement) (dbconn.ExecResult, error) {
	h, sql, err := c.before(ctx, stmt.SQL)
	if err != nil {
		return dbconn.ExecResult{}, err
	}
	stmt.SQL = sql
	res, err := c.inner.Execute(ctx, stmt)
	c.after(ctx, h, sql, err)
	return res, err
}

func (c *Connection) ExecuteUnprepared(ctx context.Context, sql string) (dbconn.ExecResult, error) {
	h, sql, err := c.before(ctx, sql)
	if err != nil {
		return dbconn.ExecResult{}, err
	}
	res, err := c.inner.ExecuteUnprepared(ctx, sql)
	c.after(ctx, h, sql, err)
	return res, err
}

func (c *Connection) QueryOne(ctx context.Context, stmt dbconn.Statement) (*dbconn.Row, error) {
	h, sql, err := c.before(ctx, stmt.SQL)
	if err != nil {
		return nil, err
	}
	stmt.SQL = sql
	row, err := c.inner.QueryOne(ctx, stmt)
	c.after(ctx, h, sql, err)
	return row, err
}

func (c *Connection) QueryAll(ctx context.Context, stmt dbconn.Statement) ([]dbconn.Row, error) {
	h, sql, err := c.before(ctx, stmt.SQL)
	if err != nil {
		return nil, err
	}
	stmt.SQL = sql
	rows, err := c.inner.QueryAll(ctx, stmt)
	c.after(ctx, h, sql, err)
	return rows, err
}

// activeHook snapshots the hook once per call.
func (c *Connection) activeHook() hook.Hook {
	if c.hook != nil {
		return c.hook
	}
	h, _ := hook.Get()
	return h
}

func (c *Connection) before(ctx context.Context, sql string) (hook.Hook, string, error) {
	h := c.activeHook()
	if h == nil {
		return nil, sql, nil
	}
	rewritten, changed, err := h.BeforeQuery(hook.WithEngine(ctx, c.inner.Backend()), sql)
	if err != nil {
		c.metrics.ObserveVeto()
		return nil, sql, errors.Wrap(err, "statement rejected by hook")
	}
	if !changed {
		return h, sql, nil
	}
	return h, rewritten, nil
}

func (c *Connection) after(ctx context.Context, h hook.Hook, sql string, execErr error) {
	c.metrics.ObserveExecution(execErr)
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("AfterQuery hook panicked", "panic", r, logger.SQL("sql", sql))
		}
	}()
	h.AfterQuery(ctx, sql, execErr)
}
