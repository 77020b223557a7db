// Package hook defines the callbacks run around every statement executed through a
// hooked connection, and the process-wide slot that holds the active hook.
package hook

import (
	"context"

	"github.com/nsxbet/sql-rewriter/pkg/logger"
	"github.com/nsxbet/sql-rewriter/pkg/rewriter"
	"github.com/nsxbet/sql-rewriter/pkg/scope"
	"github.com/nsxbet/sql-rewriter/pkg/types"
)

// Hook observes and may rewrite statements.
//
// BeforeQuery returns the text to execute and whether it differs from sql. A non-nil
// error vetoes execution. AfterQuery receives the text that was executed and the
// execution error, if any. A vetoed statement never runs, so AfterQuery is not called for it.
type Hook interface {
	BeforeQuery(ctx context.Context, sql string) (string, bool, error)
	AfterQuery(ctx context.Context, sql string, err error)
}

type engineCtxKey struct{}

// WithEngine records the engine the statement will run on, so hooks can render for it.
// Hooked connections set it from their backend.
func WithEngine(ctx context.Context, engine types.Engine) context.Context {
	return context.WithValue(ctx, engineCtxKey{}, engine)
}

// EngineFromContext returns the engine recorded by WithEngine
func EngineFromContext(ctx context.Context) (types.Engine, bool) {
	engine, ok := ctx.Value(engineCtxKey{}).(types.Engine)
	return engine, ok && engine != types.Engine_ENGINE_UNSPECIFIED
}

// Default rewrites SELECT statements for the identity found in the request context.
type Default struct {
	rewriter *rewriter.Rewriter
	provider scope.Provider
	logger   logger.Interface
}

var _ Hook = (*Default)(nil)

// DefaultOption configures a Default hook
type DefaultOption func(*Default)

// WithRewriter replaces the rewriter, which otherwise has both filters enabled
func WithRewriter(rw *rewriter.Rewriter) DefaultOption {
	return func(d *Default) {
		if rw != nil {
			d.rewriter = rw
		}
	}
}

// WithProvider replaces the identity source, which otherwise is scope.ContextProvider
func WithProvider(p scope.Provider) DefaultOption {
	return func(d *Default) {
		if p != nil {
			d.provider = p
		}
	}
}

// WithLogger sets the logger used to report failed statements
func WithLogger(l logger.Interface) DefaultOption {
	return func(d *Default) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDefault creates the default hook
func NewDefault(opts ...DefaultOption) *Default {
	d := &Default{
		rewriter: rewriter.New(),
		provider: scope.ContextProvider{},
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BeforeQuery rewrites sql for the engine recorded in ctx, or the rewriter's own engine.
// It never fails: statements that cannot be rewritten are returned unchanged.
func (d *Default) BeforeQuery(ctx context.Context, sql string) (string, bool, error) {
	engine, ok := EngineFromContext(ctx)
	if !ok {
		engine = d.rewriter.Engine()
	}
	res := d.rewriter.RewriteFor(engine, sql, scope.Resolve(ctx, d.provider))
	return res.SQL, res.Changed, nil
}

// AfterQuery logs failed statements
func (d *Default) AfterQuery(_ context.Context, sql string, err error) {
	if err != nil {
		d.logger.Debug("Statement failed", logger.SQL("sql", sql), logger.Error(err))
	}
}

// Rewriter exposes the underlying rewriter
func (d *Default) Rewriter() *rewriter.Rewriter { return d.rewriter }

// AddSkipTable exempts a table from rewriting
func (d *Default) AddSkipTable(table string) { d.rewriter.AddSkipTable(table) }

// RemoveSkipTable removes a table from the skip list
func (d *Default) RemoveSkipTable(table string) { d.rewriter.RemoveSkipTable(table) }

// Funcs adapts plain functions to Hook. A nil function is a no-op.
type Funcs struct {
	Before func(ctx context.Context, sql string) (string, bool, error)
	After  func(ctx context.Context, sql string, err error)
}

var _ Hook = Funcs{}

func (f Funcs) BeforeQuery(ctx context.Context, sql string) (string, bool, error) {
	if f.Before == nil {
		return sql, false, nil
	}
	return f.Before(ctx, sql)
}

func (f Funcs) AfterQuery(ctx context.Context, sql string, err error) {
	if f.After != nil {
		f.After(ctx, sql, err)
	}
}
