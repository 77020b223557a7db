// Package rewriter injects soft delete and tenant predicates into SELECT statements.
//
// Statements are parsed into a MySQL dialect syntax tree. The driving table is taken
// from the first FROM entry, the predicates are conjoined with the existing WHERE clause
// and the tree is rendered back to text. Anything that cannot be handled safely is
// returned exactly as it was given.
package rewriter

import (
	"strings"
	"time"

	"github.com/nsxbet/sql-rewriter/pkg/config"
	"github.com/nsxbet/sql-rewriter/pkg/logger"
	"github.com/nsxbet/sql-rewriter/pkg/metrics"
	"github.com/nsxbet/sql-rewriter/pkg/scope"
	"github.com/nsxbet/sql-rewriter/pkg/skiplist"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/xwb1989/sqlparser"
)

// Reason explains the outcome of a rewrite
type Reason string

const (
	ReasonRewritten    Reason = "rewritten"
	ReasonNotSelect    Reason = "not_select"
	ReasonEmpty        Reason = "empty"
	ReasonParseError   Reason = "parse_error"
	ReasonNoTable      Reason = "no_table"
	ReasonSkipTable    Reason = "skip_table"
	ReasonNoPredicates Reason = "no_predicates"
	ReasonUnchanged    Reason = "unchanged"
)

// Result is the outcome of rewriting one statement.
// SQL is always safe to execute: on any failure it is the input text.
type Result struct {
	SQL     string `json:"sql" yaml:"sql"`
	Changed bool   `json:"changed" yaml:"changed"`
	Table   string `json:"table,omitempty" yaml:"table,omitempty"`
	Reason  Reason `json:"reason" yaml:"reason"`
	Err     error  `json:"-" yaml:"-"`
}

// Rewriter holds the rewrite policy. It is safe for concurrent use.
type Rewriter struct {
	softDelete       bool
	tenantFilter     bool
	deleteFlagColumn string
	tenantColumn     string
	placeholder      string
	engine           types.Engine
	skip             *skiplist.Registry
	logger           logger.Interface
	metrics          *metrics.Metrics
}

// New creates a Rewriter with both filters enabled and an empty skip list
func New(opts ...Option) *Rewriter {
	r := &Rewriter{
		softDelete:       true,
		tenantFilter:     true,
		deleteFlagColumn: "delete_flag",
		tenantColumn:     "tenant_id",
		placeholder:      config.PlaceholderQuestion,
		skip:             skiplist.New(),
		logger:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SoftDeleteEnabled reports whether the delete flag predicate is injected
func (r *Rewriter) SoftDeleteEnabled() bool { return r.softDelete }

// TenantFilterEnabled reports whether the tenant predicate is injected
func (r *Rewriter) TenantFilterEnabled() bool { return r.tenantFilter }

// AddSkipTable exempts a table from rewriting
func (r *Rewriter) AddSkipTable(table string) { r.skip.Add(table) }

// RemoveSkipTable removes a table from the skip list
func (r *Rewriter) RemoveSkipTable(table string) { r.skip.Remove(table) }

// SkipTables returns a sorted snapshot of the skip list
func (r *Rewriter) SkipTables() []string { return r.skip.Tables() }

// Engine returns the engine whose dialect Rewrite reads and writes
func (r *Rewriter) Engine() types.Engine { return r.engine }

// Rewrite injects the configured predicates into sql for the given request identity.
func (r *Rewriter) Rewrite(sql string, info scope.Info) Result {
	return r.RewriteFor(r.engine, sql, info)
}

// RewriteFor is Rewrite for a statement bound for engine. The engine decides how
// quoted identifiers and string literals are read and written.
func (r *Rewriter) RewriteFor(engine types.Engine, sql string, info scope.Info) Result {
	start := time.Now()
	res := r.rewrite(sql, info, dialectFor(engine))
	r.metrics.ObserveRewrite(string(res.Reason), time.Since(start))
	return res
}

func (r *Rewriter) rewrite(sql string, info scope.Info, d dialect) Result {
	unchanged := func(reason Reason) Result {
		return Result{SQL: sql, Reason: reason}
	}

	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return unchanged(ReasonEmpty)
	}
	if !hasSelectPrefix(trimmed) {
		return unchanged(ReasonNotSelect)
	}

	stmt, err := sqlparser.Parse(d.normalize(sql))
	if err != nil {
		r.logger.Warn("Failed to parse statement, leaving it untouched", logger.SQL("sql", sql), logger.Error(err))
		res := unchanged(ReasonParseError)
		res.Err = err
		return res
	}

	sel, ok := stmt.(sqlparser.SelectStatement)
	if !ok {
		return unchanged(ReasonNotSelect)
	}

	ref, ok := resolveSelect(sel)
	if !ok {
		return unchanged(ReasonNoTable)
	}
	if r.skip.Contains(ref.Name) {
		res := unchanged(ReasonSkipTable)
		res.Table = ref.Name
		return res
	}

	if !r.inject(sel, info.TenantID) {
		res := unchanged(ReasonNoPredicates)
		res.Table = ref.Name
		return res
	}

	out := r.render(sel, d)
	if out == sql {
		res := unchanged(ReasonUnchanged)
		res.Table = ref.Name
		return res
	}

	r.logger.Debug("Rewrote statement", "table", ref.Name, logger.SQL("original", sql), logger.SQL("rewritten", out))
	return Result{SQL: out, Changed: true, Table: ref.Name, Reason: ReasonRewritten}
}

func hasSelectPrefix(s string) bool {
	const kw = "SELECT"
	return len(s) >= len(kw) && strings.EqualFold(s[:len(kw)], kw)
}
