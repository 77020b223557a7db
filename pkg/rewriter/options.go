package rewriter

import (
	"github.com/nsxbet/sql-rewriter/pkg/config"
	"github.com/nsxbet/sql-rewriter/pkg/logger"
	"github.com/nsxbet/sql-rewriter/pkg/metrics"
	"github.com/nsxbet/sql-rewriter/pkg/skiplist"
	"github.com/nsxbet/sql-rewriter/pkg/types"
)

// Option configures a Rewriter
type Option func(*Rewriter)

// WithSoftDelete toggles the delete flag predicate
func WithSoftDelete(enabled bool) Option {
	return func(r *Rewriter) { r.softDelete = enabled }
}

// WithTenantFilter toggles the tenant predicate
func WithTenantFilter(enabled bool) Option {
	return func(r *Rewriter) { r.tenantFilter = enabled }
}

// WithSkipTables shares an existing skip list instead of creating a private one
func WithSkipTables(reg *skiplist.Registry) Option {
	return func(r *Rewriter) {
		if reg != nil {
			r.skip = reg
		}
	}
}

// WithDeleteFlagColumn overrides the soft delete column name
func WithDeleteFlagColumn(column string) Option {
	return func(r *Rewriter) {
		if column != "" {
			r.deleteFlagColumn = column
		}
	}
}

// WithTenantColumn overrides the tenant column name
func WithTenantColumn(column string) Option {
	return func(r *Rewriter) {
		if column != "" {
			r.tenantColumn = column
		}
	}
}

// WithPlaceholderStyle selects how positional bind variables are rendered.
// config.PlaceholderQuestion prints them as ?, config.PlaceholderNamed keeps :v1, :v2.
func WithPlaceholderStyle(style string) Option {
	return func(r *Rewriter) {
		if style != "" {
			r.placeholder = style
		}
	}
}

// WithEngine sets the engine Rewrite targets. MySQL, MariaDB and TiDB read "..." as a
// string and escape with backslashes; any other engine, including the unspecified
// default, reads "..." as an identifier and escapes quotes by doubling them.
func WithEngine(engine types.Engine) Option {
	return func(r *Rewriter) { r.engine = engine }
}

// WithLogger sets the logger used for parse failures and rewrites
func WithLogger(l logger.Interface) Option {
	return func(r *Rewriter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records rewrite outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Rewriter) { r.metrics = m }
}

// FromConfig builds a Rewriter from configuration. Later options win.
func FromConfig(cfg config.RewriteConfig, opts ...Option) *Rewriter {
	base := []Option{
		WithSoftDelete(cfg.SoftDeleteEnabled),
		WithTenantFilter(cfg.TenantFilterEnabled),
		WithDeleteFlagColumn(cfg.DeleteFlagColumn),
		WithTenantColumn(cfg.TenantIDColumn),
		WithPlaceholderStyle(cfg.Placeholder),
	}
	return New(append(base, opts...)...)
}
