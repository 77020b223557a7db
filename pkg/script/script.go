// Package script rewrites every statement of a multi-statement SQL script.
//
// # Quick Start
//
//	rw := rewriter.New()
//	report, err := script.Rewrite(sqlText, rw, scope.Info{TenantID: "acme"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report)
//	fmt.Println(report.Script())
//
// # Validating the Output
//
// The rewriter renders statements in the MySQL dialect. When the script targets
// another engine, WithValidation parses every rewritten statement with that
// engine's grammar and records the statements it rejects:
//
//	report, err := script.Rewrite(sqlText, rw, info, script.WithValidation(types.Engine_POSTGRES))
//	if report.HasErrors() {
//	    os.Exit(1)
//	}
package script

import (
	"github.com/nsxbet/sql-rewriter/pkg/rewriter"
	"github.com/nsxbet/sql-rewriter/pkg/scope"
	"github.com/nsxbet/sql-rewriter/pkg/splitter"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/nsxbet/sql-rewriter/pkg/validate"
	"github.com/pkg/errors"
)

// Option is a functional option for customizing a script rewrite.
type Option func(*options)

type options struct {
	validateEngine types.Engine
}

// WithValidation checks each rewritten statement against the grammar of engine.
//
// Statements that were not rewritten are not validated: they are the caller's own text.
// Engines without a grammar (see validate.Supported) are rejected by Rewrite.
func WithValidation(engine types.Engine) Option {
	return func(o *options) {
		o.validateEngine = engine
	}
}

// Rewrite splits script into statements and rewrites each one for the request identity info.
//
// Empty statements (only comments or whitespace) are dropped. An error is returned
// only when the script cannot be split; statements that fail to parse are reported
// in the Report and kept unchanged.
func Rewrite(script string, rw *rewriter.Rewriter, info scope.Info, opts ...Option) (*Report, error) {
	if rw == nil {
		return nil, errors.New("rewriter is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.validateEngine != types.Engine_ENGINE_UNSPECIFIED && !validate.Supported(o.validateEngine) {
		return nil, errors.Wrapf(validate.ErrUnsupportedEngine, "cannot validate %s", o.validateEngine)
	}

	stmts, err := splitter.Split(script)
	if err != nil {
		return nil, errors.Wrap(err, "failed to split script")
	}

	report := &Report{Statements: []Item{}}
	for _, stmt := range splitter.NonEmpty(stmts) {
		res := rw.Rewrite(stmt.Text, info)
		item := Item{
			Index:    len(report.Statements),
			Original: stmt.Text,
			SQL:      res.SQL,
			Changed:  res.Changed,
			Table:    res.Table,
			Reason:   res.Reason,
			Start:    stmt.Start,
			End:      stmt.End,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		if res.Changed && o.validateEngine != types.Engine_ENGINE_UNSPECIFIED {
			if err := validate.Validate(o.validateEngine, res.SQL); err != nil {
				item.ValidationError = err.Error()
			}
		}
		report.add(item)
	}
	return report, nil
}
