package script

import (
	"fmt"
	"strings"

	"github.com/nsxbet/sql-rewriter/pkg/rewriter"
	"github.com/nsxbet/sql-rewriter/pkg/types"
)

// Report contains the outcome of rewriting a script.
//
// It lists every non-empty statement in script order together with
// aggregate statistics for quick analysis.
type Report struct {
	// Statements holds one item per non-empty statement, in script order.
	Statements []Item `json:"statements" yaml:"statements"`

	// Summary provides aggregate statistics about the statements.
	Summary Summary `json:"summary" yaml:"summary"`
}

// Item is one statement of the script and what happened to it.
type Item struct {
	Index    int             `json:"index" yaml:"index"`
	Original string          `json:"original" yaml:"original"`
	SQL      string          `json:"sql" yaml:"sql"`
	Changed  bool            `json:"changed" yaml:"changed"`
	Table    string          `json:"table,omitempty" yaml:"table,omitempty"`
	Reason   rewriter.Reason `json:"reason" yaml:"reason"`
	Start    types.Position  `json:"start" yaml:"start"`
	End      types.Position  `json:"end" yaml:"end"`

	// Error is the parse error for statements that could not be parsed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// ValidationError is set when the rewritten text failed grammar validation.
	ValidationError string `json:"validationError,omitempty" yaml:"validation_error,omitempty"`
}

// Summary provides aggregate statistics about a script rewrite.
type Summary struct {
	// Total number of non-empty statements
	Total int `json:"total" yaml:"total"`

	// Rewritten is the count of statements that received predicates.
	Rewritten int `json:"rewritten" yaml:"rewritten"`

	// Unchanged is the count of statements returned as they were given,
	// whatever the reason.
	Unchanged int `json:"unchanged" yaml:"unchanged"`

	// ParseErrors is the count of SELECT statements that could not be parsed.
	ParseErrors int `json:"parseErrors" yaml:"parse_errors"`

	// Invalid is the count of rewritten statements rejected by validation.
	Invalid int `json:"invalid" yaml:"invalid"`
}

func (r *Report) add(item Item) {
	r.Statements = append(r.Statements, item)
	r.Summary.Total++
	if item.Changed {
		r.Summary.Rewritten++
	} else {
		r.Summary.Unchanged++
	}
	if item.Reason == rewriter.ReasonParseError {
		r.Summary.ParseErrors++
	}
	if item.ValidationError != "" {
		r.Summary.Invalid++
	}
}

// HasRewrites returns true if at least one statement was rewritten.
func (r *Report) HasRewrites() bool {
	return r.Summary.Rewritten > 0
}

// HasErrors returns true if a statement failed to parse or a rewritten
// statement failed validation.
//
// This is useful for CI/CD pipelines that should fail on errors:
//
//	if report.HasErrors() {
//	    os.Exit(1)
//	}
func (r *Report) HasErrors() bool {
	return r.Summary.ParseErrors > 0 || r.Summary.Invalid > 0
}

// FilterByReason returns the items with the given reason.
//
//	skipped := report.FilterByReason(rewriter.ReasonSkipTable)
func (r *Report) FilterByReason(reason rewriter.Reason) []Item {
	filtered := make([]Item, 0)
	for _, item := range r.Statements {
		if item.Reason == reason {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// Script renders the statements back into a script, one per line, each terminated by a semicolon.
func (r *Report) Script() string {
	var sb strings.Builder
	for _, item := range r.Statements {
		sb.WriteString(item.SQL)
		sb.WriteString(";\n")
	}
	return sb.String()
}

// String returns a human-readable summary of the report.
//
// Example output:
//
//	Rewrite Results: 5 statements (3 rewritten, 2 unchanged, 0 parse errors, 0 invalid)
func (r *Report) String() string {
	return fmt.Sprintf(
		"Rewrite Results: %d statements (%d rewritten, %d unchanged, %d parse errors, %d invalid)",
		r.Summary.Total,
		r.Summary.Rewritten,
		r.Summary.Unchanged,
		r.Summary.ParseErrors,
		r.Summary.Invalid,
	)
}
