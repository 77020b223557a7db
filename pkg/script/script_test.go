package script

import (
	"testing"

	"github.com/nsxbet/sql-rewriter/pkg/rewriter"
	"github.com/nsxbet/sql-rewriter/pkg/scope"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/nsxbet/sql-rewriter/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `-- nightly report
SELECT * FROM orders WHERE total > 100;
UPDATE orders SET status = 'done' WHERE id = 1;
SELECT COUNT(*) FROM (SELECT * FROM orders o) AS x;
SELECT * FROM audit_log;
SELECT FROM WHERE;
`

func TestRewrite(t *testing.T) {
	rw := rewriter.New()
	rw.AddSkipTable("audit_log")

	report, err := Rewrite(sample, rw, scope.Info{TenantID: "acme"})
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 5, Rewritten: 2, Unchanged: 3, ParseErrors: 1}, report.Summary)
	assert.True(t, report.HasRewrites())
	assert.True(t, report.HasErrors())

	first := report.Statements[0]
	assert.Equal(t, "SELECT * FROM orders WHERE total > 100", first.Original)
	assert.Equal(t, "select * from orders where total > 100 and (delete_flag = 0 and tenant_id = 'acme')", first.SQL)
	assert.Equal(t, types.Position{Line: 1, Column: 0}, first.Start)

	assert.Equal(t, "select COUNT(*) from (select * from orders as o where (o.delete_flag = 0 and o.tenant_id = 'acme')) as x", report.Statements[2].SQL)

	skipped := report.FilterByReason(rewriter.ReasonSkipTable)
	require.Len(t, skipped, 1)
	assert.Equal(t, "audit_log", skipped[0].Table)

	parseErrors := report.FilterByReason(rewriter.ReasonParseError)
	require.Len(t, parseErrors, 1)
	assert.NotEmpty(t, parseErrors[0].Error)

	assert.Equal(t, "Rewrite Results: 5 statements (2 rewritten, 3 unchanged, 1 parse errors, 0 invalid)", report.String())
	assert.Contains(t, report.Script(), "UPDATE orders SET status = 'done' WHERE id = 1;\n")
}

func TestRewriteWithValidation(t *testing.T) {
	info := scope.Info{TenantID: "o'brien"}
	mysqlRW := rewriter.New(rewriter.WithSoftDelete(false), rewriter.WithEngine(types.Engine_MYSQL))

	report, err := Rewrite("SELECT * FROM t;", mysqlRW, info, WithValidation(types.Engine_POSTGRES))
	require.NoError(t, err)
	require.Len(t, report.Statements, 1)

	// Backslash escaping is MySQL only, so the PostgreSQL grammar rejects it.
	assert.NotEmpty(t, report.Statements[0].ValidationError)
	assert.Equal(t, 1, report.Summary.Invalid)
	assert.True(t, report.HasErrors())

	report, err = Rewrite("SELECT * FROM t;", mysqlRW, info, WithValidation(types.Engine_MYSQL))
	require.NoError(t, err)
	assert.False(t, report.HasErrors())

	// Doubled quotes are read the same way by both grammars.
	ansiRW := rewriter.New(rewriter.WithSoftDelete(false))
	for _, engine := range []types.Engine{types.Engine_POSTGRES, types.Engine_MYSQL} {
		report, err = Rewrite("SELECT * FROM t;", ansiRW, info, WithValidation(engine))
		require.NoError(t, err)
		assert.Equal(t, "select * from t where tenant_id = 'o''brien'", report.Statements[0].SQL)
		assert.False(t, report.HasErrors(), engine.String())
	}
}

func TestRewriteErrors(t *testing.T) {
	_, err := Rewrite("SELECT 1", nil, scope.Info{})
	assert.Error(t, err)

	_, err = Rewrite("SELECT 1", rewriter.New(), scope.Info{}, WithValidation(types.Engine_SQLITE))
	assert.ErrorIs(t, err, validate.ErrUnsupportedEngine)

	_, err = Rewrite("SELECT 1; END;", rewriter.New(), scope.Info{})
	assert.Error(t, err)
}

func TestRewriteEmptyScript(t *testing.T) {
	report, err := Rewrite("  -- nothing\n", rewriter.New(), scope.Info{})
	require.NoError(t, err)
	assert.Empty(t, report.Statements)
	assert.False(t, report.HasRewrites())
	assert.Equal(t, "", report.Script())
}
