package hooked

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/nsxbet/sql-rewriter/pkg/config"
	"github.com/nsxbet/sql-rewriter/pkg/dbconn"
	"github.com/nsxbet/sql-rewriter/pkg/hook"
	"github.com/nsxbet/sql-rewriter/pkg/metrics"
	"github.com/nsxbet/sql-rewriter/pkg/scope"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	sql string
	err error
}

// recorder wraps a hook and records every AfterQuery call.
type recorder struct {
	hook.Hook
	mu    sync.Mutex
	calls []call
}

func (r *recorder) AfterQuery(ctx context.Context, sql string, err error) {
	r.mu.Lock()
	r.calls = append(r.calls, call{sql: sql, err: err})
	r.mu.Unlock()
	r.Hook.AfterQuery(ctx, sql, err)
}

func TestMockConnectionRewrites(t *testing.T) {
	inner := dbconn.NewMock(types.Engine_MYSQL).
		AppendQueryResults([]dbconn.Row{{Columns: []string{"id"}, Values: []any{int64(1)}}})
	rec := &recorder{Hook: hook.NewDefault()}
	conn := New(inner, WithHook(rec))

	ctx := scope.WithInfo(context.Background(), scope.Info{TenantID: "acme"})
	rows, err := conn.QueryAll(ctx, dbconn.NewStatement("SELECT id FROM orders WHERE id = ?", 1))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	want := "select id from orders where id = ? and (delete_flag = 0 and tenant_id = 'acme')"
	executed := inner.Statements()
	require.Len(t, executed, 1)
	assert.Equal(t, want, executed[0].SQL)
	assert.Equal(t, []any{1}, executed[0].Args)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, want, rec.calls[0].sql)
	assert.NoError(t, rec.calls[0].err)
}

func TestCapabilitiesPassThrough(t *testing.T) {
	conn := New(dbconn.NewMock(types.Engine_SQLITE))

	assert.Equal(t, types.Engine_SQLITE, conn.Backend())
	assert.True(t, conn.SupportsReturning())
	assert.True(t, conn.IsMock())
	assert.NotNil(t, conn.Inner())
}

func TestErrorsPropagateUnchanged(t *testing.T) {
	boom := errors.New("boom")
	inner := dbconn.NewMock(types.Engine_MYSQL).AppendQueryError(boom).AppendExecError(boom)
	rec := &recorder{Hook: hook.NewDefault()}
	conn := New(inner, WithHook(rec))

	_, err := conn.QueryOne(context.Background(), dbconn.NewStatement("SELECT * FROM t"))
	assert.Same(t, boom, err)

	_, err = conn.Execute(context.Background(), dbconn.NewStatement("DELETE FROM t"))
	assert.Same(t, boom, err)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, "select * from t where delete_flag = 0", rec.calls[0].sql)
	assert.Same(t, boom, rec.calls[0].err)
	assert.Equal(t, "DELETE FROM t", rec.calls[1].sql)
}

func TestNoHookIsPassthrough(t *testing.T) {
	hook.Unregister()
	inner := dbconn.NewMock(types.Engine_MYSQL).AppendQueryResults(nil)
	conn := New(inner)

	_, err := conn.QueryAll(context.Background(), dbconn.NewStatement("SELECT * FROM t"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t", inner.Statements()[0].SQL)
}

func TestRegisteredHook(t *testing.T) {
	t.Cleanup(hook.Unregister)

	_, ok := NewWithRegisteredHook(dbconn.NewMock(types.Engine_MYSQL))
	assert.False(t, ok)

	hook.Register(hook.NewDefault())
	inner := dbconn.NewMock(types.Engine_MYSQL).AppendExecResults(dbconn.ExecResult{})
	conn, ok := NewWithRegisteredHook(inner)
	require.True(t, ok)

	_, err := conn.ExecuteUnprepared(context.Background(), "SELECT * FROM t")
	require.NoError(t, err)
	assert.Equal(t, "select * from t where delete_flag = 0", inner.Statements()[0].SQL)

	// A connection without a fixed hook follows the registry.
	dynamic := dbconn.NewMock(types.Engine_MYSQL).AppendQueryResults(nil, nil)
	live := New(dynamic)
	_, _ = live.QueryAll(context.Background(), dbconn.NewStatement("SELECT * FROM t"))
	hook.Unregister()
	_, _ = live.QueryAll(context.Background(), dbconn.NewStatement("SELECT * FROM t"))

	stmts := dynamic.Statements()
	assert.Equal(t, "select * from t where delete_flag = 0", stmts[0].SQL)
	assert.Equal(t, "SELECT * FROM t", stmts[1].SQL)
}

func TestHookErrorVetoesExecution(t *testing.T) {
	reg := prometheus.NewRegistry()
	denied := errors.New("denied")
	afterCalled := false
	inner := dbconn.NewMock(types.Engine_MYSQL)
	conn := New(inner, WithMetrics(metrics.New(reg)), WithHook(hook.Funcs{
		Before: func(context.Context, string) (string, bool, error) { return "", false, denied },
		After:  func(context.Context, string, error) { afterCalled = true },
	}))

	_, err := conn.QueryAll(context.Background(), dbconn.NewStatement("SELECT * FROM t"))
	assert.ErrorIs(t, err, denied)
	assert.Empty(t, inner.Statements())
	assert.False(t, afterCalled)

	count, err := testutil.GatherAndCount(reg, "sql_rewriter_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAfterQueryPanicIsRecovered(t *testing.T) {
	inner := dbconn.NewMock(types.Engine_MYSQL).AppendQueryResults([]dbconn.Row{{Columns: []string{"n"}, Values: []any{int64(7)}}})
	conn := New(inner, WithHook(hook.Funcs{
		After: func(context.Context, string, error) { panic("bad hook") },
	}))

	var row *dbconn.Row
	var err error
	require.NotPanics(t, func() {
		row, err = conn.QueryOne(context.Background(), dbconn.NewStatement("SELECT n FROM t"))
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7)}, row.Values)
}

func TestSQLiteEndToEnd(t *testing.T) {
	db, err := dbconn.Open(config.DatabaseConfig{Engine: types.Engine_SQLITE, DSN: ":memory:"}, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	inner := dbconn.NewSQLConnection(db, types.Engine_SQLITE)
	ctx := context.Background()
	_, err = inner.ExecuteUnprepared(ctx, `CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		item TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		delete_flag INTEGER NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)
	_, err = inner.ExecuteUnprepared(ctx, `INSERT INTO orders (item, tenant_id, delete_flag) VALUES
		('apple', 'acme', 0),
		('pear', 'acme', 1),
		('plum', 'globex', 0),
		('fig', 'acme', 0)`)
	require.NoError(t, err)

	rec := &recorder{Hook: hook.NewDefault()}
	conn := New(inner, WithHook(rec))
	acme := scope.WithInfo(ctx, scope.Info{TenantID: "acme"})

	rows, err := conn.QueryAll(acme, dbconn.NewStatement("SELECT item FROM orders"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"apple", "fig"}, items(rows))

	rows, err = conn.QueryAll(ctx, dbconn.NewStatement("SELECT o.item FROM orders o WHERE o.item <> ?", "apple"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plum", "fig"}, items(rows))

	row, err := conn.QueryOne(acme, dbconn.NewStatement("SELECT COUNT(*) FROM (SELECT * FROM orders) AS x"))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, []any{int64(2)}, row.Values)

	_, err = conn.QueryAll(acme, dbconn.NewStatement("SELECT missing_column FROM orders"))
	assert.Error(t, err)

	require.Len(t, rec.calls, 4)
	assert.Equal(t, "select item from orders where (delete_flag = 0 and tenant_id = 'acme')", rec.calls[0].sql)
	assert.Equal(t, "select COUNT(*) from (select * from orders where (delete_flag = 0 and tenant_id = 'acme')) as x", rec.calls[2].sql)
	assert.Error(t, rec.calls[3].err)
}

func TestSQLiteQuotedLiterals(t *testing.T) {
	db, err := dbconn.Open(config.DatabaseConfig{Engine: types.Engine_SQLITE, DSN: ":memory:"}, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	inner := dbconn.NewSQLConnection(db, types.Engine_SQLITE)
	ctx := context.Background()
	_, err = inner.ExecuteUnprepared(ctx, `CREATE TABLE customers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		delete_flag INTEGER NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)
	_, err = inner.ExecuteUnprepared(ctx, `INSERT INTO customers (name, tenant_id) VALUES
		('O''Brien', 'acme'),
		('C:\dir', 'acme'),
		('Smith', 'globex'),
		('Jones', 'initech')`)
	require.NoError(t, err)

	rec := &recorder{Hook: hook.NewDefault()}
	conn := New(inner, WithHook(rec))
	acme := scope.WithInfo(ctx, scope.Info{TenantID: "acme"})

	rows, err := conn.QueryAll(acme, dbconn.NewStatement(`SELECT name FROM customers WHERE name = 'O''Brien'`))
	require.NoError(t, err)
	assert.Equal(t, []string{"O'Brien"}, items(rows))

	rows, err = conn.QueryAll(acme, dbconn.NewStatement(`SELECT name FROM customers WHERE name = 'C:\dir'`))
	require.NoError(t, err)
	assert.Equal(t, []string{`C:\dir`}, items(rows))

	rows, err = conn.QueryAll(acme, dbconn.NewStatement(`SELECT "name" FROM "customers" WHERE "tenant_id" <> 'x'`))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// The tenant id stays a single string literal whatever it contains.
	hostile := scope.WithInfo(ctx, scope.Info{TenantID: `' OR 1=1) /*`})
	rows, err = conn.QueryAll(hostile, dbconn.NewStatement("SELECT name FROM customers"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	hostile = scope.WithInfo(ctx, scope.Info{TenantID: `\' OR 1=1 --`})
	rows, err = conn.QueryAll(hostile, dbconn.NewStatement("SELECT name FROM customers"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.Len(t, rec.calls, 5)
	for _, c := range rec.calls {
		assert.NoError(t, c.err)
	}
	assert.Equal(t, `select name from customers where name = 'O''Brien' and (delete_flag = 0 and tenant_id = 'acme')`, rec.calls[0].sql)
	assert.Equal(t, `select name from customers where name = 'C:\dir' and (delete_flag = 0 and tenant_id = 'acme')`, rec.calls[1].sql)
	assert.Equal(t, `select name from customers where (delete_flag = 0 and tenant_id = ''' OR 1=1) /*')`, rec.calls[3].sql)
	assert.Equal(t, `select name from customers where (delete_flag = 0 and tenant_id = '\'' OR 1=1 --')`, rec.calls[4].sql)
}

func TestBackendSelectsDialect(t *testing.T) {
	inner := dbconn.NewMock(types.Engine_MYSQL).AppendQueryResults(nil)
	conn := New(inner, WithHook(hook.NewDefault()))

	ctx := scope.WithInfo(context.Background(), scope.Info{TenantID: "o'brien"})
	_, err := conn.QueryAll(ctx, dbconn.NewStatement("SELECT * FROM t"))
	require.NoError(t, err)

	executed := inner.Statements()
	require.Len(t, executed, 1)
	assert.Equal(t, `select * from t where (delete_flag = 0 and tenant_id = 'o\'brien')`, executed[0].SQL)
}

func items(rows []dbconn.Row) []string {
	var out []string
	for _, r := range rows {
		out = append(out, r.Values[0].(string))
	}
	sort.Strings(out)
	return out
}
