package hookdriver

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nsxbet/sql-rewriter/pkg/dbconn"
	"github.com/nsxbet/sql-rewriter/pkg/hook"
	"github.com/nsxbet/sql-rewriter/pkg/rewriter"
	"github.com/nsxbet/sql-rewriter/pkg/scope"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	hook.Hook
	mu      sync.Mutex
	queries []string
	errs    []error
}

func (r *recorder) AfterQuery(ctx context.Context, sql string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, sql)
	r.errs = append(r.errs, err)
}

func openDB(t *testing.T, opts ...Option) *sql.DB {
	t.Helper()
	parent, err := dbconn.Driver(types.Engine_SQLITE)
	require.NoError(t, err)

	name := "sqlite_hooked_" + strings.ReplaceAll(t.Name(), "/", "_")
	Register(name, parent, opts...)

	db, err := sql.Open(name, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, item TEXT, tenant_id TEXT, delete_flag INTEGER DEFAULT 0)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders (item, tenant_id, delete_flag) VALUES ('apple', 'acme', 0), ('pear', 'acme', 1), ('plum', 'globex', 0)`)
	require.NoError(t, err)
	return db
}

func scanItems(t *testing.T, rows *sql.Rows) []string {
	t.Helper()
	defer rows.Close()
	var out []string
	for rows.Next() {
		var item string
		require.NoError(t, rows.Scan(&item))
		out = append(out, item)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestQueryIsRewritten(t *testing.T) {
	rec := &recorder{Hook: hook.NewDefault()}
	db := openDB(t, WithHook(rec))
	ctx := scope.WithInfo(context.Background(), scope.Info{TenantID: "acme"})

	rows, err := db.QueryContext(ctx, "SELECT item FROM orders ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"apple"}, scanItems(t, rows))

	rows, err = db.QueryContext(context.Background(), "SELECT item FROM orders WHERE id > ? ORDER BY id", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "plum"}, scanItems(t, rows))

	assert.Contains(t, rec.queries, "select item from orders where (delete_flag = 0 and tenant_id = 'acme') order by id asc")
	assert.Contains(t, rec.queries, "select item from orders where id > ? and delete_flag = 0 order by id asc")
}

func TestEngineOptionSelectsQuoting(t *testing.T) {
	rw := rewriter.New(rewriter.WithEngine(types.Engine_MYSQL))
	rec := &recorder{Hook: hook.NewDefault(hook.WithRewriter(rw))}
	db := openDB(t, WithHook(rec), WithEngine(types.Engine_SQLITE))
	ctx := scope.WithInfo(context.Background(), scope.Info{TenantID: `' OR 1=1) /*`})

	rows, err := db.QueryContext(ctx, "SELECT item FROM orders")
	require.NoError(t, err)
	assert.Empty(t, scanItems(t, rows))

	assert.Contains(t, rec.queries, `select item from orders where (delete_flag = 0 and tenant_id = ''' OR 1=1) /*')`)
}

func TestPreparedStatementIsRewritten(t *testing.T) {
	rec := &recorder{Hook: hook.NewDefault()}
	db := openDB(t, WithHook(rec))
	ctx := scope.WithInfo(context.Background(), scope.Info{TenantID: "globex"})

	stmt, err := db.PrepareContext(ctx, "SELECT item FROM orders WHERE id > ?")
	require.NoError(t, err)
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"plum"}, scanItems(t, rows))

	want := "select item from orders where id > ? and (delete_flag = 0 and tenant_id = 'globex')"
	require.NotEmpty(t, rec.queries)
	assert.Equal(t, want, rec.queries[len(rec.queries)-1])
}

func TestExecPassesThroughAndReportsErrors(t *testing.T) {
	rec := &recorder{Hook: hook.NewDefault()}
	db := openDB(t, WithHook(rec))

	res, err := db.ExecContext(context.Background(), "UPDATE orders SET delete_flag = 1 WHERE item = ?", "plum")
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.ExecContext(context.Background(), "SELECT nope FROM orders")
	assert.Error(t, err)

	var sawUpdate, sawFailure bool
	for i, q := range rec.queries {
		if q == "UPDATE orders SET delete_flag = 1 WHERE item = ?" && rec.errs[i] == nil {
			sawUpdate = true
		}
		if strings.HasPrefix(q, "select nope from orders") && rec.errs[i] != nil {
			sawFailure = true
		}
	}
	assert.True(t, sawUpdate)
	assert.True(t, sawFailure)
}

func TestHookVeto(t *testing.T) {
	denied := errors.New("denied")
	db := openDB(t, WithHook(hook.Funcs{
		Before: func(_ context.Context, sql string) (string, bool, error) {
			if strings.Contains(sql, "secret") {
				return "", false, denied
			}
			return sql, false, nil
		},
	}))

	_, err := db.QueryContext(context.Background(), "SELECT * FROM secret")
	assert.ErrorIs(t, err, denied)
}

func TestRegisteredHookIsUsed(t *testing.T) {
	t.Cleanup(hook.Unregister)
	db := openDB(t)

	hook.Register(hook.NewDefault())
	var count int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM orders").Scan(&count))
	assert.Equal(t, 2, count)

	hook.Unregister()
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM orders").Scan(&count))
	assert.Equal(t, 3, count)
}
