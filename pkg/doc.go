// Package pkg provides tenant and soft-delete query rewriting for Go applications.
//
// SQL Rewriter appends a soft-delete predicate (delete_flag = 0) and a tenant
// predicate (tenant_id = '<id>') to SELECT statements before they reach the
// database, so application code only ever sees live rows of the current tenant.
//
// # Package Structure
//
// The pkg directory contains several specialized packages:
//
//   - rewriter: The rewrite engine (recommended starting point)
//   - scope: Request identity carried on a context and the providers that read it
//   - skiplist: Concurrent set of tables that are never filtered
//   - hook: The before/after query hook and the process-wide hook registry
//   - hooked: Connection decorator that runs the hook around every statement
//   - hookdriver: The same hook applied at the database/sql driver level
//   - dbconn: Connection abstraction, database/sql adapter and mock
//   - script: Rewriting of multi-statement scripts with a summary report
//   - splitter: ANTLR-based MySQL script splitter
//   - validate: Grammar validation of rewritten statements (MySQL, PostgreSQL)
//   - config: Configuration loading and validation
//   - metrics: Prometheus instrumentation
//   - types: Core type definitions
//   - logger: Logging abstraction layer
//
// # Getting Started
//
// For most use cases, start with the rewriter package:
//
//	import (
//	    "github.com/nsxbet/sql-rewriter/pkg/rewriter"
//	    "github.com/nsxbet/sql-rewriter/pkg/scope"
//	)
//
//	func main() {
//	    rw := rewriter.New()
//	    res := rw.Rewrite("SELECT * FROM orders", scope.Info{TenantID: "acme"})
//	    fmt.Println(res.SQL)
//	    // select * from orders where (delete_flag = 0 and tenant_id = 'acme')
//	}
//
// # What Gets Rewritten
//
// Only SELECT statements are touched. The predicates target the driving table,
// the left-most table of the FROM clause, qualified by its alias when it has one.
// For the pagination idiom
//
//	SELECT COUNT(*) FROM (SELECT ... FROM orders o ...) AS page
//
// the predicates go inside the derived table instead of the outer count.
//
// # Engines
//
// Statement text is read and written the way the target engine quotes it.
// MySQL, MariaDB and TiDB use backslash escapes and backtick identifiers.
// Every other engine, and a Rewriter built without WithEngine, uses standard
// SQL: doubled single quotes inside strings and "double quoted" identifiers.
//
//	rw := rewriter.New(rewriter.WithEngine(types.Engine_MYSQL))
//
// Statements are returned unchanged when they:
//   - are not SELECTs
//   - cannot be parsed
//   - have no table (SELECT 1, SELECT ... FROM dual) or are UNIONs
//   - read from a table on the skip list
//   - would receive no predicate (both filters off, or tenant filtering on without a tenant id)
//
// Result.Reason tells which case applied.
//
// # Connections
//
// Rewriting is usually applied transparently. Either decorate a dbconn.Connection:
//
//	conn := hooked.New(dbconn.NewSQLConnection(db, types.Engine_MYSQL),
//	    hooked.WithHook(hook.NewDefault()))
//	rows, err := conn.QueryAll(scope.WithInfo(ctx, info), dbconn.NewStatement(query))
//
// or wrap the database/sql driver so every *sql.DB call is covered:
//
//	hook.Register(hook.NewDefault())
//	hookdriver.Register("mysql-tenant", mysql.MySQLDriver{}, hookdriver.WithEngine(types.Engine_MYSQL))
//	db, _ := sql.Open("mysql-tenant", dsn)
//
// # Configuration
//
// Settings can be loaded from YAML/JSON files or set programmatically:
//
//	cfg, err := config.LoadFromFile("rewriter.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rw := rewriter.FromConfig(cfg.Rewrite)
//
// # Thread Safety
//
// All public APIs are safe for concurrent use by multiple goroutines.
// A Rewriter holds no per-request state and can be shared; the request identity
// is passed to every call.
//
// # Error Handling
//
// Rewrite never fails. A statement that cannot be parsed is passed through and
// the parse error is reported in Result.Err. Hooks may veto a statement by
// returning an error, which hooked connections surface without executing it.
//
// # Documentation
//
// Complete documentation and examples:
//   - Package documentation: https://pkg.go.dev/github.com/nsxbet/sql-rewriter/pkg
//   - Examples: examples/library-usage/
package pkg
