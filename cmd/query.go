package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/nsxbet/sql-rewriter/pkg/dbconn"
	"github.com/nsxbet/sql-rewriter/pkg/hook"
	"github.com/nsxbet/sql-rewriter/pkg/hooked"
	"github.com/nsxbet/sql-rewriter/pkg/metrics"
	"github.com/nsxbet/sql-rewriter/pkg/rewriter"
	"github.com/nsxbet/sql-rewriter/pkg/scope"
	"github.com/nsxbet/sql-rewriter/pkg/splitter"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [flags] <sql>",
	Short: "Run a query through a rewriting connection",
	Long: `Open the configured database, run the query through a hooked connection
that rewrites it for the given tenant, and print the returned rows.

The --setup script is executed on the raw connection first, which is handy
for the default in-memory SQLite database.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	addIdentityFlags(queryCmd.Flags())
	addRewriteFlags(queryCmd.Flags())
	queryCmd.Flags().StringP("engine", "e", "", "database engine (mysql, mariadb, tidb, sqlite); overrides the config file")
	queryCmd.Flags().String("dsn", "", "data source name; overrides the config file")
	queryCmd.Flags().String("setup", "", "SQL script executed without rewriting before the query")
	queryCmd.Flags().StringP("output", "o", "text", "output format (text, json)")
	queryCmd.Flags().Bool("metrics", false, "print rewrite metrics after the query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("engine"); v != "" {
		engine, err := types.ParseEngine(v)
		if err != nil {
			return err
		}
		cfg.Database.Engine = engine
	}
	if v, _ := cmd.Flags().GetString("dsn"); v != "" {
		cfg.Database.DSN = v
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	log := newLogger(cfg)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	rw, err := buildRewriter(cmd, cfg, log, rewriter.WithMetrics(m))
	if err != nil {
		return err
	}

	db, err := dbconn.Open(cfg.Database, "")
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := scope.WithInfo(cmd.Context(), identityFromFlags(cmd))
	raw := dbconn.NewSQLConnection(db, cfg.Database.Engine)

	if setup, _ := cmd.Flags().GetString("setup"); setup != "" {
		if err := runSetup(ctx, raw, setup, cmd.InOrStdin()); err != nil {
			return err
		}
	}

	conn := hooked.New(raw,
		hooked.WithHook(hook.NewDefault(hook.WithRewriter(rw), hook.WithLogger(log))),
		hooked.WithLogger(log),
		hooked.WithMetrics(m),
	)

	rows, err := conn.QueryAll(ctx, dbconn.NewStatement(args[0]))
	if err != nil {
		return errors.Wrap(err, "query failed")
	}

	out := cmd.OutOrStdout()
	output, _ := cmd.Flags().GetString("output")
	if err := outputRows(out, rows, output); err != nil {
		return err
	}

	if show, _ := cmd.Flags().GetBool("metrics"); show {
		return outputMetrics(out, reg)
	}
	return nil
}

func runSetup(ctx context.Context, conn dbconn.Connection, path string, stdin io.Reader) error {
	content, err := readInput(path, stdin)
	if err != nil {
		return err
	}
	stmts, err := splitter.Split(string(content))
	if err != nil {
		return errors.Wrapf(err, "failed to split setup script: %s", path)
	}
	for _, stmt := range splitter.NonEmpty(stmts) {
		if _, err := conn.ExecuteUnprepared(ctx, stmt.Text); err != nil {
			return errors.Wrapf(err, "setup statement at line %d failed", stmt.Start.Line+1)
		}
	}
	return nil
}

func outputRows(w io.Writer, rows []dbconn.Row, format string) error {
	switch format {
	case "json":
		records := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			record := make(map[string]any, len(row.Columns))
			for i, col := range row.Columns {
				record[col] = row.Values[i]
			}
			records = append(records, record)
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]any{"rows": records})
	case "text":
		if len(rows) == 0 {
			_, err := fmt.Fprintln(w, "(0 rows)")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(rows[0].Columns, "\t"))
		for _, row := range rows {
			values := make([]string, len(row.Values))
			for i, v := range row.Values {
				values[i] = fmt.Sprint(v)
			}
			fmt.Fprintln(tw, strings.Join(values, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "(%d rows)\n", len(rows))
		return err
	default:
		return errors.Errorf("unsupported output format: %s", format)
	}
}

func outputMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.Wrap(err, "failed to gather metrics")
	}
	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return errors.Wrap(err, "failed to encode metrics")
		}
	}
	return nil
}
