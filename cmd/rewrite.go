package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nsxbet/sql-rewriter/pkg/config"
	"github.com/nsxbet/sql-rewriter/pkg/logger"
	"github.com/nsxbet/sql-rewriter/pkg/rewriter"
	"github.com/nsxbet/sql-rewriter/pkg/scope"
	"github.com/nsxbet/sql-rewriter/pkg/script"
	"github.com/nsxbet/sql-rewriter/pkg/skiplist"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [flags] <sql-file|->",
	Short: "Rewrite the SELECT statements of a SQL script",
	Long: `Rewrite every SELECT statement in a file (or stdin when the argument is "-")
for the given tenant and print the result.

Statements that are not SELECTs, that cannot be parsed or whose driving
table is on the skip list are printed unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runRewrite,
}

func init() {
	rootCmd.AddCommand(rewriteCmd)

	addIdentityFlags(rewriteCmd.Flags())
	addRewriteFlags(rewriteCmd.Flags())
	rewriteCmd.Flags().StringP("engine", "e", "", "dialect of the script (mysql, mariadb, tidb, postgres, sqlite); overrides the config file")
	rewriteCmd.Flags().StringP("output", "o", "text", "output format (text, sql, json, yaml)")
	rewriteCmd.Flags().String("validate", "", "validate rewritten statements against an engine grammar (mysql, mariadb, tidb, postgres)")
	rewriteCmd.Flags().Bool("fail-on-error", false, "exit with non-zero code if a statement fails to parse or validate")

	_ = viper.BindPFlag("output", rewriteCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("validate", rewriteCmd.Flags().Lookup("validate"))
	_ = viper.BindPFlag("fail-on-error", rewriteCmd.Flags().Lookup("fail-on-error"))
}

// addIdentityFlags registers the request identity flags shared by the subcommands.
func addIdentityFlags(fs *pflag.FlagSet) {
	fs.String("tenant-id", "", "tenant id for the tenant predicate")
	fs.String("tenant-name", "", "tenant name")
	fs.String("user-id", "", "user id")
	fs.String("user-name", "", "user name")
	fs.String("real-name", "", "user real name")
}

var identityFlags = []string{"tenant-id", "tenant-name", "user-id", "user-name", "real-name"}

// addRewriteFlags registers the flags overriding the rewrite section of the config file.
func addRewriteFlags(fs *pflag.FlagSet) {
	fs.StringSlice("skip-table", nil, "table to leave unfiltered (repeatable)")
	fs.Bool("soft-delete", true, "inject the soft-delete predicate")
	fs.Bool("tenant-filter", true, "inject the tenant predicate")
}

// identityFromFlags reads the request identity from the running command's flags,
// falling back to SQL_REWRITER_* environment variables and the config file.
func identityFromFlags(cmd *cobra.Command) scope.Info {
	// Bound here rather than in init: the subcommands share these keys.
	for _, name := range identityFlags {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return scope.Info{}.
		WithUser(viper.GetString("user-id"), viper.GetString("user-name"), viper.GetString("real-name")).
		WithTenant(viper.GetString("tenant-id"), viper.GetString("tenant-name"))
}

// buildRewriter applies the command flags on top of the rewrite configuration.
func buildRewriter(cmd *cobra.Command, cfg *config.Config, log logger.Interface, opts ...rewriter.Option) (*rewriter.Rewriter, error) {
	rc := cfg.Rewrite
	if f := cmd.Flags().Lookup("soft-delete"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool("soft-delete")
		rc.SoftDeleteEnabled = v
	}
	if f := cmd.Flags().Lookup("tenant-filter"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool("tenant-filter")
		rc.TenantFilterEnabled = v
	}

	skip, err := cmd.Flags().GetStringSlice("skip-table")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skip tables")
	}

	opts = append([]rewriter.Option{
		rewriter.WithEngine(cfg.Database.Engine),
		rewriter.WithSkipTables(skiplist.New(skip...)),
		rewriter.WithLogger(log),
	}, opts...)
	return rewriter.FromConfig(rc, opts...), nil
}

func runRewrite(cmd *cobra.Command, args []string) error {
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
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	log := newLogger(cfg)

	log.Debug("starting rewrite command", "args", args)

	content, err := readInput(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	rw, err := buildRewriter(cmd, cfg, log)
	if err != nil {
		return err
	}

	var opts []script.Option
	if v := viper.GetString("validate"); v != "" {
		engine, err := types.ParseEngine(v)
		if err != nil {
			return err
		}
		opts = append(opts, script.WithValidation(engine))
	}

	report, err := script.Rewrite(string(content), rw, identityFromFlags(cmd), opts...)
	if err != nil {
		return err
	}
	log.Debug("rewrite finished", "summary", report.String())

	if err := outputReport(cmd.OutOrStdout(), report, viper.GetString("output")); err != nil {
		return err
	}

	if report.HasErrors() && viper.GetBool("fail-on-error") {
		os.Exit(1)
	}
	return nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read SQL from stdin")
		}
		return data, nil
	}

	slog.Debug("reading SQL file", "file", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read SQL file: %s", path)
	}
	return data, nil
}

func outputReport(w io.Writer, report *script.Report, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(report)
	case "sql":
		_, err := io.WriteString(w, report.Script())
		return err
	case "text":
		return outputText(w, report)
	default:
		return errors.Errorf("unsupported output format: %s", format)
	}
}

func outputText(w io.Writer, report *script.Report) error {
	if len(report.Statements) == 0 {
		_, err := fmt.Fprintln(w, "No statements found.")
		return err
	}

	for _, item := range report.Statements {
		table := ""
		if item.Table != "" {
			table = " " + item.Table
		}
		fmt.Fprintf(w, "-- [%s]%s at line %d, column %d\n", item.Reason, table, item.Start.Line+1, item.Start.Column+1)
		if item.Error != "" {
			fmt.Fprintf(w, "--   %s\n", item.Error)
		}
		if item.ValidationError != "" {
			fmt.Fprintf(w, "--   invalid: %s\n", item.ValidationError)
		}
		fmt.Fprintf(w, "%s;\n\n", item.SQL)
	}

	_, err := fmt.Fprintln(w, report.String())
	return err
}
