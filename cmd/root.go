package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/nsxbet/sql-rewriter/pkg/config"
	"github.com/nsxbet/sql-rewriter/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sql-rewriter",
	Short: "Inject soft-delete and tenant predicates into SQL queries",
	Long: `SQL Rewriter rewrites SELECT statements so they only see live rows
belonging to the current tenant.

It appends a soft-delete predicate (delete_flag = 0) and a tenant predicate
(tenant_id = '<id>') to the WHERE clause of the driving table, and handles
the SELECT COUNT(*) FROM (<subquery>) idiom used for pagination.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sql-rewriter.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug output")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json); colourised when stderr is a terminal")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".sql-rewriter" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sql-rewriter")
	}

	// SQL_REWRITER_TENANT_ID and friends
	viper.SetEnvPrefix("sql_rewriter")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine, defaults apply.
	if err := viper.ReadInConfig(); err != nil {
		slog.Debug("config file not loaded", "error", err)
	} else {
		slog.Debug("using config file", "file", viper.ConfigFileUsed())
	}
}

// loadConfiguration returns the file configuration found by initConfig, or the defaults.
func loadConfiguration() (*config.Config, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); err == nil || cfgFile != "" {
			return config.LoadFromFile(used)
		}
	}
	return config.Default(), nil
}

// newLogger builds the command logger from the config file level and the global flags.
func newLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Log.Level)
	if viper.GetBool("debug") {
		level = slog.LevelDebug
	} else if viper.GetBool("verbose") && level > slog.LevelInfo {
		level = slog.LevelInfo
	}

	format := cfg.Log.Format
	if f := viper.GetString("log-format"); f != "" {
		format = f
	}

	l := logger.NewWithOptions(logger.Options{Level: level, Format: format})
	slog.SetDefault(l.GetSlogLogger())
	return l
}
