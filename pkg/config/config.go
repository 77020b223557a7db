package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Placeholder rendering styles for positional bind variables.
const (
	PlaceholderQuestion = "question"
	PlaceholderNamed    = "named"
)

// Config represents the configuration of the rewriter and the connections it wraps
type Config struct {
	Rewrite  RewriteConfig  `yaml:"rewrite" json:"rewrite"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// RewriteConfig controls which predicates are injected into SELECT statements
type RewriteConfig struct {
	SoftDeleteEnabled   bool   `yaml:"soft_delete_enabled" json:"softDeleteEnabled"`
	TenantFilterEnabled bool   `yaml:"tenant_filter_enabled" json:"tenantFilterEnabled"`
	DeleteFlagColumn    string `yaml:"delete_flag_column" json:"deleteFlagColumn"`
	TenantIDColumn      string `yaml:"tenant_id_column" json:"tenantIdColumn"`
	Placeholder         string `yaml:"placeholder" json:"placeholder"`
}

// DatabaseConfig describes the pool opened by the query command.
// Engine also selects how the rewrite command quotes literals and identifiers.
type DatabaseConfig struct {
	Engine          types.Engine  `yaml:"engine" json:"engine"`
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"maxOpenConns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"connMaxLifetime"`
}

// LogConfig selects the log level and handler format
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Rewrite: RewriteConfig{
			SoftDeleteEnabled:   true,
			TenantFilterEnabled: true,
			DeleteFlagColumn:    "delete_flag",
			TenantIDColumn:      "tenant_id",
			Placeholder:         PlaceholderQuestion,
		},
		Database: DatabaseConfig{
			Engine: types.Engine_SQLITE,
			DSN:    ":memory:",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a file. Keys missing from the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	slog.Debug("Loading config from file", "filename", filename)
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", filename)
	}
	return Parse(data)
}

// Parse decodes YAML, falling back to JSON
func Parse(data []byte) (*Config, error) {
	config := Default()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		slog.Debug("YAML unmarshal failed", "error", err)
		config = Default()
		if err := json.Unmarshal(data, config); err != nil {
			return nil, errors.Wrap(err, "config is neither valid YAML nor JSON")
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that cannot be caught by decoding
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Rewrite.DeleteFlagColumn) == "" {
		return errors.New("rewrite.delete_flag_column must not be empty")
	}
	if strings.TrimSpace(c.Rewrite.TenantIDColumn) == "" {
		return errors.New("rewrite.tenant_id_column must not be empty")
	}
	switch c.Rewrite.Placeholder {
	case "", PlaceholderQuestion, PlaceholderNamed:
	default:
		return errors.Errorf("unsupported placeholder style: %s", c.Rewrite.Placeholder)
	}
	switch c.Database.Engine {
	case types.Engine_ENGINE_UNSPECIFIED, types.Engine_MYSQL, types.Engine_MARIADB, types.Engine_TIDB, types.Engine_SQLITE, types.Engine_POSTGRES:
	default:
		return errors.Errorf("unsupported database engine: %s", c.Database.Engine)
	}
	if c.Database.MaxOpenConns < 0 {
		return errors.New("database.max_open_conns must not be negative")
	}
	return nil
}
