package dbconn

import (
	"database/sql"
	"database/sql/driver"

	"github.com/go-sql-driver/mysql"
	"github.com/nsxbet/sql-rewriter/pkg/config"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DriverName returns the database/sql driver registered for engine
func DriverName(engine types.Engine) (string, error) {
	switch engine {
	case types.Engine_MYSQL, types.Engine_MARIADB, types.Engine_TIDB:
		return "mysql", nil
	case types.Engine_SQLITE:
		return "sqlite", nil
	default:
		return "", errors.Errorf("no driver for database engine: %s", engine)
	}
}

// Driver returns the driver.Driver registered for engine
func Driver(engine types.Engine) (driver.Driver, error) {
	name, err := DriverName(engine)
	if err != nil {
		return nil, err
	}
	// sql.Open does not connect.
	db, err := sql.Open(name, "")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s driver", name)
	}
	defer db.Close()
	return db.Driver(), nil
}

// Open opens a pool for cfg using driverName, or the engine's default driver when empty.
func Open(cfg config.DatabaseConfig, driverName string) (*sql.DB, error) {
	if driverName == "" {
		name, err := DriverName(cfg.Engine)
		if err != nil {
			return nil, err
		}
		driverName = name
	}

	dsn := cfg.DSN
	switch cfg.Engine {
	case types.Engine_MYSQL, types.Engine_MARIADB, types.Engine_TIDB:
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "invalid mysql dsn")
		}
		mc.ParseTime = true
		dsn = mc.FormatDSN()
	case types.Engine_SQLITE:
		if dsn == "" {
			dsn = ":memory:"
		}
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", cfg.Engine)
	}

	if cfg.Engine == types.Engine_SQLITE {
		// SQLite only supports a single writer, and each :memory: connection is its own database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}
