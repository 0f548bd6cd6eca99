package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// Config describes the database connection. It is read from the "database"
// section of the engine configuration file.
type Config struct {
	Driver          string        `yaml:"driver"` // sqlite (default), postgres, mysql
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	SkipMigrations  bool          `yaml:"skip_migrations"`
}

// DefaultConfig points at a local SQLite file.
func DefaultConfig() Config {
	return Config{
		Driver:          string(DialectSQLite),
		DSN:             "codify.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 3 * time.Minute,
	}
}

// LoadConfig reads the database section of a YAML file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	file := struct {
		Database Config `yaml:"database"`
	}{Database: DefaultConfig()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return file.Database, nil
}

// Open connects, verifies the connection and, unless disabled, applies
// migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	dsn := cfg.DSN
	if dialect == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := New(db, dialect)
	if !cfg.SkipMigrations {
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// sqliteDSN applies per-connection pragmas and immediate write locks unless
// the DSN already sets them.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}

	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}
