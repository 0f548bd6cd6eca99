package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/arturkam25/Codify/store/sqlstore/migrations"
	"github.com/pressly/goose/v3"
)

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("migrate: store is bound to a transaction")
	}
	return runMigrations(ctx, s.db, s.dialect)
}

func runMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetLogger(goose.NopLogger())

	if err := gooseUpContext(ctx, db, string(dialect)); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
