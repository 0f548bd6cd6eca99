// Package sqlstore implements codify.CredentialStore on database/sql for
// SQLite (modernc.org/sqlite), PostgreSQL (pgx) and MySQL/MariaDB.
//
// Queries are written once with ? placeholders and rebound for PostgreSQL.
// The schema is managed by goose migrations embedded per dialect; [Open]
// applies them unless Config.SkipMigrations is set.
//
// Errors map onto the codify sentinels: missing rows become
// codify.ErrUserNotFound and unique-key violations codify.ErrAccountExists.
// Everything else is returned as "db error: <cause>".
package sqlstore
