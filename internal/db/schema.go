package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the tables and indexes if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EnsureDatabase connects to the server's maintenance database and creates
// the named database when it does not exist yet. The DSN's own database
// path is ignored.
func EnsureDatabase(ctx context.Context, dsn, name string) error {
	if name == "" {
		return fmt.Errorf("ensure database: empty name")
	}
	metaDSN, err := WithDBName(dsn, "postgres")
	if err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	meta, err := Open(metaDSN)
	if err != nil {
		return fmt.Errorf("ensure database: open meta db: %w", err)
	}
	defer meta.Close()

	var exists bool
	err = meta.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ensure database: lookup %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if _, err := meta.ExecContext(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("ensure database: create %s: %w", name, err)
	}
	log.Printf("created database %s", name)
	return nil
}
