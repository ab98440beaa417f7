package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// schemaVersion is the version row scripts/initdb.sql records in spacechat_meta.
const schemaVersion = 1

// EnsureBootstrapped applies scripts/initdb.sql when the database has not
// recorded schemaVersion yet. The script is idempotent, so a half-applied
// earlier run is simply applied again.
func EnsureBootstrapped(ctx context.Context, db *sql.DB) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	current, err := recordedVersion(ctxBoot, db)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	log.Printf("Database: applying schema version %d (found %d)", schemaVersion, current)
	return runBootstrap(ctxBoot, db)
}

// recordedVersion returns the highest version in spacechat_meta, 0 when the
// table does not exist or is empty.
func recordedVersion(ctx context.Context, db *sql.DB) (int, error) {
	var table sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('spacechat_meta')::text`).Scan(&table); err != nil {
		return 0, fmt.Errorf("meta table check failed: %w", err)
	}
	if !table.Valid {
		return 0, nil
	}

	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT max(version) FROM spacechat_meta`).Scan(&version); err != nil {
		return 0, fmt.Errorf("meta version check failed: %w", err)
	}
	return int(version.Int64), nil
}

func runBootstrap(ctx context.Context, db *sql.DB) error {
	script, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("exec initdb.sql: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
