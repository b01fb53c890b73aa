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

const (
	schemaVersion = 1
	bootstrapFile = "scripts/initdb.sql"
)

// EnsureBootstrapped applies the embedded schema when the recorded version is
// behind schemaVersion. The script is idempotent, so a half-applied schema is
// simply applied again.
func EnsureBootstrapped(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	current, err := currentSchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		log.Printf("session schema at version %d", current)
		return nil
	}

	log.Printf("applying session schema version %d (found %d)", schemaVersion, current)
	return applySchema(ctx, db)
}

// currentSchemaVersion returns 0 when the meta table does not exist yet.
func currentSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var table sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('kbchat_meta')::text`).Scan(&table); err != nil {
		return 0, fmt.Errorf("look up schema meta table: %w", err)
	}
	if !table.Valid {
		return 0, nil
	}

	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM kbchat_meta`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	script, err := bootstrapFS.ReadFile(bootstrapFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", bootstrapFile, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return tx.Commit()
}
