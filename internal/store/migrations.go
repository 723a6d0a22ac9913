package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed migrations/001_initial_schema.sql
var initialSchema string

// schemaRevision is one versioned step of the archive schema. Revisions are
// append-only; editing a shipped script would desync existing databases.
type schemaRevision struct {
	version int
	name    string
	script  string
}

var schemaHistory = []schemaRevision{
	{version: 1, name: "initial_schema", script: initialSchema},
}

// migrate brings the database up to the latest schema revision. Each pending
// revision runs in its own transaction and is recorded before the next one
// starts, so a failure leaves a resumable version marker.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	applied, err := appliedVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, rev := range schemaHistory {
		if rev.version <= applied {
			continue
		}
		if err := applyRevision(ctx, db, rev); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}

func applyRevision(ctx context.Context, db *sql.DB, rev schemaRevision) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revision %d: %w", rev.version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range scriptStatements(rev.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("revision %d (%s): %w", rev.version, rev.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, name) VALUES (?, ?)`,
		rev.version, rev.name,
	); err != nil {
		return fmt.Errorf("record revision %d: %w", rev.version, err)
	}
	return tx.Commit()
}

// scriptStatements splits a migration script into executable statements.
// Comment lines are stripped first; the driver executes one statement per
// call, so the script cannot go down in a single Exec.
func scriptStatements(script string) []string {
	var code strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		code.WriteString(line)
		code.WriteString("\n")
	}

	var stmts []string
	for _, chunk := range strings.Split(code.String(), ";") {
		if s := strings.TrimSpace(chunk); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
