package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations executes the embedded .sql files in lexicographic order,
// recording applied filenames in schema_migrations. Safe to call on every
// startup; statements use IF NOT EXISTS throughout.
func (d *DB) RunMigrations(ctx context.Context) error {
	if d == nil || d.SQL == nil {
		return nil
	}
	const createMeta = `CREATE TABLE IF NOT EXISTS schema_migrations (filename text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`
	if _, err := d.SQL.ExecContext(ctx, createMeta); err != nil {
		return err
	}
	applied := map[string]struct{}{}
	rows, err := d.SQL.QueryContext(ctx, `SELECT filename FROM schema_migrations`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var f string
			if err := rows.Scan(&f); err == nil {
				applied[f] = struct{}{}
			}
		}
		_ = rows.Err()
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		if _, ok := applied[f]; ok {
			continue
		}
		b, err := migrationFS.ReadFile("migrations/" + f)
		if err != nil {
			return err
		}
		sqlText := string(b)
		if strings.TrimSpace(sqlText) == "" {
			continue
		}
		tx, err := d.SQL.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlText); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s record failed: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
