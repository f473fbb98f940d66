// Package migrate brings the server database up to the newest embedded
// schema. Steps live in sql/ as NNNN_name.sql and run in filename order;
// the applied version is tracked in a single schema_version row.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// Migrate applies every pending step inside one transaction, so a
// failing step leaves the schema at the version it started from.
func Migrate(db *sql.DB) error {
	names, err := stepNames()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := appliedVersion(tx)
	if err != nil {
		return err
	}

	for _, name := range names {
		version, err := stepVersion(name)
		if err != nil {
			return err
		}
		if version <= current {
			continue
		}
		stmt, err := schemaFS.ReadFile("sql/" + name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(stmt)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, version); err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
		current = version
	}
	return tx.Commit()
}

func stepNames() ([]string, error) {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func stepVersion(name string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(name, "%d_", &v); err != nil {
		return 0, fmt.Errorf("migration name %q: %w", name, err)
	}
	return v, nil
}

// appliedVersion reads the tracked schema version, creating the tracking
// row at zero on a fresh database.
func appliedVersion(tx *sql.Tx) (int, error) {
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("schema_version table: %w", err)
	}
	var v int
	err := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("schema_version init: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema_version read: %w", err)
	}
	return v, nil
}
