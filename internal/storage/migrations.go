// Embedded-file schema migrations.
//
// Migration SQL files live under migrations/<driver>/ and are compiled into
// the binary via embed.FS. Filenames follow NNNN_name.up.sql /
// NNNN_name.down.sql; applied versions are tracked in the schema_migrations
// table.
package storage

import (
	"embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed migrations/**/*.sql
var migrationsFS embed.FS

var reMigrationFilename = regexp.MustCompile(`^(?P<Version>\d{4})\_(?P<Name>[^.]+)\.(?P<Direction>(up|down))\.sql$`)

// SchemaMigration represents a single database migration
type SchemaMigration struct {
	Version int
	Name    string
	Up      bool
	SQL     string
}

func parseMigrationFile(path string) (SchemaMigration, error) {
	filename := filepath.Base(path)
	parts := reMigrationFilename.FindStringSubmatch(filename)
	if parts == nil {
		return SchemaMigration{}, fmt.Errorf("invalid migration filename: %s", filename)
	}

	sqlText, err := migrationsFS.ReadFile(path)
	if err != nil {
		return SchemaMigration{}, fmt.Errorf("failed to read migration file: %w", err)
	}

	version, _ := strconv.Atoi(parts[reMigrationFilename.SubexpIndex("Version")])
	return SchemaMigration{
		Version: version,
		Name:    parts[reMigrationFilename.SubexpIndex("Name")],
		Up:      parts[reMigrationFilename.SubexpIndex("Direction")] == "up",
		SQL:     string(sqlText),
	}, nil
}

// loadUpMigrations returns all up migrations for the driver above the prior
// version, in ascending version order.
func loadUpMigrations(driver string, prior int) ([]SchemaMigration, error) {
	dirPath := "migrations/" + driver

	entries, err := migrationsFS.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var migrations []SchemaMigration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		migration, err := parseMigrationFile(filepath.Join(dirPath, entry.Name()))
		if err != nil {
			slog.Warn("Failed to parse migration file", "file", entry.Name(), "error", err)
			continue
		}
		if !migration.Up || migration.Version <= prior {
			continue
		}
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (p *SQLProvider) runMigrations(driver string) error {
	_, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var prior int
	if err := p.db.Get(&prior, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return err
	}

	migrations, err := loadUpMigrations(driver, prior)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		p.logger.Debug("Schema up to date", "version", prior)
		return nil
	}

	for _, migration := range migrations {
		tx, err := p.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %04d_%s failed: %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`,
			migration.Version, migration.Name); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		p.logger.Info("Applied migration", "version", migration.Version, "name", migration.Name)
	}

	return nil
}
