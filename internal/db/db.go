package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, logger: logger}

	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if n, err := db.pruneOrphans(); err != nil && logger != nil {
		logger.Warn("failed to prune orphaned rows", "error", err)
	} else if n > 0 && logger != nil {
		logger.Info("pruned orphaned rows", "count", n)
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

// migration is one embedded schema step. Version comes from the numeric
// file prefix, so 002_sessions_updated_at.sql is version 2.
type migration struct {
	version int
	name    string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		v, err := strconv.Atoi(prefix)
		if !ok || err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s has no version prefix", e.Name())
		}
		out = append(out, migration{version: v, name: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, fmt.Errorf("duplicate schema version %d: %s, %s", out[i].version, out[i-1].name, out[i].name)
		}
	}
	return out, nil
}

// migrate brings the session store schema up to the newest embedded
// version. Each step runs in its own transaction together with its
// _migrations row.
func (d *DB) migrate() error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	applied := d.appliedMigrations()

	from, _ := d.SchemaVersion()
	var ran int
	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		if err := d.applyMigration(m); err != nil {
			return err
		}
		ran++
		if d.logger != nil {
			d.logger.Info("applied schema migration", "version", m.version, "name", m.name)
		}
	}

	if d.logger != nil {
		to, _ := d.SchemaVersion()
		d.logger.Info("session store schema ready", "schema_version", to, "from_version", from, "applied", ran)
	}
	return nil
}

func (d *DB) applyMigration(m migration) error {
	content, err := migrationsFS.ReadFile("migrations/" + m.name)
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", m.name, err)
	}
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", m.name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", m.name, err)
	}
	if _, err := tx.Exec("INSERT INTO _migrations (name) VALUES (?)", m.name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.name, err)
	}
	return tx.Commit()
}

// appliedMigrations is empty on a fresh database, before 001 creates the
// bookkeeping table.
func (d *DB) appliedMigrations() map[string]bool {
	applied := make(map[string]bool)
	rows, err := d.conn.Query("SELECT name FROM _migrations")
	if err != nil {
		return applied
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if rows.Scan(&name) == nil {
			applied[name] = true
		}
	}
	return applied
}

// SchemaVersion reports the highest applied migration version, or 0 for a
// database that has never been migrated.
func (d *DB) SchemaVersion() (int, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return 0, err
	}
	applied := d.appliedMigrations()
	version := 0
	for _, m := range migrations {
		if applied[m.name] && m.version > version {
			version = m.version
		}
	}
	return version, nil
}

// pruneOrphans removes cut rows left behind by databases written before
// foreign keys were enforced on the connection.
func (d *DB) pruneOrphans() (int64, error) {
	ctx := context.Background()
	var total int64
	for _, table := range []string{"cut_points", "hidden_segments"} {
		res, err := d.conn.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE session_id NOT IN (SELECT id FROM sessions)")
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
