package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"qde/internal/audit"
	"qde/internal/errors"
)

// PostgresConfig holds the connection settings for the durable store.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MigrationsPath  string        `yaml:"migrations_path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// PostgresStore persists audit records to PostgreSQL, keyed by run,
// step time and symbol. Inserts only; records are never updated.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the connection pool, verifies connectivity and
// applies pending migrations.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeStoreAppend, "failed to open postgres connection")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WrapError(err, errors.ErrCodeStoreAppend, "failed to ping postgres")
	}

	if cfg.MigrationsPath != "" {
		if err := runMigrations(cfg.MigrationsPath, cfg.DSN); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &PostgresStore{db: db}, nil
}

// runMigrations applies pending schema migrations from the file source.
func runMigrations(path, dsn string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", path), dsn)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeStoreAppend, "failed to init migrations")
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.WrapError(err, errors.ErrCodeStoreAppend, "failed to apply migrations")
	}
	return nil
}

// Write inserts one audit record.
func (s *PostgresStore) Write(record *audit.Record) error {
	details, err := json.Marshal(record.Details)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeStoreAppend, "failed to marshal record details")
	}

	_, err = s.db.Exec(`
		INSERT INTO audit_records (id, run_id, recorded_at, step_at, kind, symbol, summary, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.RunID, record.Timestamp, record.Step,
		string(record.Kind), record.Symbol, record.Summary, details,
	)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeStoreAppend, "failed to insert audit record")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
