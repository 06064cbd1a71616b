package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/docpanel/docpanel/errors"
	"github.com/docpanel/docpanel/session"
	_ "github.com/lib/pq"
)

// PostgresStore implements session storage using PostgreSQL. Records are kept
// as jsonb documents keyed by session id.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		DBName:  "docpanel",
		SSLMode: "disable",
	}
}

// NewPostgresStore creates a new PostgreSQL-based session store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTable(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR(255) PRIMARY KEY,
		record JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save upserts a session record.
func (s *PostgresStore) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: session record cannot be nil or unidentified", errors.ErrInvalidInput)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	query := `
	INSERT INTO sessions (id, record, created_at) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record
	`
	if _, err := s.db.ExecContext(ctx, query, record.ID, raw, record.CreatedAt); err != nil {
		return fmt.Errorf("failed to save session in PostgreSQL: %w", err)
	}
	return nil
}

// Load retrieves a session record by id.
func (s *PostgresStore) Load(ctx context.Context, id string) (*session.Record, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT record FROM sessions WHERE id = $1", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session from PostgreSQL: %w", err)
	}

	var record session.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &record, nil
}

// Delete removes a session record.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete session from PostgreSQL: %w", err)
	}
	return nil
}

// List returns all stored session ids.
func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sessions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions in PostgreSQL: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Exists reports whether a session record is present.
func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session in PostgreSQL: %w", err)
	}
	return exists, nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
