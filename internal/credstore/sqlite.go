package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilimopesa/internal/domain"
)

// SQLiteStore keeps the credential in a local sqlite file
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	key    string
}

// OpenSQLite opens (creating if needed) the database at dbPath and runs migrations
func OpenSQLite(dbPath, key string) (*SQLiteStore, error) {
	// Ensure data directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer keeps save/clear ordered
	sqlDB.SetMaxOpenConns(1)

	s := &SQLiteStore{db: sqlDB, dbPath: dbPath, key: key}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			if !isAlreadyExistsError(err) {
				return fmt.Errorf("migration failed: %w", err)
			}
		}
	}
	return nil
}

// Load returns the stored credential or domain.ErrCredentialNotFound
func (s *SQLiteStore) Load(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM credentials WHERE name = ?", s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrCredentialNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Save replaces the stored credential
func (s *SQLiteStore) Save(ctx context.Context, credential string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, credential, time.Now().UTC(),
	)
	return err
}

// Clear removes the stored credential; clearing an empty store is not an error
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE name = ?", s.key)
	return err
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "duplicate column name") ||
		strings.Contains(errStr, "already exists")
}
