package session

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/parley/internal/session/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// Credentials is the access/refresh token pair for the signed-in user. It
// is the only state the daemon persists beyond media blobs.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// CredentialStore persists the token pair in the per-session credentials.db.
type CredentialStore struct {
	db *sql.DB
}

// OpenCredentialStore opens credentials.db with WAL mode and runs pending
// schema migrations.
func OpenCredentialStore(path string) (*CredentialStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open credentials db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping credentials db: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &CredentialStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}

// Get returns the stored credentials, or nil when the user is signed out.
func (s *CredentialStore) Get() (*Credentials, error) {
	var c Credentials
	err := s.db.QueryRow(
		`SELECT access_token, refresh_token FROM credentials WHERE id = 1`,
	).Scan(&c.AccessToken, &c.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return &c, nil
}

// Put stores the token pair, replacing any previous one.
func (s *CredentialStore) Put(c Credentials) error {
	_, err := s.db.Exec(
		`INSERT INTO credentials (id, access_token, refresh_token, updated_at)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   access_token = excluded.access_token,
		   refresh_token = excluded.refresh_token,
		   updated_at = excluded.updated_at`,
		c.AccessToken, c.RefreshToken, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

// Clear removes the stored credentials, signing the session out.
func (s *CredentialStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// AccessToken returns the current access token, empty when signed out. It
// satisfies the transport's token source.
func (s *CredentialStore) AccessToken() string {
	c, err := s.Get()
	if err != nil || c == nil {
		return ""
	}
	return c.AccessToken
}

// Close closes the underlying database.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}
