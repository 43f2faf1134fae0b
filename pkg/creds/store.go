package creds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCredentials is the uniform verification failure. Unknown
// username and wrong password both map here so the login flow cannot be
// used as a username oracle.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUsernameTaken is returned by Register when the username already exists.
var ErrUsernameTaken = errors.New("username already exists")

// DefaultRole is assigned to accounts created without an explicit role.
const DefaultRole = "user"

// Identity is the record handed to the token authority on a successful
// verification.
type Identity struct {
	Username string
	Role     string
}

// Store holds username/password/role records in a SQL database.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the credential database and ensures the schema exists.
// driver is a database/sql driver name ("sqlite3" or "postgres").
func Open(driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// NewStore wraps an existing database handle. Used by tests.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		idColumn = "SERIAL PRIMARY KEY"
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS users (
			id %s,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT '%s'
		)
	`, idColumn, DefaultRole))
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	return nil
}

// bind rewrites ? placeholders to the $n style when running on postgres.
func (s *Store) bind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Verify checks a username/password pair and returns the stored identity.
// Every failure path that stems from the submitted values collapses into
// ErrInvalidCredentials; only infrastructure failures surface differently.
func (s *Store) Verify(ctx context.Context, username, password string) (*Identity, error) {
	var storedPassword, role string
	err := s.db.QueryRowContext(ctx,
		s.bind(`SELECT password, role FROM users WHERE username = ?`),
		username,
	).Scan(&storedPassword, &role)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}

	if storedPassword != password {
		return nil, ErrInvalidCredentials
	}

	return &Identity{Username: username, Role: role}, nil
}

// Register creates an account with the default role.
func (s *Store) Register(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}

	_, err := s.db.ExecContext(ctx,
		s.bind(`INSERT INTO users (username, password, role) VALUES (?, ?, ?)`),
		username, password, DefaultRole,
	)
	if err != nil {
		// sqlite3 reports "UNIQUE constraint failed", postgres reports
		// "duplicate key value violates unique constraint".
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}
