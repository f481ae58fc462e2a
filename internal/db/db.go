package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoSelection is returned when a branch is committed for an account
// that has no selected repository.
var ErrNoSelection = errors.New("no repository selected")

type DB struct {
	conn *sql.DB
}

// DefaultPath returns the default database path (~/.repobot/repobot.db)
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "repobot.db"
	}
	return filepath.Join(home, ".repobot", "repobot.db")
}

// Open opens or creates the database at the given path
func Open(path string) (*DB, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// NewID generates a new ULID
func NewID() string {
	return ulid.Make().String()
}

// scanFunc is the common signature shared by (*sql.Row).Scan and (*sql.Rows).Scan.
type scanFunc func(dest ...any) error

// StringPtr converts sql.NullString to string pointer
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// Int64Ptr converts sql.NullInt64 to int64 pointer
func Int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}
