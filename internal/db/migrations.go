package db

import (
	"fmt"
)

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.version > currentVersion {
			if err := db.runMigration(m); err != nil {
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
	}

	return nil
}

type migration struct {
	version int
	sql     string
}

func (db *DB) runMigration(m migration) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}

	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
		return err
	}

	return tx.Commit()
}

var migrations = []migration{
	{
		version: 1,
		sql: `
			-- One account per chat-platform user
			CREATE TABLE accounts (
				id TEXT PRIMARY KEY,
				platform_user_id INTEGER NOT NULL UNIQUE,
				github_login TEXT NOT NULL DEFAULT '',
				access_token TEXT NOT NULL DEFAULT '',
				selected_repo_id INTEGER,
				current_branch TEXT,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				CHECK (current_branch IS NULL OR selected_repo_id IS NOT NULL)
			);

			-- Repositories owned by an account, as last synced from GitHub
			CREATE TABLE repositories (
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				id INTEGER NOT NULL,
				full_name TEXT NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (account_id, id)
			);

			CREATE INDEX idx_repositories_updated ON repositories(account_id, updated_at DESC);
		`,
	},
	{
		version: 2,
		sql: `
			-- Highest webhook update id processed per chat-platform user
			CREATE TABLE update_marks (
				platform_user_id INTEGER PRIMARY KEY,
				last_update_id INTEGER NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
}
