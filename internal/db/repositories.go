package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository is a repository owned by an account.
type Repository struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"accountId"`
	FullName  string    `json:"fullName"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type RepositoryInput struct {
	ID        int64
	FullName  string
	UpdatedAt time.Time
}

func scanRepository(scan scanFunc) (*Repository, error) {
	var r Repository
	if err := scan(&r.AccountID, &r.ID, &r.FullName, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRepositories returns the account's repositories, most recently updated first.
func (db *DB) ListRepositories(accountID string) ([]*Repository, error) {
	rows, err := db.conn.Query(`
		SELECT account_id, id, full_name, updated_at
		FROM repositories WHERE account_id = ?
		ORDER BY updated_at DESC, id DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query repositories: %w", err)
	}
	defer rows.Close()

	repos := make([]*Repository, 0)
	for rows.Next() {
		r, err := scanRepository(rows.Scan)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// GetRepository resolves a repository id within the account's catalog.
func (db *DB) GetRepository(accountID string, id int64) (*Repository, error) {
	row := db.conn.QueryRow(`
		SELECT account_id, id, full_name, updated_at
		FROM repositories WHERE account_id = ? AND id = ?
	`, accountID, id)
	r, err := scanRepository(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ReplaceRepositories swaps the account's catalog for repos. A selection that
// is no longer in the catalog is cleared together with its branch.
func (db *DB) ReplaceRepositories(accountID string, repos []RepositoryInput) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM repositories WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("delete repositories: %w", err)
	}
	for _, r := range repos {
		if _, err := tx.Exec(`
			INSERT INTO repositories (account_id, id, full_name, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (account_id, id) DO UPDATE SET full_name = excluded.full_name, updated_at = excluded.updated_at
		`, accountID, r.ID, r.FullName, r.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("insert repository %d: %w", r.ID, err)
		}
	}
	if _, err := tx.Exec(`
		UPDATE accounts SET selected_repo_id = NULL, current_branch = NULL, updated_at = ?
		WHERE id = ? AND selected_repo_id IS NOT NULL
		AND selected_repo_id NOT IN (SELECT id FROM repositories WHERE account_id = ?)
	`, time.Now().UTC(), accountID, accountID); err != nil {
		return fmt.Errorf("clear stale selection: %w", err)
	}

	return tx.Commit()
}
