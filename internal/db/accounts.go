package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Account is the stored session of one chat-platform user.
type Account struct {
	ID             string    `json:"id"`
	PlatformUserID int64     `json:"platformUserId"`
	GitHubLogin    string    `json:"githubLogin"`
	AccessToken    string    `json:"-"`
	SelectedRepoID *int64    `json:"selectedRepoId,omitempty"`
	CurrentBranch  *string   `json:"currentBranch,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// LoggedIn reports whether the account currently holds a repository token.
func (a *Account) LoggedIn() bool {
	return a != nil && a.AccessToken != ""
}

type UpsertAccountInput struct {
	PlatformUserID int64
	GitHubLogin    string
	AccessToken    string
}

const accountColumns = `id, platform_user_id, github_login, access_token, selected_repo_id, current_branch, created_at, updated_at`

func scanAccount(scan scanFunc) (*Account, error) {
	var a Account
	var selected sql.NullInt64
	var branch sql.NullString
	if err := scan(&a.ID, &a.PlatformUserID, &a.GitHubLogin, &a.AccessToken, &selected, &branch, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.SelectedRepoID = Int64Ptr(selected)
	a.CurrentBranch = StringPtr(branch)
	return &a, nil
}

// GetAccount retrieves an account by ID
func (db *DB) GetAccount(id string) (*Account, error) {
	row := db.conn.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// GetAccountByPlatformID retrieves the account linked to a chat-platform user.
// Returns ErrNotFound if the user never logged in.
func (db *DB) GetAccountByPlatformID(platformUserID int64) (*Account, error) {
	row := db.conn.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE platform_user_id = ?`, platformUserID)
	a, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// UpsertAccount creates the account on first login and refreshes the token
// and login on later ones. Selection state is preserved.
func (db *DB) UpsertAccount(input UpsertAccountInput) (*Account, error) {
	now := time.Now().UTC()
	_, err := db.conn.Exec(`
		INSERT INTO accounts (id, platform_user_id, github_login, access_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform_user_id) DO UPDATE SET
			github_login = excluded.github_login,
			access_token = excluded.access_token,
			updated_at = excluded.updated_at
	`, NewID(), input.PlatformUserID, input.GitHubLogin, input.AccessToken, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return db.GetAccountByPlatformID(input.PlatformUserID)
}

// ClearAccessToken logs the account out. The row and its selection are kept.
func (db *DB) ClearAccessToken(id string) error {
	return db.updateAccount(`UPDATE accounts SET access_token = '', updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
}

// SelectRepository points the account at a repository and resets the branch.
func (db *DB) SelectRepository(id string, repoID int64) error {
	return db.updateAccount(`UPDATE accounts SET selected_repo_id = ?, current_branch = NULL, updated_at = ? WHERE id = ?`, repoID, time.Now().UTC(), id)
}

// SetCurrentBranch commits a branch for the selected repository.
// Returns ErrNoSelection if the account has no selected repository.
func (db *DB) SetCurrentBranch(id, branch string) error {
	res, err := db.conn.Exec(`
		UPDATE accounts SET current_branch = ?, updated_at = ?
		WHERE id = ? AND selected_repo_id IS NOT NULL
	`, branch, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set current branch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := db.GetAccount(id); err != nil {
		return err
	}
	return ErrNoSelection
}

func (db *DB) updateAccount(query string, args ...any) error {
	res, err := db.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
