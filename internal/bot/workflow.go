// Package bot implements the chat commands and the repository selection
// workflow behind them.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miguel-bm/repobot/internal/db"
	"github.com/miguel-bm/repobot/internal/github"
)

var (
	// ErrRepoNotFound means the chosen repository is not in the account's catalog.
	ErrRepoNotFound = errors.New("repository not found")
	// ErrRepoUnavailable means the repository API could not confirm the
	// repository exists.
	ErrRepoUnavailable = errors.New("failed to fetch repository data")
)

// DefaultCallTimeout bounds each repository API call made during selection.
const DefaultCallTimeout = 10 * time.Second

// Store is the account state the workflow reads and commits.
type Store interface {
	GetAccount(id string) (*db.Account, error)
	GetAccountByPlatformID(platformUserID int64) (*db.Account, error)
	ClearAccessToken(id string) error
	SelectRepository(id string, repoID int64) error
	SetCurrentBranch(id, branch string) error
	ListRepositories(accountID string) ([]*db.Repository, error)
	GetRepository(accountID string, id int64) (*db.Repository, error)
}

// RepoAPI is the repository-hosting API used to confirm and enrich a selection.
type RepoAPI interface {
	GetRepository(ctx context.Context, token, fullName string) (*github.Repo, error)
	ListBranches(ctx context.Context, token, fullName string) ([]github.Branch, error)
	GetPermission(ctx context.Context, token, fullName string) (string, error)
	GetLicense(ctx context.Context, token, fullName string) (string, error)
	ListTopics(ctx context.Context, token, fullName string) ([]string, error)
}

// Workflow drives repository and branch selection. It keeps no state between
// steps: every step starts from the stored account and the callback payload,
// so reordered or repeated deliveries cannot corrupt a selection.
type Workflow struct {
	store       Store
	api         RepoAPI
	callTimeout time.Duration
	logger      *slog.Logger
}

func NewWorkflow(store Store, api RepoAPI, callTimeout time.Duration, logger *slog.Logger) *Workflow {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{store: store, api: api, callTimeout: callTimeout, logger: logger}
}

// Selection is the outcome of a committed repository selection.
type Selection struct {
	Repo       *db.Repository
	Enrichment Enrichment
}

// ListRepos returns the repositories the account can select, most recently
// updated first.
func (w *Workflow) ListRepos(account *db.Account) ([]*db.Repository, error) {
	repos, err := w.store.ListRepositories(account.ID)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return repos, nil
}

// SelectRepo confirms the repository exists, enriches it, and only then
// commits it as the account's selection. Enrichment failures degrade to
// placeholder values; a failed existence check leaves the account untouched.
func (w *Workflow) SelectRepo(ctx context.Context, account *db.Account, repoID int64) (*Selection, error) {
	repo, err := w.store.GetRepository(account.ID, repoID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrRepoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %d: %w", repoID, err)
	}

	start := time.Now()
	l := lookup(ctx, w.api, w.callTimeout, account.AccessToken, repo.FullName)
	logger := w.logger.With("account_id", account.ID, "repo", repo.FullName)
	for name, err := range l.errs() {
		logger.Warn("repository lookup failed", "lookup", name, "error", err)
	}
	if l.repo.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepoUnavailable, l.repo.err)
	}

	if err := w.store.SelectRepository(account.ID, repo.ID); err != nil {
		return nil, fmt.Errorf("commit selection: %w", err)
	}
	logger.Info("repository selected", "elapsed", time.Since(start))

	return &Selection{Repo: repo, Enrichment: l.enrichment()}, nil
}

// SelectBranch commits branch for the account's selected repository. It
// returns db.ErrNoSelection if no repository has been selected yet.
func (w *Workflow) SelectBranch(account *db.Account, branch string) error {
	current, err := w.store.GetAccount(account.ID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if current.SelectedRepoID == nil {
		return db.ErrNoSelection
	}
	if err := w.store.SetCurrentBranch(account.ID, branch); err != nil {
		if errors.Is(err, db.ErrNoSelection) {
			return err
		}
		return fmt.Errorf("commit branch: %w", err)
	}
	return nil
}

// Current returns the account's selected repository and branch. Both are nil
// when nothing is selected; repo is nil with ErrRepoNotFound when the
// selection is no longer in the catalog.
func (w *Workflow) Current(account *db.Account) (*db.Repository, *string, error) {
	current, err := w.store.GetAccount(account.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get account: %w", err)
	}
	if current.SelectedRepoID == nil {
		return nil, nil, nil
	}
	repo, err := w.store.GetRepository(current.ID, *current.SelectedRepoID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, current.CurrentBranch, ErrRepoNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get repository: %w", err)
	}
	return repo, current.CurrentBranch, nil
}
