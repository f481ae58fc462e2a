package bot

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miguel-bm/repobot/internal/github"
)

// Values shown in place of enrichment lookups that failed.
const (
	UnknownPermission = "Unknown"
	NoLicense         = "None"
	TopicsUnavailable = "Unavailable"
)

// Enrichment holds the secondary attributes of a repository fetched when it
// is selected. Failed lookups hold their placeholder value.
type Enrichment struct {
	Branches   []github.Branch
	Permission string
	License    string
	// Topics is nil when the topic lookup failed.
	Topics []string
}

// TopicsText renders the topics for display.
func (e Enrichment) TopicsText() string {
	if e.Topics == nil {
		return TopicsUnavailable
	}
	if len(e.Topics) == 0 {
		return "None"
	}
	return strings.Join(e.Topics, ", ")
}

type result[T any] struct {
	value T
	err   error
}

// lookups collects the outcome of every call made for one selection.
type lookups struct {
	repo       result[*github.Repo]
	branches   result[[]github.Branch]
	permission result[string]
	license    result[string]
	topics     result[[]string]
}

// enrichment substitutes placeholders for failed lookups.
func (l *lookups) enrichment() Enrichment {
	e := Enrichment{
		Branches:   []github.Branch{},
		Permission: UnknownPermission,
		License:    NoLicense,
	}
	if l.branches.err == nil {
		e.Branches = l.branches.value
	}
	if l.permission.err == nil {
		e.Permission = l.permission.value
	}
	if l.license.err == nil {
		e.License = l.license.value
	}
	if l.topics.err == nil {
		e.Topics = l.topics.value
	}
	return e
}

// errs returns the failed lookups keyed by name, for logging.
func (l *lookups) errs() map[string]error {
	out := make(map[string]error)
	for name, err := range map[string]error{
		"repository": l.repo.err,
		"branches":   l.branches.err,
		"permission": l.permission.err,
		"license":    l.license.err,
		"topics":     l.topics.err,
	} {
		if err != nil {
			out[name] = err
		}
	}
	return out
}

// fetch runs call with its own deadline and stores the outcome in dst. It
// never returns an error, so one failing lookup cannot cancel the others.
func fetch[T any](ctx context.Context, timeout time.Duration, dst *result[T], call func(context.Context) (T, error)) func() error {
	return func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		dst.value, dst.err = call(callCtx)
		return nil
	}
}

// lookup issues the existence check and the four enrichment calls
// concurrently and waits for all of them.
func lookup(ctx context.Context, api RepoAPI, timeout time.Duration, token, fullName string) *lookups {
	l := &lookups{}
	var g errgroup.Group
	g.Go(fetch(ctx, timeout, &l.repo, func(ctx context.Context) (*github.Repo, error) {
		return api.GetRepository(ctx, token, fullName)
	}))
	g.Go(fetch(ctx, timeout, &l.branches, func(ctx context.Context) ([]github.Branch, error) {
		return api.ListBranches(ctx, token, fullName)
	}))
	g.Go(fetch(ctx, timeout, &l.permission, func(ctx context.Context) (string, error) {
		return api.GetPermission(ctx, token, fullName)
	}))
	g.Go(fetch(ctx, timeout, &l.license, func(ctx context.Context) (string, error) {
		return api.GetLicense(ctx, token, fullName)
	}))
	g.Go(fetch(ctx, timeout, &l.topics, func(ctx context.Context) ([]string, error) {
		return api.ListTopics(ctx, token, fullName)
	}))
	g.Wait()
	return l
}
