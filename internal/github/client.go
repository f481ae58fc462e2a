// Package github is a typed adapter over the GitHub REST API. Every call takes
// the caller's access token and returns a typed result or a *RemoteError; it
// never substitutes defaults for failed lookups.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com/"

// Repo is the subset of repository metadata the bot works with.
type Repo struct {
	ID            int64
	FullName      string
	DefaultBranch string
	UpdatedAt     time.Time
}

// Branch is a branch of a repository.
type Branch struct {
	Name string
}

type Client struct {
	baseURL   *url.URL
	transport http.RoundTripper
}

// NewClient creates a client against baseURL. An empty baseURL means api.github.com.
// A nil transport uses http.DefaultTransport.
func NewClient(baseURL string, transport http.RoundTripper) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse github base url: %w", err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{baseURL: u, transport: transport}, nil
}

// api returns a go-github client that authenticates with token.
func (c *Client) api(token string) *gh.Client {
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   c.transport,
		},
	}
	client := gh.NewClient(httpClient)
	base := *c.baseURL
	client.BaseURL = &base
	return client
}

func splitFullName(op, fullName string) (string, string, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return "", "", &RemoteError{Kind: KindNotFound, Op: op, Detail: "invalid repository name " + fullName}
	}
	return owner, name, nil
}

// GetRepository fetches a repository by its owner/name.
func (c *Client) GetRepository(ctx context.Context, token, fullName string) (*Repo, error) {
	owner, name, err := splitFullName("get repository", fullName)
	if err != nil {
		return nil, err
	}
	r, _, err := c.api(token).Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, classify("get repository", err)
	}
	return toRepo(r), nil
}

// ListBranches returns every branch of the repository.
func (c *Client) ListBranches(ctx context.Context, token, fullName string) ([]Branch, error) {
	owner, name, err := splitFullName("list branches", fullName)
	if err != nil {
		return nil, err
	}
	api := c.api(token)
	opts := &gh.BranchListOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	branches := make([]Branch, 0)
	for {
		page, resp, err := api.Repositories.ListBranches(ctx, owner, name, opts)
		if err != nil {
			return nil, classify("list branches", err)
		}
		for _, b := range page {
			branches = append(branches, Branch{Name: b.GetName()})
		}
		if resp == nil || resp.NextPage == 0 {
			return branches, nil
		}
		opts.Page = resp.NextPage
	}
}

// permissionOrder lists GitHub repository roles from strongest to weakest.
var permissionOrder = []string{"admin", "maintain", "push", "triage", "pull"}

// GetPermission returns the caller's strongest role on the repository.
func (c *Client) GetPermission(ctx context.Context, token, fullName string) (string, error) {
	owner, name, err := splitFullName("get permission", fullName)
	if err != nil {
		return "", err
	}
	r, _, err := c.api(token).Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", classify("get permission", err)
	}
	perms := r.GetPermissions()
	for _, p := range permissionOrder {
		if perms[p] {
			return p, nil
		}
	}
	return "", &RemoteError{Kind: KindNotFound, Op: "get permission", Detail: "no permissions reported"}
}

// GetLicense returns the name of the repository's license.
func (c *Client) GetLicense(ctx context.Context, token, fullName string) (string, error) {
	owner, name, err := splitFullName("get license", fullName)
	if err != nil {
		return "", err
	}
	l, _, err := c.api(token).Repositories.License(ctx, owner, name)
	if err != nil {
		return "", classify("get license", err)
	}
	if l.GetLicense().GetName() == "" {
		return "", &RemoteError{Kind: KindNotFound, Op: "get license", Detail: "license has no name"}
	}
	return l.GetLicense().GetName(), nil
}

// ListTopics returns the repository's topics.
func (c *Client) ListTopics(ctx context.Context, token, fullName string) ([]string, error) {
	owner, name, err := splitFullName("list topics", fullName)
	if err != nil {
		return nil, err
	}
	topics, _, err := c.api(token).Repositories.ListAllTopics(ctx, owner, name)
	if err != nil {
		return nil, classify("list topics", err)
	}
	if topics == nil {
		topics = []string{}
	}
	return topics, nil
}

// GetLogin returns the login of the user that owns token.
func (c *Client) GetLogin(ctx context.Context, token string) (string, error) {
	u, _, err := c.api(token).Users.Get(ctx, "")
	if err != nil {
		return "", classify("get user", err)
	}
	return u.GetLogin(), nil
}

// ListOwnedRepositories returns the repositories owned by the token's user,
// most recently updated first.
func (c *Client) ListOwnedRepositories(ctx context.Context, token string) ([]Repo, error) {
	api := c.api(token)
	opts := &gh.RepositoryListOptions{
		Affiliation: "owner",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	repos := make([]Repo, 0)
	for {
		page, resp, err := api.Repositories.List(ctx, "", opts)
		if err != nil {
			return nil, classify("list repositories", err)
		}
		for _, r := range page {
			repos = append(repos, *toRepo(r))
		}
		if resp == nil || resp.NextPage == 0 {
			return repos, nil
		}
		opts.Page = resp.NextPage
	}
}

func toRepo(r *gh.Repository) *Repo {
	return &Repo{
		ID:            r.GetID(),
		FullName:      r.GetFullName(),
		DefaultBranch: r.GetDefaultBranch(),
		UpdatedAt:     r.GetUpdatedAt().Time,
	}
}
