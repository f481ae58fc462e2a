package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/miguel-bm/repobot/internal/config"
	"github.com/miguel-bm/repobot/internal/db"
	"github.com/miguel-bm/repobot/internal/telegram"
)

const (
	stateTTL   = 10 * time.Minute
	stateScope = "github_link"
)

// NewOAuthConfig returns the GitHub OAuth app configuration for account linking.
func NewOAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GitHub.ClientID,
		ClientSecret: cfg.GitHub.ClientSecret,
		Endpoint:     oauthgithub.Endpoint,
		RedirectURL:  cfg.OAuthCallbackURL(),
		Scopes:       []string{"repo"},
	}
}

// stateSigner issues and checks the short-lived state parameter that carries
// the platform user id through the OAuth round trip.
type stateSigner struct {
	secret []byte
	now    func() time.Time
}

func newStateSigner(secret []byte) *stateSigner {
	return &stateSigner{secret: secret, now: time.Now}
}

func (s *stateSigner) issue(platformUserID int64) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(platformUserID, 10),
		"scope": stateScope,
		"iat":   now.Unix(),
		"exp":   now.Add(stateTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *stateSigner) verify(state string) (int64, error) {
	token, err := jwt.Parse(state, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("parse state: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("unexpected state claims")
	}
	if scope, _ := claims["scope"].(string); scope != stateScope {
		return 0, fmt.Errorf("unexpected state scope %q", scope)
	}
	sub, _ := claims["sub"].(string)
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid state subject %q", sub)
	}
	return id, nil
}

// handleGitHubLogin starts account linking for the platform user in tg_id.
func (s *Server) handleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	platformUserID, err := strconv.ParseInt(r.URL.Query().Get("tg_id"), 10, 64)
	if err != nil || platformUserID == 0 {
		writeError(w, http.StatusBadRequest, "tg_id is required")
		return
	}

	state, err := s.states.issue(platformUserID)
	if err != nil {
		s.logger.Error("failed to sign link state", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start login")
		return
	}
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

// handleGitHubCallback completes account linking: it exchanges the code,
// stores the account with its repository catalog, and tells the user.
func (s *Server) handleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.linkLimiter.allow(ip) {
		writePage(w, http.StatusTooManyRequests, "Too many attempts, try again later.")
		return
	}

	q := r.URL.Query()
	platformUserID, err := s.states.verify(q.Get("state"))
	if err != nil {
		s.linkLimiter.fail(ip)
		s.logger.Warn("rejected link state", "ip", ip, "error", err)
		writePage(w, http.StatusBadRequest, "This login link is invalid or has expired. Send /login to the bot again.")
		return
	}
	s.linkLimiter.clear(ip)

	if reason := q.Get("error"); reason != "" {
		s.logger.Info("github authorization declined", "platform_user_id", platformUserID, "reason", reason)
		writePage(w, http.StatusBadRequest, "GitHub authorization was cancelled.")
		return
	}
	code := q.Get("code")
	if code == "" {
		writePage(w, http.StatusBadRequest, "Missing authorization code.")
		return
	}

	token, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("failed to exchange github code", "platform_user_id", platformUserID, "error", err)
		writePage(w, http.StatusBadGateway, "Could not complete GitHub login. Please try again.")
		return
	}

	account, err := s.linkAccount(r.Context(), platformUserID, token.AccessToken)
	if err != nil {
		s.logger.Error("failed to link account", "platform_user_id", platformUserID, "error", err)
		writePage(w, http.StatusBadGateway, "Could not complete GitHub login. Please try again.")
		return
	}
	s.logger.Info("account linked", "platform_user_id", platformUserID, "github_login", account.GitHubLogin)

	notice := telegram.Reply{
		ChatID: platformUserID,
		Text:   fmt.Sprintf("✅ Connected to GitHub as %s. Use /selectRepo to pick a repository.", account.GitHubLogin),
	}
	if err := s.sender.Send(r.Context(), notice); err != nil {
		s.logger.Warn("failed to notify linked user", "platform_user_id", platformUserID, "error", err)
	}

	writePage(w, http.StatusOK, "GitHub account connected. You can return to Telegram.")
}

// linkAccount stores the token for platformUserID and refreshes the
// account's repository catalog. The first successful link creates the account.
func (s *Server) linkAccount(ctx context.Context, platformUserID int64, token string) (*db.Account, error) {
	login, err := s.github.GetLogin(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get login: %w", err)
	}
	repos, err := s.github.ListOwnedRepositories(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	account, err := s.db.UpsertAccount(db.UpsertAccountInput{
		PlatformUserID: platformUserID,
		GitHubLogin:    login,
		AccessToken:    token,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}

	inputs := make([]db.RepositoryInput, 0, len(repos))
	for _, repo := range repos {
		inputs = append(inputs, db.RepositoryInput{ID: repo.ID, FullName: repo.FullName, UpdatedAt: repo.UpdatedAt})
	}
	if err := s.db.ReplaceRepositories(account.ID, inputs); err != nil {
		return nil, fmt.Errorf("replace repositories: %w", err)
	}
	return account, nil
}
