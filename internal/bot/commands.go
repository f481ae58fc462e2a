package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/miguel-bm/repobot/internal/db"
	"github.com/miguel-bm/repobot/internal/dispatch"
	"github.com/miguel-bm/repobot/internal/telegram"
)

// Callback data prefixes carried by inline keyboard buttons.
const (
	SelectRepoPrefix   = "select_repo:"
	SelectBranchPrefix = "select_branch:"
)

// Commands is the command menu published to the chat platform. Telegram only
// accepts lowercase names; routing is case-insensitive, so "/selectRepo"
// typed by hand still reaches the same handler.
var Commands = []telegram.Command{
	{Name: "start", Description: "Start the bot"},
	{Name: "login", Description: "Login to GitHub"},
	{Name: "logout", Description: "Logout from GitHub"},
	{Name: "selectrepo", Description: "Select a GitHub repository"},
	{Name: "currentrepo", Description: "Show the current selected repository"},
}

const (
	// Telegram rejects callback data longer than this many bytes.
	maxCallbackData  = 64
	maxBranchButtons = 50
)

const genericFailure = "Something went wrong. Please try again."

// Handlers implements the bot commands.
type Handlers struct {
	workflow  *Workflow
	store     Store
	serverURL string
}

// NewHandlers creates the command handlers. serverURL is the public base URL
// that account-linking links point at.
func NewHandlers(workflow *Workflow, store Store, serverURL string) *Handlers {
	if !strings.HasSuffix(serverURL, "/") {
		serverURL += "/"
	}
	return &Handlers{workflow: workflow, store: store, serverURL: serverURL}
}

// Register adds every command and callback route to r.
func (h *Handlers) Register(r *dispatch.Router) {
	r.Command("/start", h.start)
	r.Command("/login", h.login)
	r.Command("/logout", h.logout)
	r.Command("/selectRepo", h.selectRepo)
	r.Command("/currentRepo", h.currentRepo)
	r.Callback(SelectRepoPrefix, h.selectRepoCallback)
	r.Callback(SelectBranchPrefix, h.selectBranchCallback)
	r.Unknown(h.unknown)
}

func (h *Handlers) start(ctx context.Context, dc *dispatch.Context, out telegram.Sender) error {
	return out.Send(ctx, dc.Reply(strings.TrimSpace(`👋 Welcome! I help you pick a GitHub repository and branch to work on.

/login - connect your GitHub account
/selectRepo - choose a repository
/currentRepo - show the current selection
/logout - disconnect GitHub`)))
}

// LoginURL is the account-linking link for a platform user.
func (h *Handlers) LoginURL(platformUserID int64) string {
	params := url.Values{"tg_id": {strconv.FormatInt(platformUserID, 10)}}
	return h.serverURL + "api/auth/github/login?" + params.Encode()
}

func (h *Handlers) login(ctx context.Context, dc *dispatch.Context, out telegram.Sender) error {
	account, err := h.store.GetAccountByPlatformID(dc.Update.SenderID())
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("lookup account: %w", err)
	}
	if account.LoggedIn() {
		return out.Send(ctx, dc.Reply("✅ You're already connected to GitHub!"))
	}

	reply := dc.Reply("Click the button below to connect your GitHub account:")
	reply.Keyboard = [][]telegram.Button{{{Text: "🔗 Connect GitHub", URL: h.LoginURL(dc.Update.SenderID())}}}
	return out.Send(ctx, reply)
}

func (h *Handlers) logout(ctx context.Context, dc *dispatch.Context, out telegram.Sender) error {
	if err := h.store.ClearAccessToken(dc.Account.ID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	dc.Logger.Info("user logged out", "github_login", dc.Account.GitHubLogin)
	return out.Send(ctx, dc.Reply("✅ You have successfully logged out from GitHub."))
}

func (h *Handlers) selectRepo(ctx context.Context, dc *dispatch.Context, out telegram.Sender) error {
	repos, err := h.workflow.ListRepos(dc.Account)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return out.Send(ctx, dc.Reply("No repositories found for your account."))
	}

	reply := dc.Reply("Select a repository to work with:")
	for _, repo := range repos {
		reply.Keyboard = append(reply.Keyboard, []telegram.Button{{
			Text: repo.FullName,
			Data: SelectRepoPrefix + strconv.FormatInt(repo.ID, 10),
		}})
	}
	return out.Send(ctx, reply)
}

func (h *Handlers) selectRepoCallback(ctx context.Context, dc *dispatch.Context, out telegram.Sender) error {
	arg, _ := dc.CallbackArg(SelectRepoPrefix)
	repoID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		dc.Logger.Warn("invalid repository id in callback", "data", arg)
		return out.Send(ctx, dc.Reply(genericFailure))
	}

	sel, err := h.workflow.SelectRepo(ctx, dc.Account, repoID)
	switch {
	case errors.Is(err, ErrRepoNotFound):
		return out.Send(ctx, dc.Reply(genericFailure))
	case errors.Is(err, ErrRepoUnavailable):
		dc.Logger.Warn("repository selection aborted", "repo_id", repoID, "error", err)
		return out.Send(ctx, dc.Reply("❌ Failed to fetch repository data. Please try again."))
	case err != nil:
		return err
	}

	return out.Send(ctx, h.selectionReply(dc, sel))
}

func (h *Handlers) selectionReply(dc *dispatch.Context, sel *Selection) telegram.Reply {
	e := sel.Enrichment
	var b strings.Builder
	fmt.Fprintf(&b, "Repository *%s* selected%s\n", telegram.Escape(sel.Repo.FullName), telegram.Escape("! The AI will now work on this repo."))
	fmt.Fprintf(&b, "🔐 Permission: %s\n", telegram.Escape(e.Permission))
	fmt.Fprintf(&b, "📄 License: %s\n", telegram.Escape(e.License))
	fmt.Fprintf(&b, "🏷 Topics: %s\n", telegram.Escape(e.TopicsText()))

	reply := dc.Reply("")
	reply.Markdown = true
	for _, br := range e.Branches {
		if len(reply.Keyboard) == maxBranchButtons {
			break
		}
		data := SelectBranchPrefix + br.Name
		if len(data) > maxCallbackData {
			dc.Logger.Warn("branch name too long for a button", "branch", br.Name)
			continue
		}
		reply.Keyboard = append(reply.Keyboard, []telegram.Button{{Text: br.Name, Data: data}})
	}

	if len(reply.Keyboard) > 0 {
		b.WriteString("🌿 *Select a branch:*")
	} else {
		b.WriteString("_No branches found\\._")
	}
	reply.Text = b.String()
	return reply
}

func (h *Handlers) selectBranchCallback(ctx context.Context, dc *dispatch.Context, out telegram.Sender) error {
	branch, _ := dc.CallbackArg(SelectBranchPrefix)
	if branch == "" {
		return out.Send(ctx, dc.Reply(genericFailure))
	}

	err := h.workflow.SelectBranch(dc.Account, branch)
	if errors.Is(err, db.ErrNoSelection) {
		return out.Send(ctx, dc.Reply("⚠️ Please select a repository first using /selectRepo."))
	}
	if err != nil {
		return err
	}

	reply := dc.Reply(fmt.Sprintf("🌿 Branch set to *%s*", telegram.Escape(branch)))
	reply.Markdown = true
	return out.Send(ctx, reply)
}

func (h *Handlers) currentRepo(ctx context.Context, dc *dispatch.Context, out telegram.Sender) error {
	repo, branch, err := h.workflow.Current(dc.Account)
	if errors.Is(err, ErrRepoNotFound) {
		return out.Send(ctx, dc.Reply("Your selected repository is no longer available. Use /selectRepo to pick another."))
	}
	if err != nil {
		return err
	}
	if repo == nil {
		return out.Send(ctx, dc.Reply("No repository selected. Use /selectRepo to pick one."))
	}

	text := fmt.Sprintf("📦 Current repository: *%s*\n", telegram.Escape(repo.FullName))
	if branch != nil {
		text += fmt.Sprintf("🌿 Branch: *%s*", telegram.Escape(*branch))
	} else {
		text += "🌿 Branch: _not selected_"
	}
	reply := dc.Reply(text)
	reply.Markdown = true
	return out.Send(ctx, reply)
}

func (h *Handlers) unknown(ctx context.Context, dc *dispatch.Context, out telegram.Sender) error {
	return out.Send(ctx, dc.Reply("Unknown command. Use /start to see what I can do."))
}
