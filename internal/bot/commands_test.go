package bot

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/miguel-bm/repobot/internal/db"
	"github.com/miguel-bm/repobot/internal/dispatch"
	"github.com/miguel-bm/repobot/internal/github"
)

func TestLogin_SendsLinkWithoutCreatingAccount(t *testing.T) {
	env := setupTestEnv(t)

	res := env.ingestor.Ingest(t.Context(), []byte(`{"message":{"text":"/login","from":{"id":42}}}`))
	if res.Status != dispatch.StatusOK {
		t.Fatalf("expected ok, got %+v", res)
	}

	reply := env.sender.Last()
	if len(reply.Keyboard) != 1 || len(reply.Keyboard[0]) != 1 {
		t.Fatalf("expected one link button, got %+v", reply.Keyboard)
	}
	want := "https://bot.example.com/api/auth/github/login?tg_id=42"
	if got := reply.Keyboard[0][0].URL; got != want {
		t.Fatalf("login url = %q, want %q", got, want)
	}

	if _, err := env.db.GetAccountByPlatformID(42); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected no account to be created, got %v", err)
	}
}

func TestLogin_AlreadyConnected(t *testing.T) {
	env := setupTestEnv(t)
	env.link(42)

	env.command(42, "/login@RepoBot")
	if !env.sender.Contains("already connected") {
		t.Fatalf("expected already connected reply, got %+v", env.sender.Replies)
	}
}

func TestLogout_ClearsToken(t *testing.T) {
	env := setupTestEnv(t)
	env.link(42)

	if res := env.command(42, "/logout"); res.Status != dispatch.StatusOK {
		t.Fatalf("logout: %+v", res)
	}
	if env.account(42).LoggedIn() {
		t.Fatal("expected token to be cleared")
	}

	if res := env.command(42, "/selectRepo"); res.Status != dispatch.StatusUnauthorized {
		t.Fatalf("expected unauthorized after logout, got %+v", res)
	}
}

func TestSelectRepo_ListsMostRecentFirst(t *testing.T) {
	env := setupTestEnv(t)
	env.link(42)

	env.command(42, "/selectRepo")

	reply := env.sender.Last()
	if diff := cmp.Diff([]string{"select_repo:7", "select_repo:8"}, buttonData(reply)); diff != "" {
		t.Fatalf("buttons mismatch (-want +got):\n%s", diff)
	}
	if reply.Keyboard[0][0].Text != "octocat/hello" {
		t.Errorf("expected first button octocat/hello, got %q", reply.Keyboard[0][0].Text)
	}
}

func TestSelectRepo_NoRepositories(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := env.db.UpsertAccount(db.UpsertAccountInput{PlatformUserID: 42, AccessToken: "gho_token"}); err != nil {
		t.Fatalf("upsert account: %v", err)
	}

	res := env.command(42, "/selectRepo")
	if res.Status != dispatch.StatusOK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if !env.sender.Contains("No repositories found") {
		t.Fatalf("expected empty notice, got %+v", env.sender.Replies)
	}
}

func TestSelectRepoCallback_PartialEnrichment(t *testing.T) {
	env := setupTestEnv(t)
	env.link(42)
	env.api.permErr = remoteErr(github.KindTransport)
	env.api.licenseErr = remoteErr(github.KindNotFound)
	env.api.topicsErr = remoteErr(github.KindRateLimited)

	res := env.callback(42, "select_repo:7")
	if res.Status != dispatch.StatusOK {
		t.Fatalf("expected ok, got %+v", res)
	}

	a := env.account(42)
	if a.SelectedRepoID == nil || *a.SelectedRepoID != 7 {
		t.Fatalf("expected repo 7 selected, got %v", a.SelectedRepoID)
	}

	reply := env.sender.Last()
	if diff := cmp.Diff([]string{"select_branch:main", "select_branch:dev"}, buttonData(reply)); diff != "" {
		t.Fatalf("branch buttons mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{"Permission: Unknown", "License: None", "Topics: Unavailable"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("reply missing %q:\n%s", want, reply.Text)
		}
	}
	if reply.EditMessageID != 5 {
		t.Errorf("expected callback reply to edit message 5, got %d", reply.EditMessageID)
	}
	if !reply.Markdown {
		t.Error("expected markdown reply")
	}
}

func TestSelectRepoCallback_NoBranches(t *testing.T) {
	env := setupTestEnv(t)
	env.link(42)
	env.api.branchesErr = remoteErr(github.KindTransport)

	env.callback(42, "select_repo:7")

	reply := env.sender.Last()
	if len(reply.Keyboard) != 0 {
		t.Fatalf("expected no buttons, got %+v", reply.Keyboard)
	}
	if !strings.Contains(reply.Text, "No branches found") {
		t.Fatalf("expected no-branches notice, got %q", reply.Text)
	}
	if env.account(42).SelectedRepoID == nil {
		t.Fatal("expected selection to be committed")
	}
}

func TestSelectRepoCallback_ExistenceFailureKeepsSelection(t *testing.T) {
	env := setupTestEnv(t)
	a := env.link(42)
	if err := env.db.SelectRepository(a.ID, 8); err != nil {
		t.Fatalf("select repository: %v", err)
	}
	env.api.repoErr = remoteErr(github.KindNotFound)

	res := env.callback(42, "select_repo:7")
	if res.Status != dispatch.StatusOK {
		t.Fatalf("expected handled failure, got %+v", res)
	}
	if !env.sender.Contains("Failed to fetch repository data") {
		t.Fatalf("expected fetch failure reply, got %+v", env.sender.Replies)
	}
	if got := env.account(42).SelectedRepoID; got == nil || *got != 8 {
		t.Fatalf("expected selection to stay on 8, got %v", got)
	}
}

func TestSelectRepoCallback_StaleTarget(t *testing.T) {
	env := setupTestEnv(t)
	env.link(42)

	for _, data := range []string{"select_repo:999", "select_repo:abc", "select_repo:"} {
		env.callback(42, data)
		if got := env.sender.Last().Text; got != genericFailure {
			t.Fatalf("%s: expected generic failure, got %q", data, got)
		}
	}
	if env.account(42).SelectedRepoID != nil {
		t.Fatal("expected no selection")
	}
	if n := env.api.calls["repository"]; n != 0 {
		t.Fatalf("expected no API calls for unknown repos, got %d", n)
	}
}

func TestSelectBranch_BeforeRepository(t *testing.T) {
	env := setupTestEnv(t)
	env.link(42)

	res := env.callback(42, "select_branch:dev")
	if res.Status != dispatch.StatusOK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if !env.sender.Contains("select a repository first") {
		t.Fatalf("expected select-repo-first notice, got %+v", env.sender.Replies)
	}
	if env.account(42).CurrentBranch != nil {
		t.Fatal("expected branch to remain unset")
	}
}

func TestSelectBranch_AfterRepository(t *testing.T) {
	env := setupTestEnv(t)
	env.link(42)

	env.callback(42, "select_repo:7")
	env.callback(42, "select_branch:dev")

	a := env.account(42)
	if a.CurrentBranch == nil || *a.CurrentBranch != "dev" {
		t.Fatalf("expected branch dev, got %v", a.CurrentBranch)
	}
	if !strings.Contains(env.sender.Last().Text, "Branch set to *dev*") {
		t.Fatalf("unexpected reply %q", env.sender.Last().Text)
	}

	// Picking another repository resets the branch.
	env.callback(42, "select_repo:8")
	if env.account(42).CurrentBranch != nil {
		t.Fatal("expected branch reset after reselecting a repository")
	}
}

func TestCurrentRepo(t *testing.T) {
	env := setupTestEnv(t)
	env.link(42)

	env.command(42, "/currentRepo")
	if !env.sender.Contains("No repository selected") {
		t.Fatalf("expected empty selection reply, got %q", env.sender.Last().Text)
	}

	env.callback(42, "select_repo:7")
	env.callback(42, "select_branch:main")
	env.command(42, "/currentRepo")

	text := env.sender.Last().Text
	if !strings.Contains(text, "octocat/hello") || !strings.Contains(text, "*main*") {
		t.Fatalf("unexpected current repo reply %q", text)
	}
}

func TestUnknownCommand(t *testing.T) {
	env := setupTestEnv(t)
	env.link(42)

	env.command(42, "/frobnicate")
	if !env.sender.Contains("Unknown command") {
		t.Fatalf("expected unknown command reply, got %+v", env.sender.Replies)
	}
}

func TestCommands_ValidMenuNames(t *testing.T) {
	valid := regexp.MustCompile(`^[a-z0-9_]{1,32}$`)
	for _, c := range Commands {
		if !valid.MatchString(c.Name) {
			t.Errorf("command %q is not a valid Telegram command name", c.Name)
		}
		if c.Description == "" {
			t.Errorf("command %q has no description", c.Name)
		}
	}
}

func TestCommands_MenuNamesRoute(t *testing.T) {
	env := setupTestEnv(t)

	for _, c := range Commands {
		// /logout clears the token, so relink before each command.
		env.link(42)
		before := env.sender.Count()
		res := env.command(42, "/"+c.Name)
		if res.Status != dispatch.StatusOK {
			t.Fatalf("/%s: expected ok, got %+v", c.Name, res)
		}
		if env.sender.Count() == before {
			t.Fatalf("/%s: expected a reply", c.Name)
		}
		if env.sender.Contains("Unknown command") {
			t.Fatalf("/%s: routed to the unknown-command handler", c.Name)
		}
	}
}
