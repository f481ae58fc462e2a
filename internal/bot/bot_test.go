package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/miguel-bm/repobot/internal/db"
	"github.com/miguel-bm/repobot/internal/dispatch"
	"github.com/miguel-bm/repobot/internal/github"
	"github.com/miguel-bm/repobot/internal/telegram"
	"github.com/miguel-bm/repobot/internal/telegram/telegramtest"
)

// fakeAPI is a RepoAPI whose calls succeed unless an error is configured.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	delay time.Duration
	// block makes the named call wait for its context to expire.
	block string

	repoErr     error
	branchesErr error
	permErr     error
	licenseErr  error
	topicsErr   error

	branches []github.Branch
}

func (f *fakeAPI) record(ctx context.Context, name string) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
	f.mu.Unlock()

	if f.block == name {
		<-ctx.Done()
		return &github.RemoteError{Kind: github.KindTransport, Op: name, Detail: "timed out", Err: ctx.Err()}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return nil
}

func (f *fakeAPI) GetRepository(ctx context.Context, token, fullName string) (*github.Repo, error) {
	if err := f.record(ctx, "repository"); err != nil {
		return nil, err
	}
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	return &github.Repo{ID: 7, FullName: fullName, DefaultBranch: "main"}, nil
}

func (f *fakeAPI) ListBranches(ctx context.Context, token, fullName string) ([]github.Branch, error) {
	if err := f.record(ctx, "branches"); err != nil {
		return nil, err
	}
	if f.branchesErr != nil {
		return nil, f.branchesErr
	}
	return f.branches, nil
}

func (f *fakeAPI) GetPermission(ctx context.Context, token, fullName string) (string, error) {
	if err := f.record(ctx, "permission"); err != nil {
		return "", err
	}
	if f.permErr != nil {
		return "", f.permErr
	}
	return "admin", nil
}

func (f *fakeAPI) GetLicense(ctx context.Context, token, fullName string) (string, error) {
	if err := f.record(ctx, "license"); err != nil {
		return "", err
	}
	if f.licenseErr != nil {
		return "", f.licenseErr
	}
	return "MIT License", nil
}

func (f *fakeAPI) ListTopics(ctx context.Context, token, fullName string) ([]string, error) {
	if err := f.record(ctx, "topics"); err != nil {
		return nil, err
	}
	if f.topicsErr != nil {
		return nil, f.topicsErr
	}
	return []string{"go", "bot"}, nil
}

func remoteErr(kind github.ErrorKind) error {
	return &github.RemoteError{Kind: kind, Op: "test", Detail: kind.String()}
}

type testEnv struct {
	t        *testing.T
	db       *db.DB
	api      *fakeAPI
	sender   *telegramtest.Recorder
	workflow *Workflow
	ingestor *dispatch.Ingestor
	updateID int
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	env := &testEnv{
		t:      t,
		db:     database,
		api:    &fakeAPI{branches: []github.Branch{{Name: "main"}, {Name: "dev"}}},
		sender: &telegramtest.Recorder{},
	}
	env.workflow = NewWorkflow(database, env.api, time.Second, nil)

	router := dispatch.NewRouter(nil)
	NewHandlers(env.workflow, database, "https://bot.example.com").Register(router)
	env.ingestor = dispatch.NewIngestor(dispatch.NewGate(database, dispatch.PublicCommands...), router, env.sender, database, nil)
	return env
}

// link creates a logged-in account owning repositories 7 (octocat/hello) and 8 (octocat/world).
func (e *testEnv) link(platformUserID int64) *db.Account {
	e.t.Helper()
	a, err := e.db.UpsertAccount(db.UpsertAccountInput{PlatformUserID: platformUserID, GitHubLogin: "octocat", AccessToken: "gho_token"})
	if err != nil {
		e.t.Fatalf("upsert account: %v", err)
	}
	now := time.Now()
	err = e.db.ReplaceRepositories(a.ID, []db.RepositoryInput{
		{ID: 7, FullName: "octocat/hello", UpdatedAt: now},
		{ID: 8, FullName: "octocat/world", UpdatedAt: now.Add(-time.Hour)},
	})
	if err != nil {
		e.t.Fatalf("replace repositories: %v", err)
	}
	return a
}

func (e *testEnv) account(platformUserID int64) *db.Account {
	e.t.Helper()
	a, err := e.db.GetAccountByPlatformID(platformUserID)
	if err != nil {
		e.t.Fatalf("get account: %v", err)
	}
	return a
}

func (e *testEnv) command(from int64, text string) dispatch.Result {
	e.t.Helper()
	e.updateID++
	body := fmt.Sprintf(`{"update_id":%d,"message":{"message_id":1,"text":%q,"from":{"id":%d},"chat":{"id":%d}}}`, e.updateID, text, from, from)
	return e.ingestor.Ingest(context.Background(), []byte(body))
}

func (e *testEnv) callback(from int64, data string) dispatch.Result {
	e.t.Helper()
	e.updateID++
	body := fmt.Sprintf(`{"update_id":%d,"callback_query":{"id":"cb%d","from":{"id":%d},"data":%q,"message":{"message_id":5,"chat":{"id":%d}}}}`, e.updateID, e.updateID, from, data, from)
	return e.ingestor.Ingest(context.Background(), []byte(body))
}

func buttonData(r telegram.Reply) []string {
	var out []string
	for _, row := range r.Keyboard {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}
