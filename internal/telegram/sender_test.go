package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeBotAPI answers Bot API calls. editMessageText fails with editErr when set.
type fakeBotAPI struct {
	mu      sync.Mutex
	methods []string
	editErr string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.mu.Lock()
	f.methods = append(f.methods, method)
	editErr := f.editErr
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Repo","username":"RepoBot"}}`)
	case "editMessageText":
		if editErr != "" {
			fmt.Fprintf(w, `{"ok":false,"error_code":400,"description":%q}`, editErr)
			return
		}
		fallthrough
	case "sendMessage":
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`)
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func newTestSender(t *testing.T, api *fakeBotAPI) *BotSender {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	sender, err := newBotSender("123:abc", srv.URL+"/bot%s/%s")
	if err != nil {
		t.Fatalf("new bot sender: %v", err)
	}
	t.Cleanup(sender.Close)
	return sender
}

func TestBotSender_Send(t *testing.T) {
	api := &fakeBotAPI{}
	sender := newTestSender(t, api)

	if sender.Username() != "RepoBot" {
		t.Errorf("Username() = %q", sender.Username())
	}
	if err := sender.Send(context.Background(), Reply{ChatID: 42, Text: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sender.Send(context.Background(), Reply{ChatID: 42, EditMessageID: 5, Text: "edited"}); err != nil {
		t.Fatalf("edit: %v", err)
	}

	want := []string{"getMe", "sendMessage", "editMessageText"}
	if strings.Join(api.methods, ",") != strings.Join(want, ",") {
		t.Fatalf("methods = %v, want %v", api.methods, want)
	}
}

func TestBotSender_EditWithUnchangedText(t *testing.T) {
	api := &fakeBotAPI{editErr: "Bad Request: message is not modified: specified new message content and reply markup are exactly the same as a current content and reply markup of the message"}
	sender := newTestSender(t, api)

	err := sender.Send(context.Background(), Reply{ChatID: 42, EditMessageID: 5, Text: "🌿 Branch set to *dev*", Markdown: true})
	if err != nil {
		t.Fatalf("expected an unchanged edit to succeed, got %v", err)
	}
}

func TestBotSender_EditFailure(t *testing.T) {
	api := &fakeBotAPI{editErr: "Bad Request: message to edit not found"}
	sender := newTestSender(t, api)

	err := sender.Send(context.Background(), Reply{ChatID: 42, EditMessageID: 5, Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "message to edit not found") {
		t.Fatalf("expected edit failure, got %v", err)
	}
}

func TestBotSender_SendCancelled(t *testing.T) {
	sender := newTestSender(t, &fakeBotAPI{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sender.Send(ctx, Reply{ChatID: 42, Text: "hi"}); err == nil {
		t.Fatal("expected cancelled context to abort the send")
	}
}
