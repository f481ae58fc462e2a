// Package dispatch turns raw webhook bodies into handler invocations: it
// parses the update, drops replays, authenticates the sender and routes the
// update to a registered handler.
package dispatch

import (
	"log/slog"
	"strings"

	"github.com/miguel-bm/repobot/internal/db"
	"github.com/miguel-bm/repobot/internal/telegram"
)

// Context is the per-update scratch state handed to a handler. It lives for
// one webhook invocation and is never shared between requests.
type Context struct {
	Update telegram.Update
	// Account is nil for commands that run without authentication.
	Account *db.Account
	Logger  *slog.Logger
}

// Reply builds a reply addressed to the update's chat. Replies to a callback
// query edit the message that carried the pressed button.
func (c *Context) Reply(text string) telegram.Reply {
	r := telegram.Reply{ChatID: c.Update.ChatID(), Text: text}
	if cq, ok := c.Update.(*telegram.CallbackQuery); ok {
		r.EditMessageID = cq.MessageID
	}
	return r
}

// CallbackArg returns the callback data after prefix, e.g. "7" for
// "select_repo:7" and prefix "select_repo:".
func (c *Context) CallbackArg(prefix string) (string, bool) {
	cq, ok := c.Update.(*telegram.CallbackQuery)
	if !ok {
		return "", false
	}
	return strings.CutPrefix(cq.Data, prefix)
}
