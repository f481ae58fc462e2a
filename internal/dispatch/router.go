package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/miguel-bm/repobot/internal/telegram"
)

// Handler processes one routed update. It sends its own replies through out
// and returns an error only for failures it could not report to the user.
type Handler func(ctx context.Context, dc *Context, out telegram.Sender) error

type callbackRoute struct {
	prefix  string
	handler Handler
}

// Router maps command tokens and callback-data prefixes to handlers.
type Router struct {
	commands  map[string]Handler
	callbacks []callbackRoute
	unknown   Handler
	logger    *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		commands: make(map[string]Handler),
		logger:   logger,
	}
}

// Command registers h for a command token such as "/selectRepo". Tokens are
// matched case-insensitively.
func (r *Router) Command(token string, h Handler) {
	r.commands[strings.ToLower(token)] = h
}

// Callback registers h for callback data starting with prefix. Prefixes are
// tried in registration order.
func (r *Router) Callback(prefix string, h Handler) {
	r.callbacks = append(r.callbacks, callbackRoute{prefix: prefix, handler: h})
}

// Unknown registers the handler for commands that match nothing.
func (r *Router) Unknown(h Handler) {
	r.unknown = h
}

// Dispatch runs the handler matching dc.Update. Updates that match nothing
// are dropped without error.
func (r *Router) Dispatch(ctx context.Context, dc *Context, out telegram.Sender) error {
	switch upd := dc.Update.(type) {
	case *telegram.Message:
		if upd.Command == "" {
			return nil
		}
		if h, ok := r.commands[upd.Command]; ok {
			return h(ctx, dc, out)
		}
		if r.unknown != nil {
			return r.unknown(ctx, dc, out)
		}
		return nil

	case *telegram.CallbackQuery:
		for _, route := range r.callbacks {
			if strings.HasPrefix(upd.Data, route.prefix) {
				return route.handler(ctx, dc, out)
			}
		}
		// Stale inline keyboards can still send data we no longer route.
		r.logger.Info("dropping unmatched callback", "data", upd.Data, "platform_user_id", upd.From)
		return nil

	default:
		return fmt.Errorf("unsupported update type %T", upd)
	}
}
