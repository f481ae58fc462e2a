package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/miguel-bm/repobot/internal/telegram"
)

const (
	StatusOK           = "ok"
	StatusUnauthorized = "unauthorized"
	StatusError        = "error"
)

// Result is the JSON body returned to the platform for every webhook call.
type Result struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func errorResult(msg string) Result {
	return Result{Status: StatusError, Error: msg}
}

// UpdateClaimer records the newest update id seen per platform user.
type UpdateClaimer interface {
	ClaimUpdate(platformUserID int64, updateID int) (bool, error)
}

const (
	loginPrompt    = "❌ Please log in using /login"
	genericFailure = "⚠️ Something went wrong. Please try again."
)

// Ingestor is the webhook entry point. It never panics and always produces
// a Result, so one bad update cannot take the service down.
type Ingestor struct {
	gate   *Gate
	router *Router
	sender telegram.Sender
	claims UpdateClaimer
	locks  *userLocks
	logger *slog.Logger
}

// NewIngestor wires the pipeline. claims may be nil to disable replay
// protection.
func NewIngestor(gate *Gate, router *Router, sender telegram.Sender, claims UpdateClaimer, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		gate:   gate,
		router: router,
		sender: sender,
		claims: claims,
		locks:  newUserLocks(),
		logger: logger,
	}
}

// Ingest processes one raw webhook body.
func (in *Ingestor) Ingest(ctx context.Context, body []byte) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			in.logger.Error("panic while processing update", "panic", p, "stack", string(debug.Stack()))
			res = errorResult(fmt.Sprintf("internal error: %v", p))
		}
	}()

	upd, err := telegram.Parse(body)
	if err != nil {
		var pe *telegram.ParseError
		if errors.As(err, &pe) && pe.Kind == telegram.Unrecognized {
			in.logger.Error("invalid telegram update", "error", err)
			return errorResult("Invalid Telegram update")
		}
		in.logger.Error("invalid request body", "error", err, "body", string(body))
		return errorResult("Invalid JSON or encoding")
	}

	logger := in.logger.With("update_id", upd.UpdateID(), "platform_user_id", upd.SenderID())

	unlock := in.locks.lock(upd.SenderID())
	defer unlock()

	if in.claims != nil && upd.UpdateID() > 0 {
		fresh, err := in.claims.ClaimUpdate(upd.SenderID(), upd.UpdateID())
		if err != nil {
			logger.Error("claim update failed", "error", err)
			return errorResult(err.Error())
		}
		if !fresh {
			logger.Info("skipping duplicate or stale update")
			return Result{Status: StatusOK}
		}
	}

	decision, err := in.gate.Check(upd)
	if err != nil {
		logger.Error("auth check failed", "error", err)
		return errorResult(err.Error())
	}

	cq, isCallback := upd.(*telegram.CallbackQuery)
	if isCallback {
		if err := in.sender.AnswerCallback(ctx, cq.QueryID); err != nil {
			logger.Warn("answer callback failed", "error", err)
		}
	}

	if decision.Outcome == Unauthorized {
		logger.Info("unauthorized update", "token", upd.Token())
		if err := in.sender.Send(ctx, telegram.Reply{ChatID: upd.ChatID(), Text: loginPrompt}); err != nil {
			logger.Warn("send login prompt failed", "error", err)
		}
		return Result{Status: StatusUnauthorized}
	}

	dc := &Context{Update: upd, Account: decision.Account, Logger: logger}
	if err := in.router.Dispatch(ctx, dc, in.sender); err != nil {
		logger.Error("handler failed", "error", err)
		if sendErr := in.sender.Send(ctx, dc.Reply(genericFailure)); sendErr != nil {
			logger.Warn("send failure notice failed", "error", sendErr)
		}
		return errorResult(err.Error())
	}

	logger.Info("processed update")
	return Result{Status: StatusOK}
}
