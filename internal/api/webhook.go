package api

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/miguel-bm/repobot/internal/config"
	"github.com/miguel-bm/repobot/internal/dispatch"
)

const (
	webhookPath         = config.WebhookPath
	webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxWebhookBody      = 1 << 20
)

// handleTelegramWebhook feeds one update to the ingestor. Every outcome,
// including rejected updates, is reported with status 200 so the platform
// does not redeliver it.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret != "" {
		got := r.Header.Get(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.webhookSecret)) != 1 {
			s.logger.Warn("webhook secret mismatch", "ip", clientIP(r))
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Warn("failed to read webhook body", "error", err)
		writeJSON(w, http.StatusOK, dispatch.Result{Status: dispatch.StatusError, Error: "Invalid request body"})
		return
	}

	// Handlers run to completion even if the platform hangs up.
	ctx := context.WithoutCancel(r.Context())
	writeJSON(w, http.StatusOK, s.ingestor.Ingest(ctx, body))
}
