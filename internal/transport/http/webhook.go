package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
	"github.com/nkosimano/ChartedArt-sub003/internal/payments"
)

const signatureHeader = "Stripe-Signature"

// Stripe caps event payloads well below this; anything larger is garbage.
const maxWebhookBody = 1 << 20

// EventProcessor is the minimal interface the webhook endpoint needs.
type EventProcessor interface {
	Process(ctx context.Context, ev payments.Event) error
}

// HandleWebhook receives processor-signed events. The signature check runs
// before any state is touched; a 200 means the event was durably examined
// (including no-ops), so the processor stops redelivering. Anything the
// engine could not durably examine returns 5xx to invite redelivery.
func HandleWebhook(verifier payments.Verifier, svc EventProcessor, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "unreadable payload")
			return
		}

		ev, err := verifier.Verify(body, r.Header.Get(signatureHeader))
		if err != nil {
			if errors.Is(err, domain.ErrInvalidSignature) {
				logger.Warn("webhook signature rejected",
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				writeError(w, http.StatusBadRequest, codeInvalidSignature, "invalid signature")
				return
			}
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "malformed payload")
			return
		}

		if err := svc.Process(r.Context(), ev); err != nil {
			logger.Error("webhook processing failed", "event_id", ev.ProviderEventID, "error", err)
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
