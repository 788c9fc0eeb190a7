package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nkosimano/ChartedArt-sub003/internal/app"
)

// DonationOpener is the minimal interface needed to open donations.
type DonationOpener interface {
	OpenDonation(ctx context.Context, donorID string, movementID *string, amountCents int64, currency string) (app.OpenPaymentResult, error)
}

// HandleDonations returns an HTTP handler for opening free-form donations.
func HandleDonations(svc DonationOpener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		donor := userID(r)
		if donor == "" {
			writeError(w, http.StatusBadRequest, codeInvalidID, "user identity required")
			return
		}

		var req createDonationRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.OpenDonation(r.Context(), donor, req.MovementID, req.AmountCents, req.Currency)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(openIntentResponse{
			TransactionID: res.TransactionID,
			ClientSecret:  res.ClientSecret,
			AmountCents:   res.AmountCents,
			Currency:      res.Currency,
		})
	}
}

type createDonationRequest struct {
	AmountCents int64   `json:"amount_cents"`
	Currency    string  `json:"currency"`
	MovementID  *string `json:"movement_id,omitempty"`
}
