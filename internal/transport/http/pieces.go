package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nkosimano/ChartedArt-sub003/internal/app"
	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

// Reserver is the minimal interface needed for reservation endpoints.
type Reserver interface {
	Reserve(ctx context.Context, pieceID, holderID string) (app.ReservationResult, error)
	Release(ctx context.Context, pieceID, holderID string) error
}

// IntentOpener is the minimal interface needed to open a piece payment.
type IntentOpener interface {
	OpenPiecePayment(ctx context.Context, pieceID, buyerID string) (app.OpenPaymentResult, error)
}

// PurchaseFinalizer is the minimal interface needed to finalize a purchase.
type PurchaseFinalizer interface {
	FinalizePurchase(ctx context.Context, in app.FinalizePurchaseInput) (domain.Piece, error)
}

// HandlePieces routes /pieces/{id}/{reservation|payment-intent|purchase}.
func HandlePieces(reservations Reserver, intents IntentOpener, finalizer PurchaseFinalizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pieceID, action, ok := parsePiecePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch action {
		case "reservation":
			switch r.Method {
			case http.MethodPost:
				handleReserve(w, r, reservations, pieceID)
			case http.MethodDelete:
				handleRelease(w, r, reservations, pieceID)
			default:
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			}
		case "payment-intent":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			handleOpenIntent(w, r, intents, pieceID)
		case "purchase":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
				return
			}
			handlePurchase(w, r, finalizer, pieceID)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parsePiecePath(path string) (pieceID, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "pieces" || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type reservationResponse struct {
	PieceID    string    `json:"piece_id"`
	ClaimToken string    `json:"claim_token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func handleReserve(w http.ResponseWriter, r *http.Request, svc Reserver, pieceID string) {
	holder := userID(r)
	if holder == "" {
		writeError(w, http.StatusBadRequest, codeInvalidID, "user identity required")
		return
	}

	res, err := svc.Reserve(r.Context(), pieceID, holder)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(reservationResponse{
		PieceID:    res.Piece.ID,
		ClaimToken: res.ClaimToken,
		ExpiresAt:  res.ExpiresAt,
	})
}

func handleRelease(w http.ResponseWriter, r *http.Request, svc Reserver, pieceID string) {
	holder := userID(r)
	if holder == "" {
		writeError(w, http.StatusBadRequest, codeInvalidID, "user identity required")
		return
	}

	if err := svc.Release(r.Context(), pieceID, holder); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type openIntentResponse struct {
	TransactionID string `json:"transaction_id"`
	ClientSecret  string `json:"client_secret"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
}

func handleOpenIntent(w http.ResponseWriter, r *http.Request, svc IntentOpener, pieceID string) {
	buyer := userID(r)
	if buyer == "" {
		writeError(w, http.StatusBadRequest, codeInvalidID, "user identity required")
		return
	}

	res, err := svc.OpenPiecePayment(r.Context(), pieceID, buyer)
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

type purchaseRequest struct {
	ClaimToken      string `json:"claim_token"`
	PaymentIntentID string `json:"payment_intent_id"`
}

type pieceResponse struct {
	ID         string `json:"id"`
	MovementID string `json:"movement_id"`
	Number     int    `json:"number"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	OwnerID    string `json:"owner_id,omitempty"`
}

func handlePurchase(w http.ResponseWriter, r *http.Request, svc PurchaseFinalizer, pieceID string) {
	buyer := userID(r)
	if buyer == "" {
		writeError(w, http.StatusBadRequest, codeInvalidID, "user identity required")
		return
	}

	var req purchaseRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.ClaimToken == "" || req.PaymentIntentID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "claim_token and payment_intent_id are required")
		return
	}

	piece, err := svc.FinalizePurchase(r.Context(), app.FinalizePurchaseInput{
		PieceID:         pieceID,
		BuyerID:         buyer,
		ClaimToken:      req.ClaimToken,
		PaymentIntentID: req.PaymentIntentID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toPieceResponse(piece))
}

func toPieceResponse(p domain.Piece) pieceResponse {
	resp := pieceResponse{
		ID:         p.ID,
		MovementID: p.MovementID,
		Number:     p.Number,
		PriceCents: p.PriceCents,
		Currency:   p.Currency,
		Status:     string(p.Status),
	}
	if p.OwnerID != nil {
		resp.OwnerID = *p.OwnerID
	}
	return resp
}
