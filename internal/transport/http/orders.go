package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nkosimano/ChartedArt-sub003/internal/app"
)

// OrderOpener is the minimal interface needed to open checkout orders.
type OrderOpener interface {
	OpenOrder(ctx context.Context, buyerID string, items []app.OrderItemInput) (app.OpenPaymentResult, error)
}

// HandleOrders returns an HTTP handler for opening checkout orders.
func HandleOrders(svc OrderOpener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		buyer := userID(r)
		if buyer == "" {
			writeError(w, http.StatusBadRequest, codeInvalidID, "user identity required")
			return
		}

		var req createOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if len(req.Items) == 0 {
			writeError(w, http.StatusBadRequest, codeInvalidQuantity, "at least one item is required")
			return
		}

		items := make([]app.OrderItemInput, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, app.OrderItemInput{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
			})
		}

		res, err := svc.OpenOrder(r.Context(), buyer, items)
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

type createOrderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
