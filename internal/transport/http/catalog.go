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

// Cataloger is the minimal interface needed by the admin catalog endpoints.
type Cataloger interface {
	CreateMovement(ctx context.Context, title string) (domain.Movement, error)
	ListMovements(ctx context.Context) ([]domain.Movement, error)
	SeedPieces(ctx context.Context, in app.SeedPiecesInput) ([]domain.Piece, error)
	ListPieces(ctx context.Context, movementID string) ([]domain.Piece, error)
	CreateProduct(ctx context.Context, in app.CreateProductInput) (domain.Product, error)
}

// HandleAdminMovements routes /admin/movements (create, list).
func HandleAdminMovements(svc Cataloger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req createMovementRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}

			m, err := svc.CreateMovement(r.Context(), req.Title)
			if err != nil {
				writeDomainError(w, err)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(toMovementResponse(m))
		case http.MethodGet:
			movements, err := svc.ListMovements(r.Context())
			if err != nil {
				writeDomainError(w, err)
				return
			}

			out := make([]movementResponse, 0, len(movements))
			for _, m := range movements {
				out = append(out, toMovementResponse(m))
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(out)
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleAdminPieces routes /admin/movements/{id}/pieces (seed, list).
func HandleAdminPieces(svc Cataloger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		movementID, ok := parseMovementPiecesPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req seedPiecesRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}

			pieces, err := svc.SeedPieces(r.Context(), app.SeedPiecesInput{
				MovementID: movementID,
				Count:      req.Count,
				PriceCents: req.PriceCents,
				Currency:   req.Currency,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(toPieceResponses(pieces))
		case http.MethodGet:
			pieces, err := svc.ListPieces(r.Context(), movementID)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(toPieceResponses(pieces))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleAdminProducts routes /admin/products (create).
func HandleAdminProducts(svc Cataloger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createProductRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		p, err := svc.CreateProduct(r.Context(), app.CreateProductInput{
			Title:      req.Title,
			PriceCents: req.PriceCents,
			Currency:   req.Currency,
			Stock:      req.Stock,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(productResponse{
			ID:         p.ID,
			Title:      p.Title,
			PriceCents: p.PriceCents,
			Currency:   p.Currency,
			Stock:      p.Stock,
		})
	}
}

func parseMovementPiecesPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "admin" || parts[1] != "movements" || parts[3] != "pieces" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

type createMovementRequest struct {
	Title string `json:"title"`
}

type movementResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

func toMovementResponse(m domain.Movement) movementResponse {
	return movementResponse{ID: m.ID, Title: m.Title, CreatedAt: m.CreatedAt}
}

type seedPiecesRequest struct {
	Count      int    `json:"count"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
}

type createProductRequest struct {
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Stock      int    `json:"stock"`
}

type productResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Stock      int    `json:"stock"`
}

func toPieceResponses(pieces []domain.Piece) []pieceResponse {
	out := make([]pieceResponse, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, toPieceResponse(p))
	}
	return out
}
