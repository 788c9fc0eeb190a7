package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

const (
	codeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	codeNotFound           = "NOT_FOUND"
	codeInvalidRequestBody = "INVALID_REQUEST_BODY"
	codePieceNotFound      = "PIECE_NOT_FOUND"
	codeMovementNotFound   = "MOVEMENT_NOT_FOUND"
	codeProductNotFound    = "PRODUCT_NOT_FOUND"
	codeRecordNotFound     = "TRANSACTION_NOT_FOUND"
	codePieceUnavailable   = "PIECE_UNAVAILABLE"
	codeInvalidReservation = "INVALID_RESERVATION"
	codeInvalidToken       = "INVALID_TOKEN"
	codeAmountMismatch     = "AMOUNT_MISMATCH"
	codeInvalidAmount      = "INVALID_AMOUNT"
	codeInvalidQuantity    = "INVALID_QUANTITY"
	codeInvalidID          = "INVALID_ID"
	codeTitleRequired      = "TITLE_REQUIRED"
	codeInsufficientStock  = "INSUFFICIENT_STOCK"
	codeAlreadyFinalized   = "ALREADY_FINALIZED"
	codePaymentIncomplete  = "PAYMENT_NOT_SUCCEEDED"
	codeIntentMismatch     = "INTENT_MISMATCH"
	codeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	codeInvalidSignature   = "INVALID_SIGNATURE"
	codeForbidden          = "FORBIDDEN"
	codeInternalError      = "INTERNAL_ERROR"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"INTERNAL_ERROR"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps an engine error onto a status and stable code. The
// error kind drives the status; the sentinel drives the code so clients can
// present a precise message.
func writeDomainError(w http.ResponseWriter, err error) {
	code := codeFor(err)

	switch domain.KindOf(err) {
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, code, err.Error())
	case domain.KindConflict:
		writeError(w, http.StatusConflict, code, err.Error())
	case domain.KindValidation:
		writeError(w, http.StatusBadRequest, code, err.Error())
	case domain.KindUpstream:
		writeError(w, http.StatusBadGateway, code, err.Error())
	case domain.KindSignature:
		writeError(w, http.StatusBadRequest, code, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrPieceNotFound):
		return codePieceNotFound
	case errors.Is(err, domain.ErrMovementNotFound):
		return codeMovementNotFound
	case errors.Is(err, domain.ErrProductNotFound):
		return codeProductNotFound
	case errors.Is(err, domain.ErrRecordNotFound):
		return codeRecordNotFound
	case errors.Is(err, domain.ErrPieceUnavailable):
		return codePieceUnavailable
	case errors.Is(err, domain.ErrInvalidReservation):
		return codeInvalidReservation
	case errors.Is(err, domain.ErrInvalidToken):
		return codeInvalidToken
	case errors.Is(err, domain.ErrAmountMismatch):
		return codeAmountMismatch
	case errors.Is(err, domain.ErrInvalidAmount):
		return codeInvalidAmount
	case errors.Is(err, domain.ErrInvalidQuantity):
		return codeInvalidQuantity
	case errors.Is(err, domain.ErrInvalidID):
		return codeInvalidID
	case errors.Is(err, domain.ErrTitleRequired):
		return codeTitleRequired
	case errors.Is(err, domain.ErrInsufficientStock):
		return codeInsufficientStock
	case errors.Is(err, domain.ErrInvalidTransition):
		return codeAlreadyFinalized
	case errors.Is(err, domain.ErrPaymentNotSucceeded):
		return codePaymentIncomplete
	case errors.Is(err, domain.ErrIntentMismatch):
		return codeIntentMismatch
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return codeGatewayUnavailable
	case errors.Is(err, domain.ErrInvalidSignature):
		return codeInvalidSignature
	default:
		return codeInternalError
	}
}
