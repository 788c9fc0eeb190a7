package domain

import "errors"

var (
	ErrPieceNotFound    = errors.New("piece not found")
	ErrMovementNotFound = errors.New("movement not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrRecordNotFound   = errors.New("transaction record not found")

	ErrPieceUnavailable   = errors.New("piece is sold or reserved by another holder")
	ErrInvalidReservation = errors.New("no live reservation held by caller")
	ErrInvalidToken       = errors.New("claim token does not match reservation")
	ErrInvalidTransition  = errors.New("record is already in a terminal state")
	ErrInsufficientStock  = errors.New("insufficient stock")

	ErrInvalidAmount       = errors.New("amount must be positive and within the configured ceiling")
	ErrAmountMismatch      = errors.New("charged amount does not match expected amount")
	ErrPaymentNotSucceeded = errors.New("payment intent has not succeeded")
	ErrIntentMismatch      = errors.New("payment intent does not belong to this record")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidID           = errors.New("invalid id")
	ErrTitleRequired       = errors.New("title required")

	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")

	// ErrDuplicateEvent marks a webhook event id that was already journaled.
	// Callers treat it as a successful no-op, never as a failure.
	ErrDuplicateEvent = errors.New("webhook event already processed")
)

// Kind is the closed classification of engine errors. Store and gateway
// failures are mapped into it at the boundary so everything above can
// switch exhaustively instead of comparing error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindUpstream
	KindSignature
)

func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrPieceNotFound),
		errors.Is(err, ErrMovementNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrRecordNotFound):
		return KindNotFound
	case errors.Is(err, ErrPieceUnavailable),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInsufficientStock):
		return KindConflict
	case errors.Is(err, ErrInvalidReservation),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrPaymentNotSucceeded),
		errors.Is(err, ErrIntentMismatch),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrTitleRequired):
		return KindValidation
	case errors.Is(err, ErrGatewayUnavailable):
		return KindUpstream
	case errors.Is(err, ErrInvalidSignature):
		return KindSignature
	default:
		return KindUnknown
	}
}
