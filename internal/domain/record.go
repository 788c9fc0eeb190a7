package domain

import "time"

// TxStatus is the lifecycle state shared by every transactional record kind
// (purchase, order, donation). Transitions are monotonic: once a record
// leaves pending it never returns, and only completed may become refunded.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusCompleted TxStatus = "completed"
	TxStatusFailed    TxStatus = "failed"
	TxStatusCancelled TxStatus = "cancelled"
	TxStatusRefunded  TxStatus = "refunded"
)

func CanTransition(from, to TxStatus) bool {
	switch from {
	case TxStatusPending:
		return to == TxStatusCompleted || to == TxStatusFailed || to == TxStatusCancelled
	case TxStatusCompleted:
		return to == TxStatusRefunded
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is accepted. Completed is
// not terminal because a refund may still arrive.
func IsTerminal(s TxStatus) bool {
	switch s {
	case TxStatusFailed, TxStatusCancelled, TxStatusRefunded:
		return true
	default:
		return false
	}
}

// Purchase records one attempt to pay for a specific piece. The payment
// intent reference is unique across purchases; it is the idempotency
// backbone correlating gateway notifications with this record.
type Purchase struct {
	ID              string
	PieceID         string
	BuyerID         string
	AmountCents     int64
	Currency        string
	PaymentIntentID string
	Status          TxStatus
	RefundedCents   int64
	CompensatedAt   *time.Time
	CreatedAt       time.Time
	FinalizedAt     *time.Time
}
