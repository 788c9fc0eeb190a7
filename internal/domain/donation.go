package domain

import "time"

// Donation is a free-form contribution, optionally attributed to a movement.
// It carries no resource reference, so compensation has no stock effect.
type Donation struct {
	ID              string
	DonorID         string
	MovementID      *string
	AmountCents     int64
	Currency        string
	PaymentIntentID string
	Status          TxStatus
	RefundedCents   int64
	CreatedAt       time.Time
	FinalizedAt     *time.Time
}
