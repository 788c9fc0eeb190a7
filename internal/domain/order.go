package domain

import "time"

// Product is a stock-counted catalog item sold through whole-order checkout.
type Product struct {
	ID         string
	Title      string
	PriceCents int64
	Currency   string
	Stock      int
	CreatedAt  time.Time
}

// Order records one attempt to pay for a basket of products. Stock is
// decremented when the order is opened and restored by compensation if the
// payment ends in failure, cancellation, or refund.
type Order struct {
	ID              string
	BuyerID         string
	AmountCents     int64
	Currency        string
	PaymentIntentID string
	Status          TxStatus
	RefundedCents   int64
	CompensatedAt   *time.Time
	CreatedAt       time.Time
	FinalizedAt     *time.Time
	Items           []OrderItem
}

type OrderItem struct {
	ProductID string
	Quantity  int
	UnitCents int64
}
