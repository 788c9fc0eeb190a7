package app

import (
	"context"
	"time"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

// Compensation reverses the stock and claim side effects of a transaction
// that ended in failure, cancellation, or refund. Every variant first claims
// the record's compensation slot with a conditional update, so running twice
// for the same record never double-credits anything.

// compensateFailedPurchase puts the reserved piece back on sale. The store
// condition requires the failed buyer's claim to still be the one on the
// row, so a purchase superseded by someone else's sale compensates nothing.
func (s *WebhookService) compensateFailedPurchase(ctx context.Context, p domain.Purchase, now time.Time) error {
	claimed, err := s.purchases.MarkCompensated(ctx, p.ID, now)
	if err != nil || !claimed {
		return err
	}

	released, err := s.pieces.ReturnToPool(ctx, p.PieceID, p.BuyerID)
	if err != nil {
		return err
	}
	if !released {
		s.logger.Debug("piece already moved on, no claim to release",
			"purchase_id", p.ID, "piece_id", p.PieceID)
	}
	return nil
}

// compensateRefundedPurchase returns a fully refunded piece to the pool,
// guarded on the refunded buyer still owning it.
func (s *WebhookService) compensateRefundedPurchase(ctx context.Context, p domain.Purchase, now time.Time) error {
	claimed, err := s.purchases.MarkCompensated(ctx, p.ID, now)
	if err != nil || !claimed {
		return err
	}

	returned, err := s.pieces.ReturnFromOwner(ctx, p.PieceID, p.BuyerID)
	if err != nil {
		return err
	}
	if !returned {
		s.logger.Debug("refunded piece not owned by buyer, leaving as is",
			"purchase_id", p.ID, "piece_id", p.PieceID)
	}
	return nil
}

// compensateOrder restores the stock the order took when it was opened.
func (s *WebhookService) compensateOrder(ctx context.Context, o domain.Order, now time.Time) error {
	claimed, err := s.orders.MarkCompensated(ctx, o.ID, now)
	if err != nil || !claimed {
		return err
	}

	for _, item := range o.Items {
		if err := s.orders.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}
