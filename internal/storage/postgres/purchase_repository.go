package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

type PurchaseRepository struct {
	db
}

func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{db: db{pool: pool}}
}

const purchaseColumns = `id, piece_id, buyer_id, amount_cents, currency,
payment_intent_id, status, refunded_cents, compensated_at, created_at, finalized_at`

func (r *PurchaseRepository) Create(ctx context.Context, p domain.Purchase) error {
	const stmt = `
INSERT INTO purchases (id, piece_id, buyer_id, amount_cents, currency, payment_intent_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		p.ID, p.PieceID, p.BuyerID, p.AmountCents, p.Currency, p.PaymentIntentID, p.Status, p.CreatedAt,
	)
	if err != nil {
		if uniqueConstraint(err) == "purchases_pending_piece_idx" {
			return domain.ErrPieceUnavailable
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create purchase: %w", err)
	}
	return nil
}

func (r *PurchaseRepository) GetByID(ctx context.Context, id string) (domain.Purchase, error) {
	query := fmt.Sprintf(`SELECT %s FROM purchases WHERE id = $1`, purchaseColumns)

	p, err := scanPurchase(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Purchase{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Purchase{}, domain.ErrRecordNotFound
		}
		return domain.Purchase{}, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

// FindByIntentID returns nil when no purchase carries the intent reference.
func (r *PurchaseRepository) FindByIntentID(ctx context.Context, intentID string) (*domain.Purchase, error) {
	query := fmt.Sprintf(`SELECT %s FROM purchases WHERE payment_intent_id = $1`, purchaseColumns)

	p, err := scanPurchase(r.queryRow(ctx, query, intentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find purchase by intent: %w", err)
	}
	return &p, nil
}

// FindPendingByPieceAndBuyer returns an open purchase for this piece/buyer,
// or nil. Used to make a retried checkout idempotent.
func (r *PurchaseRepository) FindPendingByPieceAndBuyer(ctx context.Context, pieceID, buyerID string) (*domain.Purchase, error) {
	query := fmt.Sprintf(`
SELECT %s FROM purchases
WHERE piece_id = $1 AND buyer_id = $2 AND status = 'pending'`, purchaseColumns)

	p, err := scanPurchase(r.queryRow(ctx, query, pieceID, buyerID))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending purchase: %w", err)
	}
	return &p, nil
}

// CancelOrphanedPending cancels pending purchases on a piece that belong to
// holders other than the current claim holder. Their reservation already
// lapsed, so the records can never finalize.
func (r *PurchaseRepository) CancelOrphanedPending(ctx context.Context, pieceID, holderID string, at time.Time) error {
	const stmt = `
UPDATE purchases
SET status = 'cancelled', finalized_at = $3
WHERE piece_id = $1 AND buyer_id <> $2 AND status = 'pending'`

	if _, err := r.exec(ctx, stmt, pieceID, holderID, at); err != nil {
		return fmt.Errorf("cancel orphaned purchases: %w", err)
	}
	return nil
}

// Transition moves a purchase between lifecycle states in one conditional
// update keyed on the expected prior state. Both the finalize path and the
// webhook path funnel through this; whichever runs first wins and the loser
// observes zero rows.
func (r *PurchaseRepository) Transition(ctx context.Context, id string, from, to domain.TxStatus, at time.Time) (bool, error) {
	const stmt = `
UPDATE purchases SET status = $3, finalized_at = $4 WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, id, from, to, at)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("transition purchase: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyRefund accumulates the refunded amount; the status flips to refunded
// only once the full charge is returned.
func (r *PurchaseRepository) ApplyRefund(ctx context.Context, id string, refundedCents int64, at time.Time) (bool, error) {
	const stmt = `
UPDATE purchases
SET refunded_cents = $2,
    status = CASE WHEN $2 >= amount_cents THEN 'refunded' ELSE status END,
    finalized_at = CASE WHEN $2 >= amount_cents THEN $3 ELSE finalized_at END
WHERE id = $1 AND status IN ('completed', 'refunded')`

	tag, err := r.exec(ctx, stmt, id, refundedCents, at)
	if err != nil {
		return false, fmt.Errorf("apply purchase refund: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompensated claims the right to run compensation side effects; the
// second caller sees zero rows and skips them.
func (r *PurchaseRepository) MarkCompensated(ctx context.Context, id string, at time.Time) (bool, error) {
	const stmt = `
UPDATE purchases SET compensated_at = $2 WHERE id = $1 AND compensated_at IS NULL`

	tag, err := r.exec(ctx, stmt, id, at)
	if err != nil {
		return false, fmt.Errorf("mark purchase compensated: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanPurchase(row pgx.Row) (domain.Purchase, error) {
	var p domain.Purchase
	var status string
	err := row.Scan(
		&p.ID,
		&p.PieceID,
		&p.BuyerID,
		&p.AmountCents,
		&p.Currency,
		&p.PaymentIntentID,
		&status,
		&p.RefundedCents,
		&p.CompensatedAt,
		&p.CreatedAt,
		&p.FinalizedAt,
	)
	if err != nil {
		return domain.Purchase{}, err
	}
	p.Status = domain.TxStatus(status)
	return p, nil
}
