package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

type DonationRepository struct {
	db
}

func NewDonationRepository(pool *pgxpool.Pool) *DonationRepository {
	return &DonationRepository{db: db{pool: pool}}
}

const donationColumns = `id, donor_id, movement_id, amount_cents, currency,
payment_intent_id, status, refunded_cents, created_at, finalized_at`

func (r *DonationRepository) Create(ctx context.Context, d domain.Donation) error {
	const stmt = `
INSERT INTO donations (id, donor_id, movement_id, amount_cents, currency, payment_intent_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		d.ID, d.DonorID, d.MovementID, d.AmountCents, d.Currency, d.PaymentIntentID, d.Status, d.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create donation: %w", err)
	}
	return nil
}

func (r *DonationRepository) FindByIntentID(ctx context.Context, intentID string) (*domain.Donation, error) {
	query := fmt.Sprintf(`SELECT %s FROM donations WHERE payment_intent_id = $1`, donationColumns)

	d, err := scanDonation(r.queryRow(ctx, query, intentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find donation by intent: %w", err)
	}
	return &d, nil
}

func (r *DonationRepository) Transition(ctx context.Context, id string, from, to domain.TxStatus, at time.Time) (bool, error) {
	const stmt = `
UPDATE donations SET status = $3, finalized_at = $4 WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, id, from, to, at)
	if err != nil {
		return false, fmt.Errorf("transition donation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DonationRepository) ApplyRefund(ctx context.Context, id string, refundedCents int64, at time.Time) (bool, error) {
	const stmt = `
UPDATE donations
SET refunded_cents = $2,
    status = CASE WHEN $2 >= amount_cents THEN 'refunded' ELSE status END,
    finalized_at = CASE WHEN $2 >= amount_cents THEN $3 ELSE finalized_at END
WHERE id = $1 AND status IN ('completed', 'refunded')`

	tag, err := r.exec(ctx, stmt, id, refundedCents, at)
	if err != nil {
		return false, fmt.Errorf("apply donation refund: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanDonation(row pgx.Row) (domain.Donation, error) {
	var d domain.Donation
	var status string
	err := row.Scan(
		&d.ID,
		&d.DonorID,
		&d.MovementID,
		&d.AmountCents,
		&d.Currency,
		&d.PaymentIntentID,
		&status,
		&d.RefundedCents,
		&d.CreatedAt,
		&d.FinalizedAt,
	)
	if err != nil {
		return domain.Donation{}, err
	}
	d.Status = domain.TxStatus(status)
	return d, nil
}
