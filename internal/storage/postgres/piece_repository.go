package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

type PieceRepository struct {
	db
}

func NewPieceRepository(pool *pgxpool.Pool) *PieceRepository {
	return &PieceRepository{db: db{pool: pool}}
}

const pieceColumns = `id, movement_id, number, price_cents, currency, status,
reserved_by, reserve_token, reserve_expires_at, owner_id, created_at`

func (r *PieceRepository) GetPiece(ctx context.Context, pieceID string) (domain.Piece, error) {
	query := fmt.Sprintf(`SELECT %s FROM pieces WHERE id = $1`, pieceColumns)

	p, err := scanPiece(r.queryRow(ctx, query, pieceID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Piece{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Piece{}, domain.ErrPieceNotFound
		}
		return domain.Piece{}, fmt.Errorf("get piece: %w", err)
	}
	return p, nil
}

// Claim grants or refreshes a reservation in a single conditional update.
// The row is claimed when it is available, when the standing claim has
// expired, or when the caller already holds it (idempotent re-reserve).
// Returns nil when the condition did not match any row.
func (r *PieceRepository) Claim(ctx context.Context, pieceID, holderID, token string, expiresAt, now time.Time) (*domain.Piece, error) {
	query := fmt.Sprintf(`
UPDATE pieces
SET status = 'reserved', reserved_by = $2, reserve_token = $3, reserve_expires_at = $4
WHERE id = $1 AND (
	status = 'available'
	OR (status = 'reserved' AND (reserve_expires_at <= $5 OR reserved_by = $2))
)
RETURNING %s`, pieceColumns)

	p, err := scanPiece(r.queryRow(ctx, query, pieceID, holderID, token, expiresAt, now))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("claim piece: %w", err)
	}
	return &p, nil
}

// Release returns a piece to the pool when the caller holds a live claim.
func (r *PieceRepository) Release(ctx context.Context, pieceID, holderID string, now time.Time) (bool, error) {
	const stmt = `
UPDATE pieces
SET status = 'available', reserved_by = NULL, reserve_token = NULL, reserve_expires_at = NULL
WHERE id = $1 AND status = 'reserved' AND reserved_by = $2 AND reserve_expires_at > $3`

	tag, err := r.exec(ctx, stmt, pieceID, holderID, now)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("release piece: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSold is the finalization-path transition: reserved by this holder with
// an unexpired claim, in one conditional update. A stale reservation simply
// fails the condition.
func (r *PieceRepository) MarkSold(ctx context.Context, pieceID, holderID string, now time.Time) (bool, error) {
	const stmt = `
UPDATE pieces
SET status = 'sold', owner_id = $2, reserved_by = NULL, reserve_token = NULL, reserve_expires_at = NULL
WHERE id = $1 AND status = 'reserved' AND reserved_by = $2 AND reserve_expires_at > $3`

	tag, err := r.exec(ctx, stmt, pieceID, holderID, now)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("mark piece sold: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SellToBuyer is the webhook-path transition. The processor's notification
// is authoritative, so an expired-but-unreclaimed reservation by the buyer
// still wins, as does a piece that lapsed back to available. A piece held or
// owned by someone else fails the condition.
func (r *PieceRepository) SellToBuyer(ctx context.Context, pieceID, buyerID string) (bool, error) {
	const stmt = `
UPDATE pieces
SET status = 'sold', owner_id = $2, reserved_by = NULL, reserve_token = NULL, reserve_expires_at = NULL
WHERE id = $1 AND (
	(status = 'reserved' AND reserved_by = $2)
	OR status = 'available'
)`

	tag, err := r.exec(ctx, stmt, pieceID, buyerID)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("sell piece: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReturnToPool clears a reservation after a failed or cancelled purchase,
// only while this holder's claim is still the one on the row.
func (r *PieceRepository) ReturnToPool(ctx context.Context, pieceID, holderID string) (bool, error) {
	const stmt = `
UPDATE pieces
SET status = 'available', reserved_by = NULL, reserve_token = NULL, reserve_expires_at = NULL
WHERE id = $1 AND status = 'reserved' AND reserved_by = $2`

	tag, err := r.exec(ctx, stmt, pieceID, holderID)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("return piece to pool: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReturnFromOwner puts a fully refunded piece back on sale, guarded on the
// refunded buyer still owning it so a later sale is never unwound.
func (r *PieceRepository) ReturnFromOwner(ctx context.Context, pieceID, ownerID string) (bool, error) {
	const stmt = `
UPDATE pieces
SET status = 'available', owner_id = NULL
WHERE id = $1 AND status = 'sold' AND owner_id = $2`

	tag, err := r.exec(ctx, stmt, pieceID, ownerID)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("return piece from owner: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SweepExpired reclaims rows whose claims lapsed before the cutoff. Reads
// already treat those claims as absent; this only keeps the indexes tidy.
func (r *PieceRepository) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const stmt = `
UPDATE pieces
SET status = 'available', reserved_by = NULL, reserve_token = NULL, reserve_expires_at = NULL
WHERE status = 'reserved' AND reserve_expires_at <= $1`

	tag, err := r.exec(ctx, stmt, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep expired reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPiece(row pgx.Row) (domain.Piece, error) {
	var p domain.Piece
	var status string
	err := row.Scan(
		&p.ID,
		&p.MovementID,
		&p.Number,
		&p.PriceCents,
		&p.Currency,
		&status,
		&p.ReservedBy,
		&p.ReserveToken,
		&p.ReserveExpiresAt,
		&p.OwnerID,
		&p.CreatedAt,
	)
	if err != nil {
		return domain.Piece{}, err
	}
	p.Status = domain.PieceStatus(status)
	return p, nil
}
