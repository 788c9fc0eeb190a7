package domain

import "time"

type PieceStatus string

const (
	PieceStatusAvailable PieceStatus = "available"
	PieceStatusReserved  PieceStatus = "reserved"
	PieceStatusSold      PieceStatus = "sold"
)

// Piece is one numbered collectible unit belonging to a movement. Pieces are
// seeded at catalog time and only ever transitioned, never deleted.
type Piece struct {
	ID         string
	MovementID string
	Number     int
	PriceCents int64
	Currency   string
	Status     PieceStatus

	// Claim fields; meaningful only while Status is reserved.
	ReservedBy       *string
	ReserveToken     *string
	ReserveExpiresAt *time.Time

	OwnerID   *string
	CreatedAt time.Time
}

// ReservedLiveBy reports whether holderID owns a non-expired claim on the
// piece. An expired claim is indistinguishable from no claim at all.
func (p Piece) ReservedLiveBy(holderID string, now time.Time) bool {
	return p.Status == PieceStatusReserved &&
		p.ReservedBy != nil && *p.ReservedBy == holderID &&
		p.ReserveExpiresAt != nil && p.ReserveExpiresAt.After(now)
}
