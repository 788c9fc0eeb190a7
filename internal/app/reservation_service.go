package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkosimano/ChartedArt-sub003/internal/clock"
	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

type ReservationStore interface {
	GetPiece(ctx context.Context, pieceID string) (domain.Piece, error)
	Claim(ctx context.Context, pieceID, holderID, token string, expiresAt, now time.Time) (*domain.Piece, error)
	Release(ctx context.Context, pieceID, holderID string, now time.Time) (bool, error)
	SweepExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReservationService grants, refreshes, and releases the single expiring
// claim each piece can carry. Mutual exclusion lives entirely in the store's
// conditional updates; the service never reads-then-writes.
type ReservationService struct {
	store ReservationStore
	clock clock.Clock
	ttl   time.Duration
}

const defaultReservationTTL = 15 * time.Minute

func NewReservationService(store ReservationStore, clk clock.Clock, opts ...ReservationServiceOption) *ReservationService {
	svc := &ReservationService{
		store: store,
		clock: clk,
		ttl:   defaultReservationTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationServiceOption func(*ReservationService)

// WithReservationTTL overrides the default claim lifetime.
func WithReservationTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

type ReservationResult struct {
	Piece      domain.Piece
	ClaimToken string
	ExpiresAt  time.Time
}

// Reserve claims a piece for holderID. Re-reserving a piece the holder
// already has is idempotent and returns a fresh token and expiry; the old
// token stops verifying.
func (s *ReservationService) Reserve(ctx context.Context, pieceID, holderID string) (ReservationResult, error) {
	if holderID == "" {
		return ReservationResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	token := uuid.NewString()
	expiresAt := now.Add(s.ttl)

	claimed, err := s.store.Claim(ctx, pieceID, holderID, token, expiresAt, now)
	if err != nil {
		return ReservationResult{}, err
	}
	if claimed == nil {
		// The conditional update matched nothing; read once to tell the
		// caller why. The read plays no part in the mutation.
		if _, err := s.store.GetPiece(ctx, pieceID); err != nil {
			return ReservationResult{}, err
		}
		return ReservationResult{}, domain.ErrPieceUnavailable
	}

	return ReservationResult{
		Piece:      *claimed,
		ClaimToken: token,
		ExpiresAt:  expiresAt,
	}, nil
}

// Release returns the piece to the pool on explicit user cancellation.
func (s *ReservationService) Release(ctx context.Context, pieceID, holderID string) error {
	if holderID == "" {
		return domain.ErrInvalidID
	}

	ok, err := s.store.Release(ctx, pieceID, holderID, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.store.GetPiece(ctx, pieceID); err != nil {
			return err
		}
		return domain.ErrInvalidReservation
	}
	return nil
}

// SweepExpired reclaims long-dead reservations. Reads already ignore expired
// claims, so this is hygiene, not correctness.
func (s *ReservationService) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.SweepExpired(ctx, s.clock.Now())
}
