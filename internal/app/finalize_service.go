package app

import (
	"context"
	"time"

	"github.com/nkosimano/ChartedArt-sub003/internal/clock"
	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
	"github.com/nkosimano/ChartedArt-sub003/internal/payments"
)

type FinalizePieceStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetPiece(ctx context.Context, pieceID string) (domain.Piece, error)
	MarkSold(ctx context.Context, pieceID, holderID string, now time.Time) (bool, error)
}

type FinalizePurchaseStore interface {
	GetByID(ctx context.Context, id string) (domain.Purchase, error)
	FindByIntentID(ctx context.Context, intentID string) (*domain.Purchase, error)
	Transition(ctx context.Context, id string, from, to domain.TxStatus, at time.Time) (bool, error)
}

// FinalizeService is the synchronous completion path. It exists so the buyer
// does not have to wait for the processor's notification, but it is not the
// source of truth: it re-verifies everything against the gateway and then
// races the webhook engine toward the same conditional update. Whichever
// side wins, the end state is identical.
type FinalizeService struct {
	pieces    FinalizePieceStore
	purchases FinalizePurchaseStore
	gateway   payments.Gateway
	clock     clock.Clock
}

func NewFinalizeService(pieces FinalizePieceStore, purchases FinalizePurchaseStore, gateway payments.Gateway, clk clock.Clock) *FinalizeService {
	return &FinalizeService{
		pieces:    pieces,
		purchases: purchases,
		gateway:   gateway,
		clock:     clk,
	}
}

type FinalizePurchaseInput struct {
	PieceID         string
	BuyerID         string
	ClaimToken      string
	PaymentIntentID string
}

// FinalizePurchase validates the client's proof of payment and atomically
// sells the piece. Verification failures are definite errors, never retried:
// a cheaper substituted intent is AmountMismatch, a lapsed claim is
// InvalidReservation, a wrong token is InvalidToken.
func (s *FinalizeService) FinalizePurchase(ctx context.Context, in FinalizePurchaseInput) (domain.Piece, error) {
	if in.BuyerID == "" || in.PaymentIntentID == "" {
		return domain.Piece{}, domain.ErrInvalidID
	}

	purchase, err := s.purchases.FindByIntentID(ctx, in.PaymentIntentID)
	if err != nil {
		return domain.Piece{}, err
	}
	if purchase == nil {
		return domain.Piece{}, domain.ErrRecordNotFound
	}
	if purchase.PieceID != in.PieceID || purchase.BuyerID != in.BuyerID {
		return domain.Piece{}, domain.ErrIntentMismatch
	}

	// The webhook may already have done the work; report success, same end
	// state either way.
	if purchase.Status == domain.TxStatusCompleted {
		return s.pieces.GetPiece(ctx, purchase.PieceID)
	}
	if domain.IsTerminal(purchase.Status) {
		return domain.Piece{}, domain.ErrInvalidTransition
	}

	intent, err := s.gateway.GetIntent(ctx, in.PaymentIntentID)
	if err != nil {
		return domain.Piece{}, err
	}
	if intent.Status != payments.IntentStatusSucceeded {
		return domain.Piece{}, domain.ErrPaymentNotSucceeded
	}
	if intent.AmountReceived != purchase.AmountCents || intent.Currency != purchase.Currency {
		return domain.Piece{}, domain.ErrAmountMismatch
	}

	now := s.clock.Now()
	piece, err := s.pieces.GetPiece(ctx, purchase.PieceID)
	if err != nil {
		return domain.Piece{}, err
	}
	if !piece.ReservedLiveBy(in.BuyerID, now) {
		return domain.Piece{}, domain.ErrInvalidReservation
	}
	if piece.ReserveToken == nil || *piece.ReserveToken != in.ClaimToken {
		return domain.Piece{}, domain.ErrInvalidToken
	}

	var out domain.Piece
	err = s.pieces.WithTx(ctx, func(txCtx context.Context) error {
		sold, err := s.pieces.MarkSold(txCtx, purchase.PieceID, in.BuyerID, now)
		if err != nil {
			return err
		}
		if !sold {
			// Lost the conditional-update race. If the webhook completed
			// the record, the piece is ours and this is a success.
			current, err := s.purchases.GetByID(txCtx, purchase.ID)
			if err != nil {
				return err
			}
			if current.Status == domain.TxStatusCompleted {
				out, err = s.pieces.GetPiece(txCtx, purchase.PieceID)
				return err
			}
			return domain.ErrInvalidReservation
		}

		done, err := s.purchases.Transition(txCtx, purchase.ID, domain.TxStatusPending, domain.TxStatusCompleted, now)
		if err != nil {
			return err
		}
		if !done {
			// The record left pending under us without selling the piece;
			// roll back rather than sell against a terminal record.
			return domain.ErrInvalidTransition
		}

		out, err = s.pieces.GetPiece(txCtx, purchase.PieceID)
		return err
	})
	if err != nil {
		return domain.Piece{}, err
	}
	return out, nil
}
