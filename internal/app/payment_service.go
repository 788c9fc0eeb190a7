package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkosimano/ChartedArt-sub003/internal/clock"
	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
	"github.com/nkosimano/ChartedArt-sub003/internal/payments"
)

type PaymentPieceStore interface {
	GetPiece(ctx context.Context, pieceID string) (domain.Piece, error)
}

type PurchaseStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, p domain.Purchase) error
	FindPendingByPieceAndBuyer(ctx context.Context, pieceID, buyerID string) (*domain.Purchase, error)
	CancelOrphanedPending(ctx context.Context, pieceID, holderID string, at time.Time) error
}

type OrderStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	DecrementStock(ctx context.Context, productID string, qty int) (bool, error)
	Create(ctx context.Context, o domain.Order) error
}

type DonationStore interface {
	Create(ctx context.Context, d domain.Donation) error
}

// PaymentService is the payment correlator: it opens a gateway intent and
// persists exactly one pending transactional record carrying the intent
// reference. Both later paths (finalize and webhook) correlate through that
// reference.
type PaymentService struct {
	pieces    PaymentPieceStore
	purchases PurchaseStore
	orders    OrderStore
	donations DonationStore
	gateway   payments.Gateway
	clock     clock.Clock
	maxCharge int64
}

const defaultMaxChargeCents = 500_000

func NewPaymentService(
	pieces PaymentPieceStore,
	purchases PurchaseStore,
	orders OrderStore,
	donations DonationStore,
	gateway payments.Gateway,
	clk clock.Clock,
	opts ...PaymentServiceOption,
) *PaymentService {
	svc := &PaymentService{
		pieces:    pieces,
		purchases: purchases,
		orders:    orders,
		donations: donations,
		gateway:   gateway,
		clock:     clk,
		maxCharge: defaultMaxChargeCents,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type PaymentServiceOption func(*PaymentService)

// WithMaxCharge overrides the default per-payment ceiling.
func WithMaxCharge(cents int64) PaymentServiceOption {
	return func(s *PaymentService) {
		if cents > 0 {
			s.maxCharge = cents
		}
	}
}

type OpenPaymentResult struct {
	TransactionID string
	ClientSecret  string
	AmountCents   int64
	Currency      string
}

// OpenPiecePayment opens a payment intent for a reserved piece. The caller
// must hold the live reservation; a piece that is sold or claimed by someone
// else yields InvalidReservation, which also covers the stale-client case of
// retrying checkout after the piece moved on.
func (s *PaymentService) OpenPiecePayment(ctx context.Context, pieceID, buyerID string) (OpenPaymentResult, error) {
	if buyerID == "" {
		return OpenPaymentResult{}, domain.ErrInvalidID
	}

	piece, err := s.pieces.GetPiece(ctx, pieceID)
	if err != nil {
		return OpenPaymentResult{}, err
	}

	now := s.clock.Now()
	if !piece.ReservedLiveBy(buyerID, now) {
		return OpenPaymentResult{}, domain.ErrInvalidReservation
	}
	if err := s.validateAmount(piece.PriceCents); err != nil {
		return OpenPaymentResult{}, err
	}

	// A retried checkout reuses the open record instead of minting a second
	// intent against the same piece.
	if existing, err := s.purchases.FindPendingByPieceAndBuyer(ctx, pieceID, buyerID); err != nil {
		return OpenPaymentResult{}, err
	} else if existing != nil {
		intent, err := s.gateway.GetIntent(ctx, existing.PaymentIntentID)
		if err != nil {
			return OpenPaymentResult{}, err
		}
		return OpenPaymentResult{
			TransactionID: existing.ID,
			ClientSecret:  intent.ClientSecret,
			AmountCents:   existing.AmountCents,
			Currency:      existing.Currency,
		}, nil
	}

	purchaseID := uuid.NewString()
	intent, err := s.gateway.CreateIntent(ctx, payments.CreateIntentParams{
		AmountCents: piece.PriceCents,
		Currency:    piece.Currency,
		Metadata: map[string]string{
			"kind":        "piece_purchase",
			"purchase_id": purchaseID,
			"piece_id":    pieceID,
			"buyer_id":    buyerID,
		},
	})
	if err != nil {
		return OpenPaymentResult{}, err
	}

	err = s.purchases.WithTx(ctx, func(txCtx context.Context) error {
		// Pending purchases left by previous claim holders can never
		// finalize; clear them so the one-open-record-per-piece constraint
		// admits ours.
		if err := s.purchases.CancelOrphanedPending(txCtx, pieceID, buyerID, now); err != nil {
			return err
		}
		return s.purchases.Create(txCtx, domain.Purchase{
			ID:              purchaseID,
			PieceID:         pieceID,
			BuyerID:         buyerID,
			AmountCents:     piece.PriceCents,
			Currency:        piece.Currency,
			PaymentIntentID: intent.ID,
			Status:          domain.TxStatusPending,
			CreatedAt:       now,
		})
	})
	if err != nil {
		return OpenPaymentResult{}, err
	}

	return OpenPaymentResult{
		TransactionID: purchaseID,
		ClientSecret:  intent.ClientSecret,
		AmountCents:   piece.PriceCents,
		Currency:      piece.Currency,
	}, nil
}

type OrderItemInput struct {
	ProductID string
	Quantity  int
}

// OpenOrder prices a basket, opens one intent for the total, and persists a
// pending order after conditionally taking stock. Insufficient stock rolls
// the whole transaction back.
func (s *PaymentService) OpenOrder(ctx context.Context, buyerID string, items []OrderItemInput) (OpenPaymentResult, error) {
	if buyerID == "" {
		return OpenPaymentResult{}, domain.ErrInvalidID
	}
	if len(items) == 0 {
		return OpenPaymentResult{}, domain.ErrInvalidQuantity
	}

	var total int64
	var currency string
	lines := make([]domain.OrderItem, 0, len(items))
	for _, in := range items {
		if in.Quantity <= 0 {
			return OpenPaymentResult{}, domain.ErrInvalidQuantity
		}
		product, err := s.orders.GetProduct(ctx, in.ProductID)
		if err != nil {
			return OpenPaymentResult{}, err
		}
		if currency == "" {
			currency = product.Currency
		} else if currency != product.Currency {
			return OpenPaymentResult{}, domain.ErrInvalidAmount
		}
		total += product.PriceCents * int64(in.Quantity)
		lines = append(lines, domain.OrderItem{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitCents: product.PriceCents,
		})
	}
	if err := s.validateAmount(total); err != nil {
		return OpenPaymentResult{}, err
	}

	now := s.clock.Now()
	orderID := uuid.NewString()
	intent, err := s.gateway.CreateIntent(ctx, payments.CreateIntentParams{
		AmountCents: total,
		Currency:    currency,
		Metadata: map[string]string{
			"kind":     "order",
			"order_id": orderID,
			"buyer_id": buyerID,
		},
	})
	if err != nil {
		return OpenPaymentResult{}, err
	}

	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		for _, line := range lines {
			ok, err := s.orders.DecrementStock(txCtx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrInsufficientStock
			}
		}
		return s.orders.Create(txCtx, domain.Order{
			ID:              orderID,
			BuyerID:         buyerID,
			AmountCents:     total,
			Currency:        currency,
			PaymentIntentID: intent.ID,
			Status:          domain.TxStatusPending,
			CreatedAt:       now,
			Items:           lines,
		})
	})
	if err != nil {
		return OpenPaymentResult{}, err
	}

	return OpenPaymentResult{
		TransactionID: orderID,
		ClientSecret:  intent.ClientSecret,
		AmountCents:   total,
		Currency:      currency,
	}, nil
}

// OpenDonation opens an intent for a free-form contribution. No resource is
// touched; the record exists purely to correlate the webhook.
func (s *PaymentService) OpenDonation(ctx context.Context, donorID string, movementID *string, amountCents int64, currency string) (OpenPaymentResult, error) {
	if donorID == "" {
		return OpenPaymentResult{}, domain.ErrInvalidID
	}
	if currency == "" {
		return OpenPaymentResult{}, domain.ErrInvalidAmount
	}
	if err := s.validateAmount(amountCents); err != nil {
		return OpenPaymentResult{}, err
	}

	now := s.clock.Now()
	donationID := uuid.NewString()
	intent, err := s.gateway.CreateIntent(ctx, payments.CreateIntentParams{
		AmountCents: amountCents,
		Currency:    currency,
		Metadata: map[string]string{
			"kind":        "donation",
			"donation_id": donationID,
			"donor_id":    donorID,
		},
	})
	if err != nil {
		return OpenPaymentResult{}, err
	}

	if err := s.donations.Create(ctx, domain.Donation{
		ID:              donationID,
		DonorID:         donorID,
		MovementID:      movementID,
		AmountCents:     amountCents,
		Currency:        currency,
		PaymentIntentID: intent.ID,
		Status:          domain.TxStatusPending,
		CreatedAt:       now,
	}); err != nil {
		return OpenPaymentResult{}, err
	}

	return OpenPaymentResult{
		TransactionID: donationID,
		ClientSecret:  intent.ClientSecret,
		AmountCents:   amountCents,
		Currency:      currency,
	}, nil
}

func (s *PaymentService) validateAmount(cents int64) error {
	if cents <= 0 || cents > s.maxCharge {
		return domain.ErrInvalidAmount
	}
	return nil
}
