package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nkosimano/ChartedArt-sub003/internal/clock"
	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
	"github.com/nkosimano/ChartedArt-sub003/internal/payments"
)

type WebhookEventStore interface {
	Insert(ctx context.Context, ev domain.WebhookEvent) error
	IsProcessed(ctx context.Context, providerEventID string) (bool, error)
	MarkProcessed(ctx context.Context, providerEventID string, at time.Time) error
}

type WebhookPurchaseStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindByIntentID(ctx context.Context, intentID string) (*domain.Purchase, error)
	Transition(ctx context.Context, id string, from, to domain.TxStatus, at time.Time) (bool, error)
	ApplyRefund(ctx context.Context, id string, refundedCents int64, at time.Time) (bool, error)
	MarkCompensated(ctx context.Context, id string, at time.Time) (bool, error)
}

type WebhookOrderStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindByIntentID(ctx context.Context, intentID string) (*domain.Order, error)
	Transition(ctx context.Context, id string, from, to domain.TxStatus, at time.Time) (bool, error)
	ApplyRefund(ctx context.Context, id string, refundedCents int64, at time.Time) (bool, error)
	MarkCompensated(ctx context.Context, id string, at time.Time) (bool, error)
	RestoreStock(ctx context.Context, productID string, qty int) error
}

type WebhookDonationStore interface {
	FindByIntentID(ctx context.Context, intentID string) (*domain.Donation, error)
	Transition(ctx context.Context, id string, from, to domain.TxStatus, at time.Time) (bool, error)
	ApplyRefund(ctx context.Context, id string, refundedCents int64, at time.Time) (bool, error)
}

type WebhookPieceStore interface {
	SellToBuyer(ctx context.Context, pieceID, buyerID string) (bool, error)
	ReturnToPool(ctx context.Context, pieceID, holderID string) (bool, error)
	ReturnFromOwner(ctx context.Context, pieceID, ownerID string) (bool, error)
}

// WebhookService is the authoritative consumer of processor notifications.
// It is the only component allowed to complete a record the client never
// finalized, and every branch tolerates duplicate and out-of-order delivery:
// an already-terminal record, an unknown intent reference, and a replayed
// event id are all acknowledged no-ops.
type WebhookService struct {
	events    WebhookEventStore
	purchases WebhookPurchaseStore
	orders    WebhookOrderStore
	donations WebhookDonationStore
	pieces    WebhookPieceStore
	clock     clock.Clock
	logger    *slog.Logger
}

func NewWebhookService(
	events WebhookEventStore,
	purchases WebhookPurchaseStore,
	orders WebhookOrderStore,
	donations WebhookDonationStore,
	pieces WebhookPieceStore,
	clk clock.Clock,
	logger *slog.Logger,
) *WebhookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{
		events:    events,
		purchases: purchases,
		orders:    orders,
		donations: donations,
		pieces:    pieces,
		clock:     clk,
		logger:    logger,
	}
}

// Process journals the event, dispatches on its normalized kind, and marks
// it processed. A nil return means the event was durably examined and the
// transport should acknowledge it; an error means the processor should
// redeliver.
func (s *WebhookService) Process(ctx context.Context, ev payments.Event) error {
	now := s.clock.Now()

	err := s.events.Insert(ctx, domain.WebhookEvent{
		ID:              uuid.NewString(),
		ProviderEventID: ev.ProviderEventID,
		EventType:       ev.Type,
		Payload:         ev.Payload,
		CreatedAt:       now,
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		// A duplicate id short-circuits only once the earlier delivery ran
		// to completion. A journal row without a processed stamp means
		// dispatch errored after the insert and the processor is
		// redelivering; the handlers are idempotent, so dispatch again.
		processed, perr := s.events.IsProcessed(ctx, ev.ProviderEventID)
		if perr != nil {
			return perr
		}
		if processed {
			s.logger.Debug("webhook event replayed", "event_id", ev.ProviderEventID)
			return nil
		}
		s.logger.Info("redelivered webhook event was never processed, dispatching again",
			"event_id", ev.ProviderEventID)
	} else if err != nil {
		return err
	}

	switch ev.Kind {
	case payments.EventSucceeded:
		err = s.handleSucceeded(ctx, ev, now)
	case payments.EventFailed:
		err = s.handleFailed(ctx, ev, now)
	case payments.EventRefunded:
		err = s.handleRefunded(ctx, ev, now)
	default:
		s.logger.Debug("ignoring webhook event", "type", ev.Type, "event_id", ev.ProviderEventID)
	}
	if err != nil {
		return err
	}

	return s.events.MarkProcessed(ctx, ev.ProviderEventID, s.clock.Now())
}

// errPieceLost aborts the success transaction when the piece can no longer
// be delivered to the paying buyer.
var errPieceLost = errors.New("piece no longer deliverable to buyer")

func (s *WebhookService) handleSucceeded(ctx context.Context, ev payments.Event, now time.Time) error {
	if p, err := s.purchases.FindByIntentID(ctx, ev.IntentID); err != nil {
		return err
	} else if p != nil {
		return s.completePurchase(ctx, *p, now)
	}

	if o, err := s.orders.FindByIntentID(ctx, ev.IntentID); err != nil {
		return err
	} else if o != nil {
		if o.Status != domain.TxStatusPending {
			return nil
		}
		_, err := s.orders.Transition(ctx, o.ID, domain.TxStatusPending, domain.TxStatusCompleted, now)
		return err
	}

	if d, err := s.donations.FindByIntentID(ctx, ev.IntentID); err != nil {
		return err
	} else if d != nil {
		if d.Status != domain.TxStatusPending {
			return nil
		}
		_, err := s.donations.Transition(ctx, d.ID, domain.TxStatusPending, domain.TxStatusCompleted, now)
		return err
	}

	// Not ours. Acknowledge rather than invite a retry storm.
	s.logger.Info("webhook for unknown payment intent", "intent_id", ev.IntentID, "event_id", ev.ProviderEventID)
	return nil
}

func (s *WebhookService) completePurchase(ctx context.Context, p domain.Purchase, now time.Time) error {
	if p.Status == domain.TxStatusCompleted || domain.IsTerminal(p.Status) {
		if p.Status == domain.TxStatusCancelled {
			// The record was cancelled after the buyer's claim lapsed, yet
			// the charge landed. Nothing to deliver; surface it for manual
			// refund.
			s.logger.Warn("payment succeeded for a cancelled purchase",
				"purchase_id", p.ID, "intent_id", p.PaymentIntentID, "buyer_id", p.BuyerID)
		}
		return nil
	}

	err := s.purchases.WithTx(ctx, func(txCtx context.Context) error {
		won, err := s.purchases.Transition(txCtx, p.ID, domain.TxStatusPending, domain.TxStatusCompleted, now)
		if err != nil {
			return err
		}
		if !won {
			// A concurrent finalize got there first; same end state.
			return nil
		}
		sold, err := s.pieces.SellToBuyer(txCtx, p.PieceID, p.BuyerID)
		if err != nil {
			return err
		}
		if !sold {
			return errPieceLost
		}
		return nil
	})
	if errors.Is(err, errPieceLost) {
		// The payment landed but the piece belongs to someone else now.
		// Fail the record instead of completing it without delivery; the
		// charge surfaces for manual refund.
		s.logger.Error("paid piece no longer deliverable",
			"purchase_id", p.ID, "piece_id", p.PieceID, "buyer_id", p.BuyerID)
		_, terr := s.purchases.Transition(ctx, p.ID, domain.TxStatusPending, domain.TxStatusFailed, now)
		return terr
	}
	return err
}

func (s *WebhookService) handleFailed(ctx context.Context, ev payments.Event, now time.Time) error {
	if p, err := s.purchases.FindByIntentID(ctx, ev.IntentID); err != nil {
		return err
	} else if p != nil {
		if p.Status != domain.TxStatusPending {
			return nil
		}
		return s.purchases.WithTx(ctx, func(txCtx context.Context) error {
			won, err := s.purchases.Transition(txCtx, p.ID, domain.TxStatusPending, domain.TxStatusFailed, now)
			if err != nil || !won {
				return err
			}
			return s.compensateFailedPurchase(txCtx, *p, now)
		})
	}

	if o, err := s.orders.FindByIntentID(ctx, ev.IntentID); err != nil {
		return err
	} else if o != nil {
		if o.Status != domain.TxStatusPending {
			return nil
		}
		return s.orders.WithTx(ctx, func(txCtx context.Context) error {
			won, err := s.orders.Transition(txCtx, o.ID, domain.TxStatusPending, domain.TxStatusFailed, now)
			if err != nil || !won {
				return err
			}
			return s.compensateOrder(txCtx, *o, now)
		})
	}

	if d, err := s.donations.FindByIntentID(ctx, ev.IntentID); err != nil {
		return err
	} else if d != nil {
		if d.Status != domain.TxStatusPending {
			return nil
		}
		_, err := s.donations.Transition(ctx, d.ID, domain.TxStatusPending, domain.TxStatusFailed, now)
		return err
	}

	s.logger.Info("failure webhook for unknown payment intent", "intent_id", ev.IntentID)
	return nil
}

func (s *WebhookService) handleRefunded(ctx context.Context, ev payments.Event, now time.Time) error {
	if p, err := s.purchases.FindByIntentID(ctx, ev.IntentID); err != nil {
		return err
	} else if p != nil {
		fullyRefunded := ev.RefundedCents >= p.AmountCents
		return s.purchases.WithTx(ctx, func(txCtx context.Context) error {
			applied, err := s.purchases.ApplyRefund(txCtx, p.ID, ev.RefundedCents, now)
			if err != nil {
				return err
			}
			if !applied {
				s.logger.Warn("refund for non-completed purchase ignored",
					"purchase_id", p.ID, "status", string(p.Status))
				return nil
			}
			if !fullyRefunded {
				return nil
			}
			return s.compensateRefundedPurchase(txCtx, *p, now)
		})
	}

	if o, err := s.orders.FindByIntentID(ctx, ev.IntentID); err != nil {
		return err
	} else if o != nil {
		fullyRefunded := ev.RefundedCents >= o.AmountCents
		return s.orders.WithTx(ctx, func(txCtx context.Context) error {
			applied, err := s.orders.ApplyRefund(txCtx, o.ID, ev.RefundedCents, now)
			if err != nil || !applied {
				return err
			}
			if !fullyRefunded {
				return nil
			}
			return s.compensateOrder(txCtx, *o, now)
		})
	}

	if d, err := s.donations.FindByIntentID(ctx, ev.IntentID); err != nil {
		return err
	} else if d != nil {
		_, err := s.donations.ApplyRefund(ctx, d.ID, ev.RefundedCents, now)
		return err
	}

	s.logger.Info("refund webhook for unknown payment intent", "intent_id", ev.IntentID)
	return nil
}
