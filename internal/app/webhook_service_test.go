package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nkosimano/ChartedArt-sub003/internal/clock"
	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
	"github.com/nkosimano/ChartedArt-sub003/internal/payments"
)

func TestWebhookService_Process(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	const (
		pieceID  = "piece-1"
		buyerID  = "user-1"
		intentID = "pi_1"
	)

	reservedPiece := func() domain.Piece {
		return domain.Piece{
			ID:               pieceID,
			PriceCents:       20_000,
			Currency:         "usd",
			Status:           domain.PieceStatusReserved,
			ReservedBy:       ptr(buyerID),
			ReserveToken:     ptr("tok-1"),
			ReserveExpiresAt: ptr(now.Add(10 * time.Minute)),
		}
	}

	pendingPurchase := func() domain.Purchase {
		return domain.Purchase{
			ID:              "purch-1",
			PieceID:         pieceID,
			BuyerID:         buyerID,
			AmountCents:     20_000,
			Currency:        "usd",
			PaymentIntentID: intentID,
			Status:          domain.TxStatusPending,
		}
	}

	event := func(kind payments.EventKind) payments.Event {
		return payments.Event{
			ProviderEventID: "evt-1",
			Type:            "payment_intent.test",
			Kind:            kind,
			IntentID:        intentID,
			AmountCents:     20_000,
			Currency:        "usd",
		}
	}

	type stores struct {
		events    *fakeEventStore
		purchases *fakePurchaseStore
		orders    *fakeOrderStore
		donations *fakeDonationStore
		pieces    *fakePieceStore
	}

	makeSvc := func(s stores) *WebhookService {
		if s.events == nil {
			s.events = newFakeEventStore()
		}
		if s.purchases == nil {
			s.purchases = newFakePurchaseStore()
		}
		if s.orders == nil {
			s.orders = newFakeOrderStore()
		}
		if s.donations == nil {
			s.donations = newFakeDonationStore()
		}
		if s.pieces == nil {
			s.pieces = newFakePieceStore()
		}
		return NewWebhookService(s.events, s.purchases, s.orders, s.donations, s.pieces, clock.NewFixed(now), quiet)
	}

	t.Run("success completes the purchase and sells the piece", func(t *testing.T) {
		pieces := newFakePieceStore(reservedPiece())
		purchases := newFakePurchaseStore(pendingPurchase())
		events := newFakeEventStore()
		svc := makeSvc(stores{events: events, purchases: purchases, pieces: pieces})

		if err := svc.Process(context.Background(), event(payments.EventSucceeded)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		rec, _ := purchases.GetByID(context.Background(), "purch-1")
		if rec.Status != domain.TxStatusCompleted {
			t.Fatalf("expected completed, got %s", rec.Status)
		}
		piece, _ := pieces.GetPiece(context.Background(), pieceID)
		if piece.Status != domain.PieceStatusSold || piece.OwnerID == nil || *piece.OwnerID != buyerID {
			t.Fatalf("expected piece sold to buyer, got %s", piece.Status)
		}
		if _, ok := events.processed["evt-1"]; !ok {
			t.Fatalf("expected event marked processed")
		}
	})

	t.Run("success wins even after the claim expired", func(t *testing.T) {
		piece := reservedPiece()
		piece.ReserveExpiresAt = ptr(now.Add(-time.Hour))
		pieces := newFakePieceStore(piece)
		purchases := newFakePurchaseStore(pendingPurchase())
		svc := makeSvc(stores{purchases: purchases, pieces: pieces})

		if err := svc.Process(context.Background(), event(payments.EventSucceeded)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got, _ := pieces.GetPiece(context.Background(), pieceID)
		if got.Status != domain.PieceStatusSold {
			t.Fatalf("expected sold despite lapsed claim, got %s", got.Status)
		}
	})

	t.Run("replayed event id is an acknowledged no-op", func(t *testing.T) {
		pieces := newFakePieceStore(reservedPiece())
		purchases := newFakePurchaseStore(pendingPurchase())
		svc := makeSvc(stores{purchases: purchases, pieces: pieces})

		if err := svc.Process(context.Background(), event(payments.EventSucceeded)); err != nil {
			t.Fatalf("first delivery: %v", err)
		}
		// Redeliver a failure under the same event id; it must not run.
		replay := event(payments.EventFailed)
		if err := svc.Process(context.Background(), replay); err != nil {
			t.Fatalf("replay: %v", err)
		}
		rec, _ := purchases.GetByID(context.Background(), "purch-1")
		if rec.Status != domain.TxStatusCompleted {
			t.Fatalf("expected replay ignored, got %s", rec.Status)
		}
	})

	t.Run("redelivery after a failed dispatch still completes the record", func(t *testing.T) {
		pieces := newFakePieceStore(reservedPiece())
		purchases := newFakePurchaseStore(pendingPurchase())
		events := newFakeEventStore()
		svc := makeSvc(stores{events: events, purchases: purchases, pieces: pieces})

		// The first delivery journals the event, then dies on a transient
		// store error before the transition lands.
		purchases.transitionErr = errors.New("connection reset")
		if err := svc.Process(context.Background(), event(payments.EventSucceeded)); err == nil {
			t.Fatalf("expected first delivery to error")
		}
		rec, _ := purchases.GetByID(context.Background(), "purch-1")
		if rec.Status != domain.TxStatusPending {
			t.Fatalf("expected pending after failed dispatch, got %s", rec.Status)
		}

		// The processor redelivers under the same event id; the duplicate
		// journal row must not swallow the still-unprocessed event.
		if err := svc.Process(context.Background(), event(payments.EventSucceeded)); err != nil {
			t.Fatalf("redelivery: %v", err)
		}
		rec, _ = purchases.GetByID(context.Background(), "purch-1")
		if rec.Status != domain.TxStatusCompleted {
			t.Fatalf("expected completed after redelivery, got %s", rec.Status)
		}
		piece, _ := pieces.GetPiece(context.Background(), pieceID)
		if piece.Status != domain.PieceStatusSold {
			t.Fatalf("expected piece sold after redelivery, got %s", piece.Status)
		}
		if _, ok := events.processed["evt-1"]; !ok {
			t.Fatalf("expected event marked processed after redelivery")
		}
	})

	t.Run("success for a cancelled record is acked and logged for reconciliation", func(t *testing.T) {
		cancelled := pendingPurchase()
		cancelled.Status = domain.TxStatusCancelled

		pieces := newFakePieceStore(reservedPiece())
		purchases := newFakePurchaseStore(cancelled)

		var logBuf bytes.Buffer
		logging := slog.New(slog.NewTextHandler(&logBuf, nil))
		svc := NewWebhookService(newFakeEventStore(), purchases, newFakeOrderStore(),
			newFakeDonationStore(), pieces, clock.NewFixed(now), logging)

		if err := svc.Process(context.Background(), event(payments.EventSucceeded)); err != nil {
			t.Fatalf("expected ack, got %v", err)
		}
		rec, _ := purchases.GetByID(context.Background(), "purch-1")
		if rec.Status != domain.TxStatusCancelled {
			t.Fatalf("expected cancelled untouched, got %s", rec.Status)
		}
		if !strings.Contains(logBuf.String(), "cancelled purchase") {
			t.Fatalf("expected warning about the cancelled purchase, got %q", logBuf.String())
		}
	})

	t.Run("success for an unknown intent is acknowledged", func(t *testing.T) {
		svc := makeSvc(stores{})

		if err := svc.Process(context.Background(), event(payments.EventSucceeded)); err != nil {
			t.Fatalf("expected ack for unknown intent, got %v", err)
		}
	})

	t.Run("success when the piece was lost fails the record", func(t *testing.T) {
		lost := reservedPiece()
		lost.ReservedBy = ptr("user-2")
		lost.ReserveToken = ptr("tok-2")
		pieces := newFakePieceStore(lost)
		purchases := newFakePurchaseStore(pendingPurchase())
		svc := makeSvc(stores{purchases: purchases, pieces: pieces})

		if err := svc.Process(context.Background(), event(payments.EventSucceeded)); err != nil {
			t.Fatalf("expected ack, got %v", err)
		}
		rec, _ := purchases.GetByID(context.Background(), "purch-1")
		if rec.Status != domain.TxStatusFailed {
			t.Fatalf("expected record failed when undeliverable, got %s", rec.Status)
		}
		piece, _ := pieces.GetPiece(context.Background(), pieceID)
		if piece.ReservedBy == nil || *piece.ReservedBy != "user-2" {
			t.Fatalf("expected the other holder's claim untouched")
		}
	})

	t.Run("failure returns the reserved piece to the pool", func(t *testing.T) {
		pieces := newFakePieceStore(reservedPiece())
		purchases := newFakePurchaseStore(pendingPurchase())
		svc := makeSvc(stores{purchases: purchases, pieces: pieces})

		if err := svc.Process(context.Background(), event(payments.EventFailed)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		rec, _ := purchases.GetByID(context.Background(), "purch-1")
		if rec.Status != domain.TxStatusFailed {
			t.Fatalf("expected failed, got %s", rec.Status)
		}
		if rec.CompensatedAt == nil {
			t.Fatalf("expected compensation recorded")
		}
		piece, _ := pieces.GetPiece(context.Background(), pieceID)
		if piece.Status != domain.PieceStatusAvailable {
			t.Fatalf("expected piece back in pool, got %s", piece.Status)
		}
	})

	t.Run("failure leaves another holder's claim alone", func(t *testing.T) {
		taken := reservedPiece()
		taken.ReservedBy = ptr("user-2")
		pieces := newFakePieceStore(taken)
		purchases := newFakePurchaseStore(pendingPurchase())
		svc := makeSvc(stores{purchases: purchases, pieces: pieces})

		if err := svc.Process(context.Background(), event(payments.EventFailed)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		piece, _ := pieces.GetPiece(context.Background(), pieceID)
		if piece.ReservedBy == nil || *piece.ReservedBy != "user-2" {
			t.Fatalf("expected user-2 claim untouched")
		}
	})

	t.Run("full refund returns the piece and marks the record refunded", func(t *testing.T) {
		sold := reservedPiece()
		sold.Status = domain.PieceStatusSold
		sold.OwnerID = ptr(buyerID)
		sold.ReservedBy, sold.ReserveToken, sold.ReserveExpiresAt = nil, nil, nil

		done := pendingPurchase()
		done.Status = domain.TxStatusCompleted

		pieces := newFakePieceStore(sold)
		purchases := newFakePurchaseStore(done)
		svc := makeSvc(stores{purchases: purchases, pieces: pieces})

		ev := event(payments.EventRefunded)
		ev.RefundedCents = 20_000
		if err := svc.Process(context.Background(), ev); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		rec, _ := purchases.GetByID(context.Background(), "purch-1")
		if rec.Status != domain.TxStatusRefunded {
			t.Fatalf("expected refunded, got %s", rec.Status)
		}
		piece, _ := pieces.GetPiece(context.Background(), pieceID)
		if piece.Status != domain.PieceStatusAvailable || piece.OwnerID != nil {
			t.Fatalf("expected piece back in pool, got %s", piece.Status)
		}
	})

	t.Run("partial refund keeps the piece with its owner", func(t *testing.T) {
		sold := reservedPiece()
		sold.Status = domain.PieceStatusSold
		sold.OwnerID = ptr(buyerID)
		sold.ReservedBy, sold.ReserveToken, sold.ReserveExpiresAt = nil, nil, nil

		done := pendingPurchase()
		done.Status = domain.TxStatusCompleted

		pieces := newFakePieceStore(sold)
		purchases := newFakePurchaseStore(done)
		svc := makeSvc(stores{purchases: purchases, pieces: pieces})

		ev := event(payments.EventRefunded)
		ev.RefundedCents = 5_000
		if err := svc.Process(context.Background(), ev); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		rec, _ := purchases.GetByID(context.Background(), "purch-1")
		if rec.Status != domain.TxStatusCompleted || rec.RefundedCents != 5_000 {
			t.Fatalf("expected completed with partial refund, got %s %d", rec.Status, rec.RefundedCents)
		}
		piece, _ := pieces.GetPiece(context.Background(), pieceID)
		if piece.Status != domain.PieceStatusSold {
			t.Fatalf("expected piece still sold, got %s", piece.Status)
		}
	})

	t.Run("refund for a pending record is ignored", func(t *testing.T) {
		pieces := newFakePieceStore(reservedPiece())
		purchases := newFakePurchaseStore(pendingPurchase())
		svc := makeSvc(stores{purchases: purchases, pieces: pieces})

		ev := event(payments.EventRefunded)
		ev.RefundedCents = 20_000
		if err := svc.Process(context.Background(), ev); err != nil {
			t.Fatalf("expected ack, got %v", err)
		}
		rec, _ := purchases.GetByID(context.Background(), "purch-1")
		if rec.Status != domain.TxStatusPending {
			t.Fatalf("expected pending untouched, got %s", rec.Status)
		}
	})

	t.Run("order success completes the order", func(t *testing.T) {
		orders := newFakeOrderStore(domain.Product{ID: "prod-1", PriceCents: 3_000, Currency: "usd", Stock: 5})
		orders.orders["order-1"] = domain.Order{
			ID: "order-1", BuyerID: buyerID, AmountCents: 6_000, Currency: "usd",
			PaymentIntentID: intentID, Status: domain.TxStatusPending,
			Items: []domain.OrderItem{{ProductID: "prod-1", Quantity: 2, UnitCents: 3_000}},
		}
		svc := makeSvc(stores{orders: orders})

		if err := svc.Process(context.Background(), event(payments.EventSucceeded)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if orders.orders["order-1"].Status != domain.TxStatusCompleted {
			t.Fatalf("expected completed order")
		}
	})

	t.Run("order failure restores stock", func(t *testing.T) {
		orders := newFakeOrderStore(domain.Product{ID: "prod-1", PriceCents: 3_000, Currency: "usd", Stock: 3})
		orders.orders["order-1"] = domain.Order{
			ID: "order-1", BuyerID: buyerID, AmountCents: 6_000, Currency: "usd",
			PaymentIntentID: intentID, Status: domain.TxStatusPending,
			Items: []domain.OrderItem{{ProductID: "prod-1", Quantity: 2, UnitCents: 3_000}},
		}
		svc := makeSvc(stores{orders: orders})

		if err := svc.Process(context.Background(), event(payments.EventFailed)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if orders.orders["order-1"].Status != domain.TxStatusFailed {
			t.Fatalf("expected failed order")
		}
		prod, _ := orders.GetProduct(context.Background(), "prod-1")
		if prod.Stock != 5 {
			t.Fatalf("expected stock restored to 5, got %d", prod.Stock)
		}
	})

	t.Run("donation success completes the donation", func(t *testing.T) {
		donations := newFakeDonationStore()
		donations.donations["don-1"] = domain.Donation{
			ID: "don-1", DonorID: buyerID, AmountCents: 4_000, Currency: "usd",
			PaymentIntentID: intentID, Status: domain.TxStatusPending,
		}
		svc := makeSvc(stores{donations: donations})

		if err := svc.Process(context.Background(), event(payments.EventSucceeded)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if donations.donations["don-1"].Status != domain.TxStatusCompleted {
			t.Fatalf("expected completed donation")
		}
	})

	t.Run("unrecognized event kinds are journaled and ignored", func(t *testing.T) {
		events := newFakeEventStore()
		svc := makeSvc(stores{events: events})

		ev := event(payments.EventUnknown)
		if err := svc.Process(context.Background(), ev); err != nil {
			t.Fatalf("expected ack, got %v", err)
		}
		if _, ok := events.seen["evt-1"]; !ok {
			t.Fatalf("expected event journaled")
		}
	})
}
