package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
	"github.com/nkosimano/ChartedArt-sub003/internal/payments"
)

func ptr[T any](v T) *T { return &v }

// fakePieceStore mirrors the conditional-update semantics of the Postgres
// piece repository over an in-memory map.
type fakePieceStore struct {
	pieces map[string]domain.Piece
}

func newFakePieceStore(pieces ...domain.Piece) *fakePieceStore {
	m := make(map[string]domain.Piece, len(pieces))
	for _, p := range pieces {
		m[p.ID] = p
	}
	return &fakePieceStore{pieces: m}
}

func (f *fakePieceStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := make(map[string]domain.Piece, len(f.pieces))
	for k, v := range f.pieces {
		snapshot[k] = v
	}
	if err := fn(ctx); err != nil {
		f.pieces = snapshot
		return err
	}
	return nil
}

func (f *fakePieceStore) GetPiece(_ context.Context, pieceID string) (domain.Piece, error) {
	p, ok := f.pieces[pieceID]
	if !ok {
		return domain.Piece{}, domain.ErrPieceNotFound
	}
	return p, nil
}

func (f *fakePieceStore) Claim(_ context.Context, pieceID, holderID, token string, expiresAt, now time.Time) (*domain.Piece, error) {
	p, ok := f.pieces[pieceID]
	if !ok {
		return nil, nil
	}
	claimable := p.Status == domain.PieceStatusAvailable ||
		(p.Status == domain.PieceStatusReserved && p.ReserveExpiresAt != nil && !p.ReserveExpiresAt.After(now)) ||
		(p.Status == domain.PieceStatusReserved && p.ReservedBy != nil && *p.ReservedBy == holderID)
	if !claimable {
		return nil, nil
	}
	p.Status = domain.PieceStatusReserved
	p.ReservedBy = ptr(holderID)
	p.ReserveToken = ptr(token)
	p.ReserveExpiresAt = ptr(expiresAt)
	f.pieces[pieceID] = p
	return &p, nil
}

func (f *fakePieceStore) Release(_ context.Context, pieceID, holderID string, now time.Time) (bool, error) {
	p, ok := f.pieces[pieceID]
	if !ok || !p.ReservedLiveBy(holderID, now) {
		return false, nil
	}
	p.Status = domain.PieceStatusAvailable
	p.ReservedBy, p.ReserveToken, p.ReserveExpiresAt = nil, nil, nil
	f.pieces[pieceID] = p
	return true, nil
}

func (f *fakePieceStore) MarkSold(_ context.Context, pieceID, holderID string, now time.Time) (bool, error) {
	p, ok := f.pieces[pieceID]
	if !ok || !p.ReservedLiveBy(holderID, now) {
		return false, nil
	}
	p.Status = domain.PieceStatusSold
	p.OwnerID = ptr(holderID)
	p.ReservedBy, p.ReserveToken, p.ReserveExpiresAt = nil, nil, nil
	f.pieces[pieceID] = p
	return true, nil
}

func (f *fakePieceStore) SellToBuyer(_ context.Context, pieceID, buyerID string) (bool, error) {
	p, ok := f.pieces[pieceID]
	if !ok {
		return false, nil
	}
	reservedByBuyer := p.Status == domain.PieceStatusReserved &&
		p.ReservedBy != nil && *p.ReservedBy == buyerID
	if !reservedByBuyer && p.Status != domain.PieceStatusAvailable {
		return false, nil
	}
	p.Status = domain.PieceStatusSold
	p.OwnerID = ptr(buyerID)
	p.ReservedBy, p.ReserveToken, p.ReserveExpiresAt = nil, nil, nil
	f.pieces[pieceID] = p
	return true, nil
}

func (f *fakePieceStore) ReturnToPool(_ context.Context, pieceID, holderID string) (bool, error) {
	p, ok := f.pieces[pieceID]
	if !ok || p.Status != domain.PieceStatusReserved || p.ReservedBy == nil || *p.ReservedBy != holderID {
		return false, nil
	}
	p.Status = domain.PieceStatusAvailable
	p.ReservedBy, p.ReserveToken, p.ReserveExpiresAt = nil, nil, nil
	f.pieces[pieceID] = p
	return true, nil
}

func (f *fakePieceStore) ReturnFromOwner(_ context.Context, pieceID, ownerID string) (bool, error) {
	p, ok := f.pieces[pieceID]
	if !ok || p.Status != domain.PieceStatusSold || p.OwnerID == nil || *p.OwnerID != ownerID {
		return false, nil
	}
	p.Status = domain.PieceStatusAvailable
	p.OwnerID = nil
	f.pieces[pieceID] = p
	return true, nil
}

func (f *fakePieceStore) SweepExpired(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, p := range f.pieces {
		if p.Status == domain.PieceStatusReserved && p.ReserveExpiresAt != nil && !p.ReserveExpiresAt.After(cutoff) {
			p.Status = domain.PieceStatusAvailable
			p.ReservedBy, p.ReserveToken, p.ReserveExpiresAt = nil, nil, nil
			f.pieces[id] = p
			n++
		}
	}
	return n, nil
}

// fakeGateway records created intents and serves lookups from a map.
type fakeGateway struct {
	intents   map[string]payments.Intent
	created   []payments.CreateIntentParams
	createErr error
	nextID    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: make(map[string]payments.Intent)}
}

func (g *fakeGateway) CreateIntent(_ context.Context, params payments.CreateIntentParams) (payments.Intent, error) {
	if g.createErr != nil {
		return payments.Intent{}, g.createErr
	}
	g.created = append(g.created, params)
	g.nextID++
	intent := payments.Intent{
		ID:           fmt.Sprintf("pi_%d", g.nextID),
		ClientSecret: fmt.Sprintf("pi_%d_secret", g.nextID),
		Status:       payments.IntentStatusOther,
		AmountCents:  params.AmountCents,
		Currency:     params.Currency,
		Metadata:     params.Metadata,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *fakeGateway) GetIntent(_ context.Context, id string) (payments.Intent, error) {
	intent, ok := g.intents[id]
	if !ok {
		return payments.Intent{}, domain.ErrGatewayUnavailable
	}
	return intent, nil
}

// succeed marks a stored intent as a landed charge for the given amount.
func (g *fakeGateway) succeed(id string, amountReceived int64) {
	intent := g.intents[id]
	intent.Status = payments.IntentStatusSucceeded
	intent.AmountReceived = amountReceived
	g.intents[id] = intent
}

type fakePurchaseStore struct {
	purchases map[string]domain.Purchase

	// transitionErr is returned by the next Transition call, then cleared.
	transitionErr error
}

func newFakePurchaseStore(purchases ...domain.Purchase) *fakePurchaseStore {
	m := make(map[string]domain.Purchase, len(purchases))
	for _, p := range purchases {
		m[p.ID] = p
	}
	return &fakePurchaseStore{purchases: m}
}

func (f *fakePurchaseStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := make(map[string]domain.Purchase, len(f.purchases))
	for k, v := range f.purchases {
		snapshot[k] = v
	}
	if err := fn(ctx); err != nil {
		f.purchases = snapshot
		return err
	}
	return nil
}

func (f *fakePurchaseStore) Create(_ context.Context, p domain.Purchase) error {
	for _, existing := range f.purchases {
		if existing.PieceID == p.PieceID && existing.Status == domain.TxStatusPending {
			return domain.ErrPieceUnavailable
		}
	}
	f.purchases[p.ID] = p
	return nil
}

func (f *fakePurchaseStore) GetByID(_ context.Context, id string) (domain.Purchase, error) {
	p, ok := f.purchases[id]
	if !ok {
		return domain.Purchase{}, domain.ErrRecordNotFound
	}
	return p, nil
}

func (f *fakePurchaseStore) FindByIntentID(_ context.Context, intentID string) (*domain.Purchase, error) {
	for _, p := range f.purchases {
		if p.PaymentIntentID == intentID {
			return ptr(p), nil
		}
	}
	return nil, nil
}

func (f *fakePurchaseStore) FindPendingByPieceAndBuyer(_ context.Context, pieceID, buyerID string) (*domain.Purchase, error) {
	for _, p := range f.purchases {
		if p.PieceID == pieceID && p.BuyerID == buyerID && p.Status == domain.TxStatusPending {
			return ptr(p), nil
		}
	}
	return nil, nil
}

func (f *fakePurchaseStore) CancelOrphanedPending(_ context.Context, pieceID, holderID string, at time.Time) error {
	for id, p := range f.purchases {
		if p.PieceID == pieceID && p.BuyerID != holderID && p.Status == domain.TxStatusPending {
			p.Status = domain.TxStatusCancelled
			p.FinalizedAt = ptr(at)
			f.purchases[id] = p
		}
	}
	return nil
}

func (f *fakePurchaseStore) Transition(_ context.Context, id string, from, to domain.TxStatus, at time.Time) (bool, error) {
	if err := f.transitionErr; err != nil {
		f.transitionErr = nil
		return false, err
	}
	p, ok := f.purchases[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.FinalizedAt = ptr(at)
	f.purchases[id] = p
	return true, nil
}

func (f *fakePurchaseStore) ApplyRefund(_ context.Context, id string, refundedCents int64, at time.Time) (bool, error) {
	p, ok := f.purchases[id]
	if !ok || (p.Status != domain.TxStatusCompleted && p.Status != domain.TxStatusRefunded) {
		return false, nil
	}
	p.RefundedCents = refundedCents
	if refundedCents >= p.AmountCents {
		p.Status = domain.TxStatusRefunded
	}
	p.FinalizedAt = ptr(at)
	f.purchases[id] = p
	return true, nil
}

func (f *fakePurchaseStore) MarkCompensated(_ context.Context, id string, at time.Time) (bool, error) {
	p, ok := f.purchases[id]
	if !ok || p.CompensatedAt != nil {
		return false, nil
	}
	p.CompensatedAt = ptr(at)
	f.purchases[id] = p
	return true, nil
}

type fakeOrderStore struct {
	products map[string]domain.Product
	orders   map[string]domain.Order
}

func newFakeOrderStore(products ...domain.Product) *fakeOrderStore {
	m := make(map[string]domain.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &fakeOrderStore{products: m, orders: make(map[string]domain.Order)}
}

func (f *fakeOrderStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	prodSnap := make(map[string]domain.Product, len(f.products))
	for k, v := range f.products {
		prodSnap[k] = v
	}
	orderSnap := make(map[string]domain.Order, len(f.orders))
	for k, v := range f.orders {
		orderSnap[k] = v
	}
	if err := fn(ctx); err != nil {
		f.products = prodSnap
		f.orders = orderSnap
		return err
	}
	return nil
}

func (f *fakeOrderStore) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeOrderStore) DecrementStock(_ context.Context, productID string, qty int) (bool, error) {
	p, ok := f.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	f.products[productID] = p
	return true, nil
}

func (f *fakeOrderStore) RestoreStock(_ context.Context, productID string, qty int) error {
	p := f.products[productID]
	p.Stock += qty
	f.products[productID] = p
	return nil
}

func (f *fakeOrderStore) Create(_ context.Context, o domain.Order) error {
	f.orders[o.ID] = o
	return nil
}

func (f *fakeOrderStore) FindByIntentID(_ context.Context, intentID string) (*domain.Order, error) {
	for _, o := range f.orders {
		if o.PaymentIntentID == intentID {
			return ptr(o), nil
		}
	}
	return nil, nil
}

func (f *fakeOrderStore) Transition(_ context.Context, id string, from, to domain.TxStatus, at time.Time) (bool, error) {
	o, ok := f.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.FinalizedAt = ptr(at)
	f.orders[id] = o
	return true, nil
}

func (f *fakeOrderStore) ApplyRefund(_ context.Context, id string, refundedCents int64, at time.Time) (bool, error) {
	o, ok := f.orders[id]
	if !ok || (o.Status != domain.TxStatusCompleted && o.Status != domain.TxStatusRefunded) {
		return false, nil
	}
	o.RefundedCents = refundedCents
	if refundedCents >= o.AmountCents {
		o.Status = domain.TxStatusRefunded
	}
	o.FinalizedAt = ptr(at)
	f.orders[id] = o
	return true, nil
}

func (f *fakeOrderStore) MarkCompensated(_ context.Context, id string, at time.Time) (bool, error) {
	o, ok := f.orders[id]
	if !ok || o.CompensatedAt != nil {
		return false, nil
	}
	o.CompensatedAt = ptr(at)
	f.orders[id] = o
	return true, nil
}

type fakeDonationStore struct {
	donations map[string]domain.Donation
}

func newFakeDonationStore() *fakeDonationStore {
	return &fakeDonationStore{donations: make(map[string]domain.Donation)}
}

func (f *fakeDonationStore) Create(_ context.Context, d domain.Donation) error {
	f.donations[d.ID] = d
	return nil
}

func (f *fakeDonationStore) FindByIntentID(_ context.Context, intentID string) (*domain.Donation, error) {
	for _, d := range f.donations {
		if d.PaymentIntentID == intentID {
			return ptr(d), nil
		}
	}
	return nil, nil
}

func (f *fakeDonationStore) Transition(_ context.Context, id string, from, to domain.TxStatus, at time.Time) (bool, error) {
	d, ok := f.donations[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	d.FinalizedAt = ptr(at)
	f.donations[id] = d
	return true, nil
}

func (f *fakeDonationStore) ApplyRefund(_ context.Context, id string, refundedCents int64, at time.Time) (bool, error) {
	d, ok := f.donations[id]
	if !ok || (d.Status != domain.TxStatusCompleted && d.Status != domain.TxStatusRefunded) {
		return false, nil
	}
	d.RefundedCents = refundedCents
	if refundedCents >= d.AmountCents {
		d.Status = domain.TxStatusRefunded
	}
	d.FinalizedAt = ptr(at)
	f.donations[id] = d
	return true, nil
}

type fakeEventStore struct {
	seen      map[string]domain.WebhookEvent
	processed map[string]time.Time
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		seen:      make(map[string]domain.WebhookEvent),
		processed: make(map[string]time.Time),
	}
}

func (f *fakeEventStore) Insert(_ context.Context, ev domain.WebhookEvent) error {
	if _, dup := f.seen[ev.ProviderEventID]; dup {
		return domain.ErrDuplicateEvent
	}
	f.seen[ev.ProviderEventID] = ev
	return nil
}

func (f *fakeEventStore) IsProcessed(_ context.Context, providerEventID string) (bool, error) {
	_, ok := f.processed[providerEventID]
	return ok, nil
}

func (f *fakeEventStore) MarkProcessed(_ context.Context, providerEventID string, at time.Time) error {
	f.processed[providerEventID] = at
	return nil
}
