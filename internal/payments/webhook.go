package payments

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

// EventKind is the normalized set of processor notifications the
// reconciliation engine acts on. Everything else is EventUnknown, which the
// engine acknowledges and ignores.
type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventRefunded  EventKind = "refunded"
	EventUnknown   EventKind = "unknown"
)

// Event is a provider notification after signature verification and
// normalization. IntentID correlates it with a transactional record.
type Event struct {
	ProviderEventID string
	Type            string
	Kind            EventKind
	IntentID        string
	AmountCents     int64
	RefundedCents   int64
	Currency        string
	Payload         []byte
}

// Verifier checks webhook authenticity and normalizes the payload.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (Event, error)
}

type stripeVerifier struct {
	secret string
}

func NewStripeVerifier(webhookSecret string) Verifier {
	return stripeVerifier{secret: webhookSecret}
}

// Verify validates the Stripe-Signature header before touching the payload.
// A failed signature is domain.ErrInvalidSignature; nothing downstream runs.
func (v stripeVerifier) Verify(payload []byte, signatureHeader string) (Event, error) {
	ev, err := webhook.ConstructEvent(payload, signatureHeader, v.secret)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return normalize(ev, payload)
}

func normalize(ev stripe.Event, payload []byte) (Event, error) {
	out := Event{
		ProviderEventID: ev.ID,
		Type:            string(ev.Type),
		Kind:            EventUnknown,
		Payload:         payload,
	}

	switch ev.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("decode payment intent payload: %w", err)
		}
		out.IntentID = pi.ID
		out.AmountCents = pi.AmountReceived
		out.Currency = string(pi.Currency)
		if ev.Type == "payment_intent.succeeded" {
			out.Kind = EventSucceeded
		} else {
			out.Kind = EventFailed
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return Event{}, fmt.Errorf("decode charge payload: %w", err)
		}
		if ch.PaymentIntent != nil {
			out.IntentID = ch.PaymentIntent.ID
		}
		out.Kind = EventRefunded
		out.AmountCents = ch.Amount
		out.RefundedCents = ch.AmountRefunded
		out.Currency = string(ch.Currency)
	}

	return out, nil
}
