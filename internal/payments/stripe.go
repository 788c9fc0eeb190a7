package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

const (
	maxGatewayRetries     = 3
	gatewayInitialBackoff = 200 * time.Millisecond
)

// StripeGateway talks to Stripe's payment-intent API. Transient transport
// failures are retried with exponential backoff; definite API rejections are
// surfaced immediately.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(p.Currency),
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	return g.withRetry(ctx, func() (Intent, error) {
		pi, err := g.api.PaymentIntents.New(params)
		if err != nil {
			return Intent{}, mapStripeError(err)
		}
		return fromStripeIntent(pi), nil
	})
}

func (g *StripeGateway) GetIntent(ctx context.Context, id string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	return g.withRetry(ctx, func() (Intent, error) {
		pi, err := g.api.PaymentIntents.Get(id, params)
		if err != nil {
			return Intent{}, mapStripeError(err)
		}
		return fromStripeIntent(pi), nil
	})
}

func (g *StripeGateway) withRetry(ctx context.Context, op func() (Intent, error)) (Intent, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = gatewayInitialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxGatewayRetries), ctx)

	return backoff.RetryWithData(func() (Intent, error) {
		in, err := op()
		if err != nil && !errors.Is(err, domain.ErrGatewayUnavailable) {
			return Intent{}, backoff.Permanent(err)
		}
		return in, err
	}, policy)
}

func fromStripeIntent(pi *stripe.PaymentIntent) Intent {
	status := IntentStatusOther
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		status = IntentStatusSucceeded
	}
	return Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         status,
		AmountCents:    pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Metadata:       pi.Metadata,
	}
}

// mapStripeError folds provider error shapes into the engine's closed set:
// server-side and transport failures become retryable upstream errors, API
// rejections stay definite.
func mapStripeError(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		if sErr.HTTPStatusCode >= http.StatusInternalServerError ||
			sErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", domain.ErrGatewayUnavailable, sErr.Msg)
		}
		return fmt.Errorf("stripe: %s: %w", sErr.Code, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
}
