package payments

import "context"

// Intent is the engine's view of a processor payment intent. Statuses other
// than succeeded are not distinguished further; the engine only ever asks
// "did this charge land, and for how much".
type Intent struct {
	ID             string
	ClientSecret   string
	Status         IntentStatus
	AmountCents    int64
	AmountReceived int64
	Currency       string
	Metadata       map[string]string
}

type IntentStatus string

const (
	IntentStatusSucceeded IntentStatus = "succeeded"
	IntentStatusOther     IntentStatus = "other"
)

type CreateIntentParams struct {
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// Gateway is the narrow surface of the payment processor the engine uses.
// Implementations map transport failures to domain.ErrGatewayUnavailable so
// callers can retry without inspecting provider error shapes.
type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
}
