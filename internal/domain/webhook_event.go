package domain

import "time"

// WebhookEvent journals one provider notification. The provider event id
// carries a uniqueness constraint so redelivered events dedup durably.
type WebhookEvent struct {
	ID              string
	ProviderEventID string
	EventType       string
	Payload         []byte
	ProcessedAt     *time.Time
	CreatedAt       time.Time
}
