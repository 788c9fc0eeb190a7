package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

type WebhookEventRepository struct {
	db
}

func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{db: db{pool: pool}}
}

// Insert journals a provider event. A redelivered event id trips the unique
// constraint and comes back as domain.ErrDuplicateEvent.
func (r *WebhookEventRepository) Insert(ctx context.Context, ev domain.WebhookEvent) error {
	const stmt = `
INSERT INTO webhook_events (id, provider_event_id, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt, ev.ID, ev.ProviderEventID, ev.EventType, ev.Payload, ev.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEvent
		}
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// IsProcessed reports whether the journaled event carries a processed stamp.
// An unknown event id reads as unprocessed.
func (r *WebhookEventRepository) IsProcessed(ctx context.Context, providerEventID string) (bool, error) {
	const query = `SELECT processed_at IS NOT NULL FROM webhook_events WHERE provider_event_id = $1`

	var processed bool
	if err := r.queryRow(ctx, query, providerEventID).Scan(&processed); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check webhook event processed: %w", err)
	}
	return processed, nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, providerEventID string, at time.Time) error {
	const stmt = `UPDATE webhook_events SET processed_at = $2 WHERE provider_event_id = $1`

	if _, err := r.exec(ctx, stmt, providerEventID, at); err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}
