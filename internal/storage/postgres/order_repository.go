package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

type OrderRepository struct {
	db
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db{pool: pool}}
}

const orderColumns = `id, buyer_id, amount_cents, currency, payment_intent_id,
status, refunded_cents, compensated_at, created_at, finalized_at`

func (r *OrderRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	const query = `SELECT id, title, price_cents, currency, stock, created_at FROM products WHERE id = $1`

	var p domain.Product
	err := r.queryRow(ctx, query, productID).Scan(&p.ID, &p.Title, &p.PriceCents, &p.Currency, &p.Stock, &p.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Product{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// DecrementStock takes stock conditionally; zero rows means not enough left.
func (r *OrderRepository) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	const stmt = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

	tag, err := r.exec(ctx, stmt, productID, qty)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) RestoreStock(ctx context.Context, productID string, qty int) error {
	const stmt = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	if _, err := r.exec(ctx, stmt, productID, qty); err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}

func (r *OrderRepository) Create(ctx context.Context, o domain.Order) error {
	const stmt = `
INSERT INTO orders (id, buyer_id, amount_cents, currency, payment_intent_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt,
		o.ID, o.BuyerID, o.AmountCents, o.Currency, o.PaymentIntentID, o.Status, o.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create order: %w", err)
	}

	const itemStmt = `
INSERT INTO order_items (order_id, product_id, quantity, unit_cents)
VALUES ($1, $2, $3, $4)`

	for _, it := range o.Items {
		if _, err := r.exec(ctx, itemStmt, o.ID, it.ProductID, it.Quantity, it.UnitCents); err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) FindByIntentID(ctx context.Context, intentID string) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE payment_intent_id = $1`, orderColumns)

	o, err := scanOrder(r.queryRow(ctx, query, intentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by intent: %w", err)
	}

	items, err := r.getItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (r *OrderRepository) Transition(ctx context.Context, id string, from, to domain.TxStatus, at time.Time) (bool, error) {
	const stmt = `
UPDATE orders SET status = $3, finalized_at = $4 WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, id, from, to, at)
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) ApplyRefund(ctx context.Context, id string, refundedCents int64, at time.Time) (bool, error) {
	const stmt = `
UPDATE orders
SET refunded_cents = $2,
    status = CASE WHEN $2 >= amount_cents THEN 'refunded' ELSE status END,
    finalized_at = CASE WHEN $2 >= amount_cents THEN $3 ELSE finalized_at END
WHERE id = $1 AND status IN ('completed', 'refunded')`

	tag, err := r.exec(ctx, stmt, id, refundedCents, at)
	if err != nil {
		return false, fmt.Errorf("apply order refund: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) MarkCompensated(ctx context.Context, id string, at time.Time) (bool, error) {
	const stmt = `
UPDATE orders SET compensated_at = $2 WHERE id = $1 AND compensated_at IS NULL`

	tag, err := r.exec(ctx, stmt, id, at)
	if err != nil {
		return false, fmt.Errorf("mark order compensated: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) getItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	const query = `
SELECT product_id, quantity, unit_cents FROM order_items WHERE order_id = $1`

	rows, err := r.query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitCents); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(
		&o.ID,
		&o.BuyerID,
		&o.AmountCents,
		&o.Currency,
		&o.PaymentIntentID,
		&status,
		&o.RefundedCents,
		&o.CompensatedAt,
		&o.CreatedAt,
		&o.FinalizedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.TxStatus(status)
	return o, nil
}
