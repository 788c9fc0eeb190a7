package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

type CatalogRepository struct {
	db
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db{pool: pool}}
}

func (r *CatalogRepository) CreateMovement(ctx context.Context, m domain.Movement) error {
	const stmt = `INSERT INTO movements (id, title, created_at) VALUES ($1, $2, $3)`

	if _, err := r.exec(ctx, stmt, m.ID, m.Title, m.CreatedAt); err != nil {
		return fmt.Errorf("create movement: %w", err)
	}
	return nil
}

func (r *CatalogRepository) GetMovement(ctx context.Context, movementID string) (domain.Movement, error) {
	const query = `SELECT id, title, created_at FROM movements WHERE id = $1`

	var m domain.Movement
	err := r.queryRow(ctx, query, movementID).Scan(&m.ID, &m.Title, &m.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Movement{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Movement{}, domain.ErrMovementNotFound
		}
		return domain.Movement{}, fmt.Errorf("get movement: %w", err)
	}
	return m, nil
}

func (r *CatalogRepository) ListMovements(ctx context.Context) ([]domain.Movement, error) {
	const query = `SELECT id, title, created_at FROM movements ORDER BY created_at`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var out []domain.Movement
	for rows.Next() {
		var m domain.Movement
		if err := rows.Scan(&m.ID, &m.Title, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MaxPieceNumber returns the highest seeded number for a movement, locking
// the movement row so two seed runs cannot interleave numbers.
func (r *CatalogRepository) MaxPieceNumber(ctx context.Context, movementID string) (int, error) {
	const lock = `SELECT id FROM movements WHERE id = $1 FOR UPDATE`
	var id string
	if err := r.queryRow(ctx, lock, movementID).Scan(&id); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return 0, domain.ErrMovementNotFound
		}
		return 0, fmt.Errorf("lock movement: %w", err)
	}

	const query = `SELECT COALESCE(MAX(number), 0) FROM pieces WHERE movement_id = $1`
	var max int
	if err := r.queryRow(ctx, query, movementID).Scan(&max); err != nil {
		return 0, fmt.Errorf("max piece number: %w", err)
	}
	return max, nil
}

func (r *CatalogRepository) CreatePiece(ctx context.Context, p domain.Piece) error {
	const stmt = `
INSERT INTO pieces (id, movement_id, number, price_cents, currency, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt,
		p.ID, p.MovementID, p.Number, p.PriceCents, p.Currency, p.Status, p.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create piece: %w", err)
	}
	return nil
}

func (r *CatalogRepository) ListPieces(ctx context.Context, movementID string) ([]domain.Piece, error) {
	query := fmt.Sprintf(`SELECT %s FROM pieces WHERE movement_id = $1 ORDER BY number`, pieceColumns)

	rows, err := r.query(ctx, query, movementID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list pieces: %w", err)
	}
	defer rows.Close()

	var out []domain.Piece
	for rows.Next() {
		p, err := scanPiece(rows)
		if err != nil {
			return nil, fmt.Errorf("scan piece: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, p domain.Product) error {
	const stmt = `
INSERT INTO products (id, title, price_cents, currency, stock, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.exec(ctx, stmt, p.ID, p.Title, p.PriceCents, p.Currency, p.Stock, p.CreatedAt); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}
