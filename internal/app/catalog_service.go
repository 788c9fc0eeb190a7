package app

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/nkosimano/ChartedArt-sub003/internal/clock"
	"github.com/nkosimano/ChartedArt-sub003/internal/domain"
)

type CatalogRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateMovement(ctx context.Context, m domain.Movement) error
	GetMovement(ctx context.Context, movementID string) (domain.Movement, error)
	ListMovements(ctx context.Context) ([]domain.Movement, error)
	MaxPieceNumber(ctx context.Context, movementID string) (int, error)
	CreatePiece(ctx context.Context, p domain.Piece) error
	ListPieces(ctx context.Context, movementID string) ([]domain.Piece, error)
	CreateProduct(ctx context.Context, p domain.Product) error
}

// CatalogService seeds movements, their numbered piece runs, and the
// stock-counted products sold through checkout. Pieces enter the world here
// and are only ever transitioned afterwards.
type CatalogService struct {
	repo  CatalogRepository
	clock clock.Clock
}

func NewCatalogService(repo CatalogRepository, clk clock.Clock) *CatalogService {
	return &CatalogService{
		repo:  repo,
		clock: clk,
	}
}

func (s *CatalogService) CreateMovement(ctx context.Context, title string) (domain.Movement, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Movement{}, domain.ErrTitleRequired
	}

	m := domain.Movement{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateMovement(ctx, m); err != nil {
		return domain.Movement{}, err
	}
	return m, nil
}

func (s *CatalogService) ListMovements(ctx context.Context) ([]domain.Movement, error) {
	return s.repo.ListMovements(ctx)
}

type SeedPiecesInput struct {
	MovementID string
	Count      int
	PriceCents int64
	Currency   string
}

// SeedPieces appends a numbered run to a movement. Numbering continues from
// the highest already seeded; the movement row is locked for the duration so
// concurrent seed runs cannot interleave.
func (s *CatalogService) SeedPieces(ctx context.Context, in SeedPiecesInput) ([]domain.Piece, error) {
	if in.Count <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if in.PriceCents <= 0 || in.Currency == "" {
		return nil, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	var out []domain.Piece

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		max, err := s.repo.MaxPieceNumber(txCtx, in.MovementID)
		if err != nil {
			return err
		}

		out = make([]domain.Piece, 0, in.Count)
		for i := 1; i <= in.Count; i++ {
			piece := domain.Piece{
				ID:         uuid.NewString(),
				MovementID: in.MovementID,
				Number:     max + i,
				PriceCents: in.PriceCents,
				Currency:   in.Currency,
				Status:     domain.PieceStatusAvailable,
				CreatedAt:  now,
			}
			if err := s.repo.CreatePiece(txCtx, piece); err != nil {
				return err
			}
			out = append(out, piece)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CatalogService) ListPieces(ctx context.Context, movementID string) ([]domain.Piece, error) {
	if movementID == "" {
		return nil, domain.ErrInvalidID
	}
	if _, err := s.repo.GetMovement(ctx, movementID); err != nil {
		return nil, err
	}
	return s.repo.ListPieces(ctx, movementID)
}

type CreateProductInput struct {
	Title      string
	PriceCents int64
	Currency   string
	Stock      int
}

func (s *CatalogService) CreateProduct(ctx context.Context, in CreateProductInput) (domain.Product, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Product{}, domain.ErrTitleRequired
	}
	if in.PriceCents <= 0 || in.Currency == "" {
		return domain.Product{}, domain.ErrInvalidAmount
	}
	if in.Stock < 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	p := domain.Product{
		ID:         uuid.NewString(),
		Title:      in.Title,
		PriceCents: in.PriceCents,
		Currency:   in.Currency,
		Stock:      in.Stock,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}
