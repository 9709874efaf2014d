package catalog

import (
	"context"
	"errors"

	"pawmart-be/internal/logger"

	"go.uber.org/zap"
)

type Service interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	FindProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	AdjustStock(ctx context.Context, productID string, delta, soldDelta int) (*Product, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

func (s *service) GetProduct(ctx context.Context, id string) (*Product, error) {
	if id == "" {
		return nil, ErrProductNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) FindProductsByIDs(ctx context.Context, ids []string) ([]Product, error) {
	return s.repo.FindByIDs(ctx, ids)
}

func (s *service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if p.Name == "" {
		return Product{}, errors.New("product name is required")
	}
	if p.Price < 0 {
		return Product{}, errors.New("product price must not be negative")
	}
	if p.Stock < 0 {
		return Product{}, errors.New("product stock must not be negative")
	}
	if p.Status == "" {
		p.Status = ProductStatusActive
	}
	return s.repo.Create(ctx, p)
}

func (s *service) AdjustStock(ctx context.Context, productID string, delta, soldDelta int) (*Product, error) {
	if productID == "" {
		return nil, ErrProductNotFound
	}

	p, err := s.repo.AdjustStock(ctx, productID, delta, soldDelta)
	if err != nil {
		return nil, err
	}

	logger.FromCtx(ctx).Info("stock adjusted",
		zap.String("product_id", productID),
		zap.Int("delta", delta),
		zap.Int("sold_delta", soldDelta),
		zap.Int("stock", p.Stock),
	)

	return p, nil
}
