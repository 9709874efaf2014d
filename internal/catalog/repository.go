package catalog

import (
	"context"
	"database/sql"
	"errors"

	"pawmart-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	FindByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p Product) (Product, error)

	// AdjustStock applies stock += delta and sold += soldDelta as a single
	// conditional update. The WHERE clause carries the stock >= 0 invariant so
	// concurrent checkouts cannot race it past zero.
	AdjustStock(ctx context.Context, productID string, delta, soldDelta int) (*Product, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, slug, description, price, stock, sold, imageurl, status, created_at, updated_at
		FROM products
		WHERE status = $1
		ORDER BY created_at DESC
	`, ProductStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price,
			&p.Stock, &p.Sold, &p.ImageURL, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

func (r *repository) GetByID(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, price, stock, sold, imageurl, status, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price,
		&p.Stock, &p.Sold, &p.ImageURL, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, slug, description, price, stock, sold, imageurl, status, created_at, updated_at
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price,
			&p.Stock, &p.Sold, &p.ImageURL, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

func (r *repository) Create(ctx context.Context, p Product) (Product, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, slug, description, price, stock, sold, imageurl, status)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		RETURNING id, created_at, updated_at
	`,
		p.Name, p.Slug, p.Description, p.Price, p.Stock, p.ImageURL, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) AdjustStock(ctx context.Context, productID string, delta, soldDelta int) (*Product, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "AdjustStock"),
		zap.String("product_id", productID),
		zap.Int("delta", delta),
		zap.Int("sold_delta", soldDelta),
	)

	var p Product
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $1,
		    sold = sold + $2,
		    updated_at = NOW()
		WHERE id = $3
		  AND stock + $1 >= 0
		RETURNING id, name, price, stock, sold
	`, delta, soldDelta, productID).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Sold)

	if errors.Is(err, sql.ErrNoRows) {
		// Zero rows means either the product does not exist or the
		// condition rejected a negative stock result.
		var exists bool
		if chkErr := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID,
		).Scan(&exists); chkErr != nil {
			return nil, chkErr
		}
		if !exists {
			log.Warn("product not found")
			return nil, ErrProductNotFound
		}
		log.Warn("stock adjustment rejected")
		return nil, ErrInsufficientStock
	}
	if err != nil {
		log.Error("failed to adjust stock", zap.Error(err))
		return nil, err
	}

	log.Debug("stock adjusted",
		zap.Int("stock", p.Stock),
		zap.Int("sold", p.Sold),
	)

	return &p, nil
}
