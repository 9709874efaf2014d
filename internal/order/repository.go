package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pawmart-be/internal/logger"
	"pawmart-be/internal/utils"

	"go.uber.org/zap"
)

type Repository interface {
	// CreateOrderTx persists the order and its line items as one transaction;
	// a failure on any item leaves nothing behind.
	CreateOrderTx(ctx context.Context, o *Order) error

	GetOrderDetail(ctx context.Context, orderID uint) (*Order, error)
	GetByCode(ctx context.Context, orderCode int64) (*Order, error)

	// MarkPaidByCode flips paid false->true for the given order code. The
	// second return is true when the order was already paid, which callers
	// treat as a replay no-op.
	MarkPaidByCode(ctx context.Context, orderCode int64) (*Order, bool, error)

	// CancelOrderTx sets the order CANCELLED and returns every line's quantity
	// to the catalog in the same transaction when stock was actually taken.
	// The paid flag is re-read under a row lock inside the transaction, so a
	// settlement landing after the caller's snapshot still gets its stock
	// back. Reports whether stock was restored.
	CancelOrderTx(ctx context.Context, o *Order) (restocked bool, err error)

	// SweepExpired hard-deletes unpaid banking orders whose expiry has
	// passed. Rows are deleted independently so one failure does not block
	// the rest.
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	UpdateOrderStatus(ctx context.Context, orderID uint, status OrderStatus) error
	FetchOrders(ctx context.Context, filter *OrderFilterInput, sort *OrderSortInput, limit, offset int32) ([]*Order, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrderTx(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrderTx"),
		zap.Int64("order_code", o.OrderCode),
		zap.Int("item_count", len(o.Items)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_code, user_id, status, paid, total, payment_method,
			customer_name, phone, email, address, province, district, ward,
			expire_banking_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id, created_at
	`,
		o.OrderCode, o.UserID, o.Status, o.Paid, o.Total, o.PaymentMethod,
		o.CustomerName, o.Phone, o.Email, o.Address, o.Province, o.District, o.Ward,
		o.ExpireBankingAt,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID

		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, item.OrderID, item.ProductID, item.Quantity, item.Price).Scan(&item.ID)
		if err != nil {
			log.Error("failed to insert order item",
				zap.Int("item_index", i),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit order transaction", zap.Error(err))
		return err
	}

	committed = true
	log.Info("order created", zap.Uint("order_id", o.ID))

	return nil
}

func (r *repository) GetOrderDetail(ctx context.Context, orderID uint) (*Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_code, user_id, status, paid, total, payment_method,
		       customer_name, phone, email, address, province, district, ward,
		       expire_banking_at, created_at, updated_at
		FROM orders WHERE id = $1
	`, orderID).Scan(
		&o.ID, &o.OrderCode, &o.UserID, &o.Status, &o.Paid, &o.Total, &o.PaymentMethod,
		&o.CustomerName, &o.Phone, &o.Email, &o.Address, &o.Province, &o.District, &o.Ward,
		&o.ExpireBankingAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *repository) GetByCode(ctx context.Context, orderCode int64) (*Order, error) {
	var id uint
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE order_code = $1`, orderCode,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetOrderDetail(ctx, id)
}

func (r *repository) MarkPaidByCode(ctx context.Context, orderCode int64) (*Order, bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "MarkPaidByCode"),
		zap.Int64("order_code", orderCode),
	)

	var id uint
	err := r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET paid = TRUE, updated_at = NOW()
		WHERE order_code = $1
		  AND paid = FALSE
		RETURNING id
	`, orderCode).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		// Either the order does not exist or it was already paid. The second
		// case is a gateway retry and must stay a no-op.
		var paid bool
		chkErr := r.db.QueryRowContext(ctx,
			`SELECT paid FROM orders WHERE order_code = $1`, orderCode,
		).Scan(&paid)
		if errors.Is(chkErr, sql.ErrNoRows) {
			return nil, false, ErrOrderNotFound
		}
		if chkErr != nil {
			return nil, false, chkErr
		}
		if paid {
			log.Info("order already paid, webhook replay")
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("order %d not marked paid", orderCode)
	}
	if err != nil {
		log.Error("failed to mark order paid", zap.Error(err))
		return nil, false, err
	}

	o, err := r.GetOrderDetail(ctx, id)
	if err != nil {
		return nil, false, err
	}

	log.Info("order marked paid", zap.Uint("order_id", id))
	return o, false, nil
}

func (r *repository) CancelOrderTx(ctx context.Context, o *Order) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CancelOrderTx"),
		zap.Uint("order_id", o.ID),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	// The restock decision must come from the row's current state, not the
	// caller's snapshot: a webhook settlement may have flipped paid since the
	// order was read. FOR UPDATE holds the row until this transaction decides.
	var paid bool
	var method PaymentMethod
	err = tx.QueryRowContext(ctx, `
		SELECT paid, payment_method FROM orders WHERE id = $1 FOR UPDATE
	`, o.ID).Scan(&paid, &method)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrOrderNotFound
	}
	if err != nil {
		log.Error("failed to lock order row", zap.Error(err))
		return false, err
	}

	// Stock is only returned if it was taken: at placement for COD, at
	// settlement for paid banking orders.
	restock := paid || method == PaymentCOD

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		  AND status IN ('PENDING', 'PROCESSING')
	`, StatusCancelled, o.ID)
	if err != nil {
		log.Error("failed to update order status", zap.Error(err))
		return false, err
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return false, ErrCannotCancel
	}

	if restock {
		for _, item := range o.Items {
			_, err = tx.ExecContext(ctx, `
				UPDATE products
				SET stock = stock + $1, sold = sold - $1, updated_at = NOW()
				WHERE id = $2
			`, item.Quantity, item.ProductID)
			if err != nil {
				log.Error("failed to restore stock",
					zap.String("product_id", item.ProductID),
					zap.Error(err),
				)
				return false, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit cancel transaction", zap.Error(err))
		return false, err
	}

	committed = true
	log.Info("order cancelled", zap.Bool("restocked", restock))

	return restock, nil
}

func (r *repository) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "SweepExpired"),
	)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM orders
		WHERE status = $1
		  AND paid = FALSE
		  AND payment_method = $2
		  AND expire_banking_at <= $3
	`, StatusPending, PaymentBanking, now)
	if err != nil {
		log.Error("failed to query expired orders", zap.Error(err))
		return 0, err
	}
	defer rows.Close()

	var ids []uint
	for rows.Next() {
		var id uint
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// Items go with the order via ON DELETE CASCADE. One failing row must not
	// stop the rest. The delete re-asserts the whole predicate: a webhook can
	// settle an order between the snapshot and its delete, and a paid order
	// must survive the sweep.
	deleted := 0
	for _, id := range ids {
		res, err := r.db.ExecContext(ctx, `
			DELETE FROM orders
			WHERE id = $1
			  AND status = $2
			  AND paid = FALSE
			  AND payment_method = $3
			  AND expire_banking_at <= $4
		`, id, StatusPending, PaymentBanking, now)
		if err != nil {
			log.Error("failed to delete expired order",
				zap.Uint("order_id", id),
				zap.Error(err),
			)
			continue
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			deleted++
		}
	}

	if deleted > 0 {
		log.Info("expired orders removed", zap.Int("count", deleted))
	}

	return deleted, nil
}

func (r *repository) UpdateOrderStatus(ctx context.Context, orderID uint, status OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, orderID,
	)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) FetchOrders(
	ctx context.Context,
	filter *OrderFilterInput,
	sort *OrderSortInput,
	limit, offset int32,
) ([]*Order, error) {

	userID, _ := utils.GetUserIDFromContext(ctx)
	isAdmin := utils.IsAdminFromContext(ctx)

	log := logger.FromCtx(ctx).With(
		zap.String("method", "FetchOrders"),
		zap.Bool("is_admin", isAdmin),
		zap.Int32("limit", limit),
		zap.Int32("offset", offset),
	)

	query := `
		SELECT
			o.id,
			o.order_code,
			o.user_id,
			o.status,
			o.paid,
			o.total,
			o.payment_method,
			o.created_at,
			o.updated_at
		FROM orders o
		WHERE 1=1
	`

	args := []any{}
	argIndex := 1

	if !isAdmin {
		query += fmt.Sprintf(" AND o.user_id = $%d", argIndex)
		args = append(args, userID)
		argIndex++
	}

	if filter != nil {

		if filter.Search != nil && *filter.Search != "" {
			query += fmt.Sprintf(
				" AND (o.order_code::text ILIKE $%d OR o.customer_name ILIKE $%d)",
				argIndex, argIndex,
			)
			args = append(args, "%"+*filter.Search+"%")
			argIndex++
		}

		if filter.Status != nil && *filter.Status != "" {
			query += fmt.Sprintf(" AND o.status = $%d", argIndex)
			args = append(args, *filter.Status)
			argIndex++
		}

		if filter.PaymentMethod != nil && *filter.PaymentMethod != "" {
			query += fmt.Sprintf(" AND o.payment_method = $%d", argIndex)
			args = append(args, *filter.PaymentMethod)
			argIndex++
		}

		if filter.DateFrom != nil {
			query += fmt.Sprintf(" AND o.created_at >= $%d", argIndex)
			args = append(args, *filter.DateFrom)
			argIndex++
		}

		if filter.DateTo != nil {
			query += fmt.Sprintf(" AND o.created_at <= $%d", argIndex)
			args = append(args, *filter.DateTo)
			argIndex++
		}
	}

	orderBy := "o.created_at DESC"

	if sort != nil {
		dir := strings.ToUpper(string(sort.Direction))
		if dir != "ASC" && dir != "DESC" {
			dir = "DESC"
		}

		switch sort.Field {
		case OrderSortFieldTotal:
			orderBy = "o.total " + dir
		case OrderSortFieldCreatedAt:
			orderBy = "o.created_at " + dir
		}
	}

	query += " ORDER BY " + orderBy
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var orders []*Order

	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID,
			&o.OrderCode,
			&o.UserID,
			&o.Status,
			&o.Paid,
			&o.Total,
			&o.PaymentMethod,
			&o.CreatedAt,
			&o.UpdatedAt,
		); err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, err
		}
		orders = append(orders, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Debug("orders fetched", zap.Int("count", len(orders)))

	return orders, nil
}

func (r *repository) loadItems(ctx context.Context, orderID uint) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, p.name
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price, &item.ProductName,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
