package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderDetailRows(orderID uint, status OrderStatus, paid bool) *sqlmock.Rows {
	uid := uint(1)
	return sqlmock.NewRows([]string{
		"id", "order_code", "user_id", "status", "paid", "total", "payment_method",
		"customer_name", "phone", "email", "address", "province", "district", "ward",
		"expire_banking_at", "created_at", "updated_at",
	}).AddRow(
		orderID, int64(7001), uid, status, paid, int64(200000), PaymentBanking,
		"Lan Nguyen", "0901234567", "", "12 Tran Hung Dao", "Ho Chi Minh", "Quan 1", "Ben Nghe",
		nil, time.Now(), time.Now(),
	)
}

func itemRows(orderID uint) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "price", "name"}).
		AddRow(1, orderID, "p1", 2, int64(100000), "Mega Munch Salmon 2kg")
}

func TestRepository_CreateOrderTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	newOrder := func() *Order {
		return &Order{
			OrderCode:     7001,
			Status:        StatusPending,
			Total:         200000,
			PaymentMethod: PaymentBanking,
			CustomerName:  "Lan Nguyen",
			Phone:         "0901234567",
			Address:       "12 Tran Hung Dao",
			Province:      "Ho Chi Minh",
			District:      "Quan 1",
			Ward:          "Ben Nghe",
			Items:         []OrderItem{{ProductID: "p1", Quantity: 2, Price: 100000}},
		}
	}

	t.Run("Success", func(t *testing.T) {
		o := newOrder()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO orders`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(10, time.Now()))
		mock.ExpectQuery(`INSERT INTO order_items`).
			WithArgs(uint(10), "p1", 2, int64(100000)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()

		require.NoError(t, repo.CreateOrderTx(ctx, o))
		assert.Equal(t, uint(10), o.ID)
		assert.Equal(t, uint(10), o.Items[0].OrderID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ItemInsertFailureRollsBack", func(t *testing.T) {
		o := newOrder()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO orders`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, time.Now()))
		mock.ExpectQuery(`INSERT INTO order_items`).
			WillReturnError(errors.New("fk violation"))
		mock.ExpectRollback()

		assert.Error(t, repo.CreateOrderTx(ctx, o))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_MarkPaidByCode(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("FlipsUnpaidOrder", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE orders\s+SET paid = TRUE`).
			WithArgs(int64(7001)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
		mock.ExpectQuery(`SELECT id, order_code,`).
			WithArgs(uint(10)).
			WillReturnRows(orderDetailRows(10, StatusPending, true))
		mock.ExpectQuery(`FROM order_items oi`).
			WithArgs(uint(10)).
			WillReturnRows(itemRows(10))

		o, alreadyPaid, err := repo.MarkPaidByCode(ctx, 7001)
		require.NoError(t, err)
		assert.False(t, alreadyPaid)
		assert.True(t, o.Paid)
		require.Len(t, o.Items, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyPaidIsNoop", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE orders\s+SET paid = TRUE`).
			WithArgs(int64(7001)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(`SELECT paid FROM orders WHERE order_code = \$1`).
			WithArgs(int64(7001)).
			WillReturnRows(sqlmock.NewRows([]string{"paid"}).AddRow(true))

		o, alreadyPaid, err := repo.MarkPaidByCode(ctx, 7001)
		require.NoError(t, err)
		assert.True(t, alreadyPaid)
		assert.Nil(t, o)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownOrder", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE orders\s+SET paid = TRUE`).
			WithArgs(int64(9999)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(`SELECT paid FROM orders WHERE order_code = \$1`).
			WithArgs(int64(9999)).
			WillReturnRows(sqlmock.NewRows([]string{"paid"}))

		_, _, err := repo.MarkPaidByCode(ctx, 9999)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestRepository_CancelOrderTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	o := &Order{
		ID:     10,
		Status: StatusProcessing,
		Items: []OrderItem{
			{ProductID: "p1", Quantity: 2, Price: 100000},
			{ProductID: "p2", Quantity: 1, Price: 80000},
		},
	}

	lockedRow := func(paid bool, method PaymentMethod) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"paid", "payment_method"}).AddRow(paid, method)
	}

	t.Run("CODRestocksInSameTransaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT paid, payment_method FROM orders`).
			WithArgs(uint(10)).
			WillReturnRows(lockedRow(false, PaymentCOD))
		mock.ExpectExec(`UPDATE orders\s+SET status = \$1`).
			WithArgs(StatusCancelled, uint(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE products\s+SET stock = stock \+ \$1, sold = sold - \$1`).
			WithArgs(2, "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE products\s+SET stock = stock \+ \$1, sold = sold - \$1`).
			WithArgs(1, "p2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		restocked, err := repo.CancelOrderTx(ctx, o)
		require.NoError(t, err)
		assert.True(t, restocked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnpaidBankingDoesNotRestock", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT paid, payment_method FROM orders`).
			WithArgs(uint(10)).
			WillReturnRows(lockedRow(false, PaymentBanking))
		mock.ExpectExec(`UPDATE orders\s+SET status = \$1`).
			WithArgs(StatusCancelled, uint(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		restocked, err := repo.CancelOrderTx(ctx, o)
		require.NoError(t, err)
		assert.False(t, restocked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SettledAfterSnapshotStillRestocks", func(t *testing.T) {
		// The caller read the order while it was unpaid, but a webhook settled
		// it before the transaction ran. The locked row says paid, so the
		// decremented stock comes back.
		stale := &Order{
			ID:            10,
			Status:        StatusPending,
			Paid:          false,
			PaymentMethod: PaymentBanking,
			Items:         []OrderItem{{ProductID: "p1", Quantity: 2, Price: 100000}},
		}

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT paid, payment_method FROM orders`).
			WithArgs(uint(10)).
			WillReturnRows(lockedRow(true, PaymentBanking))
		mock.ExpectExec(`UPDATE orders\s+SET status = \$1`).
			WithArgs(StatusCancelled, uint(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE products\s+SET stock = stock \+ \$1, sold = sold - \$1`).
			WithArgs(2, "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		restocked, err := repo.CancelOrderTx(ctx, stale)
		require.NoError(t, err)
		assert.True(t, restocked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotCancellable", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT paid, payment_method FROM orders`).
			WithArgs(uint(10)).
			WillReturnRows(lockedRow(false, PaymentCOD))
		mock.ExpectExec(`UPDATE orders\s+SET status = \$1`).
			WithArgs(StatusCancelled, uint(10)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := repo.CancelOrderTx(ctx, o)
		assert.ErrorIs(t, err, ErrCannotCancel)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OrderGone", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT paid, payment_method FROM orders`).
			WithArgs(uint(10)).
			WillReturnRows(sqlmock.NewRows([]string{"paid", "payment_method"}))
		mock.ExpectRollback()

		_, err := repo.CancelOrderTx(ctx, o)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("RestockFailureRollsBackStatusChange", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT paid, payment_method FROM orders`).
			WithArgs(uint(10)).
			WillReturnRows(lockedRow(false, PaymentCOD))
		mock.ExpectExec(`UPDATE orders\s+SET status = \$1`).
			WithArgs(StatusCancelled, uint(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE products`).
			WithArgs(2, "p1").
			WillReturnError(errors.New("db down"))
		mock.ExpectRollback()

		_, err := repo.CancelOrderTx(ctx, o)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_SweepExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("DeletesAllExpired", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id FROM orders`).
			WithArgs(StatusPending, PaymentBanking, now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10).AddRow(11))
		mock.ExpectExec(`DELETE FROM orders`).
			WithArgs(uint(10), StatusPending, PaymentBanking, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM orders`).
			WithArgs(uint(11), StatusPending, PaymentBanking, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		count, err := repo.SweepExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OneFailureDoesNotBlockTheRest", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id FROM orders`).
			WithArgs(StatusPending, PaymentBanking, now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10).AddRow(11))
		mock.ExpectExec(`DELETE FROM orders`).
			WithArgs(uint(10), StatusPending, PaymentBanking, now).
			WillReturnError(errors.New("row locked"))
		mock.ExpectExec(`DELETE FROM orders`).
			WithArgs(uint(11), StatusPending, PaymentBanking, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		count, err := repo.SweepExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SettledBetweenSnapshotAndDeleteIsKept", func(t *testing.T) {
		// A webhook marks the order paid after the snapshot picked it up. The
		// guarded delete matches nothing and the order is not counted.
		mock.ExpectQuery(`SELECT id FROM orders`).
			WithArgs(StatusPending, PaymentBanking, now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
		mock.ExpectExec(`DELETE FROM orders`).
			WithArgs(uint(42), StatusPending, PaymentBanking, now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		count, err := repo.SweepExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NothingExpired", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id FROM orders`).
			WithArgs(StatusPending, PaymentBanking, now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		count, err := repo.SweepExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestRepository_UpdateOrderStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE orders SET status = \$1`).
			WithArgs(StatusProcessing, uint(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateOrderStatus(ctx, 10, StatusProcessing))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec(`UPDATE orders SET status = \$1`).
			WithArgs(StatusProcessing, uint(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.UpdateOrderStatus(ctx, 99, StatusProcessing), ErrOrderNotFound)
	})
}

func TestRepository_GetOrderDetail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, order_code,`).
			WithArgs(uint(10)).
			WillReturnRows(orderDetailRows(10, StatusPending, false))
		mock.ExpectQuery(`FROM order_items oi`).
			WithArgs(uint(10)).
			WillReturnRows(itemRows(10))

		o, err := repo.GetOrderDetail(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(7001), o.OrderCode)
		require.Len(t, o.Items, 1)
		assert.Equal(t, "p1", o.Items[0].ProductID)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, order_code,`).
			WithArgs(uint(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetOrderDetail(ctx, 99)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}
