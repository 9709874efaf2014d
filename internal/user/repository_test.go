package user

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("u@pawmart.test", "Ana", "hashed", RoleUser).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(uint(1), time.Now()))

	u := &User{Email: "u@pawmart.test", Name: "Ana", PasswordHash: "hashed", Role: RoleUser}
	err = repo.Create(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, uint(1), u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(`FROM users`).
			WithArgs("u@pawmart.test").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "role", "created_at"}).
				AddRow(uint(1), "u@pawmart.test", "Ana", "hashed", RoleUser, time.Now()))

		u, err := repo.GetByEmail(ctx, "u@pawmart.test")
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, "Ana", u.Name)
	})

	t.Run("NotFoundReturnsNil", func(t *testing.T) {
		mock.ExpectQuery(`FROM users`).
			WithArgs("nobody@pawmart.test").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		u, err := repo.GetByEmail(ctx, "nobody@pawmart.test")
		require.NoError(t, err)
		assert.Nil(t, u)
	})
}
