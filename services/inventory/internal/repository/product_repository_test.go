package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/order-saga/services/inventory/internal/domain"
	"example.com/order-saga/services/inventory/internal/repository"
)

// setupMockDB создаёт GORM поверх sqlmock.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Ошибка создания sqlmock")

	dialector := postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Ошибка инициализации GORM")

	return gormDB, mock, func() { _ = db.Close() }
}

// =====================================
// Тесты AllocateStock
// =====================================

func TestAllocateStock(t *testing.T) {
	t.Run("успешное списание", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET`)).
			WithArgs(2, sqlmock.AnyArg(), "p1", 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		repo := repository.NewProductRepository(gormDB)
		err := repo.AllocateStock(context.Background(), "p1", 2)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("недостаточно остатка", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		// Условный UPDATE не прошёл: ни одной строки не затронуто
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET`)).
			WithArgs(5, sqlmock.AnyArg(), "p1", 5).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		// Товар существует — значит дело в остатке
		mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
			WithArgs("p1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		repo := repository.NewProductRepository(gormDB)
		err := repo.AllocateStock(context.Background(), "p1", 5)

		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("товар не найден", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET`)).
			WithArgs(1, sqlmock.AnyArg(), "missing", 1).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		repo := repository.NewProductRepository(gormDB)
		err := repo.AllocateStock(context.Background(), "missing", 1)

		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// =====================================
// Тесты ReleaseStock
// =====================================

func TestReleaseStock(t *testing.T) {
	t.Run("возврат остатка", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET`)).
			WithArgs(3, sqlmock.AnyArg(), "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		repo := repository.NewProductRepository(gormDB)
		err := repo.ReleaseStock(context.Background(), "p1", 3)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("товар не найден", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET`)).
			WithArgs(3, sqlmock.AnyArg(), "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		repo := repository.NewProductRepository(gormDB)
		err := repo.ReleaseStock(context.Background(), "missing", 3)

		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// =====================================
// Тесты GetByID
// =====================================

func TestGetByID(t *testing.T) {
	t.Run("товар найден", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		now := time.Now().UTC()
		rows := sqlmock.NewRows([]string{
			"id", "name", "description", "sku", "price", "quantity", "metadata", "created_at", "updated_at",
		}).AddRow("p1", "Клавиатура", "Механическая", "KB-001", 99.90, 25, nil, now, now)

		mock.ExpectQuery(`SELECT .* FROM "products" WHERE id = .*`).
			WithArgs("p1", 1).
			WillReturnRows(rows)

		repo := repository.NewProductRepository(gormDB)
		product, err := repo.GetByID(context.Background(), "p1")

		require.NoError(t, err)
		assert.Equal(t, "KB-001", product.SKU)
		assert.Equal(t, 25, product.Quantity)
		assert.Equal(t, domain.StatusInStock, product.Status())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("товар не найден", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectQuery(`SELECT .* FROM "products" WHERE id = .*`).
			WithArgs("missing", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		repo := repository.NewProductRepository(gormDB)
		_, err := repo.GetByID(context.Background(), "missing")

		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
