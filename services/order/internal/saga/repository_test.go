package saga

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/order-saga/services/order/internal/domain"
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

func cancelledOrder() *domain.Order {
	sagaID := "saga-1"
	return &domain.Order{
		ID:         "order-1",
		CustomerID: "c1",
		Status:     domain.OrderStatusCancelled,
		SagaID:     &sagaID,
	}
}

// =====================================
// Тесты UpdateOrderWithSaga
// =====================================

func TestUpdateOrderWithSaga_EndsSaga(t *testing.T) {
	gormDB, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "CANCELLED", "order-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "saga_log" SET`)).
		WithArgs(sqlmock.AnyArg(), "FAILED", "saga-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewRepository(gormDB)
	failed := StatusFailed
	sagaEnded, err := repo.UpdateOrderWithSaga(context.Background(), cancelledOrder(), &failed, nil, nil)

	require.NoError(t, err)
	assert.True(t, sagaEnded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderWithSaga_SagaAlreadyEnded(t *testing.T) {
	// Сага уже завершена (ended_at IS NOT NULL): условный UPDATE не
	// затрагивает строк, исход саги остаётся прежним.
	gormDB, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "CANCELLED", "order-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "saga_log" SET`)).
		WithArgs(sqlmock.AnyArg(), "FAILED", "saga-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	repo := NewRepository(gormDB)
	failed := StatusFailed
	sagaEnded, err := repo.UpdateOrderWithSaga(context.Background(), cancelledOrder(), &failed, nil, nil)

	require.NoError(t, err)
	assert.False(t, sagaEnded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderWithSaga_OrderNotFound(t *testing.T) {
	gormDB, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "CANCELLED", "order-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewRepository(gormDB)
	failed := StatusFailed
	_, err := repo.UpdateOrderWithSaga(context.Background(), cancelledOrder(), &failed, nil, nil)

	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
