package dispatch

import (
	"testing"
	"time"

	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	assert.NoError(t, err)
	return gormDB, mock
}

func counterRows(tenantID int, sent int64, limit int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "tenant_id", "messages_sent", "message_limit", "created_at", "updated_at"}).
		AddRow(1, tenantID, sent, limit, now, now)
}

func TestTryReserveIncrementsBelowLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuotaCounterRepository(db, logger.NewNopLogger())

	mock.ExpectQuery("SELECT(.*)quota_counters").
		WillReturnRows(counterRows(7, 10, 500))
	mock.ExpectExec("UPDATE quota_counters SET messages_sent = messages_sent \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	reserved, err := repo.TryReserve(7)

	assert.NoError(t, err)
	assert.True(t, reserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryReserveRefusesAtLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuotaCounterRepository(db, logger.NewNopLogger())

	mock.ExpectQuery("SELECT(.*)quota_counters").
		WillReturnRows(counterRows(7, 500, 500))
	// the guarded UPDATE matches no row once the limit is reached
	mock.ExpectExec("UPDATE quota_counters SET messages_sent = messages_sent \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	reserved, err := repo.TryReserve(7)

	assert.NoError(t, err)
	assert.False(t, reserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryReserveInitializesMissingCounterWithDefaultLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuotaCounterRepository(db, logger.NewNopLogger())

	mock.ExpectQuery("SELECT(.*)quota_counters").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "messages_sent", "message_limit", "created_at", "updated_at"}))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO .quota_counters.").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE quota_counters SET messages_sent = messages_sent \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	reserved, err := repo.TryReserve(7)

	assert.NoError(t, err)
	assert.True(t, reserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseNeverGoesBelowZero(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuotaCounterRepository(db, logger.NewNopLogger())

	mock.ExpectExec("UPDATE quota_counters SET messages_sent = messages_sent - 1(.*)messages_sent > 0").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Release(7)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetUsageRequiresExistingCounter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQuotaCounterRepository(db, logger.NewNopLogger())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE .quota_counters. SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.ResetUsage(99)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
