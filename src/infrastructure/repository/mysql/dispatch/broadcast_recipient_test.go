package dispatch

import (
	"testing"
	"time"

	domainDispatch "go-whatsapp-crm/src/domain/dispatch"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func pendingRecipientRows(ids ...int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "broadcast_id", "contact_id", "phone", "status"})
	for _, id := range ids {
		rows.AddRow(id, 10, 100+id, "+5215512345678", "pending")
	}
	return rows
}

func TestClaimPendingByBroadcastStampsClaim(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBroadcastRecipientRepository(db, logger.NewNopLogger())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT(.*)broadcast_recipients").
		WillReturnRows(pendingRecipientRows(1))
	mock.ExpectExec("UPDATE .broadcast_recipients. SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := repo.ClaimPendingByBroadcast(10, 50, time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC))

	assert.NoError(t, err)
	assert.Len(t, *claimed, 1)
	assert.Equal(t, domainDispatch.RecipientStatusProcessing, (*claimed)[0].Status)
	assert.NotEmpty(t, (*claimed)[0].DedupToken)
	assert.NotNil(t, (*claimed)[0].ClaimedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPendingByBroadcastDropsRowsLostToConcurrentWriters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBroadcastRecipientRepository(db, logger.NewNopLogger())

	// A competing run claimed the row first; the guarded update matches
	// nothing and the recipient must not be dispatched twice.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT(.*)broadcast_recipients").
		WillReturnRows(pendingRecipientRows(1))
	mock.ExpectExec("UPDATE .broadcast_recipients. SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	claimed, err := repo.ClaimPendingByBroadcast(10, 50, time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC))

	assert.NoError(t, err)
	assert.Len(t, *claimed, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSentRequiresProcessingState(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBroadcastRecipientRepository(db, logger.NewNopLogger())

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE .broadcast_recipients. SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.MarkSent(1, "wamid.abc", time.Now())

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
