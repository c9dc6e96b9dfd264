package dispatch

import (
	"testing"
	"time"

	domainDispatch "go-whatsapp-crm/src/domain/dispatch"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func duePendingRows(ids ...int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "phone", "body", "message_type", "scheduled_at", "status"})
	scheduledAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range ids {
		rows.AddRow(id, 7, "+5215512345678", "hello", "text", scheduledAt, "pending")
	}
	return rows
}

func TestClaimDuePendingReturnsClaimedRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduledMessageRepository(db, logger.NewNopLogger())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT(.*)scheduled_messages").
		WillReturnRows(duePendingRows(1))
	mock.ExpectExec("UPDATE .scheduled_messages. SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := repo.ClaimDuePending(time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC), 50)

	assert.NoError(t, err)
	assert.Len(t, *claimed, 1)
	assert.Equal(t, domainDispatch.ScheduledStatusProcessing, (*claimed)[0].Status)
	assert.NotEmpty(t, (*claimed)[0].DedupToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimDuePendingDropsRowsLostToConcurrentWriters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduledMessageRepository(db, logger.NewNopLogger())

	// A cancel lands between the select and the guarded update; the claim
	// update matches no row and the message must not be handed to the runner.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT(.*)scheduled_messages").
		WillReturnRows(duePendingRows(1))
	mock.ExpectExec("UPDATE .scheduled_messages. SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	claimed, err := repo.ClaimDuePending(time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC), 50)

	assert.NoError(t, err)
	assert.Len(t, *claimed, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimDuePendingKeepsWonClaimsWhenOneIsLost(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduledMessageRepository(db, logger.NewNopLogger())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT(.*)scheduled_messages").
		WillReturnRows(duePendingRows(1, 2))
	mock.ExpectExec("UPDATE .scheduled_messages. SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE .scheduled_messages. SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := repo.ClaimDuePending(time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC), 50)

	assert.NoError(t, err)
	assert.Len(t, *claimed, 1)
	assert.Equal(t, 2, (*claimed)[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
