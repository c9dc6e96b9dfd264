package dispatch

import (
	"time"

	domainDispatch "go-whatsapp-crm/src/domain/dispatch"
	domainErrors "go-whatsapp-crm/src/domain/errors"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BroadcastRecipient is the database model for broadcast recipients
type BroadcastRecipient struct {
	ID                int        `gorm:"primaryKey"`
	BroadcastID       int        `gorm:"column:broadcast_id;index:idx_broadcast_contact,unique"`
	ContactID         int        `gorm:"column:contact_id;index:idx_broadcast_contact,unique"`
	Phone             string     `gorm:"column:phone"`
	Status            string     `gorm:"column:status;index"`
	ClaimedAt         *time.Time `gorm:"column:claimed_at;index"`
	DedupToken        string     `gorm:"column:dedup_token"`
	SentAt            *time.Time `gorm:"column:sent_at"`
	ProviderMessageID string     `gorm:"column:provider_message_id"`
	ErrorMessage      string     `gorm:"column:error_message;type:text"`
	CreatedAt         time.Time  `gorm:"autoCreateTime:mili"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime:mili"`
}

func (BroadcastRecipient) TableName() string {
	return "broadcast_recipients"
}

// BroadcastRecipientRepositoryInterface defines the interface for broadcast recipient repository operations
type BroadcastRecipientRepositoryInterface interface {
	ClaimPendingByBroadcast(broadcastID int, limit int, now time.Time) (*[]domainDispatch.BroadcastRecipient, error)
	CountUnfinishedByBroadcast(broadcastID int) (int64, error)
	MarkSent(id int, providerMessageID string, sentAt time.Time) error
	MarkFailed(id int, errorMessage string) error
	Unclaim(id int) error
	ReclaimStuck(olderThan time.Time) (int64, error)
	ListByBroadcast(broadcastID int) (*[]domainDispatch.BroadcastRecipient, error)
}

type BroadcastRecipientRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewBroadcastRecipientRepository(db *gorm.DB, loggerInstance *logger.Logger) BroadcastRecipientRepositoryInterface {
	return &BroadcastRecipientRepository{DB: db, Logger: loggerInstance}
}

// ClaimPendingByBroadcast selects up to limit pending recipients and marks
// them processing inside one transaction, stamping a claim timestamp and a
// fresh dedup token per row. Rows whose guarded update matches nothing were
// taken by a competing writer and are dropped. Sent and failed rows are
// excluded by construction, which is what guarantees a recipient is never
// reprocessed.
func (r *BroadcastRecipientRepository) ClaimPendingByBroadcast(broadcastID int, limit int, now time.Time) (*[]domainDispatch.BroadcastRecipient, error) {
	var records []BroadcastRecipient

	tx := r.DB.Begin()
	if tx.Error != nil {
		r.Logger.Error("Error starting recipient claim transaction", zap.Error(tx.Error))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	if err := tx.Where("broadcast_id = ? AND status = ?", broadcastID, string(domainDispatch.RecipientStatusPending)).
		Limit(limit).
		Find(&records).Error; err != nil {
		tx.Rollback()
		r.Logger.Error("Error selecting pending broadcast recipients", zap.Error(err), zap.Int("broadcastID", broadcastID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	if len(records) == 0 {
		tx.Commit()
		return &[]domainDispatch.BroadcastRecipient{}, nil
	}

	claimed := make([]BroadcastRecipient, 0, len(records))
	for i := range records {
		token, err := uuid.NewV4()
		if err != nil {
			tx.Rollback()
			r.Logger.Error("Error generating dedup token", zap.Error(err))
			return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
		}

		claim := map[string]interface{}{
			"status":      string(domainDispatch.RecipientStatusProcessing),
			"claimed_at":  now,
			"dedup_token": token.String(),
		}
		result := tx.Model(&BroadcastRecipient{}).
			Where("id = ? AND status = ?", records[i].ID, string(domainDispatch.RecipientStatusPending)).
			Updates(claim)
		if result.Error != nil {
			tx.Rollback()
			r.Logger.Error("Error claiming broadcast recipient", zap.Error(result.Error), zap.Int("id", records[i].ID))
			return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
		}
		if result.RowsAffected == 0 {
			r.Logger.Warn("Recipient claim lost to a concurrent status change, row skipped", zap.Int("id", records[i].ID))
			continue
		}

		records[i].Status = string(domainDispatch.RecipientStatusProcessing)
		claimedAt := now
		records[i].ClaimedAt = &claimedAt
		records[i].DedupToken = token.String()
		claimed = append(claimed, records[i])
	}

	if err := tx.Commit().Error; err != nil {
		r.Logger.Error("Error committing recipient claim transaction", zap.Error(err))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	return broadcastRecipientArrayToDomainMapper(&claimed), nil
}

// CountUnfinishedByBroadcast counts rows that still need a terminal status.
// Processing rows count too: a claim stuck from a crashed run must keep the
// broadcast in sending until the reclaim sweep resolves it.
func (r *BroadcastRecipientRepository) CountUnfinishedByBroadcast(broadcastID int) (int64, error) {
	var count int64
	if err := r.DB.Model(&BroadcastRecipient{}).
		Where("broadcast_id = ? AND status IN ?", broadcastID, []string{
			string(domainDispatch.RecipientStatusPending),
			string(domainDispatch.RecipientStatusProcessing),
		}).
		Count(&count).Error; err != nil {
		r.Logger.Error("Error counting unfinished broadcast recipients", zap.Error(err), zap.Int("broadcastID", broadcastID))
		return 0, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return count, nil
}

func (r *BroadcastRecipientRepository) MarkSent(id int, providerMessageID string, sentAt time.Time) error {
	result := r.DB.Model(&BroadcastRecipient{}).
		Where("id = ? AND status = ?", id, string(domainDispatch.RecipientStatusProcessing)).
		Updates(map[string]interface{}{
			"status":              string(domainDispatch.RecipientStatusSent),
			"sent_at":             sentAt,
			"provider_message_id": providerMessageID,
		})
	if result.Error != nil {
		r.Logger.Error("Error marking broadcast recipient sent", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected == 0 {
		r.Logger.Warn("Broadcast recipient not in processing state, sent mark skipped", zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.IllegalTransition)
	}
	return nil
}

func (r *BroadcastRecipientRepository) MarkFailed(id int, errorMessage string) error {
	result := r.DB.Model(&BroadcastRecipient{}).
		Where("id = ? AND status = ?", id, string(domainDispatch.RecipientStatusProcessing)).
		Updates(map[string]interface{}{
			"status":        string(domainDispatch.RecipientStatusFailed),
			"error_message": errorMessage,
		})
	if result.Error != nil {
		r.Logger.Error("Error marking broadcast recipient failed", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected == 0 {
		r.Logger.Warn("Broadcast recipient not in processing state, failed mark skipped", zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.IllegalTransition)
	}
	return nil
}

// Unclaim returns a claimed recipient to pending without recording an
// attempt; used when quota exhaustion defers the rest of a batch
func (r *BroadcastRecipientRepository) Unclaim(id int) error {
	result := r.DB.Model(&BroadcastRecipient{}).
		Where("id = ? AND status = ?", id, string(domainDispatch.RecipientStatusProcessing)).
		Updates(map[string]interface{}{
			"status":     string(domainDispatch.RecipientStatusPending),
			"claimed_at": nil,
		})
	if result.Error != nil {
		r.Logger.Error("Error unclaiming broadcast recipient", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return nil
}

// ReclaimStuck returns processing recipients whose claim is older than the
// cutoff to pending. Covers processor crashes between claim and status commit.
func (r *BroadcastRecipientRepository) ReclaimStuck(olderThan time.Time) (int64, error) {
	result := r.DB.Model(&BroadcastRecipient{}).
		Where("status = ? AND claimed_at < ?", string(domainDispatch.RecipientStatusProcessing), olderThan).
		Updates(map[string]interface{}{
			"status":     string(domainDispatch.RecipientStatusPending),
			"claimed_at": nil,
		})
	if result.Error != nil {
		r.Logger.Error("Error reclaiming stuck broadcast recipients", zap.Error(result.Error))
		return 0, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected > 0 {
		r.Logger.Warn("Reclaimed stuck broadcast recipients", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (r *BroadcastRecipientRepository) ListByBroadcast(broadcastID int) (*[]domainDispatch.BroadcastRecipient, error) {
	var records []BroadcastRecipient
	if err := r.DB.Where("broadcast_id = ?", broadcastID).
		Find(&records).Error; err != nil {
		r.Logger.Error("Error listing broadcast recipients", zap.Error(err), zap.Int("broadcastID", broadcastID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return broadcastRecipientArrayToDomainMapper(&records), nil
}

// Mappers
func (br *BroadcastRecipient) toDomainMapper() *domainDispatch.BroadcastRecipient {
	return &domainDispatch.BroadcastRecipient{
		ID:                br.ID,
		BroadcastID:       br.BroadcastID,
		ContactID:         br.ContactID,
		Phone:             br.Phone,
		Status:            domainDispatch.RecipientStatus(br.Status),
		ClaimedAt:         br.ClaimedAt,
		DedupToken:        br.DedupToken,
		SentAt:            br.SentAt,
		ProviderMessageID: br.ProviderMessageID,
		ErrorMessage:      br.ErrorMessage,
		CreatedAt:         br.CreatedAt,
		UpdatedAt:         br.UpdatedAt,
	}
}

func broadcastRecipientFromDomainMapper(br *domainDispatch.BroadcastRecipient) *BroadcastRecipient {
	return &BroadcastRecipient{
		ID:                br.ID,
		BroadcastID:       br.BroadcastID,
		ContactID:         br.ContactID,
		Phone:             br.Phone,
		Status:            string(br.Status),
		ClaimedAt:         br.ClaimedAt,
		DedupToken:        br.DedupToken,
		SentAt:            br.SentAt,
		ProviderMessageID: br.ProviderMessageID,
		ErrorMessage:      br.ErrorMessage,
		CreatedAt:         br.CreatedAt,
		UpdatedAt:         br.UpdatedAt,
	}
}

func broadcastRecipientArrayToDomainMapper(records *[]BroadcastRecipient) *[]domainDispatch.BroadcastRecipient {
	recipients := make([]domainDispatch.BroadcastRecipient, len(*records))
	for i, record := range *records {
		recipients[i] = *record.toDomainMapper()
	}
	return &recipients
}
