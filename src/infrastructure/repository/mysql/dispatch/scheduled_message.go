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

// ScheduledMessage is the database model for scheduled messages
type ScheduledMessage struct {
	ID                int        `gorm:"primaryKey"`
	TenantID          int        `gorm:"column:tenant_id;index"`
	ContactID         int        `gorm:"column:contact_id;index"`
	Phone             string     `gorm:"column:phone"`
	Body              string     `gorm:"column:body;type:text"`
	MessageType       string     `gorm:"column:message_type"`
	TemplateName      string     `gorm:"column:template_name"`
	TemplateLanguage  string     `gorm:"column:template_language"`
	ScheduledAt       time.Time  `gorm:"column:scheduled_at;index"`
	Status            string     `gorm:"column:status;index"`
	ClaimedAt         *time.Time `gorm:"column:claimed_at;index"`
	DedupToken        string     `gorm:"column:dedup_token"`
	SentAt            *time.Time `gorm:"column:sent_at"`
	ProviderMessageID string     `gorm:"column:provider_message_id"`
	ErrorMessage      string     `gorm:"column:error_message;type:text"`
	IsRecurring       bool       `gorm:"column:is_recurring;default:false"`
	RecurrencePattern string     `gorm:"column:recurrence_pattern"`
	RecurrenceEndsAt  *time.Time `gorm:"column:recurrence_ends_at"`
	CreatedBy         int        `gorm:"column:created_by"`
	CreatedAt         time.Time  `gorm:"autoCreateTime:mili"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime:mili"`
}

func (ScheduledMessage) TableName() string {
	return "scheduled_messages"
}

// ScheduledMessageRepositoryInterface defines the interface for scheduled message repository operations
type ScheduledMessageRepositoryInterface interface {
	Create(message *domainDispatch.ScheduledMessage) (*domainDispatch.ScheduledMessage, error)
	GetByID(id int) (*domainDispatch.ScheduledMessage, error)
	ListByTenant(tenantID int, limit int, offset int) (*[]domainDispatch.ScheduledMessage, error)
	ClaimDuePending(now time.Time, limit int) (*[]domainDispatch.ScheduledMessage, error)
	MarkSent(id int, providerMessageID string, sentAt time.Time) error
	MarkFailed(id int, errorMessage string) error
	Unclaim(id int) error
	ReclaimStuck(olderThan time.Time) (int64, error)
	CancelPending(id int) error
}

type ScheduledMessageRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewScheduledMessageRepository(db *gorm.DB, loggerInstance *logger.Logger) ScheduledMessageRepositoryInterface {
	return &ScheduledMessageRepository{DB: db, Logger: loggerInstance}
}

func (r *ScheduledMessageRepository) Create(message *domainDispatch.ScheduledMessage) (*domainDispatch.ScheduledMessage, error) {
	record := scheduledMessageFromDomainMapper(message)
	if record.Status == "" {
		record.Status = string(domainDispatch.ScheduledStatusPending)
	}
	if err := r.DB.Create(record).Error; err != nil {
		r.Logger.Error("Error creating scheduled message", zap.Error(err), zap.Int("tenantID", message.TenantID))
		return &domainDispatch.ScheduledMessage{}, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	r.Logger.Info("Successfully created scheduled message",
		zap.Int("id", record.ID),
		zap.Int("tenantID", record.TenantID),
		zap.Time("scheduledAt", record.ScheduledAt))
	return record.toDomainMapper(), nil
}

func (r *ScheduledMessageRepository) GetByID(id int) (*domainDispatch.ScheduledMessage, error) {
	var record ScheduledMessage
	err := r.DB.Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			r.Logger.Warn("Scheduled message not found", zap.Int("id", id))
			return &domainDispatch.ScheduledMessage{}, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
		}
		r.Logger.Error("Error getting scheduled message by ID", zap.Error(err), zap.Int("id", id))
		return &domainDispatch.ScheduledMessage{}, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return record.toDomainMapper(), nil
}

func (r *ScheduledMessageRepository) ListByTenant(tenantID int, limit int, offset int) (*[]domainDispatch.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var records []ScheduledMessage
	if err := r.DB.Where("tenant_id = ?", tenantID).
		Order("scheduled_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		r.Logger.Error("Error listing scheduled messages", zap.Error(err), zap.Int("tenantID", tenantID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return scheduledMessageArrayToDomainMapper(&records), nil
}

// ClaimDuePending selects due pending messages in scheduled order and marks
// them processing inside one transaction, stamping a claim timestamp and a
// fresh dedup token per row. A claimed row is invisible to concurrent runs,
// which is what prevents duplicate sends when two processors overlap.
func (r *ScheduledMessageRepository) ClaimDuePending(now time.Time, limit int) (*[]domainDispatch.ScheduledMessage, error) {
	var records []ScheduledMessage

	tx := r.DB.Begin()
	if tx.Error != nil {
		r.Logger.Error("Error starting claim transaction", zap.Error(tx.Error))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	if err := tx.Where("status = ? AND scheduled_at <= ?", string(domainDispatch.ScheduledStatusPending), now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		tx.Rollback()
		r.Logger.Error("Error selecting due pending messages", zap.Error(err))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	if len(records) == 0 {
		tx.Commit()
		return &[]domainDispatch.ScheduledMessage{}, nil
	}

	claimed := make([]ScheduledMessage, 0, len(records))
	for i := range records {
		token, err := uuid.NewV4()
		if err != nil {
			tx.Rollback()
			r.Logger.Error("Error generating dedup token", zap.Error(err))
			return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
		}

		claim := map[string]interface{}{
			"status":      string(domainDispatch.ScheduledStatusProcessing),
			"claimed_at":  now,
			"dedup_token": token.String(),
		}
		result := tx.Model(&ScheduledMessage{}).
			Where("id = ? AND status = ?", records[i].ID, string(domainDispatch.ScheduledStatusPending)).
			Updates(claim)
		if result.Error != nil {
			tx.Rollback()
			r.Logger.Error("Error claiming pending message", zap.Error(result.Error), zap.Int("id", records[i].ID))
			return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
		}
		if result.RowsAffected == 0 {
			// A competing writer moved the row out of pending between the
			// select and the guarded update; a cancelled message must not
			// be dispatched.
			r.Logger.Warn("Claim lost to a concurrent status change, row skipped", zap.Int("id", records[i].ID))
			continue
		}

		records[i].Status = string(domainDispatch.ScheduledStatusProcessing)
		claimedAt := now
		records[i].ClaimedAt = &claimedAt
		records[i].DedupToken = token.String()
		claimed = append(claimed, records[i])
	}

	if err := tx.Commit().Error; err != nil {
		r.Logger.Error("Error committing claim transaction", zap.Error(err))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	if len(claimed) > 0 {
		r.Logger.Info("Successfully claimed due scheduled messages", zap.Int("count", len(claimed)))
	}
	return scheduledMessageArrayToDomainMapper(&claimed), nil
}

func (r *ScheduledMessageRepository) MarkSent(id int, providerMessageID string, sentAt time.Time) error {
	result := r.DB.Model(&ScheduledMessage{}).
		Where("id = ? AND status = ?", id, string(domainDispatch.ScheduledStatusProcessing)).
		Updates(map[string]interface{}{
			"status":              string(domainDispatch.ScheduledStatusSent),
			"sent_at":             sentAt,
			"provider_message_id": providerMessageID,
			"error_message":       "",
		})
	if result.Error != nil {
		r.Logger.Error("Error marking scheduled message sent", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected == 0 {
		r.Logger.Warn("Scheduled message not in processing state, sent mark skipped", zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.IllegalTransition)
	}
	return nil
}

func (r *ScheduledMessageRepository) MarkFailed(id int, errorMessage string) error {
	result := r.DB.Model(&ScheduledMessage{}).
		Where("id = ? AND status = ?", id, string(domainDispatch.ScheduledStatusProcessing)).
		Updates(map[string]interface{}{
			"status":        string(domainDispatch.ScheduledStatusFailed),
			"error_message": errorMessage,
		})
	if result.Error != nil {
		r.Logger.Error("Error marking scheduled message failed", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected == 0 {
		r.Logger.Warn("Scheduled message not in processing state, failed mark skipped", zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.IllegalTransition)
	}
	return nil
}

// Unclaim returns a claimed message to pending without recording an attempt;
// used when quota exhaustion defers a message to the next run
func (r *ScheduledMessageRepository) Unclaim(id int) error {
	result := r.DB.Model(&ScheduledMessage{}).
		Where("id = ? AND status = ?", id, string(domainDispatch.ScheduledStatusProcessing)).
		Updates(map[string]interface{}{
			"status":     string(domainDispatch.ScheduledStatusPending),
			"claimed_at": nil,
		})
	if result.Error != nil {
		r.Logger.Error("Error unclaiming scheduled message", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return nil
}

// ReclaimStuck returns processing rows whose claim is older than the cutoff
// to pending. Covers processor crashes between claim and status commit.
func (r *ScheduledMessageRepository) ReclaimStuck(olderThan time.Time) (int64, error) {
	result := r.DB.Model(&ScheduledMessage{}).
		Where("status = ? AND claimed_at < ?", string(domainDispatch.ScheduledStatusProcessing), olderThan).
		Updates(map[string]interface{}{
			"status":     string(domainDispatch.ScheduledStatusPending),
			"claimed_at": nil,
		})
	if result.Error != nil {
		r.Logger.Error("Error reclaiming stuck scheduled messages", zap.Error(result.Error))
		return 0, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected > 0 {
		r.Logger.Warn("Reclaimed stuck scheduled messages", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// CancelPending cancels a message only while it is still pending. The
// conditional update enforces the transition table at the database level.
func (r *ScheduledMessageRepository) CancelPending(id int) error {
	result := r.DB.Model(&ScheduledMessage{}).
		Where("id = ? AND status = ?", id, string(domainDispatch.ScheduledStatusPending)).
		Update("status", string(domainDispatch.ScheduledStatusCancelled))
	if result.Error != nil {
		r.Logger.Error("Error cancelling scheduled message", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewAppErrorWithType(domainErrors.IllegalTransition)
	}
	r.Logger.Info("Scheduled message cancelled", zap.Int("id", id))
	return nil
}

// Mappers
func (m *ScheduledMessage) toDomainMapper() *domainDispatch.ScheduledMessage {
	return &domainDispatch.ScheduledMessage{
		ID:                m.ID,
		TenantID:          m.TenantID,
		ContactID:         m.ContactID,
		Phone:             m.Phone,
		Body:              m.Body,
		MessageType:       domainDispatch.MessageType(m.MessageType),
		TemplateName:      m.TemplateName,
		TemplateLanguage:  m.TemplateLanguage,
		ScheduledAt:       m.ScheduledAt,
		Status:            domainDispatch.ScheduledMessageStatus(m.Status),
		ClaimedAt:         m.ClaimedAt,
		DedupToken:        m.DedupToken,
		SentAt:            m.SentAt,
		ProviderMessageID: m.ProviderMessageID,
		ErrorMessage:      m.ErrorMessage,
		IsRecurring:       m.IsRecurring,
		RecurrencePattern: domainDispatch.RecurrencePattern(m.RecurrencePattern),
		RecurrenceEndsAt:  m.RecurrenceEndsAt,
		CreatedBy:         m.CreatedBy,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func scheduledMessageFromDomainMapper(m *domainDispatch.ScheduledMessage) *ScheduledMessage {
	return &ScheduledMessage{
		ID:                m.ID,
		TenantID:          m.TenantID,
		ContactID:         m.ContactID,
		Phone:             m.Phone,
		Body:              m.Body,
		MessageType:       string(m.MessageType),
		TemplateName:      m.TemplateName,
		TemplateLanguage:  m.TemplateLanguage,
		ScheduledAt:       m.ScheduledAt,
		Status:            string(m.Status),
		ClaimedAt:         m.ClaimedAt,
		DedupToken:        m.DedupToken,
		SentAt:            m.SentAt,
		ProviderMessageID: m.ProviderMessageID,
		ErrorMessage:      m.ErrorMessage,
		IsRecurring:       m.IsRecurring,
		RecurrencePattern: string(m.RecurrencePattern),
		RecurrenceEndsAt:  m.RecurrenceEndsAt,
		CreatedBy:         m.CreatedBy,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func scheduledMessageArrayToDomainMapper(records *[]ScheduledMessage) *[]domainDispatch.ScheduledMessage {
	messages := make([]domainDispatch.ScheduledMessage, len(*records))
	for i, record := range *records {
		messages[i] = *record.toDomainMapper()
	}
	return &messages
}
