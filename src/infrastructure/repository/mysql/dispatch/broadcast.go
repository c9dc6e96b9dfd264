package dispatch

import (
	"time"

	domainDispatch "go-whatsapp-crm/src/domain/dispatch"
	domainErrors "go-whatsapp-crm/src/domain/errors"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Broadcast is the database model for broadcasts
type Broadcast struct {
	ID               int        `gorm:"primaryKey"`
	TenantID         int        `gorm:"column:tenant_id;index"`
	Name             string     `gorm:"column:name"`
	Body             string     `gorm:"column:body;type:text"`
	MessageType      string     `gorm:"column:message_type"`
	TemplateName     string     `gorm:"column:template_name"`
	TemplateLanguage string     `gorm:"column:template_language"`
	ScheduledAt      *time.Time `gorm:"column:scheduled_at;index"`
	Status           string     `gorm:"column:status;index"`
	StartedAt        *time.Time `gorm:"column:started_at"`
	CompletedAt      *time.Time `gorm:"column:completed_at"`
	TotalRecipients  int        `gorm:"column:total_recipients;default:0"`
	SentCount        int        `gorm:"column:sent_count;default:0"`
	FailedCount      int        `gorm:"column:failed_count;default:0"`
	CreatedAt        time.Time  `gorm:"autoCreateTime:mili"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime:mili"`
}

func (Broadcast) TableName() string {
	return "broadcasts"
}

// BroadcastRepositoryInterface defines the interface for broadcast repository operations
type BroadcastRepositoryInterface interface {
	Create(broadcast *domainDispatch.Broadcast, recipients []domainDispatch.BroadcastRecipient) (*domainDispatch.Broadcast, error)
	GetByID(id int) (*domainDispatch.Broadcast, error)
	ListByTenant(tenantID int, limit int, offset int) (*[]domainDispatch.Broadcast, error)
	PromoteDue(now time.Time) (int64, error)
	GetSending() (*[]domainDispatch.Broadcast, error)
	IncrementSentCount(id int) error
	IncrementFailedCount(id int) error
	MarkCompleted(id int, completedAt time.Time) error
	Schedule(id int, scheduledAt time.Time) error
	Cancel(id int) error
	Delete(id int) error
}

type BroadcastRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewBroadcastRepository(db *gorm.DB, loggerInstance *logger.Logger) BroadcastRepositoryInterface {
	return &BroadcastRepository{DB: db, Logger: loggerInstance}
}

// Create persists the broadcast together with its pre-materialized recipient
// rows in one transaction. The recipient set is closed from this point on
// and total_recipients is fixed to its size.
func (r *BroadcastRepository) Create(broadcast *domainDispatch.Broadcast, recipients []domainDispatch.BroadcastRecipient) (*domainDispatch.Broadcast, error) {
	record := broadcastFromDomainMapper(broadcast)
	if record.Status == "" {
		record.Status = string(domainDispatch.BroadcastStatusDraft)
	}
	record.TotalRecipients = len(recipients)
	record.SentCount = 0
	record.FailedCount = 0

	tx := r.DB.Begin()
	if tx.Error != nil {
		r.Logger.Error("Error starting broadcast create transaction", zap.Error(tx.Error))
		return &domainDispatch.Broadcast{}, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	if err := tx.Create(record).Error; err != nil {
		tx.Rollback()
		r.Logger.Error("Error creating broadcast", zap.Error(err), zap.Int("tenantID", broadcast.TenantID))
		return &domainDispatch.Broadcast{}, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	for i := range recipients {
		recipientRecord := broadcastRecipientFromDomainMapper(&recipients[i])
		recipientRecord.BroadcastID = record.ID
		recipientRecord.Status = string(domainDispatch.RecipientStatusPending)
		if err := tx.Create(recipientRecord).Error; err != nil {
			tx.Rollback()
			r.Logger.Error("Error creating broadcast recipient", zap.Error(err), zap.Int("broadcastID", record.ID))
			return &domainDispatch.Broadcast{}, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
		}
	}

	if err := tx.Commit().Error; err != nil {
		r.Logger.Error("Error committing broadcast create transaction", zap.Error(err))
		return &domainDispatch.Broadcast{}, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	r.Logger.Info("Successfully created broadcast",
		zap.Int("id", record.ID),
		zap.Int("tenantID", record.TenantID),
		zap.Int("totalRecipients", record.TotalRecipients))
	return record.toDomainMapper(), nil
}

func (r *BroadcastRepository) GetByID(id int) (*domainDispatch.Broadcast, error) {
	var record Broadcast
	err := r.DB.Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			r.Logger.Warn("Broadcast not found", zap.Int("id", id))
			return &domainDispatch.Broadcast{}, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
		}
		r.Logger.Error("Error getting broadcast by ID", zap.Error(err), zap.Int("id", id))
		return &domainDispatch.Broadcast{}, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return record.toDomainMapper(), nil
}

func (r *BroadcastRepository) ListByTenant(tenantID int, limit int, offset int) (*[]domainDispatch.Broadcast, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var records []Broadcast
	if err := r.DB.Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		r.Logger.Error("Error listing broadcasts", zap.Error(err), zap.Int("tenantID", tenantID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return broadcastArrayToDomainMapper(&records), nil
}

// PromoteDue moves every due scheduled broadcast to sending and stamps started_at
func (r *BroadcastRepository) PromoteDue(now time.Time) (int64, error) {
	result := r.DB.Model(&Broadcast{}).
		Where("status = ? AND scheduled_at <= ?", string(domainDispatch.BroadcastStatusScheduled), now).
		Updates(map[string]interface{}{
			"status":     string(domainDispatch.BroadcastStatusSending),
			"started_at": now,
		})
	if result.Error != nil {
		r.Logger.Error("Error promoting due broadcasts", zap.Error(result.Error))
		return 0, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected > 0 {
		r.Logger.Info("Promoted due broadcasts to sending", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (r *BroadcastRepository) GetSending() (*[]domainDispatch.Broadcast, error) {
	var records []Broadcast
	if err := r.DB.Where("status = ?", string(domainDispatch.BroadcastStatusSending)).
		Find(&records).Error; err != nil {
		r.Logger.Error("Error getting sending broadcasts", zap.Error(err))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return broadcastArrayToDomainMapper(&records), nil
}

func (r *BroadcastRepository) IncrementSentCount(id int) error {
	err := r.DB.Model(&Broadcast{}).
		Where("id = ?", id).
		Update("sent_count", gorm.Expr("sent_count + 1")).Error
	if err != nil {
		r.Logger.Error("Error incrementing broadcast sent count", zap.Error(err), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return nil
}

func (r *BroadcastRepository) IncrementFailedCount(id int) error {
	err := r.DB.Model(&Broadcast{}).
		Where("id = ?", id).
		Update("failed_count", gorm.Expr("failed_count + 1")).Error
	if err != nil {
		r.Logger.Error("Error incrementing broadcast failed count", zap.Error(err), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return nil
}

// MarkCompleted finishes a broadcast. The conditional update keeps the
// transition legal even if a cancel raced the runner.
func (r *BroadcastRepository) MarkCompleted(id int, completedAt time.Time) error {
	result := r.DB.Model(&Broadcast{}).
		Where("id = ? AND status = ?", id, string(domainDispatch.BroadcastStatusSending)).
		Updates(map[string]interface{}{
			"status":       string(domainDispatch.BroadcastStatusCompleted),
			"completed_at": completedAt,
		})
	if result.Error != nil {
		r.Logger.Error("Error marking broadcast completed", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewAppErrorWithType(domainErrors.IllegalTransition)
	}
	r.Logger.Info("Broadcast completed", zap.Int("id", id))
	return nil
}

func (r *BroadcastRepository) Schedule(id int, scheduledAt time.Time) error {
	result := r.DB.Model(&Broadcast{}).
		Where("id = ? AND status = ?", id, string(domainDispatch.BroadcastStatusDraft)).
		Updates(map[string]interface{}{
			"status":       string(domainDispatch.BroadcastStatusScheduled),
			"scheduled_at": scheduledAt,
		})
	if result.Error != nil {
		r.Logger.Error("Error scheduling broadcast", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewAppErrorWithType(domainErrors.IllegalTransition)
	}
	r.Logger.Info("Broadcast scheduled", zap.Int("id", id), zap.Time("scheduledAt", scheduledAt))
	return nil
}

// Cancel is the escape valve: reachable from draft, scheduled and sending
func (r *BroadcastRepository) Cancel(id int) error {
	result := r.DB.Model(&Broadcast{}).
		Where("id = ? AND status IN ?", id, []string{
			string(domainDispatch.BroadcastStatusDraft),
			string(domainDispatch.BroadcastStatusScheduled),
			string(domainDispatch.BroadcastStatusSending),
		}).
		Update("status", string(domainDispatch.BroadcastStatusCancelled))
	if result.Error != nil {
		r.Logger.Error("Error cancelling broadcast", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewAppErrorWithType(domainErrors.IllegalTransition)
	}
	r.Logger.Info("Broadcast cancelled", zap.Int("id", id))
	return nil
}

// Delete removes a broadcast and its recipients; refused while sending
func (r *BroadcastRepository) Delete(id int) error {
	tx := r.DB.Begin()
	if tx.Error != nil {
		r.Logger.Error("Error starting broadcast delete transaction", zap.Error(tx.Error))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	result := tx.Where("id = ? AND status <> ?", id, string(domainDispatch.BroadcastStatusSending)).
		Delete(&Broadcast{})
	if result.Error != nil {
		tx.Rollback()
		r.Logger.Error("Error deleting broadcast", zap.Error(result.Error), zap.Int("id", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return domainErrors.NewAppErrorWithType(domainErrors.IllegalTransition)
	}

	if err := tx.Where("broadcast_id = ?", id).Delete(&BroadcastRecipient{}).Error; err != nil {
		tx.Rollback()
		r.Logger.Error("Error deleting broadcast recipients", zap.Error(err), zap.Int("broadcastID", id))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	if err := tx.Commit().Error; err != nil {
		r.Logger.Error("Error committing broadcast delete transaction", zap.Error(err))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	r.Logger.Info("Broadcast deleted", zap.Int("id", id))
	return nil
}

// Mappers
func (b *Broadcast) toDomainMapper() *domainDispatch.Broadcast {
	return &domainDispatch.Broadcast{
		ID:               b.ID,
		TenantID:         b.TenantID,
		Name:             b.Name,
		Body:             b.Body,
		MessageType:      domainDispatch.MessageType(b.MessageType),
		TemplateName:     b.TemplateName,
		TemplateLanguage: b.TemplateLanguage,
		ScheduledAt:      b.ScheduledAt,
		Status:           domainDispatch.BroadcastStatus(b.Status),
		StartedAt:        b.StartedAt,
		CompletedAt:      b.CompletedAt,
		TotalRecipients:  b.TotalRecipients,
		SentCount:        b.SentCount,
		FailedCount:      b.FailedCount,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func broadcastFromDomainMapper(b *domainDispatch.Broadcast) *Broadcast {
	return &Broadcast{
		ID:               b.ID,
		TenantID:         b.TenantID,
		Name:             b.Name,
		Body:             b.Body,
		MessageType:      string(b.MessageType),
		TemplateName:     b.TemplateName,
		TemplateLanguage: b.TemplateLanguage,
		ScheduledAt:      b.ScheduledAt,
		Status:           string(b.Status),
		StartedAt:        b.StartedAt,
		CompletedAt:      b.CompletedAt,
		TotalRecipients:  b.TotalRecipients,
		SentCount:        b.SentCount,
		FailedCount:      b.FailedCount,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func broadcastArrayToDomainMapper(records *[]Broadcast) *[]domainDispatch.Broadcast {
	broadcasts := make([]domainDispatch.Broadcast, len(*records))
	for i, record := range *records {
		broadcasts[i] = *record.toDomainMapper()
	}
	return &broadcasts
}
