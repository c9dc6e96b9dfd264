package dispatch

import (
	"errors"
	"time"

	domainDispatch "go-whatsapp-crm/src/domain/dispatch"
	domainErrors "go-whatsapp-crm/src/domain/errors"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultMessageLimit is the fail-closed ceiling applied when a tenant has
// no configured limit. A missing configuration is never treated as unlimited.
const DefaultMessageLimit = 500

// QuotaCounter is the database model for per-tenant quota ledgers
type QuotaCounter struct {
	ID           int       `gorm:"primaryKey"`
	TenantID     int       `gorm:"column:tenant_id;uniqueIndex"`
	MessagesSent int64     `gorm:"column:messages_sent;default:0"`
	MessageLimit int64     `gorm:"column:message_limit"`
	CreatedAt    time.Time `gorm:"autoCreateTime:mili"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:mili"`
}

func (QuotaCounter) TableName() string {
	return "quota_counters"
}

// QuotaCounterRepositoryInterface defines the interface for quota counter repository operations
type QuotaCounterRepositoryInterface interface {
	Get(tenantID int) (*domainDispatch.QuotaCounter, error)
	TryReserve(tenantID int) (bool, error)
	Release(tenantID int) error
	ResetUsage(tenantID int) error
	SetLimit(tenantID int, limit int64) error
}

type QuotaCounterRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewQuotaCounterRepository(db *gorm.DB, loggerInstance *logger.Logger) QuotaCounterRepositoryInterface {
	return &QuotaCounterRepository{DB: db, Logger: loggerInstance}
}

func (r *QuotaCounterRepository) Get(tenantID int) (*domainDispatch.QuotaCounter, error) {
	record, err := r.ensureCounter(tenantID)
	if err != nil {
		return &domainDispatch.QuotaCounter{}, err
	}
	return record.toDomainMapper(), nil
}

// TryReserve is the single atomic increment-if-below-limit operation that
// closes the check-then-increment race: the WHERE clause and the increment
// execute as one statement, so two concurrent dispatchers can never both
// pass the limit check.
func (r *QuotaCounterRepository) TryReserve(tenantID int) (bool, error) {
	if _, err := r.ensureCounter(tenantID); err != nil {
		return false, err
	}

	result := r.DB.Exec(
		"UPDATE quota_counters SET messages_sent = messages_sent + 1, updated_at = ? WHERE tenant_id = ? AND messages_sent < message_limit",
		time.Now(), tenantID)
	if result.Error != nil {
		r.Logger.Error("Error reserving quota", zap.Error(result.Error), zap.Int("tenantID", tenantID))
		return false, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	if result.RowsAffected == 0 {
		r.Logger.Warn("Quota exhausted, dispatch refused", zap.Int("tenantID", tenantID))
		return false, nil
	}
	return true, nil
}

// Release returns a reservation after a failed dispatch so the counter only
// reflects successful sends. The floor clause keeps the counter monotone
// with respect to successes: it can never go below zero.
func (r *QuotaCounterRepository) Release(tenantID int) error {
	result := r.DB.Exec(
		"UPDATE quota_counters SET messages_sent = messages_sent - 1, updated_at = ? WHERE tenant_id = ? AND messages_sent > 0",
		time.Now(), tenantID)
	if result.Error != nil {
		r.Logger.Error("Error releasing quota reservation", zap.Error(result.Error), zap.Int("tenantID", tenantID))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return nil
}

// ResetUsage zeroes the counter; an explicit administrative action for the
// billing period rollover, never called automatically
func (r *QuotaCounterRepository) ResetUsage(tenantID int) error {
	result := r.DB.Model(&QuotaCounter{}).
		Where("tenant_id = ?", tenantID).
		Update("messages_sent", 0)
	if result.Error != nil {
		r.Logger.Error("Error resetting quota usage", zap.Error(result.Error), zap.Int("tenantID", tenantID))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewAppErrorWithType(domainErrors.NotFound)
	}
	r.Logger.Info("Quota usage reset", zap.Int("tenantID", tenantID))
	return nil
}

func (r *QuotaCounterRepository) SetLimit(tenantID int, limit int64) error {
	if _, err := r.ensureCounter(tenantID); err != nil {
		return err
	}

	result := r.DB.Model(&QuotaCounter{}).
		Where("tenant_id = ?", tenantID).
		Update("message_limit", limit)
	if result.Error != nil {
		r.Logger.Error("Error setting quota limit", zap.Error(result.Error), zap.Int("tenantID", tenantID))
		return domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	r.Logger.Info("Quota limit updated", zap.Int("tenantID", tenantID), zap.Int64("limit", limit))
	return nil
}

// ensureCounter creates the ledger row with the fail-closed default limit
// when the tenant has none yet
func (r *QuotaCounterRepository) ensureCounter(tenantID int) (*QuotaCounter, error) {
	var record QuotaCounter
	err := r.DB.Where("tenant_id = ?", tenantID).First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		r.Logger.Error("Error loading quota counter", zap.Error(err), zap.Int("tenantID", tenantID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	record = QuotaCounter{
		TenantID:     tenantID,
		MessagesSent: 0,
		MessageLimit: DefaultMessageLimit,
	}
	if err := r.DB.Create(&record).Error; err != nil {
		// A concurrent insert may have won the unique index race; re-read.
		var existing QuotaCounter
		if readErr := r.DB.Where("tenant_id = ?", tenantID).First(&existing).Error; readErr == nil {
			return &existing, nil
		}
		r.Logger.Error("Error creating quota counter", zap.Error(err), zap.Int("tenantID", tenantID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}

	r.Logger.Info("Quota counter initialized with default limit",
		zap.Int("tenantID", tenantID),
		zap.Int64("limit", record.MessageLimit))
	return &record, nil
}

// Mapper
func (q *QuotaCounter) toDomainMapper() *domainDispatch.QuotaCounter {
	return &domainDispatch.QuotaCounter{
		ID:           q.ID,
		TenantID:     q.TenantID,
		MessagesSent: q.MessagesSent,
		MessageLimit: q.MessageLimit,
		CreatedAt:    q.CreatedAt,
		UpdatedAt:    q.UpdatedAt,
	}
}
