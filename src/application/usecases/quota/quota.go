package quota

import (
	logger "go-whatsapp-crm/src/infrastructure/logger"
	dispatchRepo "go-whatsapp-crm/src/infrastructure/repository/mysql/dispatch"

	"go.uber.org/zap"
)

// Usage reports a tenant's current position against its plan limit
type Usage struct {
	TenantID  int
	Sent      int64
	Limit     int64
	Remaining int64
}

// IQuotaUseCase is the per-tenant message quota ledger. Reservation is a
// single atomic increment-if-below-limit; a failed dispatch must release its
// reservation so the counter counts successful sends only.
type IQuotaUseCase interface {
	Remaining(tenantID int) (int64, error)
	TryReserve(tenantID int) (bool, error)
	Release(tenantID int) error
	GetUsage(tenantID int) (*Usage, error)
	ResetUsage(tenantID int) error
	SetLimit(tenantID int, limit int64) error
}

type QuotaUseCase struct {
	quotaRepository dispatchRepo.QuotaCounterRepositoryInterface
	Logger          *logger.Logger
}

func NewQuotaUseCase(
	quotaRepository dispatchRepo.QuotaCounterRepositoryInterface,
	loggerInstance *logger.Logger,
) IQuotaUseCase {
	return &QuotaUseCase{
		quotaRepository: quotaRepository,
		Logger:          loggerInstance,
	}
}

func (u *QuotaUseCase) Remaining(tenantID int) (int64, error) {
	counter, err := u.quotaRepository.Get(tenantID)
	if err != nil {
		return 0, err
	}
	return counter.Remaining(), nil
}

func (u *QuotaUseCase) TryReserve(tenantID int) (bool, error) {
	return u.quotaRepository.TryReserve(tenantID)
}

func (u *QuotaUseCase) Release(tenantID int) error {
	return u.quotaRepository.Release(tenantID)
}

func (u *QuotaUseCase) GetUsage(tenantID int) (*Usage, error) {
	counter, err := u.quotaRepository.Get(tenantID)
	if err != nil {
		return nil, err
	}
	return &Usage{
		TenantID:  tenantID,
		Sent:      counter.MessagesSent,
		Limit:     counter.MessageLimit,
		Remaining: counter.Remaining(),
	}, nil
}

// ResetUsage is the billing-period rollover; only ever triggered by an
// explicit administrative action
func (u *QuotaUseCase) ResetUsage(tenantID int) error {
	u.Logger.Info("Resetting quota usage for billing rollover", zap.Int("tenantID", tenantID))
	return u.quotaRepository.ResetUsage(tenantID)
}

func (u *QuotaUseCase) SetLimit(tenantID int, limit int64) error {
	return u.quotaRepository.SetLimit(tenantID, limit)
}
