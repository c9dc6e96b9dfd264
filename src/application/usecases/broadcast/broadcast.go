package broadcast

import (
	"context"
	"errors"
	"time"

	"go-whatsapp-crm/src/application/usecases/quota"
	"go-whatsapp-crm/src/domain/dispatch"
	domainErrors "go-whatsapp-crm/src/domain/errors"
	logger "go-whatsapp-crm/src/infrastructure/logger"
	dispatchRepo "go-whatsapp-crm/src/infrastructure/repository/mysql/dispatch"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultRecipientBatchSize bounds the recipients dispatched per
	// broadcast per run; the remainder is picked up by the next invocation
	DefaultRecipientBatchSize = 50

	// DefaultClaimTimeout is how long a recipient claim may stand before
	// the reclaim sweep returns the row to pending.
	DefaultClaimTimeout = 10 * time.Minute
)

// RunReport summarizes one fan-out runner invocation
type RunReport struct {
	Promoted  int64
	Sent      int
	Failed    int
	Deferred  int
	Completed int
}

// RecipientInput is one contact to fan out to
type RecipientInput struct {
	ContactID int
	Phone     string
}

// CreateRequest carries the fields for a new broadcast and its closed recipient set
type CreateRequest struct {
	TenantID         int
	Name             string
	Body             string
	MessageType      dispatch.MessageType
	TemplateName     string
	TemplateLanguage string
	ScheduledAt      *time.Time
	Recipients       []RecipientInput
}

// IBroadcastUseCase defines the fan-out runner and the user-facing
// operations around it
type IBroadcastUseCase interface {
	Run(ctx context.Context) (*RunReport, error)
	Create(request *CreateRequest) (*dispatch.Broadcast, error)
	Schedule(id int, scheduledAt time.Time) error
	Cancel(id int) error
	Delete(id int) error
	GetByID(id int) (*dispatch.Broadcast, error)
	ListByTenant(tenantID int, limit int, offset int) (*[]dispatch.Broadcast, error)
}

type BroadcastUseCase struct {
	broadcastRepository dispatchRepo.BroadcastRepositoryInterface
	recipientRepository dispatchRepo.BroadcastRecipientRepositoryInterface
	quotaUseCase        quota.IQuotaUseCase
	gateway             dispatch.IMessageGateway
	limiter             *rate.Limiter
	batchSize           int
	claimTimeout        time.Duration
	now                 func() time.Time
	Logger              *logger.Logger
}

func NewBroadcastUseCase(
	broadcastRepository dispatchRepo.BroadcastRepositoryInterface,
	recipientRepository dispatchRepo.BroadcastRecipientRepositoryInterface,
	quotaUseCase quota.IQuotaUseCase,
	gateway dispatch.IMessageGateway,
	limiter *rate.Limiter,
	loggerInstance *logger.Logger,
) IBroadcastUseCase {
	return &BroadcastUseCase{
		broadcastRepository: broadcastRepository,
		recipientRepository: recipientRepository,
		quotaUseCase:        quotaUseCase,
		gateway:             gateway,
		limiter:             limiter,
		batchSize:           DefaultRecipientBatchSize,
		claimTimeout:        DefaultClaimTimeout,
		now:                 time.Now,
		Logger:              loggerInstance,
	}
}

// Run advances broadcasts in three phases: promote due scheduled broadcasts
// to sending, dispatch a bounded batch of pending recipients per sending
// broadcast, then complete broadcasts with no pending recipients left.
// Broadcast-level status reflects only whether processing finished; it is
// never failed from per-recipient errors.
func (u *BroadcastUseCase) Run(ctx context.Context) (*RunReport, error) {
	now := u.now()
	report := &RunReport{}

	reclaimed, err := u.recipientRepository.ReclaimStuck(now.Add(-u.claimTimeout))
	if err != nil {
		u.Logger.Error("Error reclaiming stuck broadcast recipients", zap.Error(err))
	} else if reclaimed > 0 {
		u.Logger.Warn("Reclaimed stuck broadcast recipients", zap.Int64("count", reclaimed))
	}

	promoted, err := u.broadcastRepository.PromoteDue(now)
	if err != nil {
		u.Logger.Error("Error promoting due broadcasts", zap.Error(err))
		return report, err
	}
	report.Promoted = promoted

	sending, err := u.broadcastRepository.GetSending()
	if err != nil {
		u.Logger.Error("Error loading sending broadcasts", zap.Error(err))
		return report, err
	}

	for i := range *sending {
		b := &(*sending)[i]
		if err := u.dispatchBatch(ctx, b, report); err != nil {
			if errors.Is(err, ctx.Err()) && ctx.Err() != nil {
				return report, err
			}
			// A broadcast-level failure is contained; the next broadcast
			// still gets its batch.
			u.Logger.Error("Error dispatching broadcast batch", zap.Error(err), zap.Int("broadcastID", b.ID))
			continue
		}

		remaining, err := u.recipientRepository.CountUnfinishedByBroadcast(b.ID)
		if err != nil {
			u.Logger.Error("Error counting unfinished recipients", zap.Error(err), zap.Int("broadcastID", b.ID))
			continue
		}
		if remaining == 0 {
			if err := u.broadcastRepository.MarkCompleted(b.ID, u.now()); err != nil {
				u.Logger.Error("Error completing broadcast", zap.Error(err), zap.Int("broadcastID", b.ID))
				continue
			}
			report.Completed++
		}
	}

	u.Logger.Info("Broadcast run completed",
		zap.Int64("promoted", report.Promoted),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("deferred", report.Deferred),
		zap.Int("completed", report.Completed))
	return report, nil
}

func (u *BroadcastUseCase) dispatchBatch(ctx context.Context, b *dispatch.Broadcast, report *RunReport) error {
	recipients, err := u.recipientRepository.ClaimPendingByBroadcast(b.ID, u.batchSize, u.now())
	if err != nil {
		return err
	}
	if len(*recipients) == 0 {
		return nil
	}

	u.Logger.Info("Dispatching broadcast batch",
		zap.Int("broadcastID", b.ID),
		zap.Int("tenantID", b.TenantID),
		zap.Int("count", len(*recipients)))

	for i := range *recipients {
		recipient := &(*recipients)[i]

		if err := u.limiter.Wait(ctx); err != nil {
			for j := i; j < len(*recipients); j++ {
				u.unclaim((*recipients)[j].ID)
				report.Deferred++
			}
			return err
		}

		reserved, err := u.quotaUseCase.TryReserve(b.TenantID)
		if err != nil {
			u.Logger.Error("Error reserving quota for broadcast recipient",
				zap.Error(err),
				zap.Int("broadcastID", b.ID),
				zap.Int("recipientID", recipient.ID),
				zap.Int("tenantID", b.TenantID))
			u.unclaim(recipient.ID)
			report.Deferred++
			continue
		}
		if !reserved {
			// The whole batch shares one tenant; once the quota is gone the
			// remaining recipients go back to pending until the rollover.
			for j := i; j < len(*recipients); j++ {
				u.unclaim((*recipients)[j].ID)
				report.Deferred++
			}
			u.Logger.Warn("Broadcast batch deferred, quota exhausted",
				zap.Int("broadcastID", b.ID),
				zap.Int("tenantID", b.TenantID))
			return nil
		}

		result, sendErr := u.dispatchRecipient(ctx, b, recipient)
		if sendErr != nil {
			report.Failed++
			if releaseErr := u.quotaUseCase.Release(b.TenantID); releaseErr != nil {
				u.Logger.Error("Error releasing quota reservation", zap.Error(releaseErr), zap.Int("tenantID", b.TenantID))
			}
			if markErr := u.recipientRepository.MarkFailed(recipient.ID, sendErr.Error()); markErr != nil {
				u.Logger.Error("Error marking recipient failed", zap.Error(markErr), zap.Int("recipientID", recipient.ID))
			}
			if countErr := u.broadcastRepository.IncrementFailedCount(b.ID); countErr != nil {
				u.Logger.Error("Error incrementing failed count", zap.Error(countErr), zap.Int("broadcastID", b.ID))
			}
			u.Logger.Warn("Broadcast recipient dispatch failed",
				zap.Int("broadcastID", b.ID),
				zap.Int("recipientID", recipient.ID),
				zap.Error(sendErr))
			continue
		}

		report.Sent++
		if markErr := u.recipientRepository.MarkSent(recipient.ID, result.MessageID, u.now()); markErr != nil {
			u.Logger.Error("Error marking recipient sent", zap.Error(markErr), zap.Int("recipientID", recipient.ID))
		}
		if countErr := u.broadcastRepository.IncrementSentCount(b.ID); countErr != nil {
			u.Logger.Error("Error incrementing sent count", zap.Error(countErr), zap.Int("broadcastID", b.ID))
		}
	}

	return nil
}

func (u *BroadcastUseCase) unclaim(id int) {
	if err := u.recipientRepository.Unclaim(id); err != nil {
		u.Logger.Error("Error unclaiming broadcast recipient", zap.Error(err), zap.Int("recipientID", id))
	}
}

func (u *BroadcastUseCase) dispatchRecipient(ctx context.Context, b *dispatch.Broadcast, recipient *dispatch.BroadcastRecipient) (*dispatch.SendResult, error) {
	switch b.MessageType {
	case dispatch.MessageTypeText:
		return u.gateway.SendText(ctx, recipient.Phone, b.Body)
	case dispatch.MessageTypeTemplate:
		return u.gateway.SendTemplate(ctx, recipient.Phone, dispatch.TemplateParams{
			Name:     b.TemplateName,
			Language: b.TemplateLanguage,
		})
	}
	return nil, errors.New("unsupported message type: " + string(b.MessageType))
}

func (u *BroadcastUseCase) Create(request *CreateRequest) (*dispatch.Broadcast, error) {
	if request.Name == "" || len(request.Recipients) == 0 {
		return nil, domainErrors.NewAppErrorWithType(domainErrors.ValidationError)
	}
	switch request.MessageType {
	case dispatch.MessageTypeText:
		if request.Body == "" {
			return nil, domainErrors.NewAppError(errors.New("text broadcast requires a body"), domainErrors.ValidationError)
		}
	case dispatch.MessageTypeTemplate:
		if request.TemplateName == "" {
			return nil, domainErrors.NewAppError(errors.New("template broadcast requires a template name"), domainErrors.ValidationError)
		}
	default:
		return nil, domainErrors.NewAppError(errors.New("unsupported message type"), domainErrors.ValidationError)
	}

	status := dispatch.BroadcastStatusDraft
	if request.ScheduledAt != nil {
		status = dispatch.BroadcastStatusScheduled
	}

	// One row per (broadcast, contact); duplicate contacts in the request
	// collapse to a single recipient.
	seen := make(map[int]bool, len(request.Recipients))
	recipients := make([]dispatch.BroadcastRecipient, 0, len(request.Recipients))
	for _, input := range request.Recipients {
		if seen[input.ContactID] {
			continue
		}
		seen[input.ContactID] = true
		recipients = append(recipients, dispatch.BroadcastRecipient{
			ContactID: input.ContactID,
			Phone:     input.Phone,
			Status:    dispatch.RecipientStatusPending,
		})
	}

	broadcast := &dispatch.Broadcast{
		TenantID:         request.TenantID,
		Name:             request.Name,
		Body:             request.Body,
		MessageType:      request.MessageType,
		TemplateName:     request.TemplateName,
		TemplateLanguage: request.TemplateLanguage,
		ScheduledAt:      request.ScheduledAt,
		Status:           status,
	}
	return u.broadcastRepository.Create(broadcast, recipients)
}

func (u *BroadcastUseCase) Schedule(id int, scheduledAt time.Time) error {
	return u.broadcastRepository.Schedule(id, scheduledAt)
}

func (u *BroadcastUseCase) Cancel(id int) error {
	return u.broadcastRepository.Cancel(id)
}

func (u *BroadcastUseCase) Delete(id int) error {
	return u.broadcastRepository.Delete(id)
}

func (u *BroadcastUseCase) GetByID(id int) (*dispatch.Broadcast, error) {
	return u.broadcastRepository.GetByID(id)
}

func (u *BroadcastUseCase) ListByTenant(tenantID int, limit int, offset int) (*[]dispatch.Broadcast, error) {
	return u.broadcastRepository.ListByTenant(tenantID, limit, offset)
}
