package scheduled

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
	// DefaultBatchSize bounds the work of a single run; the backlog beyond
	// it is picked up by the next periodic invocation.
	DefaultBatchSize = 50

	// DefaultClaimTimeout is how long a processing claim may stand before
	// the reclaim sweep returns the row to pending.
	DefaultClaimTimeout = 10 * time.Minute
)

// RunReport summarizes one runner invocation
type RunReport struct {
	Claimed  int
	Sent     int
	Failed   int
	Deferred int
	Spawned  int
}

// CreateRequest carries the fields for a new scheduled message
type CreateRequest struct {
	TenantID          int
	ContactID         int
	Phone             string
	Body              string
	MessageType       dispatch.MessageType
	TemplateName      string
	TemplateLanguage  string
	ScheduledAt       time.Time
	IsRecurring       bool
	RecurrencePattern dispatch.RecurrencePattern
	RecurrenceEndsAt  *time.Time
	CreatedBy         int
}

// IScheduledMessageUseCase defines the scheduled message runner and the
// user-facing operations around it
type IScheduledMessageUseCase interface {
	Run(ctx context.Context) (*RunReport, error)
	ReclaimStuck(ctx context.Context) (int64, error)
	Create(request *CreateRequest) (*dispatch.ScheduledMessage, error)
	Cancel(id int) error
	GetByID(id int) (*dispatch.ScheduledMessage, error)
	ListByTenant(tenantID int, limit int, offset int) (*[]dispatch.ScheduledMessage, error)
}

type ScheduledMessageUseCase struct {
	messageRepository dispatchRepo.ScheduledMessageRepositoryInterface
	quotaUseCase      quota.IQuotaUseCase
	gateway           dispatch.IMessageGateway
	limiter           *rate.Limiter
	batchSize         int
	claimTimeout      time.Duration
	now               func() time.Time
	Logger            *logger.Logger
}

func NewScheduledMessageUseCase(
	messageRepository dispatchRepo.ScheduledMessageRepositoryInterface,
	quotaUseCase quota.IQuotaUseCase,
	gateway dispatch.IMessageGateway,
	limiter *rate.Limiter,
	loggerInstance *logger.Logger,
) IScheduledMessageUseCase {
	return &ScheduledMessageUseCase{
		messageRepository: messageRepository,
		quotaUseCase:      quotaUseCase,
		gateway:           gateway,
		limiter:           limiter,
		batchSize:         DefaultBatchSize,
		claimTimeout:      DefaultClaimTimeout,
		now:               time.Now,
		Logger:            loggerInstance,
	}
}

// Run claims one bounded batch of due messages and dispatches them in
// scheduled order. Failures are contained per message: a gateway error marks
// that row failed and the loop continues with the next one.
func (u *ScheduledMessageUseCase) Run(ctx context.Context) (*RunReport, error) {
	now := u.now()
	report := &RunReport{}

	claimed, err := u.messageRepository.ClaimDuePending(now, u.batchSize)
	if err != nil {
		u.Logger.Error("Error claiming due scheduled messages", zap.Error(err))
		return report, err
	}

	report.Claimed = len(*claimed)
	if report.Claimed == 0 {
		return report, nil
	}

	u.Logger.Info("Processing scheduled messages", zap.Int("count", report.Claimed))

	for i := range *claimed {
		msg := &(*claimed)[i]

		// Pacing between dispatches protects the provider from bursts.
		if err := u.limiter.Wait(ctx); err != nil {
			u.unclaim(msg.ID)
			report.Deferred++
			u.Logger.Warn("Run interrupted, remaining messages deferred", zap.Error(err))
			for j := i + 1; j < len(*claimed); j++ {
				u.unclaim((*claimed)[j].ID)
				report.Deferred++
			}
			return report, err
		}

		reserved, err := u.quotaUseCase.TryReserve(msg.TenantID)
		if err != nil {
			u.Logger.Error("Error reserving quota for scheduled message",
				zap.Error(err),
				zap.Int("id", msg.ID),
				zap.Int("tenantID", msg.TenantID))
			u.unclaim(msg.ID)
			report.Deferred++
			continue
		}
		if !reserved {
			// Quota exhausted: the message goes back to pending and waits
			// for the billing rollover rather than burning a failure.
			u.unclaim(msg.ID)
			report.Deferred++
			u.Logger.Warn("Scheduled message deferred, quota exhausted",
				zap.Int("id", msg.ID),
				zap.Int("tenantID", msg.TenantID))
			continue
		}

		result, sendErr := u.dispatchMessage(ctx, msg)
		if sendErr != nil {
			report.Failed++
			if releaseErr := u.quotaUseCase.Release(msg.TenantID); releaseErr != nil {
				u.Logger.Error("Error releasing quota reservation", zap.Error(releaseErr), zap.Int("tenantID", msg.TenantID))
			}
			if markErr := u.messageRepository.MarkFailed(msg.ID, sendErr.Error()); markErr != nil {
				u.Logger.Error("Error marking scheduled message failed", zap.Error(markErr), zap.Int("id", msg.ID))
			}
			u.Logger.Warn("Scheduled message dispatch failed",
				zap.Int("id", msg.ID),
				zap.Int("tenantID", msg.TenantID),
				zap.Error(sendErr))
			continue
		}

		report.Sent++
		sentAt := u.now()
		if markErr := u.messageRepository.MarkSent(msg.ID, result.MessageID, sentAt); markErr != nil {
			u.Logger.Error("Error marking scheduled message sent", zap.Error(markErr), zap.Int("id", msg.ID))
		}
		u.Logger.Info("Scheduled message sent",
			zap.Int("id", msg.ID),
			zap.Int("tenantID", msg.TenantID),
			zap.String("providerMessageID", result.MessageID))

		if msg.IsRecurring {
			if u.scheduleNext(msg) {
				report.Spawned++
			}
		}
	}

	u.Logger.Info("Scheduled message run completed",
		zap.Int("claimed", report.Claimed),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("deferred", report.Deferred),
		zap.Int("spawned", report.Spawned))
	return report, nil
}

// ReclaimStuck returns processing rows stuck past the claim timeout to pending
func (u *ScheduledMessageUseCase) ReclaimStuck(ctx context.Context) (int64, error) {
	cutoff := u.now().Add(-u.claimTimeout)
	return u.messageRepository.ReclaimStuck(cutoff)
}

func (u *ScheduledMessageUseCase) Create(request *CreateRequest) (*dispatch.ScheduledMessage, error) {
	if request.Phone == "" || request.ScheduledAt.IsZero() {
		return nil, domainErrors.NewAppErrorWithType(domainErrors.ValidationError)
	}
	switch request.MessageType {
	case dispatch.MessageTypeText:
		if request.Body == "" {
			return nil, domainErrors.NewAppError(errors.New("text message requires a body"), domainErrors.ValidationError)
		}
	case dispatch.MessageTypeTemplate:
		if request.TemplateName == "" {
			return nil, domainErrors.NewAppError(errors.New("template message requires a template name"), domainErrors.ValidationError)
		}
	default:
		return nil, domainErrors.NewAppError(errors.New("unsupported message type"), domainErrors.ValidationError)
	}
	if request.IsRecurring && !request.RecurrencePattern.IsValid() {
		return nil, domainErrors.NewAppError(errors.New("recurring message requires a valid recurrence pattern"), domainErrors.ValidationError)
	}

	message := &dispatch.ScheduledMessage{
		TenantID:          request.TenantID,
		ContactID:         request.ContactID,
		Phone:             request.Phone,
		Body:              request.Body,
		MessageType:       request.MessageType,
		TemplateName:      request.TemplateName,
		TemplateLanguage:  request.TemplateLanguage,
		ScheduledAt:       request.ScheduledAt,
		Status:            dispatch.ScheduledStatusPending,
		IsRecurring:       request.IsRecurring,
		RecurrencePattern: request.RecurrencePattern,
		RecurrenceEndsAt:  request.RecurrenceEndsAt,
		CreatedBy:         request.CreatedBy,
	}
	return u.messageRepository.Create(message)
}

func (u *ScheduledMessageUseCase) Cancel(id int) error {
	return u.messageRepository.CancelPending(id)
}

func (u *ScheduledMessageUseCase) GetByID(id int) (*dispatch.ScheduledMessage, error) {
	return u.messageRepository.GetByID(id)
}

func (u *ScheduledMessageUseCase) ListByTenant(tenantID int, limit int, offset int) (*[]dispatch.ScheduledMessage, error) {
	return u.messageRepository.ListByTenant(tenantID, limit, offset)
}

func (u *ScheduledMessageUseCase) dispatchMessage(ctx context.Context, msg *dispatch.ScheduledMessage) (*dispatch.SendResult, error) {
	switch msg.MessageType {
	case dispatch.MessageTypeText:
		return u.gateway.SendText(ctx, msg.Phone, msg.Body)
	case dispatch.MessageTypeTemplate:
		return u.gateway.SendTemplate(ctx, msg.Phone, dispatch.TemplateParams{
			Name:     msg.TemplateName,
			Language: msg.TemplateLanguage,
		})
	}
	return nil, errors.New("unsupported message type: " + string(msg.MessageType))
}

// scheduleNext creates the next occurrence of a recurring message. The next
// scheduled_at is anchored on the original schedule so invocation jitter
// never drifts the cadence. Reports whether a new occurrence was created.
func (u *ScheduledMessageUseCase) scheduleNext(msg *dispatch.ScheduledMessage) bool {
	next := msg.RecurrencePattern.NextOccurrence(msg.ScheduledAt)

	if msg.RecurrenceEndsAt != nil && next.After(*msg.RecurrenceEndsAt) {
		u.Logger.Info("Recurring series reached its end date",
			zap.Int("id", msg.ID),
			zap.Time("endsAt", *msg.RecurrenceEndsAt))
		return false
	}

	nextMessage := &dispatch.ScheduledMessage{
		TenantID:          msg.TenantID,
		ContactID:         msg.ContactID,
		Phone:             msg.Phone,
		Body:              msg.Body,
		MessageType:       msg.MessageType,
		TemplateName:      msg.TemplateName,
		TemplateLanguage:  msg.TemplateLanguage,
		ScheduledAt:       next,
		Status:            dispatch.ScheduledStatusPending,
		IsRecurring:       true,
		RecurrencePattern: msg.RecurrencePattern,
		RecurrenceEndsAt:  msg.RecurrenceEndsAt,
		CreatedBy:         msg.CreatedBy,
	}

	created, err := u.messageRepository.Create(nextMessage)
	if err != nil {
		u.Logger.Error("Error creating next recurring occurrence", zap.Error(err), zap.Int("parentID", msg.ID))
		return false
	}

	u.Logger.Info("Next recurring occurrence scheduled",
		zap.Int("parentID", msg.ID),
		zap.Int("id", created.ID),
		zap.Time("scheduledAt", next))
	return true
}

func (u *ScheduledMessageUseCase) unclaim(id int) {
	if err := u.messageRepository.Unclaim(id); err != nil {
		u.Logger.Error("Error unclaiming scheduled message", zap.Error(err), zap.Int("id", id))
	}
}
