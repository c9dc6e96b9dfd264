package send

import (
	"context"
	"errors"

	"go-whatsapp-crm/src/application/usecases/quota"
	"go-whatsapp-crm/src/domain/dispatch"
	domainErrors "go-whatsapp-crm/src/domain/errors"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"go.uber.org/zap"
)

// MessageRequest represents an interactive (immediate) send
type MessageRequest struct {
	TenantID         int
	To               string
	MessageType      dispatch.MessageType
	Body             string
	TemplateName     string
	TemplateLanguage string
	TemplateParams   []string
	MediaLink        string
	MediaFilename    string
	MediaCaption     string
}

// MessageResponse is the result of a successful interactive send
type MessageResponse struct {
	ProviderMessageID string
	Status            string
}

// IMessageUseCase defines the interactive send path used by the REST surface
type IMessageUseCase interface {
	SendMessage(ctx context.Context, request *MessageRequest) (*MessageResponse, error)
	GetUsage(tenantID int) (*quota.Usage, error)
}

type MessageUseCase struct {
	quotaUseCase quota.IQuotaUseCase
	gateway      dispatch.IMessageGateway
	Logger       *logger.Logger
}

func NewMessageUseCase(
	quotaUseCase quota.IQuotaUseCase,
	gateway dispatch.IMessageGateway,
	loggerInstance *logger.Logger,
) IMessageUseCase {
	return &MessageUseCase{
		quotaUseCase: quotaUseCase,
		gateway:      gateway,
		Logger:       loggerInstance,
	}
}

// SendMessage dispatches one message immediately, gated by the tenant's
// quota ledger. The reservation is released when the gateway rejects the
// message so only successful dispatches count against the limit.
func (u *MessageUseCase) SendMessage(ctx context.Context, request *MessageRequest) (*MessageResponse, error) {
	reserved, err := u.quotaUseCase.TryReserve(request.TenantID)
	if err != nil {
		return nil, err
	}
	if !reserved {
		u.Logger.Warn("Interactive send refused, quota exhausted", zap.Int("tenantID", request.TenantID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.QuotaExceeded)
	}

	result, sendErr := u.dispatch(ctx, request)
	if sendErr != nil {
		if releaseErr := u.quotaUseCase.Release(request.TenantID); releaseErr != nil {
			u.Logger.Error("Error releasing quota reservation", zap.Error(releaseErr), zap.Int("tenantID", request.TenantID))
		}
		u.Logger.Warn("Interactive send failed",
			zap.Int("tenantID", request.TenantID),
			zap.String("to", request.To),
			zap.Error(sendErr))
		return nil, sendErr
	}

	u.Logger.Info("Interactive message sent",
		zap.Int("tenantID", request.TenantID),
		zap.String("to", request.To),
		zap.String("providerMessageID", result.MessageID))

	return &MessageResponse{
		ProviderMessageID: result.MessageID,
		Status:            "sent",
	}, nil
}

func (u *MessageUseCase) GetUsage(tenantID int) (*quota.Usage, error) {
	return u.quotaUseCase.GetUsage(tenantID)
}

func (u *MessageUseCase) dispatch(ctx context.Context, request *MessageRequest) (*dispatch.SendResult, error) {
	switch request.MessageType {
	case dispatch.MessageTypeText:
		return u.gateway.SendText(ctx, request.To, request.Body)
	case dispatch.MessageTypeTemplate:
		return u.gateway.SendTemplate(ctx, request.To, dispatch.TemplateParams{
			Name:       request.TemplateName,
			Language:   request.TemplateLanguage,
			Parameters: request.TemplateParams,
		})
	case dispatch.MessageTypeMedia:
		return u.gateway.SendMedia(ctx, request.To, dispatch.MediaPayload{
			Link:     request.MediaLink,
			Filename: request.MediaFilename,
			Caption:  request.MediaCaption,
		})
	}
	return nil, domainErrors.NewAppError(errors.New("unsupported message type"), domainErrors.ValidationError)
}
