package send

import (
	"errors"
	"net/http"

	"go-whatsapp-crm/src/application/usecases/send"
	"go-whatsapp-crm/src/domain/common"
	"go-whatsapp-crm/src/domain/dispatch"
	domainErrors "go-whatsapp-crm/src/domain/errors"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type ISendController interface {
	Message(c *gin.Context)
}

type SendController struct {
	commonService  common.CommonService
	messageUseCase send.IMessageUseCase
	Logger         *logger.Logger
}

func NewSendController(
	commonService common.CommonService,
	messageUseCase send.IMessageUseCase,
	loggerInstance *logger.Logger,
) ISendController {
	return &SendController{
		commonService:  commonService,
		messageUseCase: messageUseCase,
		Logger:         loggerInstance,
	}
}

// Message sends one message immediately through the provider, charging the
// tenant's quota on success
func (c *SendController) Message(ctx *gin.Context) {
	var request MessageRequest
	err := ctx.ShouldBindJSON(&request)
	if err != nil {
		c.Logger.Error("Couldn't process request - invalid request", zap.Error(err))
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.commonService.AppendValidationErrors(ctx, ve, request)
			return
		}
		ctx.AbortWithError(http.StatusBadRequest, err)
		return
	}

	useCaseRequest := &send.MessageRequest{
		TenantID:         request.TenantID,
		To:               request.To,
		MessageType:      dispatch.MessageType(request.Type),
		Body:             request.Body,
		TemplateName:     request.TemplateName,
		TemplateLanguage: request.TemplateLanguage,
		TemplateParams:   request.TemplateParams,
		MediaLink:        request.MediaLink,
		MediaFilename:    request.MediaFilename,
		MediaCaption:     request.MediaCaption,
	}

	useCaseResponse, err := c.messageUseCase.SendMessage(ctx.Request.Context(), useCaseRequest)
	if err != nil {
		c.handleSendError(ctx, &request, err)
		return
	}

	c.Logger.Info("Message sent",
		zap.Int("tenantID", request.TenantID),
		zap.String("providerMessageID", useCaseResponse.ProviderMessageID))

	ctx.JSON(http.StatusOK, &MessageResponse{
		ProviderMessageID: useCaseResponse.ProviderMessageID,
		Status:            useCaseResponse.Status,
	})
}

func (c *SendController) handleSendError(ctx *gin.Context, request *MessageRequest, err error) {
	if domainErrors.TypeOf(err) == domainErrors.QuotaExceeded {
		response := &QuotaExceededResponse{Error: "Monthly message quota exceeded"}
		if usage, usageErr := c.messageUseCase.GetUsage(request.TenantID); usageErr == nil {
			response.Sent = usage.Sent
			response.Limit = usage.Limit
			response.Remaining = usage.Remaining
		}
		ctx.JSON(http.StatusTooManyRequests, response)
		return
	}

	if dispatch.IsReengagementRequired(err) {
		// Free-form messages are rejected outside the 24 hour customer
		// service window; only an approved template can reopen it.
		c.Logger.Warn("Send rejected outside re-engagement window",
			zap.Int("tenantID", request.TenantID),
			zap.String("to", request.To))
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "Recipient is outside the 24 hour messaging window, send an approved template message instead",
		})
		return
	}

	if domainErrors.TypeOf(err) == domainErrors.ValidationError {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Logger.Error("Error sending message", zap.Error(err), zap.Int("tenantID", request.TenantID))
	ctx.JSON(http.StatusBadGateway, gin.H{"error": "Error sending message"})
}
