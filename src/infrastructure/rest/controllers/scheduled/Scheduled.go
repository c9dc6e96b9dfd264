package scheduled

import (
	"errors"
	"net/http"

	"go-whatsapp-crm/src/application/usecases/scheduled"
	"go-whatsapp-crm/src/domain/common"
	"go-whatsapp-crm/src/domain/dispatch"
	domainErrors "go-whatsapp-crm/src/domain/errors"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type IScheduledController interface {
	Create(c *gin.Context)
	Cancel(c *gin.Context)
	GetByID(c *gin.Context)
	List(c *gin.Context)
}

type ScheduledController struct {
	commonService    common.CommonService
	scheduledUseCase scheduled.IScheduledMessageUseCase
	Logger           *logger.Logger
}

func NewScheduledController(
	commonService common.CommonService,
	scheduledUseCase scheduled.IScheduledMessageUseCase,
	loggerInstance *logger.Logger,
) IScheduledController {
	return &ScheduledController{
		commonService:    commonService,
		scheduledUseCase: scheduledUseCase,
		Logger:           loggerInstance,
	}
}

func (c *ScheduledController) Create(ctx *gin.Context) {
	var request CreateScheduledMessageRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		c.Logger.Error("Couldn't process request - invalid request", zap.Error(err))
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.commonService.AppendValidationErrors(ctx, ve, request)
			return
		}
		ctx.AbortWithError(http.StatusBadRequest, err)
		return
	}

	userID := ctx.GetInt("userID")
	message, err := c.scheduledUseCase.Create(&scheduled.CreateRequest{
		TenantID:          request.TenantID,
		ContactID:         request.ContactID,
		Phone:             request.Phone,
		Body:              request.Body,
		MessageType:       dispatch.MessageType(request.Type),
		TemplateName:      request.TemplateName,
		TemplateLanguage:  request.TemplateLanguage,
		ScheduledAt:       request.ScheduledAt,
		IsRecurring:       request.IsRecurring,
		RecurrencePattern: dispatch.RecurrencePattern(request.RecurrencePattern),
		RecurrenceEndsAt:  request.RecurrenceEndsAt,
		CreatedBy:         userID,
	})
	if err != nil {
		if domainErrors.TypeOf(err) == domainErrors.ValidationError {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Logger.Error("Error creating scheduled message", zap.Error(err), zap.Int("tenantID", request.TenantID))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating scheduled message"})
		return
	}

	c.Logger.Info("Scheduled message created",
		zap.Int("id", message.ID),
		zap.Int("tenantID", message.TenantID),
		zap.Time("scheduledAt", message.ScheduledAt))
	ctx.JSON(http.StatusCreated, toResponse(message))
}

// Cancel withdraws a pending message. Rows already claimed or in a terminal
// state are not cancellable.
func (c *ScheduledController) Cancel(ctx *gin.Context) {
	var uri IDURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	if err := c.scheduledUseCase.Cancel(uri.ID); err != nil {
		switch domainErrors.TypeOf(err) {
		case domainErrors.NotFound:
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Scheduled message not found"})
		case domainErrors.IllegalTransition:
			ctx.JSON(http.StatusConflict, gin.H{"error": "Scheduled message is not pending"})
		default:
			c.Logger.Error("Error cancelling scheduled message", zap.Error(err), zap.Int("id", uri.ID))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error cancelling scheduled message"})
		}
		return
	}

	c.Logger.Info("Scheduled message cancelled", zap.Int("id", uri.ID))
	ctx.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (c *ScheduledController) GetByID(ctx *gin.Context) {
	var uri IDURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	message, err := c.scheduledUseCase.GetByID(uri.ID)
	if err != nil {
		if domainErrors.TypeOf(err) == domainErrors.NotFound {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Scheduled message not found"})
			return
		}
		c.Logger.Error("Error getting scheduled message", zap.Error(err), zap.Int("id", uri.ID))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error getting scheduled message"})
		return
	}

	ctx.JSON(http.StatusOK, toResponse(message))
}

func (c *ScheduledController) List(ctx *gin.Context) {
	var query ListQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 50
	}

	messages, err := c.scheduledUseCase.ListByTenant(query.TenantID, query.Limit, query.Offset)
	if err != nil {
		c.Logger.Error("Error listing scheduled messages", zap.Error(err), zap.Int("tenantID", query.TenantID))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing scheduled messages"})
		return
	}

	response := make([]*ScheduledMessageResponse, 0, len(*messages))
	for i := range *messages {
		response = append(response, toResponse(&(*messages)[i]))
	}
	ctx.JSON(http.StatusOK, response)
}

func toResponse(m *dispatch.ScheduledMessage) *ScheduledMessageResponse {
	return &ScheduledMessageResponse{
		ID:                m.ID,
		TenantID:          m.TenantID,
		ContactID:         m.ContactID,
		Phone:             m.Phone,
		Type:              string(m.MessageType),
		Body:              m.Body,
		TemplateName:      m.TemplateName,
		TemplateLanguage:  m.TemplateLanguage,
		ScheduledAt:       m.ScheduledAt,
		Status:            string(m.Status),
		IsRecurring:       m.IsRecurring,
		RecurrencePattern: string(m.RecurrencePattern),
		RecurrenceEndsAt:  m.RecurrenceEndsAt,
		ProviderMessageID: m.ProviderMessageID,
		ErrorMessage:      m.ErrorMessage,
		SentAt:            m.SentAt,
		CreatedAt:         m.CreatedAt,
	}
}
