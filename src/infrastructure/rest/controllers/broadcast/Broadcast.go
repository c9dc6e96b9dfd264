package broadcast

import (
	"errors"
	"net/http"

	"go-whatsapp-crm/src/application/usecases/broadcast"
	"go-whatsapp-crm/src/domain/common"
	"go-whatsapp-crm/src/domain/dispatch"
	domainErrors "go-whatsapp-crm/src/domain/errors"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type IBroadcastController interface {
	Create(c *gin.Context)
	Schedule(c *gin.Context)
	Cancel(c *gin.Context)
	Delete(c *gin.Context)
	GetByID(c *gin.Context)
	List(c *gin.Context)
}

type BroadcastController struct {
	commonService    common.CommonService
	broadcastUseCase broadcast.IBroadcastUseCase
	Logger           *logger.Logger
}

func NewBroadcastController(
	commonService common.CommonService,
	broadcastUseCase broadcast.IBroadcastUseCase,
	loggerInstance *logger.Logger,
) IBroadcastController {
	return &BroadcastController{
		commonService:    commonService,
		broadcastUseCase: broadcastUseCase,
		Logger:           loggerInstance,
	}
}

func (c *BroadcastController) Create(ctx *gin.Context) {
	var request CreateBroadcastRequest
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

	recipients := make([]broadcast.RecipientInput, 0, len(request.Recipients))
	for _, r := range request.Recipients {
		recipients = append(recipients, broadcast.RecipientInput{
			ContactID: r.ContactID,
			Phone:     r.Phone,
		})
	}

	created, err := c.broadcastUseCase.Create(&broadcast.CreateRequest{
		TenantID:         request.TenantID,
		Name:             request.Name,
		Body:             request.Body,
		MessageType:      dispatch.MessageType(request.Type),
		TemplateName:     request.TemplateName,
		TemplateLanguage: request.TemplateLanguage,
		ScheduledAt:      request.ScheduledAt,
		Recipients:       recipients,
	})
	if err != nil {
		if domainErrors.TypeOf(err) == domainErrors.ValidationError {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Logger.Error("Error creating broadcast", zap.Error(err), zap.Int("tenantID", request.TenantID))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error creating broadcast"})
		return
	}

	c.Logger.Info("Broadcast created",
		zap.Int("id", created.ID),
		zap.Int("tenantID", created.TenantID),
		zap.Int("recipients", created.TotalRecipients))
	ctx.JSON(http.StatusCreated, toResponse(created))
}

func (c *BroadcastController) Schedule(ctx *gin.Context) {
	var uri IDURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid broadcast ID"})
		return
	}

	var request ScheduleBroadcastRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.commonService.AppendValidationErrors(ctx, ve, request)
			return
		}
		ctx.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := c.broadcastUseCase.Schedule(uri.ID, request.ScheduledAt); err != nil {
		c.transitionError(ctx, err, uri.ID, "Broadcast is not a draft")
		return
	}

	c.Logger.Info("Broadcast scheduled", zap.Int("id", uri.ID), zap.Time("scheduledAt", request.ScheduledAt))
	ctx.JSON(http.StatusOK, gin.H{"status": "scheduled"})
}

func (c *BroadcastController) Cancel(ctx *gin.Context) {
	var uri IDURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid broadcast ID"})
		return
	}

	if err := c.broadcastUseCase.Cancel(uri.ID); err != nil {
		c.transitionError(ctx, err, uri.ID, "Broadcast is already finished")
		return
	}

	c.Logger.Info("Broadcast cancelled", zap.Int("id", uri.ID))
	ctx.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// Delete removes a broadcast and its recipients. A broadcast that is mid
// fan-out must be cancelled first.
func (c *BroadcastController) Delete(ctx *gin.Context) {
	var uri IDURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid broadcast ID"})
		return
	}

	if err := c.broadcastUseCase.Delete(uri.ID); err != nil {
		c.transitionError(ctx, err, uri.ID, "Broadcast is currently sending")
		return
	}

	c.Logger.Info("Broadcast deleted", zap.Int("id", uri.ID))
	ctx.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (c *BroadcastController) GetByID(ctx *gin.Context) {
	var uri IDURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid broadcast ID"})
		return
	}

	b, err := c.broadcastUseCase.GetByID(uri.ID)
	if err != nil {
		if domainErrors.TypeOf(err) == domainErrors.NotFound {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Broadcast not found"})
			return
		}
		c.Logger.Error("Error getting broadcast", zap.Error(err), zap.Int("id", uri.ID))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error getting broadcast"})
		return
	}

	ctx.JSON(http.StatusOK, toResponse(b))
}

func (c *BroadcastController) List(ctx *gin.Context) {
	var query ListQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 50
	}

	broadcasts, err := c.broadcastUseCase.ListByTenant(query.TenantID, query.Limit, query.Offset)
	if err != nil {
		c.Logger.Error("Error listing broadcasts", zap.Error(err), zap.Int("tenantID", query.TenantID))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing broadcasts"})
		return
	}

	response := make([]*BroadcastResponse, 0, len(*broadcasts))
	for i := range *broadcasts {
		response = append(response, toResponse(&(*broadcasts)[i]))
	}
	ctx.JSON(http.StatusOK, response)
}

func (c *BroadcastController) transitionError(ctx *gin.Context, err error, id int, conflictMessage string) {
	switch domainErrors.TypeOf(err) {
	case domainErrors.NotFound:
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Broadcast not found"})
	case domainErrors.IllegalTransition:
		ctx.JSON(http.StatusConflict, gin.H{"error": conflictMessage})
	default:
		c.Logger.Error("Error updating broadcast", zap.Error(err), zap.Int("id", id))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error updating broadcast"})
	}
}

func toResponse(b *dispatch.Broadcast) *BroadcastResponse {
	return &BroadcastResponse{
		ID:               b.ID,
		TenantID:         b.TenantID,
		Name:             b.Name,
		Type:             string(b.MessageType),
		Body:             b.Body,
		TemplateName:     b.TemplateName,
		TemplateLanguage: b.TemplateLanguage,
		ScheduledAt:      b.ScheduledAt,
		Status:           string(b.Status),
		StartedAt:        b.StartedAt,
		CompletedAt:      b.CompletedAt,
		TotalRecipients:  b.TotalRecipients,
		SentCount:        b.SentCount,
		FailedCount:      b.FailedCount,
		SuccessRate:      b.SuccessRate(),
		CreatedAt:        b.CreatedAt,
	}
}
