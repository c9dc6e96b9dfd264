package quota

import (
	"errors"
	"net/http"

	"go-whatsapp-crm/src/application/usecases/quota"
	"go-whatsapp-crm/src/domain/common"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type IQuotaController interface {
	GetUsage(c *gin.Context)
	ResetUsage(c *gin.Context)
	SetLimit(c *gin.Context)
}

type QuotaController struct {
	commonService common.CommonService
	quotaUseCase  quota.IQuotaUseCase
	Logger        *logger.Logger
}

func NewQuotaController(
	commonService common.CommonService,
	quotaUseCase quota.IQuotaUseCase,
	loggerInstance *logger.Logger,
) IQuotaController {
	return &QuotaController{
		commonService: commonService,
		quotaUseCase:  quotaUseCase,
		Logger:        loggerInstance,
	}
}

func (c *QuotaController) GetUsage(ctx *gin.Context) {
	var request TenantURI
	if err := ctx.ShouldBindUri(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
		return
	}

	usage, err := c.quotaUseCase.GetUsage(request.TenantID)
	if err != nil {
		c.Logger.Error("Error getting quota usage", zap.Error(err), zap.Int("tenantID", request.TenantID))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error getting quota usage"})
		return
	}

	ctx.JSON(http.StatusOK, &UsageResponse{
		TenantID:  usage.TenantID,
		Sent:      usage.Sent,
		Limit:     usage.Limit,
		Remaining: usage.Remaining,
	})
}

// ResetUsage zeroes the tenant counter at the billing rollover. The limit is
// left untouched.
func (c *QuotaController) ResetUsage(ctx *gin.Context) {
	var request TenantURI
	if err := ctx.ShouldBindUri(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
		return
	}

	if err := c.quotaUseCase.ResetUsage(request.TenantID); err != nil {
		c.Logger.Error("Error resetting quota usage", zap.Error(err), zap.Int("tenantID", request.TenantID))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error resetting quota usage"})
		return
	}

	c.Logger.Info("Quota usage reset", zap.Int("tenantID", request.TenantID))
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (c *QuotaController) SetLimit(ctx *gin.Context) {
	var uri TenantURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
		return
	}

	var request SetLimitRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.commonService.AppendValidationErrors(ctx, ve, request)
			return
		}
		ctx.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := c.quotaUseCase.SetLimit(uri.TenantID, request.Limit); err != nil {
		c.Logger.Error("Error setting quota limit", zap.Error(err), zap.Int("tenantID", uri.TenantID))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error setting quota limit"})
		return
	}

	c.Logger.Info("Quota limit updated", zap.Int("tenantID", uri.TenantID), zap.Int64("limit", request.Limit))
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
