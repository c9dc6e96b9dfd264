package routes

import (
	"go-whatsapp-crm/src/infrastructure/di"
	"go-whatsapp-crm/src/infrastructure/rest/controllers/quota"
	"go-whatsapp-crm/src/infrastructure/rest/middlewares"

	"github.com/gin-gonic/gin"
)

func QuotaRoutes(router *gin.RouterGroup, controller quota.IQuotaController, appContext *di.ApplicationContext) {
	quotaRoute := router.Group("/quota")
	quotaRoute.Use(middlewares.AuthJWTMiddleware())
	{
		quotaRoute.GET("/:tenantID/usage", controller.GetUsage)

		// Rollover and plan changes are administrative actions
		quotaRoute.POST("/:tenantID/reset", middlewares.RequiresRoleMiddleware("admin", appContext.Logger), controller.ResetUsage)
		quotaRoute.PUT("/:tenantID/limit", middlewares.RequiresRoleMiddleware("admin", appContext.Logger), controller.SetLimit)
	}
}
