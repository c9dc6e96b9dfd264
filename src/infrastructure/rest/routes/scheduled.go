package routes

import (
	"go-whatsapp-crm/src/infrastructure/rest/controllers/scheduled"
	"go-whatsapp-crm/src/infrastructure/rest/middlewares"

	"github.com/gin-gonic/gin"
)

func ScheduledRoutes(router *gin.RouterGroup, controller scheduled.IScheduledController) {
	scheduledRoute := router.Group("/scheduled-messages")
	scheduledRoute.Use(middlewares.AuthJWTMiddleware())
	{
		scheduledRoute.POST("", controller.Create)
		scheduledRoute.GET("", controller.List)
		scheduledRoute.GET("/:id", controller.GetByID)
		scheduledRoute.POST("/:id/cancel", controller.Cancel)
	}
}
