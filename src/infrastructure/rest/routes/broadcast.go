package routes

import (
	"go-whatsapp-crm/src/infrastructure/rest/controllers/broadcast"
	"go-whatsapp-crm/src/infrastructure/rest/middlewares"

	"github.com/gin-gonic/gin"
)

func BroadcastRoutes(router *gin.RouterGroup, controller broadcast.IBroadcastController) {
	broadcastRoute := router.Group("/broadcasts")
	broadcastRoute.Use(middlewares.AuthJWTMiddleware())
	{
		broadcastRoute.POST("", controller.Create)
		broadcastRoute.GET("", controller.List)
		broadcastRoute.GET("/:id", controller.GetByID)
		broadcastRoute.POST("/:id/schedule", controller.Schedule)
		broadcastRoute.POST("/:id/cancel", controller.Cancel)
		broadcastRoute.DELETE("/:id", controller.Delete)
	}
}
