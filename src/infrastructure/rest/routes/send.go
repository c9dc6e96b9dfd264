package routes

import (
	"go-whatsapp-crm/src/infrastructure/rest/controllers/send"
	"go-whatsapp-crm/src/infrastructure/rest/middlewares"

	"github.com/gin-gonic/gin"
)

func SendRoutes(router *gin.RouterGroup, controller send.ISendController) {
	sendRoute := router.Group("/send")
	sendRoute.Use(middlewares.AuthJWTMiddleware())
	{
		sendRoute.POST("/message", controller.Message)
	}
}
