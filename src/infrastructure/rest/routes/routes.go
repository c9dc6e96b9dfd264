package routes

import (
	"net/http"

	"go-whatsapp-crm/src/infrastructure/di"

	"github.com/gin-gonic/gin"
)

func ApplicationRouter(router *gin.Engine, appContext *di.ApplicationContext) {
	v1 := router.Group("/v1")

	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Service is running",
		})
	})

	SendRoutes(v1, appContext.SendController)
	QuotaRoutes(v1, appContext.QuotaController, appContext)
	ScheduledRoutes(v1, appContext.ScheduledController)
	BroadcastRoutes(v1, appContext.BroadcastController)
}
