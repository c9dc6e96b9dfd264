package middlewares

import (
	"errors"
	"net/http"

	domainErrors "go-whatsapp-crm/src/domain/errors"

	"github.com/gin-gonic/gin"
)

// ErrorHandler maps application errors attached to the context onto HTTP
// status codes after the handler chain has run
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var appErr *domainErrors.AppError
		if !errors.As(err, &appErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		switch appErr.Type {
		case domainErrors.NotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": appErr.Error()})
		case domainErrors.ValidationError:
			c.JSON(http.StatusBadRequest, gin.H{"error": appErr.Error()})
		case domainErrors.NotAuthenticated:
			c.JSON(http.StatusUnauthorized, gin.H{"error": appErr.Error()})
		case domainErrors.NotAuthorized:
			c.JSON(http.StatusForbidden, gin.H{"error": appErr.Error()})
		case domainErrors.QuotaExceeded:
			c.JSON(http.StatusTooManyRequests, gin.H{"error": appErr.Error()})
		case domainErrors.IllegalTransition:
			c.JSON(http.StatusConflict, gin.H{"error": appErr.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
	}
}
