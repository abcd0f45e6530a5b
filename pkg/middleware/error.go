package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"creatorlane-marketplace/pkg/errutil"
)

// Error renders errors recorded on the gin context as JSON responses.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		var be errutil.BaseError
		if errors.As(err.Err, &be) {
			c.AbortWithStatusJSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": err.Error(),
			},
		})
	}
}
