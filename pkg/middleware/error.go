package middleware

import (
	"net/http"

	"advocacy-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error attached to the context. BaseError values map
// to their taxonomy status code; anything else becomes an opaque 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		if c.Writer.Written() {
			return
		}

		if v, ok := err.Err.(errutil.BaseError); ok {
			c.JSON(v.Code.HTTPStatus(), v.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal error",
			},
		})
	}
}
