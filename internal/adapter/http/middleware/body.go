package middleware

import (
	"net/http"

	"crypto-invoice-gateway/pkg/apperror"
	"crypto-invoice-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// MaxBodySize rejects requests that declare a larger body up front and caps
// the reader for the rest, so a lying Content-Length still fails binding.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, apperror.ErrPayloadTooLarge())
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
