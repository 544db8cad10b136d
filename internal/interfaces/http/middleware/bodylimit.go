package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/salesboard/backend/internal/interfaces/http/dto"
)

// BodyLimit caps request body size. Backfill and rebuild requests carry
// short date lists, so anything near the limit is malformed or hostile.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
				dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size",
			))
			return
		}

		// Chunked requests have no Content-Length; cap those while reading.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
