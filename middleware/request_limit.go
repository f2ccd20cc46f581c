package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-document-platform/utils"
)

// RequestSizeLimit rejects declared bodies over maxSize up front and caps the
// reader for chunked or understated ones.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithTooLarge(c, utils.CodeRequestTooLarge,
				"Request body exceeds maximum size", maxSize, c.Request.ContentLength)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
