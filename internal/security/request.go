package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/aysenursarun/ChurnGuard-AI/internal/errors"
)

var allowedContentTypes = []string{
	"application/json",
	"multipart/form-data",
}

// ValidateContentType rejects request bodies that are neither JSON nor
// multipart uploads
func ValidateContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength == 0 && c.GetHeader("Content-Type") == "" {
			c.Next()
			return
		}

		contentType := strings.ToLower(c.GetHeader("Content-Type"))
		for _, allowed := range allowedContentTypes {
			if strings.HasPrefix(contentType, allowed) {
				c.Next()
				return
			}
		}

		appErr := apperrors.NewValidationError("unsupported content type", "Content-Type")
		appErr.HTTPStatus = http.StatusUnsupportedMediaType
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
	}
}

// LimitBody caps the request body at maxBytes. Reads past the limit fail with
// *http.MaxBytesError.
func LimitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RequestTimeout attaches a deadline to the request context
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Timeout", strconv.Itoa(int(timeout.Seconds())))

		c.Next()
	}
}
