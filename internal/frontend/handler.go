package frontend

import (
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/aysenursarun/ChurnGuard-AI/internal/errors"
	"github.com/aysenursarun/ChurnGuard-AI/internal/security"
)

// ModelBadge supplies the model details shown in the page header
type ModelBadge func() (name, version string, available bool)

// NewDashboardHandler serves static files from fsys and renders the index for
// every other path
func NewDashboardHandler(fsys fs.FS, indexTemplate *template.Template, badge ModelBadge) gin.HandlerFunc {
	fileServer := http.FileServer(http.FS(fsys))

	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if cleanPath := strings.TrimPrefix(path, "/"); cleanPath != "" && cleanPath != "index.html" {
			if _, err := fs.Stat(fsys, cleanPath); err == nil {
				c.Header("Cache-Control", "public, max-age=3600")
				fileServer.ServeHTTP(c.Writer, c.Request)
				return
			}
		}

		nonce := security.GetNonce(c)
		if nonce == "" {
			var err error
			if nonce, err = security.GenerateNonce(); err != nil {
				appErr := apperrors.NewInternalError("nonce generation failed", err)
				c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
				return
			}
		}

		data := PageData{Nonce: nonce}
		if badge != nil {
			data.ModelName, data.ModelVersion, data.ModelAvailable = badge()
		}

		if err := RenderIndex(c, indexTemplate, data); err != nil {
			slog.Error("Failed to render index.html", "error", err, "path", path)
			appErr := apperrors.NewInternalError("failed to render page", err)
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
		}
	}
}
