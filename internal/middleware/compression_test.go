package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(cm *CompressionMiddleware) *gin.Engine {
	r := gin.New()
	r.Use(cm.Handler())
	big := strings.Repeat("customer,0.91\n", 200)
	r.GET("/report.csv", func(c *gin.Context) { c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(big)) })
	r.GET("/small", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/chart.png", func(c *gin.Context) { c.Data(http.StatusOK, "image/png", []byte(big)) })
	return r
}

func TestCompressionMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		acceptEncoding string
		wantGzip       bool
	}{
		{name: "large csv", path: "/report.csv", acceptEncoding: "gzip, deflate", wantGzip: true},
		{name: "client without gzip", path: "/report.csv"},
		{name: "small json", path: "/small", acceptEncoding: "gzip"},
		{name: "png", path: "/chart.png", acceptEncoding: "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := NewCompressionMiddleware(DefaultCompressionConfig())
			router := newRouter(cm)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)

			if !tt.wantGzip {
				assert.Empty(t, w.Header().Get("Content-Encoding"))
				return
			}

			assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			gz, err := gzip.NewReader(w.Body)
			require.NoError(t, err)
			body, err := io.ReadAll(gz)
			require.NoError(t, err)
			assert.Equal(t, strings.Repeat("customer,0.91\n", 200), string(body))

			stats := cm.GetStats()
			assert.Equal(t, int64(1), stats["compressed_requests"])
			assert.Less(t, stats["compression_ratio"].(float64), 1.0)
		})
	}
}

func TestShouldCompress(t *testing.T) {
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	assert.True(t, cm.shouldCompress("application/json; charset=utf-8"))
	assert.True(t, cm.shouldCompress("text/csv"))
	assert.False(t, cm.shouldCompress("image/png"))
	assert.False(t, cm.shouldCompress(""))
}
