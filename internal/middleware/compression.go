package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // smallest first write that gets compressed (bytes)
	CompressionLevel int      // gzip level, 1-9
	ContentTypes     []string // content type prefixes to compress
}

// DefaultCompressionConfig compresses JSON, CSV reports and the dashboard page.
// Chart PNGs are already compressed and are left alone.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/csv",
			"text/html",
			"text/plain",
			"text/css",
			"application/javascript",
		},
	}
}

// CompressionMiddleware gzips responses for clients that accept it
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	level := config.CompressionLevel
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}

	return &CompressionMiddleware{
		config: config,
		stats:  &CompressionStats{},
		pool: sync.Pool{
			New: func() interface{} {
				gz, _ := gzip.NewWriterLevel(io.Discard, level)
				return gz
			},
		},
	}
}

// Handler returns the gin middleware. The decision to compress is taken on the
// first write, once the handler has set the content type.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "HEAD" || !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		original := c.Writer
		gzw := &gzipResponseWriter{ResponseWriter: original, cm: cm}
		c.Writer = gzw
		c.Header("Vary", "Accept-Encoding")

		c.Next()

		gzw.finish()
		c.Writer = original
	}
}

func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}

// countingWriter counts the compressed bytes sent downstream
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

type gzipResponseWriter struct {
	gin.ResponseWriter
	cm *CompressionMiddleware

	decided  bool
	gz       *gzip.Writer
	counter  *countingWriter
	original int64
}

func (gzw *gzipResponseWriter) decide(first []byte) {
	gzw.decided = true

	h := gzw.Header()
	if gzw.ResponseWriter.Written() || h.Get("Content-Encoding") != "" {
		return
	}
	if len(first) < gzw.cm.config.MinSize || !gzw.cm.shouldCompress(h.Get("Content-Type")) {
		return
	}

	h.Set("Content-Encoding", "gzip")
	h.Del("Content-Length")

	gzw.counter = &countingWriter{w: gzw.ResponseWriter}
	gzw.gz = gzw.cm.pool.Get().(*gzip.Writer)
	gzw.gz.Reset(gzw.counter)
}

// Write compresses data when the first write qualified for it
func (gzw *gzipResponseWriter) Write(data []byte) (int, error) {
	if !gzw.decided {
		gzw.decide(data)
	}
	if gzw.gz == nil {
		return gzw.ResponseWriter.Write(data)
	}

	gzw.original += int64(len(data))
	return gzw.gz.Write(data)
}

func (gzw *gzipResponseWriter) WriteString(s string) (int, error) {
	return gzw.Write([]byte(s))
}

// Flush flushes the gzip writer before the underlying writer
func (gzw *gzipResponseWriter) Flush() {
	if gzw.gz != nil {
		_ = gzw.gz.Flush()
	}
	gzw.ResponseWriter.Flush()
}

func (gzw *gzipResponseWriter) finish() {
	if gzw.gz == nil {
		if gzw.decided {
			gzw.cm.stats.RecordRequest(int64(gzw.ResponseWriter.Size()), 0, false)
		}
		return
	}

	_ = gzw.gz.Close()
	gzw.gz.Reset(io.Discard)
	gzw.cm.pool.Put(gzw.gz)
	gzw.gz = nil

	gzw.cm.stats.RecordRequest(gzw.original, gzw.counter.n, true)
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	originalCompressed int64
}

// RecordRequest records one response. originalSize is the uncompressed body
// size.
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	atomic.AddInt64(&cs.TotalRequests, 1)
	atomic.AddInt64(&cs.TotalBytes, originalSize)

	if compressed {
		atomic.AddInt64(&cs.CompressedRequests, 1)
		atomic.AddInt64(&cs.CompressedBytes, compressedSize)
		atomic.AddInt64(&cs.originalCompressed, originalSize)
	}
}

// GetStats returns current compression statistics. The ratio only covers
// responses that were compressed.
func (cs *CompressionStats) GetStats() map[string]interface{} {
	compressedBytes := atomic.LoadInt64(&cs.CompressedBytes)
	originalCompressed := atomic.LoadInt64(&cs.originalCompressed)

	ratio := 0.0
	if originalCompressed > 0 {
		ratio = float64(compressedBytes) / float64(originalCompressed)
	}

	return map[string]interface{}{
		"total_requests":      atomic.LoadInt64(&cs.TotalRequests),
		"compressed_requests": atomic.LoadInt64(&cs.CompressedRequests),
		"total_bytes":         atomic.LoadInt64(&cs.TotalBytes),
		"compressed_bytes":    compressedBytes,
		"compression_ratio":   ratio,
	}
}
