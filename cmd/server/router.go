package main

import (
	"html/template"
	"io/fs"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/aysenursarun/ChurnGuard-AI/internal/cache"
	"github.com/aysenursarun/ChurnGuard-AI/internal/config"
	"github.com/aysenursarun/ChurnGuard-AI/internal/errors"
	"github.com/aysenursarun/ChurnGuard-AI/internal/frontend"
	"github.com/aysenursarun/ChurnGuard-AI/internal/middleware"
	"github.com/aysenursarun/ChurnGuard-AI/internal/monitoring"
	"github.com/aysenursarun/ChurnGuard-AI/internal/ratelimit"
	"github.com/aysenursarun/ChurnGuard-AI/internal/scoring"
	"github.com/aysenursarun/ChurnGuard-AI/internal/security"
	"github.com/aysenursarun/ChurnGuard-AI/internal/session"
)

const requestTimeout = 60 * time.Second

// Server holds the shared state behind every handler. The scoring engine and
// its artifacts are read-only; sessions are the only mutable state.
type Server struct {
	cfg      *config.Config
	engine   *scoring.Engine
	sessions *session.Store
	limiter  *ratelimit.RateLimiter
	metrics  *monitoring.Metrics
	logger   *monitoring.Logger
	gzip     *middleware.CompressionMiddleware
	views    *cache.Cache

	dashboard     fs.FS
	indexTemplate *template.Template
}

// NewServer wires the handlers. dashboard may be nil, in which case "/" is not
// served.
func NewServer(cfg *config.Config, engine *scoring.Engine, sessions *session.Store, limiter *ratelimit.RateLimiter,
	metrics *monitoring.Metrics, logger *monitoring.Logger, dashboard fs.FS) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		engine:    engine,
		sessions:  sessions,
		limiter:   limiter,
		metrics:   metrics,
		logger:    logger,
		gzip:      middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		views:     cache.NewCache(cfg.SessionTTL, time.Minute),
		dashboard: dashboard,
	}

	if dashboard != nil {
		tmpl, err := frontend.LoadIndexTemplate(dashboard)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.indexTemplate = tmpl
	}

	return s, nil
}

// Router builds the gin engine with the full middleware chain
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = s.cfg.MaxUploadBytes

	// Monitoring first so it observes every request
	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger, s.cfg.MaxUploadBytes))

	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	corsConfig := cors.DefaultConfig()
	if s.cfg.AllowAllOrigins() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", monitoring.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{monitoring.RequestIDHeader, "Retry-After"}
	r.Use(cors.New(corsConfig))

	r.Use(security.SecurityHeadersMiddleware(s.cfg.EnableHSTS))
	r.Use(security.RequestTimeout(requestTimeout))
	r.Use(s.gzip.Handler())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	api.Use(s.limiter.IPRateLimitMiddleware())
	api.Use(security.ValidateContentType())
	{
		api.GET("/model", s.handleModel)
		api.GET("/ratelimit", s.limiter.HandleRateLimitStatus())

		scoringLimit := s.limiter.EndpointRateLimitMiddleware("scoring", s.cfg.ScanLimitPerMin)
		api.POST("/predict", scoringLimit, s.handlePredict)

		datasets := api.Group("/datasets")
		datasets.POST("", security.LimitBody(s.cfg.MaxUploadBytes), s.handleUpload)
		datasets.POST("/default", s.handleLoadDefault)
		datasets.GET("/:id", s.handleGetDataset)
		cached := s.views.Middleware(s.metrics, s.sessionExists)
		datasets.GET("/:id/analytics", cached, s.handleAnalytics)
		datasets.GET("/:id/strategy", cached, s.handleStrategy)
		datasets.GET("/:id/charts/:chart", cached, s.handleChart)
		datasets.POST("/:id/scan", scoringLimit, s.handleScan)
		datasets.GET("/:id/report.csv", scoringLimit, s.handleReport)
	}

	if s.dashboard != nil {
		page := r.Group("/", security.CSPMiddleware())
		page.GET("/", frontend.NewDashboardHandler(s.dashboard, s.indexTemplate, s.modelBadge))
	}

	return r
}

// Close stops background work owned by the server
func (s *Server) Close() {
	s.views.Close()
}

func (s *Server) sessionExists(c *gin.Context) bool {
	_, err := s.sessions.Get(c.Param("id"))
	return err == nil
}

func (s *Server) modelBadge() (string, string, bool) {
	a, err := s.engine.Artifacts()
	if err != nil {
		return "", "", false
	}
	info := a.Info()
	return info.Name, info.Version, true
}
