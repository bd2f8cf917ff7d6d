package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/cache"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/middleware"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/monitoring"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/ratelimit"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/security"
)

// Routes served from the response cache.
var cachedRoutes = []string{"/v1/score", "/v1/score/predictions"}

// RouterConfig collects what the router mounts. Cache, RateLimiter and
// Compression are optional.
type RouterConfig struct {
	Handler     *Handler
	Logger      *monitoring.Logger
	Cache       *cache.Cache
	RateLimiter *ratelimit.RateLimiter
	Compression *middleware.CompressionMiddleware
	Security    security.Config
	CORSOrigins []string
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	corsMiddleware, err := corsHandler(cfg.CORSOrigins)
	if err != nil {
		return nil, err
	}

	// Trial numbers must reach the validator exactly as sent.
	binding.EnableDecoderUseNumber = true

	h := cfg.Handler
	r := gin.New()

	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(h.metrics, cfg.Logger))
	r.Use(apperrors.RecoveryHandler())
	if cfg.Compression != nil {
		r.Use(cfg.Compression.Handler())
		h.RegisterStats("compression", cfg.Compression.GetStats)
	}
	r.Use(apperrors.ErrorHandler())
	r.Use(security.Headers(cfg.Security))
	r.Use(corsMiddleware)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "path": c.Request.URL.Path})
	})

	r.GET("/health", h.Health)
	r.GET("/metrics", h.Metrics)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/v1")
	v1.Use(security.RequestTimeout(cfg.Security))
	if cfg.RateLimiter != nil {
		v1.Use(cfg.RateLimiter.IPRateLimitMiddleware())
		h.RegisterStats("rate_limiter", cfg.RateLimiter.GetStats)
	}
	v1.GET("/reference", h.Reference)
	v1.GET("/rules", h.Rules)

	post := v1.Group("")
	post.Use(security.LimitBody(cfg.Security), security.RequireJSON())
	if cfg.Cache != nil {
		post.Use(cfg.Cache.Middleware(h.metrics, cfg.Logger, cachedRoutes...))
		h.RegisterStats("cache", cfg.Cache.Stats)
	}
	post.POST("/validate", h.Validate)
	post.POST("/assemble", h.Assemble)
	post.POST("/score", h.Score)
	post.POST("/score/predictions", h.ScorePredictions)

	return r, nil
}

func corsHandler(origins []string) (gin.HandlerFunc, error) {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", monitoring.RequestIDHeader},
		ExposeHeaders: []string{monitoring.RequestIDHeader, "X-Cache", "Content-Encoding", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", ScoringUnavailableHeader},
		MaxAge:        12 * time.Hour,
	}

	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("invalid CORS origins %v", origins), err)
	}
	return cors.New(cfg), nil
}
