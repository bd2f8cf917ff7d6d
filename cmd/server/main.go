package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	_ "github.com/ZanzyTHEbar/trial-diversity-twin/docs"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/api"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/cache"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/config"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/middleware"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/monitoring"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/pipeline"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/predictor"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/ratelimit"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/resilience"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/security"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

// server owns everything that has to be stopped on shutdown.
type server struct {
	http    *http.Server
	cache   *cache.Cache
	limiter *ratelimit.RateLimiter
	logger  *monitoring.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := monitoring.NewLogger(monitoring.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger.Logger)
	gin.SetMode(cfg.GinMode)

	srv, err := newServer(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "version", version)
		if err := srv.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("Server exited")
}

// newServer loads the artifacts, connects the predictor and builds the router.
// A predictor that is configured but unreachable only degrades the service;
// an incompatible one stops startup.
func newServer(ctx context.Context, cfg config.Config, logger *monitoring.Logger) (*server, error) {
	bundle, err := artifacts.Load(artifacts.Options{
		Path:     cfg.ArtifactsPath,
		Workbook: cfg.ReferenceWorkbook,
		Profile:  cfg.ReferenceProfile,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Artifacts loaded",
		"version", bundle.Version,
		"profile", bundle.Profile,
		"fingerprint", bundle.Fingerprint,
	)

	metrics := monitoring.NewMetrics()
	breakers := resilience.NewRegistry()

	var pred predictor.Predictor
	mode := "none"
	if cfg.PredictorURL != "" {
		pred = predictor.NewHTTPPredictor(predictor.HTTPConfig{
			BaseURL: cfg.PredictorURL,
			Timeout: cfg.PredictTimeout,
			Client:  resilience.NewPooledClient(resilience.DefaultClientConfig()),
			Breaker: breakers.GetOrCreate("predictor", resilience.CircuitBreakerConfig{}),
			Logger:  logger,
		})
		mode = "http"
	}

	p, err := pipeline.New(bundle, pipeline.Options{Predictor: pred, Logger: logger, Metrics: metrics})
	if err != nil {
		return nil, err
	}

	if p.HasPredictor() {
		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = cfg.PredictorStartupAttempts
		retry.Retryable = func(err error) bool {
			return !apperrors.IsCategory(err, apperrors.CategoryConfiguration)
		}
		if err := resilience.Retry(ctx, retry, p.CheckPredictor); err != nil {
			if apperrors.IsCategory(err, apperrors.CategoryConfiguration) {
				return nil, err
			}
			logger.Warn("Predictor not reachable at startup, scoring will report unavailable", "error", err)
		}
	} else {
		logger.Warn("No PREDICTOR_URL set, only validation, assembly and supplied-prediction scoring are served")
	}

	s := &server{logger: logger}
	rc := api.RouterConfig{
		Handler:     api.NewHandler(p, metrics, breakers, version, mode),
		Logger:      logger,
		Compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		Security:    security.DefaultConfig(),
		CORSOrigins: cfg.CORSOrigins,
	}
	if cfg.CacheTTL > 0 {
		s.cache = cache.NewCache(cfg.CacheTTL, cfg.CacheMaxEntries)
		rc.Cache = s.cache
	}
	if cfg.RateLimitPerMin > 0 {
		s.limiter = ratelimit.NewRateLimiter(ratelimit.Config{PerMinute: cfg.RateLimitPerMin}, metrics)
		rc.RateLimiter = s.limiter
	}

	r, err := api.NewRouter(rc)
	if err != nil {
		s.closeBackground()
		return nil, err
	}

	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *server) shutdown(ctx context.Context) error {
	defer s.closeBackground()
	return s.http.Shutdown(ctx)
}

func (s *server) closeBackground() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.limiter != nil {
		s.limiter.Close()
	}
}
