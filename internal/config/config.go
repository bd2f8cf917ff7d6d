package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process settings read from the environment.
type Config struct {
	Port              string
	GinMode           string
	ArtifactsPath     string
	ReferenceWorkbook string
	ReferenceProfile  string
	PredictorURL      string
	PredictTimeout    time.Duration
	CacheTTL          time.Duration
	RateLimitPerMin   int
	CORSOrigins       []string
	LogLevel          string

	// PredictorStartupAttempts bounds how often the model is asked to
	// describe itself before the server starts degraded.
	PredictorStartupAttempts int
	// CacheMaxEntries caps the response cache.
	CacheMaxEntries int
}

// Default returns the settings used when no variable is set.
func Default() Config {
	return Config{
		Port:                     "8080",
		GinMode:                  "release",
		PredictTimeout:           10 * time.Second,
		PredictorStartupAttempts: 3,
		CacheTTL:                 15 * time.Minute,
		CacheMaxEntries:          10000,
		RateLimitPerMin:          60,
		CORSOrigins:              []string{"*"},
		LogLevel:                 "info",
	}
}

// Load reads an optional .env file and then the process environment.
// A missing .env file is not an error; variables already set win over it.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &cfg.Port)
	str("GIN_MODE", &cfg.GinMode)
	str("ARTIFACTS_PATH", &cfg.ArtifactsPath)
	str("REFERENCE_WORKBOOK", &cfg.ReferenceWorkbook)
	str("REFERENCE_PROFILE", &cfg.ReferenceProfile)
	str("PREDICTOR_URL", &cfg.PredictorURL)
	str("LOG_LEVEL", &cfg.LogLevel)

	var err error
	if cfg.PredictTimeout, err = duration(getenv, "PREDICT_TIMEOUT", cfg.PredictTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = duration(getenv, "CACHE_TTL", cfg.CacheTTL); err != nil {
		return Config{}, err
	}

	if cfg.RateLimitPerMin, err = count(getenv, "RATE_LIMIT_PER_MIN", cfg.RateLimitPerMin, 0); err != nil {
		return Config{}, err
	}
	if cfg.PredictorStartupAttempts, err = count(getenv, "PREDICTOR_STARTUP_ATTEMPTS", cfg.PredictorStartupAttempts, 1); err != nil {
		return Config{}, err
	}
	if cfg.CacheMaxEntries, err = count(getenv, "CACHE_MAX_ENTRIES", cfg.CacheMaxEntries, 1); err != nil {
		return Config{}, err
	}

	if v := strings.TrimSpace(getenv("CORS_ORIGINS")); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORSOrigins = origins
	}

	return cfg, nil
}

func count(getenv func(string) string, key string, def, min int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return 0, fmt.Errorf("%s: invalid value %q", key, v)
	}
	return n, nil
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
