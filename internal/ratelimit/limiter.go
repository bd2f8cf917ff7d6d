package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/monitoring"
)

// Config holds rate limiter configuration
type Config struct {
	PerMinute int           // sustained requests per minute per client
	Burst     int           // bucket size; defaults to PerMinute
	IdleAfter time.Duration // buckets unused this long are dropped
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		PerMinute: 60,
		Burst:     60,
		IdleAfter: 10 * time.Minute,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is an in-memory token bucket per client key.
type RateLimiter struct {
	config  Config
	metrics *monitoring.Metrics
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRateLimiter starts a limiter and its idle-bucket sweeper. Call Close to
// stop the sweeper.
func NewRateLimiter(config Config, metrics *monitoring.Metrics) *RateLimiter {
	rl := newRateLimiter(config, metrics, time.Now)
	go rl.sweep()
	return rl
}

func newRateLimiter(config Config, metrics *monitoring.Metrics, now func() time.Time) *RateLimiter {
	if config.PerMinute <= 0 {
		config.PerMinute = DefaultConfig().PerMinute
	}
	if config.Burst <= 0 {
		config.Burst = config.PerMinute
	}
	if config.IdleAfter <= 0 {
		config.IdleAfter = DefaultConfig().IdleAfter
	}
	return &RateLimiter{
		config:  config,
		metrics: metrics,
		now:     now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Allow spends one token for key.
func (rl *RateLimiter) Allow(key string) Result {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.perSecond(), rl.config.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	res := Result{
		Allowed:   allowed,
		Limit:     rl.config.PerMinute,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now.Add(rl.refill(float64(rl.config.Burst) - tokens)),
	}
	if !allowed {
		res.RetryAfter = rl.refill(1 - tokens)
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitBlock()
		}
	}
	return res
}

func (rl *RateLimiter) perSecond() rate.Limit {
	return rate.Limit(float64(rl.config.PerMinute) / 60)
}

// refill is how long the bucket needs to regain n tokens.
func (rl *RateLimiter) refill(n float64) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n / float64(rl.perSecond()) * float64(time.Second))
}

func (rl *RateLimiter) sweep() {
	defer close(rl.done)
	ticker := time.NewTicker(rl.config.IdleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() int {
	cutoff := rl.now().Add(-rl.config.IdleAfter)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stop)
		<-rl.done
	})
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()

	return map[string]interface{}{
		"limit_per_minute": rl.config.PerMinute,
		"burst":            rl.config.Burst,
		"active_clients":   n,
	}
}
