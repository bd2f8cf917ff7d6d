package cache

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/monitoring"
)

// CacheItem is one stored response body.
type CacheItem struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *CacheItem) expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// DefaultMaxEntries caps the cache when no size is configured.
const DefaultMaxEntries = 10000

// Cache is a TTL map of response bodies keyed by request digest. Scoring is a
// pure function of the request and the frozen artifacts, so a hit is exact.
// At most maxEntries bodies are held; a full cache evicts the entry closest to
// expiry, which with a fixed TTL is the oldest write.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]*CacheItem
	ttl        time.Duration
	maxEntries int
	evictions  int64
	now        func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewCache starts a cache with the given TTL, entry cap and a background
// sweeper. maxEntries <= 0 selects DefaultMaxEntries. Call Close to stop the
// sweeper.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	c := newCache(ttl, maxEntries, time.Now)
	go c.sweep(ttl)
	return c
}

func newCache(ttl time.Duration, maxEntries int, now func() time.Time) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		items:      make(map[string]*CacheItem),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (c *Cache) sweep(every time.Duration) {
	defer close(c.done)
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purge()
		}
	}
}

func (c *Cache) purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(c.now())
}

func (c *Cache) purgeLocked(now time.Time) int {
	removed := 0
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper and waits for it to exit.
func (c *Cache) Close() {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
	})
}

// Key digests a route and request body.
func Key(route string, body []byte) string {
	d := xxhash.New()
	_, _ = d.WriteString(route)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(body)
	return strconv.FormatUint(d.Sum64(), 16)
}

// Get returns a live item.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || item.expired(c.now()) {
		return nil, false
	}
	return item.Data, true
}

// Set stores data under key, making room first when the cache is full.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxEntries {
		if c.purgeLocked(now) == 0 {
			c.evictLocked()
		}
	}
	c.items[key] = &CacheItem{
		Data:      data,
		ExpiresAt: now.Add(c.ttl),
	}
}

func (c *Cache) evictLocked() {
	var (
		victim string
		first  time.Time
		found  bool
	)
	for key, item := range c.items {
		if !found || item.ExpiresAt.Before(first) {
			victim, first, found = key, item.ExpiresAt, true
		}
	}
	if found {
		delete(c.items, victim)
		c.evictions++
	}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*CacheItem)
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	expired := 0
	for _, item := range c.items {
		if item.expired(now) {
			expired++
		}
	}

	return map[string]interface{}{
		"total_items":   len(c.items),
		"expired_items": expired,
		"active_items":  len(c.items) - expired,
		"max_items":     c.maxEntries,
		"evictions":     c.evictions,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}

// Middleware serves repeated POST bodies on the given routes from the cache.
// Only 200 responses are stored.
func (c *Cache) Middleware(metrics *monitoring.Metrics, logger *monitoring.Logger, routes ...string) gin.HandlerFunc {
	cached := make(map[string]bool, len(routes))
	for _, r := range routes {
		cached[r] = true
	}

	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodPost || !cached[ctx.FullPath()] {
			ctx.Next()
			return
		}

		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			ctx.Next()
			return
		}
		ctx.Request.Body = io.NopCloser(bytes.NewReader(body))

		key := Key(ctx.FullPath(), body)

		if data, ok := c.Get(key); ok {
			logger.Debug("Cache hit", "key", key, "path", ctx.FullPath())
			metrics.IncrementCacheHit()
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", data)
			ctx.Abort()
			return
		}

		metrics.IncrementCacheMiss()
		ctx.Header("X-Cache", "MISS")

		wrapper := &responseWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = wrapper
		ctx.Next()

		if ctx.Writer.Status() == http.StatusOK {
			c.Set(key, wrapper.body.Bytes())
			logger.Debug("Response cached", "key", key, "path", ctx.FullPath())
		}
	}
}

// responseWriter wraps gin.ResponseWriter to capture response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
