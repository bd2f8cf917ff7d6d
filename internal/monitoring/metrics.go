package monitoring

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/montanaflynn/stats"
)

const maxResponseSamples = 1000

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	ValidationFailures  int64
	InferenceFailures   int64
	DomainFailures      int64
	ScoringRuns         int64
	OODFlags            int64
	BorderlineFlags     int64
	RateLimitBlocks     int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	responseTimes      []float64 // milliseconds
	responseTimesMutex sync.RWMutex

	requestCountByStatus map[int]int64
	statusMutex          sync.RWMutex

	levelCounts map[string]int64
	levelMutex  sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		responseTimes:        make([]float64, 0, maxResponseSamples),
		requestCountByStatus: make(map[int]int64),
		levelCounts:          make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// IncrementValidationFailure counts requests rejected by the schema validator
func (m *Metrics) IncrementValidationFailure() {
	atomic.AddInt64(&m.ValidationFailures, 1)
}

// IncrementInferenceFailure counts failed Predictor calls
func (m *Metrics) IncrementInferenceFailure() {
	atomic.AddInt64(&m.InferenceFailures, 1)
}

// IncrementDomainFailure counts policy inputs rejected by the fuzzy engine
func (m *Metrics) IncrementDomainFailure() {
	atomic.AddInt64(&m.DomainFailures, 1)
}

// IncrementRateLimitBlock counts requests rejected by the limiter
func (m *Metrics) IncrementRateLimitBlock() {
	atomic.AddInt64(&m.RateLimitBlocks, 1)
}

// RecordScoringRun records a completed run, its OOD level and overall recommendation level
func (m *Metrics) RecordScoringRun(oodLevel, overallLevel string) {
	atomic.AddInt64(&m.ScoringRuns, 1)
	switch oodLevel {
	case "out_of_distribution":
		atomic.AddInt64(&m.OODFlags, 1)
	case "borderline":
		atomic.AddInt64(&m.BorderlineFlags, 1)
	}

	if overallLevel == "" {
		return
	}
	m.levelMutex.Lock()
	m.levelCounts[overallLevel]++
	m.levelMutex.Unlock()
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	newAverage := (current + duration.Nanoseconds()) / 2
	atomic.StoreInt64(&m.AverageResponseTime, newAverage)

	m.responseTimesMutex.Lock()
	m.responseTimes = append(m.responseTimes, float64(duration)/float64(time.Millisecond))
	if len(m.responseTimes) > maxResponseSamples {
		m.responseTimes = m.responseTimes[1:]
	}
	m.responseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()
	m.requestCountByStatus[statusCode]++
}

// PercentileResponseTimeMs returns the given percentile of recent response times in milliseconds
func (m *Metrics) PercentileResponseTimeMs(percentile float64) float64 {
	m.responseTimesMutex.RLock()
	samples := make(stats.Float64Data, len(m.responseTimes))
	copy(samples, m.responseTimes)
	m.responseTimesMutex.RUnlock()

	if len(samples) == 0 {
		return 0
	}

	p, err := stats.Percentile(samples, percentile)
	if err != nil {
		return 0
	}
	return p
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.statusMutex.RLock()
	defer m.statusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.requestCountByStatus))
	for code, count := range m.requestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetLevelDistribution returns how often each overall recommendation level was produced
func (m *Metrics) GetLevelDistribution() map[string]int64 {
	m.levelMutex.RLock()
	defer m.levelMutex.RUnlock()

	distribution := make(map[string]int64, len(m.levelCounts))
	for level, count := range m.levelCounts {
		distribution[level] = count
	}
	return distribution
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"avg_response_time_ms":   float64(avgResponseTime) / 1000000,
		"start_time":             m.StartTime.Format(time.RFC3339),

		"p50_response_time_ms":     m.PercentileResponseTimeMs(50),
		"p95_response_time_ms":     m.PercentileResponseTimeMs(95),
		"p99_response_time_ms":     m.PercentileResponseTimeMs(99),
		"status_code_distribution": m.GetStatusCodeDistribution(),

		"scoring_runs":        atomic.LoadInt64(&m.ScoringRuns),
		"validation_failures": atomic.LoadInt64(&m.ValidationFailures),
		"inference_failures":  atomic.LoadInt64(&m.InferenceFailures),
		"domain_failures":     atomic.LoadInt64(&m.DomainFailures),
		"ood_flags":           atomic.LoadInt64(&m.OODFlags),
		"borderline_flags":    atomic.LoadInt64(&m.BorderlineFlags),
		"rate_limit_blocks":   atomic.LoadInt64(&m.RateLimitBlocks),
		"overall_levels":      m.GetLevelDistribution(),
	}
}

// Reset resets all metrics (useful for testing)
func (m *Metrics) Reset() {
	for _, p := range []*int64{
		&m.RequestCount, &m.ErrorCount, &m.CacheHits, &m.CacheMisses,
		&m.ValidationFailures, &m.InferenceFailures, &m.DomainFailures,
		&m.ScoringRuns, &m.OODFlags, &m.BorderlineFlags, &m.RateLimitBlocks,
		&m.AverageResponseTime,
	} {
		atomic.StoreInt64(p, 0)
	}

	m.responseTimesMutex.Lock()
	m.responseTimes = m.responseTimes[:0]
	m.responseTimesMutex.Unlock()

	m.statusMutex.Lock()
	m.requestCountByStatus = make(map[int]int64)
	m.statusMutex.Unlock()

	m.levelMutex.Lock()
	m.levelCounts = make(map[string]int64)
	m.levelMutex.Unlock()

	m.StartTime = time.Now()
}
