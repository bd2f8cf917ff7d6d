package monitoring

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentileResponseTime(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, 0.0, m.PercentileResponseTimeMs(50))

	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}

	assert.InDelta(t, 50.0, m.PercentileResponseTimeMs(50), 1.0)
	assert.InDelta(t, 95.0, m.PercentileResponseTimeMs(95), 1.0)
}

func TestResponseSamplesAreBounded(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < maxResponseSamples+50; i++ {
		m.RecordResponseTime(time.Millisecond)
	}
	assert.Len(t, m.responseTimes, maxResponseSamples)
}

func TestRecordScoringRun(t *testing.T) {
	m := NewMetrics()
	m.RecordScoringRun("out_of_distribution", "aggressive")
	m.RecordScoringRun("borderline", "moderate")
	m.RecordScoringRun("in_distribution", "moderate")

	stats := m.GetStats()
	assert.EqualValues(t, 3, stats["scoring_runs"])
	assert.EqualValues(t, 1, stats["ood_flags"])
	assert.EqualValues(t, 1, stats["borderline_flags"])
	assert.Equal(t, map[string]int64{"aggressive": 1, "moderate": 2}, stats["overall_levels"])

	m.Reset()
	assert.EqualValues(t, 0, m.GetStats()["scoring_runs"])
	assert.Empty(t, m.GetLevelDistribution())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMiddlewareAssignsRequestIDAndRecords(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, slog.LevelInfo)
	metrics := NewMetrics()

	r := gin.New()
	r.Use(RequestIDMiddleware(), MonitoringMiddleware(metrics, logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/bad", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "fixed-id", w.Header().Get(RequestIDHeader))

	assert.EqualValues(t, 2, metrics.RequestCount)
	assert.EqualValues(t, 1, metrics.ErrorCount)
	assert.Contains(t, buf.String(), `"request_id":"fixed-id"`)
}
