package predictor

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/features"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/resilience"
)

var targets = []string{"white_pct", "black_pct", "asian_pct"}

func TestCheckOutput(t *testing.T) {
	tests := []struct {
		name     string
		pv       PredictionVector
		category apperrors.ErrorCategory
	}{
		{"valid", PredictionVector{Targets: targets, Values: []float64{0.5, 0.3, 0.2}}, ""},
		{"bounds inclusive", PredictionVector{Targets: targets, Values: []float64{0, 1, 0.2}}, ""},
		{"too few values", PredictionVector{Targets: targets, Values: []float64{0.5, 0.3}}, apperrors.CategoryInference},
		{"wrong order", PredictionVector{Targets: []string{"black_pct", "white_pct", "asian_pct"}, Values: []float64{0.5, 0.3, 0.2}}, apperrors.CategoryInference},
		{"missing target", PredictionVector{Targets: targets[:2], Values: []float64{0.5, 0.3}}, apperrors.CategoryConfiguration},
		{"foreign target", PredictionVector{Targets: []string{"white_pct", "black_pct", "nhpi_pct"}, Values: []float64{0.5, 0.3, 0.2}}, apperrors.CategoryConfiguration},
		{"above one", PredictionVector{Targets: targets, Values: []float64{0.5, 1.01, 0.2}}, apperrors.CategoryInference},
		{"negative", PredictionVector{Targets: targets, Values: []float64{-0.1, 0.3, 0.2}}, apperrors.CategoryInference},
		{"NaN", PredictionVector{Targets: targets, Values: []float64{math.NaN(), 0.3, 0.2}}, apperrors.CategoryInference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOutput(targets, tt.pv)
			if tt.category == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.IsCategory(err, tt.category), "got %v", err)
		})
	}
}

func TestCheckModel(t *testing.T) {
	b := artifacts.MustDefault()

	ok := ModelInfo{Version: "m1", InputDim: b.InputDim(), Targets: b.Targets()}
	assert.NoError(t, CheckModel(b, ok))

	badDim := ok
	badDim.InputDim = 398
	assert.True(t, apperrors.IsCategory(CheckModel(b, badDim), apperrors.CategoryConfiguration))

	badTargets := ok
	badTargets.Targets = append(append([]string(nil), b.Targets()...), "nhpi_pct")
	err := CheckModel(b, badTargets)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "nhpi_pct")
}

func TestStatic(t *testing.T) {
	s := NewStatic(targets, []float64{0.5, 0.3, 0.2})
	s.InputDim = 3

	pv, err := s.Predict(context.Background(), features.FeatureVector{Numeric: []float64{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.3, 0.2}, pv.Values)

	pv.Values[0] = 0.9
	again, _ := s.Predict(context.Background(), features.FeatureVector{Numeric: []float64{1, 2, 3}})
	assert.Equal(t, 0.5, again.Values[0], "callers cannot mutate the stub")

	_, err = s.Predict(context.Background(), features.FeatureVector{Numeric: []float64{1}})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInference))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Predict(ctx, features.FeatureVector{Numeric: []float64{1, 2, 3}})
	assert.Error(t, err)

	v, ok := pv.Value("black_pct")
	assert.True(t, ok)
	assert.Equal(t, 0.3, v)
	_, ok = pv.Value("male_pct")
	assert.False(t, ok)
}

func TestHTTPPredictor(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case predictPath:
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(PredictionVector{Targets: targets, Values: []float64{0.5, 0.3, 0.2}})
		case modelPath:
			_ = json.NewEncoder(w).Encode(ModelInfo{Version: "cat-1", InputDim: 4, Targets: targets})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewHTTPPredictor(HTTPConfig{BaseURL: srv.URL + "/", Timeout: time.Second})

	fv := features.FeatureVector{Layout: "cdr-layout-v1", Numeric: []float64{18, 75}, Categorical: []float64{3}, Embedding: []float64{0}}
	pv, err := p.Predict(context.Background(), fv)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.3, 0.2}, pv.Values)
	assert.Equal(t, []float64{18, 75, 3, 0}, got.Features)
	assert.Equal(t, "cdr-layout-v1", got.Layout)

	info, err := p.Model(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModelInfo{Version: "cat-1", InputDim: 4, Targets: targets}, info)
}

func TestHTTPPredictorFailuresAreInferenceErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour})
	p := NewHTTPPredictor(HTTPConfig{BaseURL: srv.URL, Breaker: breaker})

	for i := 0; i < 2; i++ {
		_, err := p.Predict(context.Background(), features.FeatureVector{})
		require.Error(t, err)
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInference))
		assert.Contains(t, err.Error(), "model not loaded")
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "no retries")

	_, err := p.Predict(context.Background(), features.FeatureVector{})
	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "open breaker short-circuits")
}

func TestHTTPPredictorMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"targets": "white_pct"`))
	}))
	defer srv.Close()

	_, err := NewHTTPPredictor(HTTPConfig{BaseURL: srv.URL}).Predict(context.Background(), features.FeatureVector{})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInference))
	assert.Contains(t, err.Error(), "malformed response")
}

func TestHTTPPredictorRejectsNullValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"null value", `{"targets":["white_pct","black_pct","asian_pct"],"values":[0.09,null,0.043]}`, `"black_pct"`},
		{"null past the targets", `{"targets":["white_pct"],"values":[0.09,null]}`, "#1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			pv, err := NewHTTPPredictor(HTTPConfig{BaseURL: srv.URL}).Predict(context.Background(), features.FeatureVector{})
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInference))
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, pv.Values)
		})
	}
}

func TestHTTPPredictorTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewHTTPPredictor(HTTPConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := p.Predict(context.Background(), features.FeatureVector{})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInference))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
