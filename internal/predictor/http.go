package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/features"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/monitoring"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/resilience"
)

const (
	predictPath = "/v1/predict"
	modelPath   = "/v1/model"

	maxResponseBytes = 1 << 20
)

// HTTPConfig configures the remote predictor client.
type HTTPConfig struct {
	BaseURL string
	// Timeout bounds each call when the caller's context has no deadline.
	Timeout time.Duration
	Client  *http.Client
	Breaker *resilience.CircuitBreaker
	Logger  *monitoring.Logger
}

// HTTPPredictor calls a model server over JSON. It never retries.
type HTTPPredictor struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  *monitoring.Logger
}

type predictRequest struct {
	Features []float64 `json:"features"`
	Layout   string    `json:"layout"`
}

// predictResponse keeps nulls distinguishable from zeros; model servers
// backed by dataframes encode NaN as null.
type predictResponse struct {
	Targets []string   `json:"targets"`
	Values  []*float64 `json:"values"`
}

func (r predictResponse) vector() (PredictionVector, error) {
	pv := PredictionVector{Targets: r.Targets, Values: make([]float64, len(r.Values))}
	for i, v := range r.Values {
		if v == nil {
			target := fmt.Sprintf("#%d", i)
			if i < len(r.Targets) {
				target = fmt.Sprintf("%q", r.Targets[i])
			}
			return PredictionVector{}, apperrors.NewInferenceError(
				"predictor returned null for target "+target, nil)
		}
		pv.Values[i] = *v
	}
	return pv, nil
}

func NewHTTPPredictor(cfg HTTPConfig) *HTTPPredictor {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})
	}
	return &HTTPPredictor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  cfg.Client,
		breaker: cfg.Breaker,
		logger:  cfg.Logger,
	}
}

// Predict posts the flattened vector to /v1/predict.
func (p *HTTPPredictor) Predict(ctx context.Context, fv features.FeatureVector) (PredictionVector, error) {
	body, err := json.Marshal(predictRequest{Features: fv.Flatten(), Layout: fv.Layout})
	if err != nil {
		return PredictionVector{}, apperrors.NewInferenceError("cannot encode feature vector", err)
	}

	var out predictResponse
	if err := p.do(ctx, http.MethodPost, predictPath, body, &out); err != nil {
		return PredictionVector{}, err
	}
	return out.vector()
}

// Model fetches the served model's shape from /v1/model.
func (p *HTTPPredictor) Model(ctx context.Context) (ModelInfo, error) {
	var info ModelInfo
	if err := p.do(ctx, http.MethodGet, modelPath, nil, &info); err != nil {
		return ModelInfo{}, err
	}
	return info, nil
}

func (p *HTTPPredictor) do(ctx context.Context, method, path string, body []byte, out any) error {
	if _, ok := ctx.Deadline(); !ok && p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	status := 0
	err := p.breaker.Call(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer apperrors.SafeClose(resp.Body, "predictor response body")

		status = resp.StatusCode
		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("malformed response: %w", err)
		}
		return nil
	})

	if p.logger != nil {
		p.logger.PredictorLogger(path, status, time.Since(start), err == nil)
	}
	if err != nil {
		return apperrors.NewInferenceError("predictor call to "+path+" failed", err)
	}
	return nil
}
