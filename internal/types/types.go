// Package types holds the request and response shapes shared by the HTTP
// service and the CLI.
package types

import (
	"sort"
	"time"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/pipeline"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/predictor"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/resilience"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/schema"
)

// ValidateResponse is the canonical trial plus any coercion notices.
type ValidateResponse struct {
	Spec    *schema.TrialSpec `json:"spec"`
	Notices []schema.Notice   `json:"notices,omitempty"`
}

// ScorePredictionsRequest scores predictions the caller already has. Trial is
// optional and only used to tailor the advice. A null prediction counts as
// absent, never as zero.
type ScorePredictionsRequest struct {
	Predictions map[string]*float64 `json:"predictions" binding:"required"`
	Trial       schema.RawInput     `json:"trial,omitempty"`
}

// NullTargets lists, sorted, the targets whose prediction is null.
func (r ScorePredictionsRequest) NullTargets() []string {
	var out []string
	for t, v := range r.Predictions {
		if v == nil {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Vector orders the predictions by the given targets first and any extra
// names alphabetically after them. Null predictions are left out.
func (r ScorePredictionsRequest) Vector(order []string) predictor.PredictionVector {
	pv := predictor.PredictionVector{
		Targets: make([]string, 0, len(r.Predictions)),
		Values:  make([]float64, 0, len(r.Predictions)),
	}
	used := make(map[string]bool, len(order))
	for _, t := range order {
		used[t] = true
		if v := r.Predictions[t]; v != nil {
			pv.Targets = append(pv.Targets, t)
			pv.Values = append(pv.Values, *v)
		}
	}

	var extra []string
	for t, v := range r.Predictions {
		if !used[t] && v != nil {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	for _, t := range extra {
		pv.Targets = append(pv.Targets, t)
		pv.Values = append(pv.Values, *r.Predictions[t])
	}
	return pv
}

// ReferenceResponse describes the active reference table.
type ReferenceResponse struct {
	Profile     string             `json:"profile"`
	Fingerprint string             `json:"fingerprint"`
	Layout      string             `json:"layout"`
	Targets     []artifacts.Target `json:"targets"`
	Domains     []string           `json:"domains"`
}

// NewReferenceResponse summarises a bundle's reference table.
func NewReferenceResponse(b *artifacts.Bundle) ReferenceResponse {
	return ReferenceResponse{
		Profile:     b.Profile,
		Fingerprint: b.Fingerprint,
		Layout:      b.Layout.Version,
		Targets:     append([]artifacts.Target(nil), b.Reference.Targets...),
		Domains:     b.Domains(),
	}
}

// RulesResponse exposes the rule base for review.
type RulesResponse struct {
	Levels []string             `json:"levels"`
	Rules  artifacts.PolicySpec `json:"rules"`
}

// HealthResponse reports liveness and the state of the model dependency.
type HealthResponse struct {
	Status          string                    `json:"status"`
	Timestamp       string                    `json:"timestamp"`
	Version         string                    `json:"version"`
	Fingerprint     string                    `json:"artifact_fingerprint"`
	Predictor       string                    `json:"predictor"`
	CircuitBreakers []resilience.BreakerStats `json:"circuit_breakers"`
}

// Health states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// NewHealthResponse builds a health report. The service is degraded when a
// predictor breaker is open.
func NewHealthResponse(version string, b *artifacts.Bundle, predictorMode string, breakers *resilience.Registry, now time.Time) HealthResponse {
	res := HealthResponse{
		Status:          StatusOK,
		Timestamp:       now.UTC().Format(time.RFC3339),
		Version:         version,
		Fingerprint:     b.Fingerprint,
		Predictor:       predictorMode,
		CircuitBreakers: []resilience.BreakerStats{},
	}
	if breakers != nil {
		res.CircuitBreakers = breakers.Stats()
		if breakers.Degraded() {
			res.Status = StatusDegraded
		}
	}
	return res
}

// BatchLine is one scored trial in CLI batch output. Index is the 1-based
// input line. Exactly one of Result and Error is set.
type BatchLine struct {
	Index  int                 `json:"index"`
	ID     string              `json:"id,omitempty"`
	Result *pipeline.Result    `json:"result,omitempty"`
	Error  *apperrors.AppError `json:"error,omitempty"`
}
