// Package predictor is the boundary to the frozen multi-output model. The
// model itself is external; this package defines the capability, checks what
// comes back, and ships an HTTP client and a fixed-output stub.
package predictor

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/features"
)

// PredictionVector is one proportion per demographic target, in target order.
type PredictionVector struct {
	Targets []string  `json:"targets"`
	Values  []float64 `json:"values"`
}

// Value returns the prediction for a target.
func (p PredictionVector) Value(target string) (float64, bool) {
	for i, t := range p.Targets {
		if t == target && i < len(p.Values) {
			return p.Values[i], true
		}
	}
	return 0, false
}

// Predictor maps a feature vector to a prediction vector.
type Predictor interface {
	Predict(ctx context.Context, fv features.FeatureVector) (PredictionVector, error)
}

// ModelInfo is what a predictor reports about the model it serves.
type ModelInfo struct {
	Version  string   `json:"version"`
	InputDim int      `json:"input_dim"`
	Targets  []string `json:"targets"`
}

// Describer is implemented by predictors that can report their model shape.
type Describer interface {
	Model(ctx context.Context) (ModelInfo, error)
}

// CheckOutput enforces exactly one finite value in [0, 1] per expected target,
// in the expected order. A different target set is a configuration error;
// every other defect is an inference error.
func CheckOutput(expected []string, pv PredictionVector) error {
	if len(pv.Values) != len(pv.Targets) {
		return apperrors.NewInferenceError(fmt.Sprintf(
			"predictor returned %d targets but %d values", len(pv.Targets), len(pv.Values)), nil)
	}
	if !sameSet(expected, pv.Targets) {
		return apperrors.NewConfigurationError(fmt.Sprintf(
			"predictor targets [%s] do not match reference targets [%s]",
			strings.Join(pv.Targets, ", "), strings.Join(expected, ", ")), nil)
	}
	for i, want := range expected {
		if pv.Targets[i] != want {
			return apperrors.NewInferenceError(fmt.Sprintf(
				"predictor target %d is %q, expected %q", i, pv.Targets[i], want), nil)
		}
		v := pv.Values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return apperrors.NewInferenceError(fmt.Sprintf(
				"predictor value for %q is %v, expected a proportion in [0, 1]", want, v), nil)
		}
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, x := range a {
		seen[x]++
	}
	for _, x := range b {
		if seen[x] == 0 {
			return false
		}
		seen[x]--
	}
	return true
}

// CheckModel compares a model description with the artifact bundle. A
// mismatch is fatal at startup. An InputDim of zero means the model accepts
// any width.
func CheckModel(b *artifacts.Bundle, info ModelInfo) error {
	if info.InputDim != 0 && info.InputDim != b.InputDim() {
		return apperrors.NewConfigurationError(fmt.Sprintf(
			"model %s expects %d features, layout %s produces %d",
			info.Version, info.InputDim, b.Layout.Version, b.InputDim()), nil)
	}

	want := b.Targets()
	if strings.Join(info.Targets, ",") != strings.Join(want, ",") {
		return apperrors.NewConfigurationError(fmt.Sprintf(
			"model %s targets [%s] do not match reference targets [%s]",
			info.Version, strings.Join(info.Targets, ", "), strings.Join(want, ", ")), nil)
	}
	return nil
}

// Static returns the same prediction for every input. It backs tests and the
// CLI when predictions are supplied by hand.
type Static struct {
	Prediction PredictionVector
	InputDim   int
	Version    string
}

func NewStatic(targets []string, values []float64) *Static {
	return &Static{
		Prediction: PredictionVector{
			Targets: append([]string(nil), targets...),
			Values:  append([]float64(nil), values...),
		},
		Version: "static",
	}
}

func (s *Static) Predict(ctx context.Context, fv features.FeatureVector) (PredictionVector, error) {
	if err := ctx.Err(); err != nil {
		return PredictionVector{}, apperrors.NewInferenceError("prediction cancelled", err)
	}
	if s.InputDim > 0 && fv.Len() != s.InputDim {
		return PredictionVector{}, apperrors.NewInferenceError(fmt.Sprintf(
			"feature vector has %d values, model expects %d", fv.Len(), s.InputDim), nil)
	}
	return PredictionVector{
		Targets: append([]string(nil), s.Prediction.Targets...),
		Values:  append([]float64(nil), s.Prediction.Values...),
	}, nil
}

func (s *Static) Model(context.Context) (ModelInfo, error) {
	return ModelInfo{
		Version:  s.Version,
		InputDim: s.InputDim,
		Targets:  append([]string(nil), s.Prediction.Targets...),
	}, nil
}
