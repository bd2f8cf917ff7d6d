// Package pipeline wires the scoring stages together:
// validate → assemble → OOD check → predict → score → policy.
//
// A Pipeline holds only frozen, read-only state, so one instance serves any
// number of concurrent runs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/features"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/monitoring"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/ood"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/policy"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/predictor"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/schema"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/scoring"
)

// GapCount is how many of the largest target gaps a result highlights.
const GapCount = 3

// Options carries the optional collaborators of a Pipeline. A nil Predictor
// leaves Run unavailable; ScorePredictions still works.
type Options struct {
	Predictor predictor.Predictor
	Encoder   features.Encoder
	Embedder  features.Embedder
	Logger    *monitoring.Logger
	Metrics   *monitoring.Metrics
}

// Pipeline orchestrates one scoring run end to end.
type Pipeline struct {
	bundle    *artifacts.Bundle
	validator *schema.Validator
	assembler *features.Assembler
	checker   *ood.Checker
	predictor predictor.Predictor
	scorer    *scoring.Scorer
	engine    *policy.Engine
	logger    *monitoring.Logger
	metrics   *monitoring.Metrics
}

// Assembly is the model-free part of a run.
type Assembly struct {
	Spec     *schema.TrialSpec      `json:"spec"`
	Notices  []schema.Notice        `json:"notices,omitempty"`
	Features features.FeatureVector `json:"features"`
	OOD      ood.Flag               `json:"ood"`
}

// Evaluation is a scored prediction with its policy reading.
type Evaluation struct {
	Score          scoring.CDRScore      `json:"score"`
	LargestGaps    []scoring.TargetScore `json:"largest_gaps"`
	Recommendation policy.Recommendation `json:"recommendation"`
}

// Result is everything one run produces.
type Result struct {
	RunID      string                     `json:"run_id"`
	Prediction predictor.PredictionVector `json:"prediction"`
	Assembly
	Evaluation
}

// New builds every stage from the bundle and checks they agree with each
// other. Any disagreement is a configuration error.
func New(b *artifacts.Bundle, opts Options) (*Pipeline, error) {
	if b == nil {
		return nil, apperrors.NewConfigurationError("artifact bundle is required", nil)
	}

	encoder := opts.Encoder
	if encoder == nil {
		encoder = features.NewOrdinalEncoder(b.Layout)
	}
	embedder := opts.Embedder
	if embedder == nil {
		embedder = features.NewHashingEmbedder(b.Embedding)
	}
	assembler, err := features.NewAssembler(b, encoder, embedder)
	if err != nil {
		return nil, err
	}

	checker, err := ood.NewChecker(b)
	if err != nil {
		return nil, err
	}

	engine, err := policy.NewEngine(b.Policy, policy.InputNames(b.Domains()))
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = monitoring.NewLogger(slog.LevelInfo)
	}

	return &Pipeline{
		bundle:    b,
		validator: schema.New(b),
		assembler: assembler,
		checker:   checker,
		predictor: opts.Predictor,
		scorer:    scoring.NewScorer(b),
		engine:    engine,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// CheckPredictor asks the predictor to describe itself, when it can, and
// compares that with the bundle. Predictors that cannot describe themselves
// are checked per run instead.
func (p *Pipeline) CheckPredictor(ctx context.Context) error {
	d, ok := p.predictor.(predictor.Describer)
	if !ok {
		return nil
	}
	info, err := d.Model(ctx)
	if err != nil {
		return err
	}
	return predictor.CheckModel(p.bundle, info)
}

func (p *Pipeline) Bundle() *artifacts.Bundle { return p.bundle }

func (p *Pipeline) Engine() *policy.Engine { return p.engine }

// HasPredictor reports whether Run can be used.
func (p *Pipeline) HasPredictor() bool { return p.predictor != nil }

// Validate runs the schema stage only.
func (p *Pipeline) Validate(raw schema.RawInput) (*schema.TrialSpec, []schema.Notice, error) {
	spec, notices, err := p.validator.Validate(raw)
	if err != nil {
		p.observe(err)
		return nil, nil, err
	}
	return spec, notices, nil
}

// Assemble validates and encodes a trial without calling the model.
func (p *Pipeline) Assemble(raw schema.RawInput) (Assembly, error) {
	spec, notices, err := p.Validate(raw)
	if err != nil {
		return Assembly{}, err
	}
	fv, err := p.assembler.Assemble(spec)
	if err != nil {
		p.observe(err)
		return Assembly{}, err
	}
	return Assembly{
		Spec:     spec,
		Notices:  notices,
		Features: fv,
		OOD:      p.checker.Check(fv),
	}, nil
}

// Run scores one raw trial end to end. Any stage failure aborts the run and
// nothing partial is returned.
func (p *Pipeline) Run(ctx context.Context, raw schema.RawInput) (Result, error) {
	start := time.Now()
	if p.predictor == nil {
		err := apperrors.NewInferenceError("no predictor configured", nil)
		p.observe(err)
		return Result{}, err
	}

	asm, err := p.Assemble(raw)
	if err != nil {
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return Result{}, p.contextError(err)
	}
	pv, err := p.predictor.Predict(ctx, asm.Features)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, p.contextError(ctx.Err())
		}
		p.observe(err)
		return Result{}, err
	}
	if err := predictor.CheckOutput(p.bundle.Targets(), pv); err != nil {
		p.observe(err)
		return Result{}, err
	}

	ev, err := p.evaluate(pv, asm.Spec)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		RunID:      uuid.NewString(),
		Prediction: pv,
		Assembly:   asm,
		Evaluation: ev,
	}
	p.record(res.RunID, ev, asm.OOD.Level, time.Since(start))
	return res, nil
}

// ScorePredictions scores a caller-supplied prediction vector. spec is
// optional and only sharpens the advice. The vector is user input, so
// target mismatches and bad proportions are validation errors here.
func (p *Pipeline) ScorePredictions(ctx context.Context, pv predictor.PredictionVector, spec *schema.TrialSpec) (Evaluation, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Evaluation{}, p.contextError(err)
	}
	if err := p.checkSupplied(pv); err != nil {
		p.observe(err)
		return Evaluation{}, err
	}
	ev, err := p.evaluate(pv, spec)
	if err != nil {
		return Evaluation{}, err
	}
	p.record(uuid.NewString(), ev, "", time.Since(start))
	return ev, nil
}

func (p *Pipeline) evaluate(pv predictor.PredictionVector, spec *schema.TrialSpec) (Evaluation, error) {
	score, err := p.scorer.Score(pv)
	if err != nil {
		p.observe(err)
		return Evaluation{}, err
	}
	rec, err := p.engine.Recommend(score, spec)
	if err != nil {
		p.observe(err)
		return Evaluation{}, err
	}
	return Evaluation{
		Score:          score,
		LargestGaps:    scoring.LargestGaps(score, GapCount),
		Recommendation: rec,
	}, nil
}

func (p *Pipeline) checkSupplied(pv predictor.PredictionVector) error {
	var vs []apperrors.Violation
	if len(pv.Targets) != len(pv.Values) {
		vs = append(vs, apperrors.Violation{
			Field:   "values",
			Reason:  apperrors.ReasonCrossField,
			Message: fmt.Sprintf("%d targets but %d values", len(pv.Targets), len(pv.Values)),
		})
		return apperrors.NewValidationError(vs)
	}

	known := make(map[string]bool)
	for _, t := range p.bundle.Targets() {
		known[t] = true
	}
	seen := make(map[string]bool, len(pv.Targets))
	for i, name := range pv.Targets {
		v := pv.Values[i]
		switch {
		case !known[name]:
			vs = append(vs, apperrors.Violation{Field: name, Reason: apperrors.ReasonOutOfDomain, Message: "not a reference target"})
		case seen[name]:
			vs = append(vs, apperrors.Violation{Field: name, Reason: apperrors.ReasonOutOfDomain, Message: "target repeated"})
		case math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1:
			vs = append(vs, apperrors.Violation{Field: name, Reason: apperrors.ReasonOutOfRange, Message: fmt.Sprintf("%v is not a proportion in [0, 1]", v)})
		}
		seen[name] = true
	}
	for _, t := range p.bundle.Targets() {
		if !seen[t] {
			vs = append(vs, apperrors.Violation{Field: t, Reason: apperrors.ReasonRequiredMissing, Message: "no prediction for target"})
		}
	}
	if len(vs) > 0 {
		return apperrors.NewValidationError(vs)
	}
	return nil
}

func (p *Pipeline) contextError(err error) error {
	appErr := apperrors.NewTimeoutError("scoring run abandoned", err)
	p.observe(appErr)
	return appErr
}

func (p *Pipeline) record(runID string, ev Evaluation, oodLevel ood.Level, d time.Duration) {
	p.logger.ScoringLogger(runID, ev.Score.Composite, ev.Score.Diversity,
		ev.Recommendation.Overall, string(oodLevel), d)
	if p.metrics != nil {
		p.metrics.RecordScoringRun(string(oodLevel), ev.Recommendation.Overall)
	}
}

func (p *Pipeline) observe(err error) {
	if p.metrics == nil {
		return
	}
	switch {
	case apperrors.IsCategory(err, apperrors.CategoryValidation):
		p.metrics.IncrementValidationFailure()
	case apperrors.IsCategory(err, apperrors.CategoryInference):
		p.metrics.IncrementInferenceFailure()
	case apperrors.IsCategory(err, apperrors.CategoryDomain):
		p.metrics.IncrementDomainFailure()
	}
}
