package policy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/schema"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/scoring"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	b := artifacts.MustDefault()
	e, err := NewEngine(b.Policy, InputNames(b.Domains()))
	require.NoError(t, err)
	return e
}

func TestTrapezoidDegree(t *testing.T) {
	tr := trapezoid{0.05, 0.15, 0.15, 0.25}
	leftShoulder := trapezoid{0, 0, 0.05, 0.10}

	tests := []struct {
		name  string
		shape trapezoid
		x     float64
		want  float64
	}{
		{"below support", tr, 0.0, 0},
		{"support start", tr, 0.05, 0},
		{"rising", tr, 0.10, 0.5},
		{"peak", tr, 0.15, 1},
		{"falling", tr, 0.20, 0.5},
		{"support end", tr, 0.25, 0},
		{"above support", tr, 0.5, 0},
		{"vertical left edge", leftShoulder, 0, 1},
		{"plateau", leftShoulder, 0.05, 1},
		{"shoulder", leftShoulder, 0.075, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.shape.degree(tt.x), 1e-12)
		})
	}
}

func TestFuzzifyClampsAndRejectsNonFinite(t *testing.T) {
	e := defaultEngine(t)

	high, err := e.Fuzzify(InputComposite, 5)
	require.NoError(t, err)
	atMax, err := e.Fuzzify(InputComposite, 1)
	require.NoError(t, err)
	assert.Equal(t, atMax, high)

	low, err := e.Fuzzify(InputDiversity, -10)
	require.NoError(t, err)
	assert.Equal(t, 1.0, low["LOW"])

	for _, x := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := e.Fuzzify(InputComposite, x)
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDomain), "x=%v", x)
	}

	_, err = e.Fuzzify("budget", 1)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDomain))
}

func TestEvaluateExampleTiesTowardLowerLevel(t *testing.T) {
	e := defaultEngine(t)

	ev, err := e.Evaluate(Inputs{
		InputComposite: 0.2 / 3,
		InputDiversity: 700.0 / 9,
		"race_gap":     0.1,
		"sex_gap":      0,
		"age_gap":      0,
	})
	require.NoError(t, err)

	overall, ok := ev.Dimension(OverallDimension)
	require.True(t, ok)

	strength := map[string]float64{}
	for _, s := range overall.Strengths {
		strength[s.Level] = s.Strength
	}
	// Parity (min of balanced 0.667 and HIGH 0.444) ties with HIGH alone, so none wins.
	assert.InDelta(t, 4.0/9, strength["none"], 1e-9)
	assert.Equal(t, strength["none"], strength["light"])
	assert.InDelta(t, 1.0/6, strength["moderate"], 1e-9)
	assert.Equal(t, 0.0, strength["aggressive"])
	assert.Equal(t, "none", overall.Level)

	require.Len(t, overall.Firings, 6)
	assert.Equal(t, "overall-parity", overall.Firings[0].ID)

	race, _ := ev.Dimension("race")
	assert.Equal(t, "moderate", race.Level, "0.1 is the end of balanced and halfway up moderate_gap")
	assert.Equal(t, 0.0, ev.Memberships["race_gap"]["balanced"])

	sex, _ := ev.Dimension("sex")
	assert.Equal(t, "none", sex.Level)
	assert.InDelta(t, 1.0, ev.Memberships["sex_gap"]["balanced"], 1e-12)
}

func TestEvaluateMissingInputIsDomainError(t *testing.T) {
	e := defaultEngine(t)
	_, err := e.Evaluate(Inputs{InputComposite: 0.1, InputDiversity: 50})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDomain))
}

func TestOutputClosure(t *testing.T) {
	e := defaultEngine(t)
	levels := map[string]bool{}
	for _, l := range e.Levels() {
		levels[l] = true
	}

	for c := -0.5; c <= 1.5; c += 0.05 {
		for d := -20.0; d <= 120; d += 5 {
			ev, err := e.Evaluate(Inputs{
				InputComposite: c, InputDiversity: d,
				"race_gap": c, "sex_gap": c / 2, "age_gap": 1 - c,
			})
			require.NoError(t, err)
			for _, dim := range ev.Dimensions {
				assert.True(t, levels[dim.Level], "composite=%v diversity=%v level=%q", c, d, dim.Level)
			}
		}
	}
}

func customSpec() artifacts.PolicySpec {
	return artifacts.PolicySpec{
		Levels: []string{"none", "light", "heavy"},
		Variables: []artifacts.VariableSpec{{
			Name:     "x",
			Universe: []float64{0, 10},
			Labels: []artifacts.LabelSpec{
				{Name: "low", Points: []float64{0, 0, 2, 6}},
				{Name: "high", Points: []float64{2, 6, 10, 10}},
				{Name: "gap", Points: []float64{4, 4, 4, 4}},
			},
		}},
		Dimensions: []artifacts.DimensionSpec{{
			Name: "only",
			Rules: []artifacts.RuleSpec{
				{ID: "r-low", If: []artifacts.Clause{{Var: "x", Is: "low"}}, Then: "light"},
				{ID: "r-high", If: []artifacts.Clause{{Var: "x", Is: "high"}}, Then: "heavy"},
			},
		}},
	}
}

func TestDefuzzifyTieAndAllZero(t *testing.T) {
	e, err := NewEngine(customSpec(), []string{"x"})
	require.NoError(t, err)

	ev, err := e.Evaluate(Inputs{"x": 4})
	require.NoError(t, err)
	assert.Equal(t, "light", ev.Dimensions[0].Level, "low and high both 0.5")

	ev, err = e.Evaluate(Inputs{"x": 9})
	require.NoError(t, err)
	assert.Equal(t, "heavy", ev.Dimensions[0].Level)

	spec := customSpec()
	spec.Dimensions[0].Rules = []artifacts.RuleSpec{
		{ID: "r-gap", If: []artifacts.Clause{{Var: "x", Is: "gap"}}, Then: "heavy"},
	}
	e, err = NewEngine(spec, []string{"x"})
	require.NoError(t, err)
	ev, err = e.Evaluate(Inputs{"x": 7})
	require.NoError(t, err)
	assert.Equal(t, "none", ev.Dimensions[0].Level, "nothing fires")
	assert.Equal(t, "none", e.overall(ev))
}

func TestConjunctionUsesMinimum(t *testing.T) {
	spec := customSpec()
	spec.Variables = append(spec.Variables, artifacts.VariableSpec{
		Name: "y", Universe: []float64{0, 1},
		Labels: []artifacts.LabelSpec{{Name: "on", Points: []float64{0, 1, 1, 1}}},
	})
	spec.Dimensions[0].Rules = []artifacts.RuleSpec{{
		ID:   "both",
		If:   []artifacts.Clause{{Var: "x", Is: "high"}, {Var: "y", Is: "on"}},
		Then: "heavy",
	}}
	e, err := NewEngine(spec, []string{"x", "y"})
	require.NoError(t, err)

	ev, err := e.Evaluate(Inputs{"x": 10, "y": 0.3})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, ev.Dimensions[0].Firings[0].Strength, 1e-12)
}

func TestNewEngineRejectsBadRuleBases(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*artifacts.PolicySpec)
		inputs  []string
		problem string
	}{
		{"unknown label", func(s *artifacts.PolicySpec) { s.Dimensions[0].Rules[0].If[0].Is = "medium" }, nil, `unknown label "medium"`},
		{"unknown variable", func(s *artifacts.PolicySpec) { s.Dimensions[0].Rules[0].If[0].Var = "z" }, nil, `unknown variable "z"`},
		{"unknown level", func(s *artifacts.PolicySpec) { s.Dimensions[0].Rules[0].Then = "extreme" }, nil, `unknown level "extreme"`},
		{"unordered breakpoints", func(s *artifacts.PolicySpec) { s.Variables[0].Labels[0].Points = []float64{0, 3, 2, 6} }, nil, "not ordered"},
		{"breakpoint outside universe", func(s *artifacts.PolicySpec) { s.Variables[0].Labels[1].Points = []float64{2, 6, 10, 12} }, nil, "outside the universe"},
		{"three breakpoints", func(s *artifacts.PolicySpec) { s.Variables[0].Labels[1].Points = []float64{2, 6, 10} }, nil, "needs 4 breakpoints"},
		{"input not supplied", func(s *artifacts.PolicySpec) {}, []string{"w"}, "no input supplies"},
		{"duplicate rule id", func(s *artifacts.PolicySpec) { s.Dimensions[0].Rules[1].ID = "r-low" }, nil, "duplicated"},
		{"unknown advice condition", func(s *artifacts.PolicySpec) {
			s.Advice.Actions = []artifacts.ActionSpec{{Dimension: "only", Text: "t", When: "full_moon"}}
		}, nil, "unknown condition"},
		{"advice for unknown dimension", func(s *artifacts.PolicySpec) {
			s.Advice.Actions = []artifacts.ActionSpec{{Dimension: "race", Text: "t"}}
		}, nil, "unknown dimension"},
		{"limit for unknown level", func(s *artifacts.PolicySpec) { s.Advice.Limits = map[string]int{"mild": 1} }, nil, "unknown level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := customSpec()
			tt.mutate(&spec)
			inputs := tt.inputs
			if inputs == nil {
				inputs = []string{"x"}
			}
			_, err := NewEngine(spec, inputs)
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
			assert.Contains(t, err.Error(), tt.problem)
		})
	}
}

func scoreWith(composite, diversity, race, sex, age float64) scoring.CDRScore {
	return scoring.CDRScore{
		Targets: []scoring.TargetScore{
			{Target: "black_pct", Domain: "race", Deviation: -0.2},
			{Target: "female_pct", Domain: "sex", Deviation: 0},
			{Target: "age65_pct", Domain: "age", Deviation: 0.2},
		},
		Composite: composite,
		Diversity: diversity,
		Domains: []scoring.DomainScore{
			{Domain: "race", Gap: race},
			{Domain: "sex", Gap: sex},
			{Domain: "age", Gap: age},
		},
	}
}

func trial(t *testing.T, in schema.RawInput) *schema.TrialSpec {
	t.Helper()
	spec, _, err := schema.New(artifacts.MustDefault()).Validate(in)
	require.NoError(t, err)
	return spec
}

const (
	raceSites     = "Increase site diversity by adding community-based or non-academic recruitment locations"
	raceExclusion = "Review exclusion criteria that may disproportionately affect under-represented racial groups"
	sexEligible   = "Reconsider sex-restricted eligibility criteria where clinically appropriate"
	sexMaterials  = "Ensure recruitment materials are inclusive and accessible across genders"
	ageMax        = "Consider increasing the maximum eligible age to improve older-adult representation"
	ageBurden     = "Reduce visit burden or add decentralized options to support older participants"
	fallback      = "No major equity-related design changes recommended"
)

func TestRecommendAdvice(t *testing.T) {
	e := defaultEngine(t)

	restricted := trial(t, schema.RawInput{"planned_enrollment": 100, "eligibility_sex": "Female", "max_age": 65})
	open := trial(t, schema.RawInput{"planned_enrollment": 100, "eligibility_sex": "All", "max_age": 80})

	tests := []struct {
		name    string
		score   scoring.CDRScore
		spec    *schema.TrialSpec
		overall string
		actions []string
	}{
		{
			name:    "aggressive keeps everything",
			score:   scoreWith(0.5, 0, 0.5, 0.5, 0.5),
			spec:    restricted,
			overall: "aggressive",
			actions: []string{raceSites, raceExclusion, sexEligible, sexMaterials, ageMax, ageBurden},
		},
		{
			name:    "conditions filter actions",
			score:   scoreWith(0.5, 0, 0.5, 0.5, 0.5),
			spec:    open,
			overall: "aggressive",
			actions: []string{raceSites, raceExclusion, sexMaterials, ageBurden},
		},
		{
			name:    "no trial skips conditional actions",
			score:   scoreWith(0.5, 0, 0.5, 0.5, 0.5),
			spec:    nil,
			overall: "aggressive",
			actions: []string{raceSites, raceExclusion, sexMaterials, ageBurden},
		},
		{
			name:    "moderate keeps three",
			score:   scoreWith(0.15, 50, 0.5, 0.5, 0.5),
			spec:    restricted,
			overall: "moderate",
			actions: []string{raceSites, raceExclusion, sexEligible},
		},
		{
			name:    "light keeps one",
			score:   scoreWith(0.12, 100, 0.15, 0.5, 0),
			spec:    restricted,
			overall: "light",
			actions: []string{raceSites},
		},
		{
			name:    "only flagged dimensions contribute",
			score:   scoreWith(0.5, 0, 0, 0, 0.3),
			spec:    restricted,
			overall: "aggressive",
			actions: []string{ageMax, ageBurden},
		},
		{
			name:    "none gives the fallback",
			score:   scoreWith(0, 100, 0.5, 0.5, 0.5),
			spec:    restricted,
			overall: "none",
			actions: []string{fallback},
		},
		{
			name:    "nothing flagged gives the fallback",
			score:   scoreWith(0.5, 0, 0, 0, 0),
			spec:    restricted,
			overall: "aggressive",
			actions: []string{fallback},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := e.Recommend(tt.score, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.overall, rec.Overall)
			assert.Equal(t, tt.actions, rec.Actions)
		})
	}
}

func TestRecommendStatusesAndDeterminism(t *testing.T) {
	e := defaultEngine(t)
	score := scoreWith(0.2/3, 700.0/9, 0.1, 0, 0)

	a, err := e.Recommend(score, nil)
	require.NoError(t, err)
	b, err := e.Recommend(score, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.Len(t, a.Statuses, 3)
	assert.Equal(t, "under_represented", a.Statuses[0].Status)
	assert.Equal(t, "balanced", a.Statuses[1].Status)
	assert.Equal(t, "over_represented", a.Statuses[2].Status)
	assert.Equal(t, 0.2/3, a.Inputs[InputComposite])
	assert.Equal(t, 0.1, a.Inputs["race_gap"])
}

func TestRecommendRejectsNaNScore(t *testing.T) {
	e := defaultEngine(t)
	_, err := e.Recommend(scoreWith(math.NaN(), 50, 0, 0, 0), nil)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDomain))
}
