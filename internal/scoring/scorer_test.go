package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/predictor"
)

func threeTargetScorer() *Scorer {
	b := artifacts.MustDefault()
	b.Reference.Targets = []artifacts.Target{
		{Name: "group_a", Reference: 0.4, Weight: 1, Domain: "race"},
		{Name: "group_b", Reference: 0.4, Weight: 1, Domain: "race"},
		{Name: "group_c", Reference: 0.2, Weight: 1, Domain: "sex"},
	}
	return NewScorer(b)
}

func pv(targets []string, values ...float64) predictor.PredictionVector {
	return predictor.PredictionVector{Targets: targets, Values: values}
}

var abc = []string{"group_a", "group_b", "group_c"}

func TestScoreExample(t *testing.T) {
	s := threeTargetScorer()

	score, err := s.Score(pv(abc, 0.5, 0.3, 0.2))
	require.NoError(t, err)

	devs := score.Deviations()
	require.Len(t, devs, 3)
	assert.InDelta(t, 0.1, devs[0], 1e-12)
	assert.InDelta(t, -0.1, devs[1], 1e-12)
	assert.InDelta(t, 0.0, devs[2], 1e-12)

	// (|0.1| + |−0.1| + 0) / 3
	assert.InDelta(t, 0.2/3, score.Composite, 1e-12)

	race, ok := score.Domain("race")
	require.True(t, ok)
	assert.InDelta(t, 0.1, race.Gap, 1e-12)
	sex, _ := score.Domain("sex")
	assert.InDelta(t, 0.0, sex.Gap, 1e-12)

	// ratios 1.25, 0.75, 1.0
	assert.Equal(t, []int{2, 2, 3}, []int{score.Targets[0].Points, score.Targets[1].Points, score.Targets[2].Points})
	assert.Equal(t, 7, score.ICERTotal)
	assert.Equal(t, 9, score.ICERMax)
	assert.InDelta(t, 700.0/9, score.Diversity, 1e-9)
}

func TestScoreIsDeterministic(t *testing.T) {
	s := threeTargetScorer()
	a, err := s.Score(pv(abc, 0.5, 0.3, 0.2))
	require.NoError(t, err)
	b, err := s.Score(pv(abc, 0.5, 0.3, 0.2))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, math.Float64bits(a.Composite), math.Float64bits(b.Composite))
}

func TestScoreAcceptsAnyOrder(t *testing.T) {
	s := threeTargetScorer()
	a, err := s.Score(pv(abc, 0.5, 0.3, 0.2))
	require.NoError(t, err)
	b, err := s.Score(pv([]string{"group_c", "group_a", "group_b"}, 0.2, 0.5, 0.3))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestScoreKeyMismatchIsConfigurationError(t *testing.T) {
	s := threeTargetScorer()

	tests := []struct {
		name string
		pv   predictor.PredictionVector
		msg  string
	}{
		{"missing target", pv([]string{"group_a", "group_b"}, 0.5, 0.3), "missing: [group_c]"},
		{"extra target", pv([]string{"group_a", "group_b", "group_c", "group_d"}, 0.5, 0.3, 0.2, 0.1), "unexpected: [group_d]"},
		{"renamed target", pv([]string{"group_a", "group_b", "group_x"}, 0.5, 0.3, 0.2), "missing: [group_c], unexpected: [group_x]"},
		{"duplicate target", pv([]string{"group_a", "group_a", "group_c"}, 0.5, 0.3, 0.2), "repeats"},
		{"length mismatch", pv(abc, 0.5, 0.3), "3 targets but 2 values"},
		{"non finite", pv(abc, math.NaN(), 0.3, 0.2), "not finite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Score(tt.pv)
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCompositeMonotonicity(t *testing.T) {
	s := threeTargetScorer()

	// Move group_a steadily away from its reference of 0.4 in both directions.
	for _, path := range [][]float64{
		{0.4, 0.45, 0.5, 0.7, 0.9, 1.0},
		{0.4, 0.35, 0.2, 0.1, 0.0},
	} {
		prev := -1.0
		for _, p := range path {
			score, err := s.Score(pv(abc, p, 0.3, 0.25))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, score.Composite, prev, "p=%v", p)
			prev = score.Composite
		}
	}
}

func TestWeightsAffectComposite(t *testing.T) {
	b := artifacts.MustDefault()
	b.Reference.Targets = []artifacts.Target{
		{Name: "x", Reference: 0.5, Weight: 3, Domain: "race"},
		{Name: "y", Reference: 0.5, Weight: 1, Domain: "race"},
	}
	score, err := NewScorer(b).Score(pv([]string{"x", "y"}, 0.6, 0.5))
	require.NoError(t, err)
	// (3·0.1 + 1·0) / 4
	assert.InDelta(t, 0.075, score.Composite, 1e-12)
}

func TestPointsBands(t *testing.T) {
	tests := []struct {
		name      string
		predicted float64
		reference float64
		want      int
	}{
		{"parity", 0.25, 0.25, 3},
		{"ratio 1.2", 0.3, 0.25, 3},
		{"ratio 0.8", 0.2, 0.25, 3},
		{"ratio 1.25", 0.3125, 0.25, 2},
		{"ratio 1.5 edge", 0.375, 0.25, 2},
		{"ratio 0.5 edge", 0.125, 0.25, 2},
		{"ratio 2", 0.5, 0.25, 1},
		{"ratio 2.5 edge", 0.625, 0.25, 1},
		{"ratio 2.75", 0.6875, 0.25, 0},
		{"zero prediction", 0, 0.25, 0},
		{"zero reference", 0.3, 0, 0},
		{"negative prediction", -0.1, 0.25, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Points(tt.predicted, tt.reference))
		})
	}
}

func TestDefaultTableICERMax(t *testing.T) {
	b := artifacts.MustDefault()
	s := NewScorer(b)

	values := make([]float64, len(b.Reference.Targets))
	for i, tg := range b.Reference.Targets {
		values[i] = tg.Reference
	}
	score, err := s.Score(pv(b.Targets(), values...))
	require.NoError(t, err)

	assert.Equal(t, 21, score.ICERMax)
	assert.Equal(t, 21, score.ICERTotal)
	assert.Equal(t, 100.0, score.Diversity)
	assert.Equal(t, 0.0, score.Composite)

	maxByDomain := map[string]int{}
	for _, d := range score.Domains {
		maxByDomain[d.Domain] = d.Max
	}
	assert.Equal(t, map[string]int{"race": 12, "sex": 6, "age": 3}, maxByDomain)
}

func TestLargestGaps(t *testing.T) {
	b := artifacts.MustDefault()
	b.Reference.Targets = []artifacts.Target{
		{Name: "p", Reference: 0.25, Weight: 1, Domain: "race"},
		{Name: "q", Reference: 0.25, Weight: 1, Domain: "race"},
		{Name: "r", Reference: 0.5, Weight: 1, Domain: "age"},
	}
	score, err := NewScorer(b).Score(pv([]string{"p", "q", "r"}, 0.375, 0.125, 0))
	require.NoError(t, err)

	gaps := LargestGaps(score, 2)
	require.Len(t, gaps, 2)
	assert.Equal(t, "r", gaps[0].Target)
	// p and q tie at 0.125; table order wins.
	assert.Equal(t, "p", gaps[1].Target)

	assert.Len(t, LargestGaps(score, 10), 3)
	assert.Nil(t, LargestGaps(score, 0))
	assert.Equal(t, "p", score.Targets[0].Target, "input is not reordered")
}
