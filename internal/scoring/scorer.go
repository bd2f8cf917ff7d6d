// Package scoring computes the Clinical Diversity Representation (CDR) score:
// signed per-target deviations from prevalence-derived reference proportions,
// a weighted composite, and ICER-style representation points.
//
// The composite is the weighted mean of absolute deviations,
//
//	C = Σ wᵢ·|pᵢ − rᵢ| / Σ wᵢ
//
// and every call site (service, CLI, per-domain gaps) uses this one formula.
// The score is advisory and never feeds back into assembly or prediction.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/predictor"
)

// MaxPointsPerTarget is the top ICER band.
const MaxPointsPerTarget = 3

type TargetScore struct {
	Target    string  `json:"target"`
	Domain    string  `json:"domain"`
	Predicted float64 `json:"predicted"`
	Reference float64 `json:"reference"`
	Weight    float64 `json:"weight"`
	// Deviation is predicted − reference: positive means over-represented.
	Deviation float64 `json:"deviation"`
	Ratio     float64 `json:"ratio"`
	Points    int     `json:"points"`
}

type DomainScore struct {
	Domain string  `json:"domain"`
	Gap    float64 `json:"gap"`
	Points int     `json:"points"`
	Max    int     `json:"max"`
}

// CDRScore has no identity of its own; it is recomputed for every prediction.
type CDRScore struct {
	Targets   []TargetScore `json:"targets"`
	Composite float64       `json:"composite"`
	Domains   []DomainScore `json:"domains"`
	ICERTotal int           `json:"icer_total"`
	ICERMax   int           `json:"icer_max"`
	// Diversity is 100 · ICERTotal / ICERMax.
	Diversity float64 `json:"diversity"`
}

// Deviations returns the signed deviations in table order.
func (s CDRScore) Deviations() []float64 {
	out := make([]float64, len(s.Targets))
	for i, t := range s.Targets {
		out[i] = t.Deviation
	}
	return out
}

// Domain looks up a domain's aggregate.
func (s CDRScore) Domain(name string) (DomainScore, bool) {
	for _, d := range s.Domains {
		if d.Domain == name {
			return d, true
		}
	}
	return DomainScore{}, false
}

// Scorer is read-only after construction.
type Scorer struct {
	targets []artifacts.Target
	domains []string
}

func NewScorer(b *artifacts.Bundle) *Scorer {
	targets := make([]artifacts.Target, len(b.Reference.Targets))
	copy(targets, b.Reference.Targets)
	return &Scorer{targets: targets, domains: b.Domains()}
}

// Targets returns the reference target names in table order.
func (s *Scorer) Targets() []string {
	names := make([]string, len(s.targets))
	for i, t := range s.targets {
		names[i] = t.Name
	}
	return names
}

// Score compares a prediction with the reference table. The prediction's
// target set must equal the table's exactly; anything else is a
// configuration error. Prediction order does not matter, output follows the
// table.
func (s *Scorer) Score(pv predictor.PredictionVector) (CDRScore, error) {
	predicted, err := s.match(pv)
	if err != nil {
		return CDRScore{}, err
	}

	score := CDRScore{Targets: make([]TargetScore, len(s.targets))}
	for i, t := range s.targets {
		p := predicted[t.Name]
		ratio := p / t.Reference
		score.Targets[i] = TargetScore{
			Target:    t.Name,
			Domain:    t.Domain,
			Predicted: p,
			Reference: t.Reference,
			Weight:    t.Weight,
			Deviation: p - t.Reference,
			Ratio:     ratio,
			Points:    Points(p, t.Reference),
		}
	}

	score.Composite = Composite(score.Targets)

	for _, domain := range s.domains {
		var members []TargetScore
		points := 0
		for _, ts := range score.Targets {
			if ts.Domain == domain {
				members = append(members, ts)
				points += ts.Points
			}
		}
		ds := DomainScore{
			Domain: domain,
			Gap:    Composite(members),
			Points: points,
			Max:    MaxPointsPerTarget * len(members),
		}
		score.Domains = append(score.Domains, ds)
		score.ICERTotal += ds.Points
		score.ICERMax += ds.Max
	}

	if score.ICERMax > 0 {
		score.Diversity = 100 * float64(score.ICERTotal) / float64(score.ICERMax)
	}
	return score, nil
}

func (s *Scorer) match(pv predictor.PredictionVector) (map[string]float64, error) {
	if len(pv.Targets) != len(pv.Values) {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf(
			"prediction has %d targets but %d values", len(pv.Targets), len(pv.Values)), nil)
	}

	predicted := make(map[string]float64, len(pv.Targets))
	for i, name := range pv.Targets {
		if _, dup := predicted[name]; dup {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("prediction repeats target %q", name), nil)
		}
		predicted[name] = pv.Values[i]
	}

	var missing, extra []string
	known := make(map[string]bool, len(s.targets))
	for _, t := range s.targets {
		known[t.Name] = true
		if _, ok := predicted[t.Name]; !ok {
			missing = append(missing, t.Name)
		}
	}
	for name := range predicted {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(extra)
		return nil, apperrors.NewConfigurationError(fmt.Sprintf(
			"prediction targets do not match reference table (missing: [%s], unexpected: [%s])",
			strings.Join(missing, ", "), strings.Join(extra, ", ")), nil)
	}

	for name, v := range predicted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("prediction for %q is not finite", name), nil)
		}
	}
	return predicted, nil
}

// Composite is the weighted mean of absolute deviations. An empty set scores 0.
func Composite(targets []TargetScore) float64 {
	if len(targets) == 0 {
		return 0
	}
	abs := make([]float64, len(targets))
	weights := make([]float64, len(targets))
	for i, t := range targets {
		abs[i] = math.Abs(t.Deviation)
		weights[i] = t.Weight
	}
	return stat.Mean(abs, weights)
}

// Points scores one target by how close predicted/reference is to parity:
// 3 within ±20%, 2 within ±50%, 1 within ±150%, otherwise 0. An undefined or
// non-positive ratio scores 0.
func Points(predicted, reference float64) int {
	if reference <= 0 {
		return 0
	}
	ratio := predicted / reference
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio <= 0 {
		return 0
	}

	d := math.Abs(ratio - 1)
	switch {
	case d <= 0.2:
		return 3
	case d <= 0.5:
		return 2
	case d <= 1.5:
		return 1
	default:
		return 0
	}
}

// LargestGaps returns up to k targets ordered by |deviation|, largest first.
// Ties keep table order.
func LargestGaps(score CDRScore, k int) []TargetScore {
	if k <= 0 {
		return nil
	}
	sorted := make([]TargetScore, len(score.Targets))
	copy(sorted, score.Targets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Deviation) > math.Abs(sorted[j].Deviation)
	})
	if k < len(sorted) {
		sorted = sorted[:k]
	}
	return sorted
}
