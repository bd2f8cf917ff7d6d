package policy

import (
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/schema"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/scoring"
)

// Input names derived from a CDR score.
const (
	InputComposite = "composite"
	InputDiversity = "diversity"
	gapSuffix      = "_gap"
)

// GapInput names the per-domain gap input.
func GapInput(domain string) string {
	return domain + gapSuffix
}

// InputNames lists every input InputsFromScore supplies for the given domains.
func InputNames(domains []string) []string {
	names := []string{InputComposite, InputDiversity}
	for _, d := range domains {
		names = append(names, GapInput(d))
	}
	return names
}

// InputsFromScore extracts the crisp policy inputs from a score.
func InputsFromScore(score scoring.CDRScore) Inputs {
	in := Inputs{
		InputComposite: score.Composite,
		InputDiversity: score.Diversity,
	}
	for _, d := range score.Domains {
		in[GapInput(d.Domain)] = d.Gap
	}
	return in
}

// Recommend evaluates the rule base for a score. spec is optional; without it
// advice that depends on trial details is skipped.
func (e *Engine) Recommend(score scoring.CDRScore, spec *schema.TrialSpec) (Recommendation, error) {
	in := InputsFromScore(score)
	ev, err := e.Evaluate(in)
	if err != nil {
		return Recommendation{}, err
	}

	rec := Recommendation{Inputs: in, Evaluation: ev}
	rec.Overall = e.overall(ev)

	if e.status != nil {
		rec.Statuses = make([]TargetStatus, 0, len(score.Targets))
		for _, t := range score.Targets {
			label, m, err := e.Status(t.Deviation)
			if err != nil {
				return Recommendation{}, err
			}
			rec.Statuses = append(rec.Statuses, TargetStatus{
				Target:      t.Target,
				Deviation:   t.Deviation,
				Status:      label,
				Memberships: m,
			})
		}
	}

	rec.Actions = e.actionsFor(ev, rec.Overall, spec)
	return rec, nil
}

// overall is the overall dimension's level, or the most intense level of any
// dimension when the rule base has no overall dimension.
func (e *Engine) overall(ev Evaluation) string {
	if d, ok := ev.Dimension(OverallDimension); ok {
		return d.Level
	}
	best := 0
	for _, d := range ev.Dimensions {
		if i := e.levelIndex(d.Level); i > best {
			best = i
		}
	}
	return e.levels[best]
}
