package policy

import (
	"fmt"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/schema"
)

// Advice conditions evaluated against the trial.
const (
	WhenRestrictedSex = "restricted_sex"
	WhenMaxAgeBelow   = "max_age_below"
)

// Fields read by advice conditions.
const (
	eligibilitySexField = "eligibility_sex"
	allSexes            = "All"
	maxAgeField         = "max_age"
)

type action struct {
	dimension string
	text      string
	when      string
	value     float64
}

type advice struct {
	fallback string
	limits   map[string]int
	actions  []action
}

func compileAdvice(spec artifacts.AdviceSpec, levels map[string]int, dimensions map[string]bool) (advice, []string) {
	var problems []string
	a := advice{fallback: spec.Fallback, limits: make(map[string]int, len(spec.Limits))}

	for level, n := range spec.Limits {
		if _, ok := levels[level]; !ok {
			problems = append(problems, fmt.Sprintf("advice limit for unknown level %q", level))
		}
		if n < -1 {
			problems = append(problems, fmt.Sprintf("advice limit for %q must be -1 or more", level))
		}
		a.limits[level] = n
	}

	for i, as := range spec.Actions {
		if !dimensions[as.Dimension] {
			problems = append(problems, fmt.Sprintf("advice action %d targets unknown dimension %q", i, as.Dimension))
		}
		if as.Text == "" {
			problems = append(problems, fmt.Sprintf("advice action %d has no text", i))
		}
		switch as.When {
		case "", WhenRestrictedSex, WhenMaxAgeBelow:
		default:
			problems = append(problems, fmt.Sprintf("advice action %d has unknown condition %q", i, as.When))
		}
		a.actions = append(a.actions, action{dimension: as.Dimension, text: as.Text, when: as.When, value: as.Value})
	}
	return a, problems
}

// applies checks an action's condition. Conditions that need the trial are
// false when it is not available.
func (a action) applies(spec *schema.TrialSpec) bool {
	switch a.when {
	case "":
		return true
	case WhenRestrictedSex:
		return spec != nil && spec.Category(eligibilitySexField) != allSexes
	case WhenMaxAgeBelow:
		if spec == nil {
			return false
		}
		maxAge, ok := spec.Number(maxAgeField)
		return ok && maxAge < a.value
	default:
		return false
	}
}

// actionsFor lists catalogue actions for every dimension above the lowest
// level, in catalogue order, cut to the overall level's limit. An empty list
// becomes the fallback message.
func (e *Engine) actionsFor(ev Evaluation, overall string, spec *schema.TrialSpec) []string {
	flagged := make(map[string]bool)
	for _, d := range ev.Dimensions {
		if d.Dimension != OverallDimension && e.levelIndex(d.Level) > 0 {
			flagged[d.Dimension] = true
		}
	}

	var out []string
	for _, a := range e.advice.actions {
		if flagged[a.dimension] && a.applies(spec) {
			out = append(out, a.text)
		}
	}

	if limit, ok := e.advice.limits[overall]; ok && limit >= 0 && limit < len(out) {
		out = out[:limit]
	}

	if len(out) == 0 && e.advice.fallback != "" {
		return []string{e.advice.fallback}
	}
	return out
}
