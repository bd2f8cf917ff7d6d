package policy

// RuleFiring is one rule's strength, exposed for explainability.
type RuleFiring struct {
	ID       string  `json:"id"`
	Then     string  `json:"then"`
	Strength float64 `json:"strength"`
}

// LevelStrength is the aggregated (max) strength behind one level.
type LevelStrength struct {
	Level    string  `json:"level"`
	Strength float64 `json:"strength"`
}

type DimensionResult struct {
	Dimension string          `json:"dimension"`
	Level     string          `json:"level"`
	Strengths []LevelStrength `json:"strengths"`
	Firings   []RuleFiring    `json:"firings"`
}

// Evaluation is the raw inference output before advice.
type Evaluation struct {
	Dimensions  []DimensionResult             `json:"dimensions"`
	Memberships map[string]map[string]float64 `json:"memberships"`
}

// Dimension looks up one dimension's result.
func (e Evaluation) Dimension(name string) (DimensionResult, bool) {
	for _, d := range e.Dimensions {
		if d.Dimension == name {
			return d, true
		}
	}
	return DimensionResult{}, false
}

// TargetStatus labels one target's deviation.
type TargetStatus struct {
	Target      string             `json:"target"`
	Deviation   float64            `json:"deviation"`
	Status      string             `json:"status"`
	Memberships map[string]float64 `json:"memberships"`
}

// Recommendation is the graded policy output for one CDR score.
type Recommendation struct {
	Overall  string         `json:"overall"`
	Inputs   Inputs         `json:"inputs"`
	Statuses []TargetStatus `json:"statuses,omitempty"`
	Actions  []string       `json:"actions"`
	Evaluation
}
