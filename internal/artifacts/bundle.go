// Package artifacts holds the frozen, versioned tables the pipeline reads:
// feature layout and bounds, category domains, embedding settings, reference
// proportions, OOD statistics and the fuzzy rule base. A Bundle is loaded once
// at startup and never mutated afterwards.
package artifacts

// UnknownCategory is the sentinel every categorical domain must contain.
const UnknownCategory = "Unknown"

// Bundle is the immutable artifact set shared by every pipeline component.
type Bundle struct {
	Version   string        `yaml:"version" json:"version"`
	Layout    Layout        `yaml:"layout" json:"layout"`
	Embedding EmbeddingSpec `yaml:"embedding" json:"embedding"`
	Reference ReferenceSpec `yaml:"reference" json:"reference"`
	OOD       OODSpec       `yaml:"ood" json:"ood"`
	Policy    PolicySpec    `yaml:"policy" json:"policy"`

	// Fingerprint is the xxhash64 of the source document, hex encoded.
	Fingerprint string `yaml:"-" json:"fingerprint"`
	// Profile names the reference profile applied at load time.
	Profile string `yaml:"-" json:"profile"`
}

// Layout fixes the field order of the feature vector shared with the model.
type Layout struct {
	Version     string             `yaml:"version" json:"version"`
	Numeric     []NumericField     `yaml:"numeric" json:"numeric"`
	Categorical []CategoricalField `yaml:"categorical" json:"categorical"`
	Narrative   []NarrativeField   `yaml:"narrative" json:"narrative"`
}

type NumericField struct {
	Name     string  `yaml:"name" json:"name"`
	Min      float64 `yaml:"min" json:"min"`
	Max      float64 `yaml:"max" json:"max"`
	Fill     float64 `yaml:"fill" json:"fill"`
	Integer  bool    `yaml:"integer" json:"integer"`
	Required bool    `yaml:"required" json:"required"`
}

type CategoricalField struct {
	Name     string   `yaml:"name" json:"name"`
	Domain   []string `yaml:"domain" json:"domain"`
	Required bool     `yaml:"required" json:"required"`
}

type NarrativeField struct {
	Name     string `yaml:"name" json:"name"`
	Marker   string `yaml:"marker" json:"marker"`
	Required bool   `yaml:"required" json:"required"`
}

// EmbeddingSpec configures the hashing embedder.
type EmbeddingSpec struct {
	Dim       int    `yaml:"dim" json:"dim"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
	Seed      uint64 `yaml:"seed" json:"seed"`
}

// ReferenceSpec is the prevalence-derived reference table (PDRR).
type ReferenceSpec struct {
	BaseProfile string                        `yaml:"base_profile" json:"base_profile"`
	Targets     []Target                      `yaml:"targets" json:"targets"`
	Profiles    map[string]map[string]float64 `yaml:"profiles" json:"profiles,omitempty"`
}

// Target is one demographic output of the Predictor.
type Target struct {
	Name      string  `yaml:"target" json:"target"`
	Reference float64 `yaml:"reference" json:"reference"`
	Weight    float64 `yaml:"weight" json:"weight"`
	Domain    string  `yaml:"domain" json:"domain"`
}

type OODSpec struct {
	Borderline        float64       `yaml:"borderline" json:"borderline"`
	OutOfDistribution float64       `yaml:"out_of_distribution" json:"out_of_distribution"`
	Features          []FeatureStat `yaml:"features" json:"features"`
}

// FeatureStat is the training mean and standard deviation of one feature slot.
type FeatureStat struct {
	Feature string  `yaml:"feature" json:"feature"`
	Mean    float64 `yaml:"mean" json:"mean"`
	Std     float64 `yaml:"std" json:"std"`
}

// PolicySpec is the expert-authored fuzzy rule base.
type PolicySpec struct {
	Levels     []string        `yaml:"levels" json:"levels"`
	Variables  []VariableSpec  `yaml:"variables" json:"variables"`
	Dimensions []DimensionSpec `yaml:"dimensions" json:"dimensions"`
	Status     StatusSpec      `yaml:"status" json:"status"`
	Advice     AdviceSpec      `yaml:"advice" json:"advice"`
}

type VariableSpec struct {
	Name     string      `yaml:"name" json:"name"`
	Universe []float64   `yaml:"universe" json:"universe"`
	Labels   []LabelSpec `yaml:"labels" json:"labels"`
}

// LabelSpec is a trapezoid [a, b, c, d]; triangles have b == c.
type LabelSpec struct {
	Name   string    `yaml:"name" json:"name"`
	Points []float64 `yaml:"points" json:"points"`
}

type DimensionSpec struct {
	Name  string     `yaml:"name" json:"name"`
	Rules []RuleSpec `yaml:"rules" json:"rules"`
}

type RuleSpec struct {
	ID   string   `yaml:"id" json:"id"`
	If   []Clause `yaml:"if" json:"if"`
	Then string   `yaml:"then" json:"then"`
}

type Clause struct {
	Var string `yaml:"var" json:"var"`
	Is  string `yaml:"is" json:"is"`
}

// StatusSpec names the variable used to label each target's deviation.
type StatusSpec struct {
	Variable string `yaml:"variable" json:"variable"`
}

type AdviceSpec struct {
	Fallback string         `yaml:"fallback" json:"fallback"`
	Limits   map[string]int `yaml:"limits" json:"limits"`
	Actions  []ActionSpec   `yaml:"actions" json:"actions"`
}

// ActionSpec is one catalogue entry. When is empty, "restricted_sex" or
// "max_age_below" (compared against Value).
type ActionSpec struct {
	Dimension string  `yaml:"dimension" json:"dimension"`
	Text      string  `yaml:"text" json:"text"`
	When      string  `yaml:"when,omitempty" json:"when,omitempty"`
	Value     float64 `yaml:"value,omitempty" json:"value,omitempty"`
}

// Targets returns target names in Predictor output order.
func (b *Bundle) Targets() []string {
	names := make([]string, len(b.Reference.Targets))
	for i, t := range b.Reference.Targets {
		names[i] = t.Name
	}
	return names
}

// Domains returns reference domains in first-seen table order.
func (b *Bundle) Domains() []string {
	var domains []string
	seen := make(map[string]bool)
	for _, t := range b.Reference.Targets {
		if !seen[t.Domain] {
			seen[t.Domain] = true
			domains = append(domains, t.Domain)
		}
	}
	return domains
}

// InputDim is the flattened feature vector length expected by the Predictor.
func (b *Bundle) InputDim() int {
	return len(b.Layout.Numeric) + len(b.Layout.Categorical) + b.Embedding.Dim
}

// NumericField looks up a numeric field by name.
func (b *Bundle) NumericField(name string) (NumericField, bool) {
	for _, f := range b.Layout.Numeric {
		if f.Name == name {
			return f, true
		}
	}
	return NumericField{}, false
}
