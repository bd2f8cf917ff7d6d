package schema

import (
	"encoding/json"
	"sort"
)

// RawInput is the field-by-field bundle submitted by a caller. Values are
// whatever JSON decoding produced: strings, numbers, lists or nil.
type RawInput map[string]any

// Notice reports a non-fatal normalisation, such as an unrecognised optional
// category mapped to Unknown.
type Notice struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// TrialSpec is a validated protocol description. It has no exported mutators.
type TrialSpec struct {
	categorical map[string]string
	numeric     map[string]float64
	narrative   map[string]string
}

// Category returns the canonical category of a field ("Unknown" when unset).
func (s *TrialSpec) Category(field string) string {
	return s.categorical[field]
}

// Number returns a numeric field and whether it was provided.
func (s *TrialSpec) Number(field string) (float64, bool) {
	v, ok := s.numeric[field]
	return v, ok
}

// Text returns a normalised narrative field; "" means not provided.
func (s *TrialSpec) Text(field string) string {
	return s.narrative[field]
}

// NumericFields lists the provided numeric fields in sorted order.
func (s *TrialSpec) NumericFields() []string {
	names := make([]string, 0, len(s.numeric))
	for k := range s.numeric {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type trialSpecJSON struct {
	Categorical map[string]string  `json:"categorical"`
	Numeric     map[string]float64 `json:"numeric"`
	Narrative   map[string]string  `json:"narrative"`
}

// MarshalJSON exposes the validated values.
func (s *TrialSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(trialSpecJSON{
		Categorical: s.categorical,
		Numeric:     s.numeric,
		Narrative:   s.narrative,
	})
}
