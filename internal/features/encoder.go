package features

import (
	"fmt"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
)

// Encoder maps a categorical value to its frozen numeric code.
type Encoder interface {
	Fields() []string
	Encode(field, value string) (float64, error)
}

// OrdinalEncoder codes each category by its position in the artifact domain.
// It is fit offline and never refit.
type OrdinalEncoder struct {
	fields []string
	codes  map[string]map[string]float64
}

func NewOrdinalEncoder(layout artifacts.Layout) *OrdinalEncoder {
	enc := &OrdinalEncoder{
		fields: make([]string, 0, len(layout.Categorical)),
		codes:  make(map[string]map[string]float64, len(layout.Categorical)),
	}
	for _, f := range layout.Categorical {
		enc.fields = append(enc.fields, f.Name)
		m := make(map[string]float64, len(f.Domain))
		for i, v := range f.Domain {
			m[v] = float64(i)
		}
		enc.codes[f.Name] = m
	}
	return enc
}

func (e *OrdinalEncoder) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

func (e *OrdinalEncoder) Encode(field, value string) (float64, error) {
	m, ok := e.codes[field]
	if !ok {
		return 0, fmt.Errorf("encoder has no field %q", field)
	}
	code, ok := m[value]
	if !ok {
		return 0, fmt.Errorf("encoder field %q has no category %q", field, value)
	}
	return code, nil
}
