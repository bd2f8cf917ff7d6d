// Package schema turns raw trial input into a validated TrialSpec. It never
// coerces silently: every rejected field is reported with a reason code and
// every optional value mapped to Unknown is reported as a Notice.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
)

// Fields checked by the cross-field age rule.
const (
	MinAgeField = "min_age"
	MaxAgeField = "max_age"
)

// Validator checks raw input against the artifact layout.
type Validator struct {
	layout    artifacts.Layout
	bounds    map[string]string
	domains   map[string]map[string]string
	validate  *validator.Validate
	fieldKind map[string]string
}

// New builds a Validator from a loaded bundle.
func New(b *artifacts.Bundle) *Validator {
	v := &Validator{
		layout:    b.Layout,
		bounds:    make(map[string]string, len(b.Layout.Numeric)),
		domains:   make(map[string]map[string]string, len(b.Layout.Categorical)),
		validate:  validator.New(),
		fieldKind: make(map[string]string),
	}

	for _, f := range b.Layout.Numeric {
		v.bounds[f.Name] = fmt.Sprintf("gte=%s,lte=%s", formatFloat(f.Min), formatFloat(f.Max))
		v.fieldKind[f.Name] = "numeric"
	}
	for _, f := range b.Layout.Categorical {
		canon := make(map[string]string, len(f.Domain))
		for _, d := range f.Domain {
			canon[strings.ToLower(d)] = d
		}
		v.domains[f.Name] = canon
		v.fieldKind[f.Name] = "categorical"
	}
	for _, f := range b.Layout.Narrative {
		v.fieldKind[f.Name] = "narrative"
	}
	return v
}

// Validate returns a TrialSpec, or a validation error carrying every violation.
func (v *Validator) Validate(raw RawInput) (*TrialSpec, []Notice, error) {
	spec := &TrialSpec{
		categorical: make(map[string]string, len(v.layout.Categorical)),
		numeric:     make(map[string]float64, len(v.layout.Numeric)),
		narrative:   make(map[string]string, len(v.layout.Narrative)),
	}
	var violations []apperrors.Violation
	var notices []Notice

	reject := func(field, reason, format string, args ...any) {
		violations = append(violations, apperrors.Violation{
			Field:   field,
			Reason:  reason,
			Message: fmt.Sprintf(format, args...),
		})
	}

	for _, f := range v.layout.Numeric {
		val, present, ok := numericValue(raw[f.Name])
		switch {
		case !ok:
			reject(f.Name, apperrors.ReasonOutOfDomain, "expected a number, got %T", raw[f.Name])
		case !present:
			if f.Required {
				reject(f.Name, apperrors.ReasonRequiredMissing, "a value is required")
			}
		case math.IsNaN(val) || math.IsInf(val, 0):
			reject(f.Name, apperrors.ReasonOutOfRange, "value must be a finite number")
		case v.validate.Var(val, v.bounds[f.Name]) != nil:
			reject(f.Name, apperrors.ReasonOutOfRange, "value %s is outside [%s, %s]",
				formatFloat(val), formatFloat(f.Min), formatFloat(f.Max))
		case f.Integer && math.Trunc(val) != val:
			reject(f.Name, apperrors.ReasonOutOfDomain, "value %s must be a whole number", formatFloat(val))
		default:
			spec.numeric[f.Name] = val
		}
	}

	for _, f := range v.layout.Categorical {
		rawVal := raw[f.Name]
		s, isString := rawVal.(string)
		if rawVal != nil && !isString {
			reject(f.Name, apperrors.ReasonOutOfDomain, "expected a string, got %T", rawVal)
			continue
		}

		s = strings.TrimSpace(s)
		canon, known := v.domains[f.Name][strings.ToLower(s)]
		switch {
		case s == "" || canon == artifacts.UnknownCategory:
			if f.Required {
				reject(f.Name, apperrors.ReasonRequiredMissing, "a value is required")
				continue
			}
			spec.categorical[f.Name] = artifacts.UnknownCategory
		case !known:
			if f.Required {
				reject(f.Name, apperrors.ReasonOutOfDomain, "%q is not one of %s", s, strings.Join(f.Domain, ", "))
				continue
			}
			spec.categorical[f.Name] = artifacts.UnknownCategory
			notices = append(notices, Notice{
				Field:   f.Name,
				Message: fmt.Sprintf("unrecognised value %q mapped to %s", s, artifacts.UnknownCategory),
			})
		default:
			spec.categorical[f.Name] = canon
		}
	}

	for _, f := range v.layout.Narrative {
		text, ok := narrativeValue(raw[f.Name])
		switch {
		case !ok:
			reject(f.Name, apperrors.ReasonOutOfDomain, "expected text or a list of text, got %T", raw[f.Name])
		case text == "":
			if f.Required {
				reject(f.Name, apperrors.ReasonRequiredMissing, "text is required")
			}
		default:
			spec.narrative[f.Name] = text
		}
	}

	minAge, hasMin := spec.numeric[MinAgeField]
	maxAge, hasMax := spec.numeric[MaxAgeField]
	if hasMin && hasMax && minAge > maxAge {
		reject(MaxAgeField, apperrors.ReasonCrossField, "max_age %s is below min_age %s",
			formatFloat(maxAge), formatFloat(minAge))
	}

	for _, field := range v.unknownFields(raw) {
		notices = append(notices, Notice{Field: field, Message: "field is not part of the trial layout and was ignored"})
	}

	if len(violations) > 0 {
		return nil, nil, apperrors.NewValidationError(violations)
	}
	return spec, notices, nil
}

func (v *Validator) unknownFields(raw RawInput) []string {
	var extra []string
	for k := range raw {
		if _, ok := v.fieldKind[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

// numericValue reports the value, whether it was provided, and whether its type was acceptable.
func numericValue(v any) (float64, bool, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false, true
	case float64:
		return n, true, true
	case float32:
		return float64(n), true, true
	case int:
		return float64(n), true, true
	case int64:
		return float64(n), true, true
	case int32:
		return float64(n), true, true
	case json.Number:
		f, err := n.Float64()
		if errors.Is(err, strconv.ErrRange) {
			// overflow comes back as ±Inf and fails the bounds check
			return f, true, true
		}
		if err != nil {
			return 0, false, false
		}
		return f, true, true
	case *float64:
		if n == nil {
			return 0, false, true
		}
		return *n, true, true
	default:
		return 0, false, false
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
