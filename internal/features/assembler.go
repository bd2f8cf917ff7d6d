// Package features assembles the canonical, fixed-order feature vector that
// the frozen model consumes.
package features

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/schema"
)

// SectionSeparator joins narrative sections before embedding.
const SectionSeparator = " \n "

// Assembler is safe for concurrent use; it holds only read-only state.
type Assembler struct {
	layout   artifacts.Layout
	encoder  Encoder
	embedder Embedder
}

// NewAssembler checks the transforms against the layout. Any mismatch is a
// configuration error, detected once at startup.
func NewAssembler(b *artifacts.Bundle, encoder Encoder, embedder Embedder) (*Assembler, error) {
	if embedder.Dim() != b.Embedding.Dim {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("embedder dimension %d does not match layout dimension %d", embedder.Dim(), b.Embedding.Dim), nil)
	}

	known := make(map[string]bool)
	for _, f := range encoder.Fields() {
		known[f] = true
	}
	for _, f := range b.Layout.Categorical {
		if !known[f.Name] {
			return nil, apperrors.NewConfigurationError(
				fmt.Sprintf("encoder does not cover categorical field %q", f.Name), nil)
		}
		if _, err := encoder.Encode(f.Name, artifacts.UnknownCategory); err != nil {
			return nil, apperrors.NewConfigurationError(
				fmt.Sprintf("encoder cannot represent %s for %q", artifacts.UnknownCategory, f.Name), err)
		}
	}

	return &Assembler{layout: b.Layout, encoder: encoder, embedder: embedder}, nil
}

// NewDefaultAssembler wires the frozen ordinal encoder and hashing embedder.
func NewDefaultAssembler(b *artifacts.Bundle) (*Assembler, error) {
	return NewAssembler(b, NewOrdinalEncoder(b.Layout), NewHashingEmbedder(b.Embedding))
}

// Assemble converts a validated spec into a FeatureVector. Identical specs
// produce bit-identical vectors.
func (a *Assembler) Assemble(spec *schema.TrialSpec) (FeatureVector, error) {
	fv := FeatureVector{
		Layout:      a.layout.Version,
		Numeric:     make([]float64, len(a.layout.Numeric)),
		Categorical: make([]float64, len(a.layout.Categorical)),
	}

	for i, f := range a.layout.Numeric {
		if v, ok := spec.Number(f.Name); ok {
			fv.Numeric[i] = v
		} else {
			fv.Numeric[i] = f.Fill
		}
	}

	for i, f := range a.layout.Categorical {
		value := spec.Category(f.Name)
		if value == "" {
			value = artifacts.UnknownCategory
		}
		code, err := a.encoder.Encode(f.Name, value)
		if err != nil {
			return FeatureVector{}, apperrors.NewConfigurationError("categorical encoding failed", err)
		}
		fv.Categorical[i] = code
	}

	fv.Embedding = a.embedder.Embed(a.NarrativeText(spec))
	if len(fv.Embedding) != a.embedder.Dim() {
		return FeatureVector{}, apperrors.NewConfigurationError(
			fmt.Sprintf("embedder returned %d values, expected %d", len(fv.Embedding), a.embedder.Dim()), nil)
	}
	return fv, nil
}

// NarrativeText composes the provided narrative sections in layout order, each
// prefixed by its section marker. No sections gives "".
func (a *Assembler) NarrativeText(spec *schema.TrialSpec) string {
	sections := make([]string, 0, len(a.layout.Narrative))
	for _, f := range a.layout.Narrative {
		if text := spec.Text(f.Name); text != "" {
			sections = append(sections, f.Marker+" "+text)
		}
	}
	return strings.Join(sections, SectionSeparator)
}
