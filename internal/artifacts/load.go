package artifacts

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
)

//go:embed default.yaml
var defaultBundle []byte

// Options selects where the bundle comes from and how it is adjusted.
type Options struct {
	// Path to a YAML bundle; empty uses the embedded default.
	Path string
	// Workbook is an optional xlsx whose sheets replace the reference and OOD tables.
	Workbook string
	// Profile names a reference profile; empty or the base profile keeps the table as is.
	Profile string
}

// Load reads, adjusts and validates a bundle. Every failure is a configuration error.
func Load(opts Options) (*Bundle, error) {
	data := defaultBundle
	if opts.Path != "" {
		raw, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, apperrors.NewConfigurationError("cannot read artifact bundle "+opts.Path, err)
		}
		data = raw
	}

	b, err := decode(data)
	if err != nil {
		return nil, err
	}

	if opts.Workbook != "" {
		if err := applyWorkbook(b, opts.Workbook); err != nil {
			return nil, err
		}
	}

	if err := b.applyProfile(opts.Profile); err != nil {
		return nil, err
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Default returns the validated embedded bundle.
func Default() (*Bundle, error) {
	return Load(Options{})
}

// MustDefault is Default for tests and static initialisation.
func MustDefault() *Bundle {
	b, err := Default()
	if err != nil {
		panic(err)
	}
	return b
}

// Parse decodes and validates a YAML bundle without touching the filesystem.
func Parse(data []byte) (*Bundle, error) {
	b, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func decode(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, apperrors.NewConfigurationError("artifact bundle is not valid YAML", err)
	}
	b.Fingerprint = fmt.Sprintf("%016x", xxhash.Sum64(data))
	b.Profile = b.Reference.BaseProfile

	for i := range b.Reference.Targets {
		if b.Reference.Targets[i].Weight == 0 {
			b.Reference.Targets[i].Weight = 1
		}
	}
	return &b, nil
}

func (b *Bundle) applyProfile(name string) error {
	if name == "" || name == b.Reference.BaseProfile {
		return nil
	}

	overrides, ok := b.Reference.Profiles[name]
	if !ok {
		return apperrors.NewConfigurationError(fmt.Sprintf("unknown reference profile %q", name), nil)
	}

	targets := make([]Target, len(b.Reference.Targets))
	copy(targets, b.Reference.Targets)
	index := make(map[string]int, len(targets))
	for i, t := range targets {
		index[t.Name] = i
	}
	for target, ref := range overrides {
		i, ok := index[target]
		if !ok {
			return apperrors.NewConfigurationError(
				fmt.Sprintf("profile %q overrides unknown target %q", name, target), nil)
		}
		targets[i].Reference = ref
	}

	b.Reference.Targets = targets
	b.Profile = name
	b.Fingerprint = fmt.Sprintf("%016x", xxhash.Sum64String(b.Fingerprint+"|"+name))
	return nil
}

// Validate checks the bundle's internal shape. Cross-component checks such as
// rule-base semantics and Predictor compatibility live with their components.
func (b *Bundle) Validate() error {
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if b.Layout.Version == "" {
		fail("layout.version is empty")
	}
	if len(b.Layout.Numeric) == 0 {
		fail("layout.numeric is empty")
	}

	names := make(map[string]bool)
	claim := func(name string) {
		if name == "" {
			fail("layout field with empty name")
			return
		}
		if names[name] {
			fail("duplicate layout field %q", name)
		}
		names[name] = true
	}

	for _, f := range b.Layout.Numeric {
		claim(f.Name)
		if !finite(f.Min) || !finite(f.Max) || f.Min > f.Max {
			fail("numeric field %q has invalid bounds [%v, %v]", f.Name, f.Min, f.Max)
		}
		if f.Fill < f.Min || f.Fill > f.Max {
			fail("numeric field %q fill %v is outside its bounds", f.Name, f.Fill)
		}
	}
	for _, f := range b.Layout.Categorical {
		claim(f.Name)
		seen := make(map[string]bool)
		hasUnknown := false
		for _, v := range f.Domain {
			key := strings.ToLower(v)
			if seen[key] {
				fail("categorical field %q repeats %q", f.Name, v)
			}
			seen[key] = true
			if v == UnknownCategory {
				hasUnknown = true
			}
		}
		if !hasUnknown {
			fail("categorical field %q has no %q member", f.Name, UnknownCategory)
		}
	}
	for _, f := range b.Layout.Narrative {
		claim(f.Name)
		if strings.TrimSpace(f.Marker) == "" {
			fail("narrative field %q has no section marker", f.Name)
		}
	}

	if b.Embedding.Dim <= 0 {
		fail("embedding.dim must be positive")
	}
	if b.Embedding.MaxTokens <= 0 {
		fail("embedding.max_tokens must be positive")
	}

	if len(b.Reference.Targets) == 0 {
		fail("reference.targets is empty")
	}
	targets := make(map[string]bool)
	for _, t := range b.Reference.Targets {
		if t.Name == "" || targets[t.Name] {
			fail("reference target %q is empty or duplicated", t.Name)
		}
		targets[t.Name] = true
		if !finite(t.Reference) || t.Reference <= 0 || t.Reference > 1 {
			fail("reference target %q has proportion %v outside (0, 1]", t.Name, t.Reference)
		}
		if !finite(t.Weight) || t.Weight <= 0 {
			fail("reference target %q has invalid weight %v", t.Name, t.Weight)
		}
		if t.Domain == "" {
			fail("reference target %q has no domain", t.Name)
		}
	}

	if b.OOD.Borderline <= 0 || b.OOD.OutOfDistribution < b.OOD.Borderline {
		fail("ood thresholds must satisfy 0 < borderline <= out_of_distribution")
	}
	for _, s := range b.OOD.Features {
		if !names[s.Feature] {
			fail("ood feature %q is not a layout field", s.Feature)
		}
		if !finite(s.Mean) || !finite(s.Std) || s.Std <= 0 {
			fail("ood feature %q has invalid statistics", s.Feature)
		}
	}
	for _, s := range b.OOD.Features {
		for _, f := range b.Layout.Narrative {
			if f.Name == s.Feature {
				fail("ood feature %q names a narrative field", s.Feature)
			}
		}
	}

	if len(problems) > 0 {
		return apperrors.NewConfigurationError(
			"invalid artifact bundle: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
