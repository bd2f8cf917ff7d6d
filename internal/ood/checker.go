// Package ood annotates feature vectors that sit far from the training
// distribution. It never blocks inference.
package ood

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/features"
)

type Level string

const (
	InDistribution    Level = "in_distribution"
	Borderline        Level = "borderline"
	OutOfDistribution Level = "out_of_distribution"
)

// FeatureZ is the standardized distance of one feature.
type FeatureZ struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Z       float64 `json:"z"`
}

// Flag is the per-request annotation. Score is the L∞ norm of the z vector
// and Feature the slot that attains it. Slots absent from the vector are
// listed in Missing and force OutOfDistribution.
type Flag struct {
	Level   Level      `json:"level"`
	Score   float64    `json:"score"`
	Feature string     `json:"feature,omitempty"`
	ZScores []FeatureZ `json:"z_scores"`
	Missing []string   `json:"missing,omitempty"`
}

// OutOfDistribution reports whether the hard threshold was crossed.
func (f Flag) OutOfDistribution() bool {
	return f.Level == OutOfDistribution
}

type slot struct {
	name      string
	numeric   bool
	index     int
	mean, std float64
}

// Checker holds the frozen per-feature statistics.
type Checker struct {
	slots      []slot
	borderline float64
	outOfDist  float64
}

func NewChecker(b *artifacts.Bundle) (*Checker, error) {
	c := &Checker{
		borderline: b.OOD.Borderline,
		outOfDist:  b.OOD.OutOfDistribution,
	}

	for _, s := range b.OOD.Features {
		sl := slot{name: s.Feature, index: -1, mean: s.Mean, std: s.Std}
		for i, f := range b.Layout.Numeric {
			if f.Name == s.Feature {
				sl.numeric, sl.index = true, i
			}
		}
		for i, f := range b.Layout.Categorical {
			if f.Name == s.Feature {
				sl.index = i
			}
		}
		if sl.index < 0 || s.Std <= 0 {
			return nil, apperrors.NewConfigurationError(
				fmt.Sprintf("ood statistics for %q do not match the layout", s.Feature), nil)
		}
		c.slots = append(c.slots, sl)
	}
	return c, nil
}

// Check computes z = |x - mean| / std per configured feature.
func (c *Checker) Check(fv features.FeatureVector) Flag {
	flag := Flag{Level: InDistribution, ZScores: make([]FeatureZ, 0, len(c.slots))}

	zs := make([]float64, 0, len(c.slots))
	for _, s := range c.slots {
		src := fv.Categorical
		if s.numeric {
			src = fv.Numeric
		}
		if s.index >= len(src) {
			flag.Missing = append(flag.Missing, s.name)
			continue
		}

		x := src[s.index]
		z := math.Abs(x-s.mean) / s.std
		zs = append(zs, z)
		flag.ZScores = append(flag.ZScores, FeatureZ{Feature: s.name, Value: x, Z: z})
	}

	if len(zs) > 0 {
		idx := floats.MaxIdx(zs)
		flag.Score = zs[idx]
		flag.Feature = flag.ZScores[idx].Feature
	}

	switch {
	case len(flag.Missing) > 0, flag.Score > c.outOfDist:
		flag.Level = OutOfDistribution
	case flag.Score > c.borderline:
		flag.Level = Borderline
	}
	return flag
}
