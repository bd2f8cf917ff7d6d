package policy

import "math"

// trapezoid is the membership function [a, b, c, d]: 0 outside [a, d], 1 on
// [b, c], linear on the shoulders. Degenerate shoulders (a == b or c == d)
// are vertical.
type trapezoid struct {
	a, b, c, d float64
}

func (t trapezoid) degree(x float64) float64 {
	switch {
	case x < t.a || x > t.d:
		return 0
	case x >= t.b && x <= t.c:
		return 1
	case x < t.b:
		return (x - t.a) / (t.b - t.a)
	default:
		return (t.d - x) / (t.d - t.c)
	}
}

type label struct {
	name  string
	shape trapezoid
}

type variable struct {
	name     string
	min, max float64
	labels   []label
}

// fuzzify clamps x to the universe and returns one degree per label, in label order.
func (v *variable) fuzzify(x float64) []float64 {
	x = math.Max(v.min, math.Min(v.max, x))
	out := make([]float64, len(v.labels))
	for i, l := range v.labels {
		out[i] = l.shape.degree(x)
	}
	return out
}

func (v *variable) labelIndex(name string) int {
	for i, l := range v.labels {
		if l.name == name {
			return i
		}
	}
	return -1
}

// argmax returns the first index holding the largest value.
func argmax(xs []float64) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}
