package features

// FeatureVector is the canonical model input derived from one TrialSpec.
// Numeric follows the layout's numeric order, Categorical holds encoder codes
// in categorical order, and Embedding has the configured fixed dimension.
type FeatureVector struct {
	Layout      string    `json:"layout"`
	Numeric     []float64 `json:"numeric"`
	Categorical []float64 `json:"categorical"`
	Embedding   []float64 `json:"embedding"`
}

// Len is the flattened length.
func (fv FeatureVector) Len() int {
	return len(fv.Numeric) + len(fv.Categorical) + len(fv.Embedding)
}

// Flatten returns numeric ‖ categorical ‖ embedding as a new slice.
func (fv FeatureVector) Flatten() []float64 {
	out := make([]float64, 0, fv.Len())
	out = append(out, fv.Numeric...)
	out = append(out, fv.Categorical...)
	return append(out, fv.Embedding...)
}
