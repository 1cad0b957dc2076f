// Package scoring combines the two partial match scores into the single
// gating score the pipeline acts on.
package scoring

// Combiner computes the weighted combination of the fast (cosine) and deep
// (reasoning) scores. It is a pure function of its inputs.
type Combiner struct {
	// CosineWeight is the share given to the fast score; the deep score gets
	// the remainder.
	CosineWeight float64
}

// NewCombiner builds a combiner with the supplied cosine weight.
func NewCombiner(cosineWeight float64) Combiner {
	return Combiner{CosineWeight: cosineWeight}
}

// Combine returns weight*cosine + (1-weight)*reasoning. A nil reasoning score
// (deep scoring skipped) is treated as zero. The multiplications are applied
// in this order so repeated calls are bit-identical.
func (c Combiner) Combine(cosine float64, reasoning *float64) float64 {
	r := 0.0
	if reasoning != nil {
		r = *reasoning
	}
	return c.CosineWeight*cosine + (1-c.CosineWeight)*r
}
