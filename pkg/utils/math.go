package utils

import "math"

// NormalizeL2 scales an embedding in place to unit length so that cosine similarity in
// the vector index reduces to a dot product. A zero vector (an empty page or a text
// with no hashable tokens) is left as is.
func NormalizeL2(vec []float32) {
	var sq float64
	for _, v := range vec {
		sq += float64(v) * float64(v)
	}
	if sq == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sq))
	for i := range vec {
		vec[i] *= inv
	}
}
