// Package embedding provides vector embedding generation for text.
package embedding

import "math"

// UnitTolerance is the allowed deviation from 1.0 for a vector to count as unit-normalized.
const UnitTolerance = 1e-5

// Embedding represents a vector embedding of text.
type Embedding struct {
	Vector []float32 // The embedding vector (384 dimensions for all-MiniLM-L6-v2)
}

// Dimensions returns the dimensionality of the embedding.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}

// Norm returns the Euclidean norm of the embedding.
func (e Embedding) Norm() float64 {
	return Norm(e.Vector)
}

// IsUnit reports whether the embedding is unit-normalized within UnitTolerance.
func (e Embedding) IsUnit() bool {
	return IsUnit(e.Vector, UnitTolerance)
}

// Norm returns the Euclidean (L2) norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// IsUnit reports whether |v| is within tol of 1.
func IsUnit(v []float32, tol float64) bool {
	if len(v) == 0 {
		return false
	}
	return math.Abs(Norm(v)-1) <= tol
}

// Normalize returns v scaled to unit length. A zero vector is returned unchanged
// (as a copy) since it has no direction.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}
