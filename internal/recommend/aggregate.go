package recommend

import (
	"errors"
	"fmt"
)

// MinSavedPapers is the fewest saved embeddings that define an interest vector.
const MinSavedPapers = 5

var errTooFewVectors = errors.New("too few saved embeddings")

// ComputeUserInterestVector returns the coordinate-wise mean of vectors.
//
// Fewer than MinSavedPapers vectors leave the mean undefined. Vectors of
// differing or zero width fail with ErrDimensionMismatch. The mean is not
// re-normalized: ranking uses cosine similarity, which ignores the query's
// length.
func ComputeUserInterestVector(vectors [][]float32) ([]float32, error) {
	if len(vectors) < MinSavedPapers {
		return nil, fmt.Errorf("%w: have %d, need %d", errTooFewVectors, len(vectors), MinSavedPapers)
	}

	dims := len(vectors[0])
	if dims == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrDimensionMismatch)
	}
	sums := make([]float64, dims)
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: embedding %d has width %d, first has %d", ErrDimensionMismatch, i, len(v), dims)
		}
		for j, x := range v {
			sums[j] += float64(x)
		}
	}

	n := float64(len(vectors))
	mean := make([]float32, dims)
	for i, s := range sums {
		mean[i] = float32(s / n)
	}
	return mean, nil
}
