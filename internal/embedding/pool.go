package embedding

import "fmt"

// MeanPool averages per-token vectors weighted by the attention mask.
//
// hidden is row-major with len(mask) rows of dims columns. Each row is multiplied
// by its mask value and the sum is divided by the sum of the mask, so padded
// positions contribute nothing. A zero mask sum yields a zero vector.
func MeanPool(hidden []float32, mask []int64, dims int) ([]float32, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", dims)
	}
	if len(hidden) != len(mask)*dims {
		return nil, fmt.Errorf("hidden state size mismatch: got %d values, want %d (%d tokens x %d dims)",
			len(hidden), len(mask)*dims, len(mask), dims)
	}

	sums := make([]float64, dims)
	var count float64
	for pos, m := range mask {
		if m == 0 {
			continue
		}
		weight := float64(m)
		count += weight
		row := hidden[pos*dims : (pos+1)*dims]
		for i, x := range row {
			sums[i] += float64(x) * weight
		}
	}

	pooled := make([]float32, dims)
	if count == 0 {
		return pooled, nil
	}
	for i, s := range sums {
		pooled[i] = float32(s / count)
	}
	return pooled, nil
}
