// Package stats implements the percentile estimate used by the QPS check.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInsufficientData reports a sample set too small to interpolate.
var ErrInsufficientData = errors.New("insufficient data: need at least 2 samples")

// Percentile returns the p-th percentile of values using linear
// interpolation between closest ranks:
//
//	rank = p*(n-1) + 1
//	result = sorted[k] + f*(sorted[k+1] - sorted[k])
//
// where k = floor(rank)-1 and f is the fractional part of rank.
// The input slice is not modified.
func Percentile(values []float64, p float64) (float64, error) {
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("percentile %v out of range [0, 1]", p)
	}
	if len(values) < 2 {
		return 0, ErrInsufficientData
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p*float64(len(sorted)-1) + 1
	k := int(math.Floor(rank)) - 1
	f := rank - math.Floor(rank)

	// p=1 lands exactly on the last element
	if k >= len(sorted)-1 {
		return sorted[len(sorted)-1], nil
	}
	return sorted[k] + f*(sorted[k+1]-sorted[k]), nil
}
