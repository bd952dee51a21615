package evaluate

import "sort"

// mean returns the arithmetic mean of values.
// Params: non-empty value slice.
// Returns: mean, zero for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values))
}

// quantile returns the q-quantile with linear interpolation between ranks.
// Params: value slice and quantile in [0,1].
// Returns: interpolated quantile, zero for an empty slice.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	position := q * float64(len(sorted)-1)
	lower := int(position)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	fraction := position - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*fraction
}

// iqrBounds returns the 1.5 IQR fence for outlier detection.
// Params: value slice.
// Returns: lower bound, upper bound, and interquartile range.
func iqrBounds(values []float64) (float64, float64, float64) {
	q1 := quantile(values, 0.25)
	q3 := quantile(values, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr, iqr
}
