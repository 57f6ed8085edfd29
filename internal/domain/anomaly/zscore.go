package anomaly

import "math"

// ZScore returns |value-mean|/stdDev, or 0 when stdDev is not positive.
func ZScore(value, mean, stdDev float64) float64 {
	if stdDev <= 0 {
		return 0
	}
	return math.Abs(value-mean) / stdDev
}

// Exceeds reports whether z is strictly greater than threshold.
func Exceeds(z, threshold float64) bool {
	return z > threshold
}

// meanStdDev computes the mean and population standard deviation in two
// passes so that a flat window yields exactly zero.
func meanStdDev(values []float64) (mean, stdDev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
