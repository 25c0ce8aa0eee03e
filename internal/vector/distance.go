package vector

import "math"

// SquaredL2 is the distance reported in Result: the squared Euclidean
// distance, smaller is closer. Mismatched lengths are infinitely far apart.
func SquaredL2(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var sum float32
	for i, x := range a {
		sum += (x - b[i]) * (x - b[i])
	}
	return sum
}
