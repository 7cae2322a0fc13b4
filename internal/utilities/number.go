package utilities

import "math"

// RoundHalfEven rounds v to the given number of decimals, ties to even.
func RoundHalfEven(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow10(decimals)
	return math.RoundToEven(v*p) / p
}
