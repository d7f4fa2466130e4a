package model

import "math"

// Round2 rounds to currency precision (2 fractional digits).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round3 rounds to 3 fractional digits. The subset-sum solver compares at
// this precision to absorb float accumulation noise; final acceptance
// elsewhere stays at currency precision.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// SameAmount reports whether two amounts are equal at currency precision.
func SameAmount(a, b float64) bool {
	return Round2(a) == Round2(b)
}
