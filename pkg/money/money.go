// Package money holds the monetary helpers shared by the billing, budget and
// contract services. Amounts are float64 values in clinic currency rounded to
// cents; comparisons tolerate float noise with a half-cent epsilon.
package money

import "math"

// Epsilon is the tolerance applied when comparing monetary values.
const Epsilon = 0.005

// Round2 rounds an amount to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Equal reports whether two amounts are the same within Epsilon.
func Equal(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// GTE reports whether a covers b (a >= b) within Epsilon.
func GTE(a, b float64) bool {
	return a > b-Epsilon
}

// Positive reports whether v is strictly positive past Epsilon.
func Positive(v float64) bool {
	return v > Epsilon
}

// Shares splits total into n parts rounded to cents, with the final share
// absorbing the rounding remainder so the parts always sum back to total.
func Shares(total float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	share := Round2(total / float64(n))
	parts := make([]float64, n)
	for i := 0; i < n-1; i++ {
		parts[i] = share
	}
	parts[n-1] = Round2(total - share*float64(n-1))
	return parts
}
