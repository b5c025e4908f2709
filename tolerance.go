// Package mpsgemm tolerance-based verification for floating-point comparisons
package mpsgemm

import (
	"math"

	"github.com/chewxy/math32"
)

// ToleranceConfig defines tolerance parameters for floating-point comparison
type ToleranceConfig struct {
	// AbsTol is the absolute tolerance for values near zero
	AbsTol float32

	// RelTol is the relative tolerance as a fraction of the larger value
	RelTol float32
}

// DefaultTolerance returns tolerances suited to full-precision results
func DefaultTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol: 1e-6,
		RelTol: 1e-5,
	}
}

// ReducedPrecisionTolerance returns tolerances suited to results of the
// reduced-precision tensor-core kernels, which accumulate larger
// rounding error than a full-precision multiply
func ReducedPrecisionTolerance() ToleranceConfig {
	return ToleranceConfig{
		AbsTol: 1e-2,
		RelTol: 5e-2,
	}
}

// Float32NearEqual checks if two float32 values are equal within tolerance
func Float32NearEqual(a, b float32, tol ToleranceConfig) bool {
	if math.IsNaN(float64(a)) && math.IsNaN(float64(b)) {
		return true
	}
	if math.IsInf(float64(a), 1) && math.IsInf(float64(b), 1) {
		return true
	}
	if math.IsInf(float64(a), -1) && math.IsInf(float64(b), -1) {
		return true
	}

	// Exactly equal (handles ±0)
	if a == b {
		return true
	}

	diff := math32.Abs(a - b)
	if diff <= tol.AbsTol {
		return true
	}

	larger := math32.Max(math32.Abs(a), math32.Abs(b))
	return diff <= larger*tol.RelTol
}

// VerificationResult summarizes an element-wise comparison of two slices
type VerificationResult struct {
	MaxAbsError float32
	NumErrors   int
	TotalItems  int
	FirstError  int // Index of first error, -1 if none
}

// VerifyFloat32Slice compares two float32 slices within tolerance and
// returns detailed results
func VerifyFloat32Slice(got, want []float32, tol ToleranceConfig) VerificationResult {
	res := VerificationResult{FirstError: -1}
	n := len(got)
	if len(want) < n {
		n = len(want)
	}
	res.TotalItems = n
	for i := 0; i < n; i++ {
		diff := math32.Abs(got[i] - want[i])
		if diff > res.MaxAbsError {
			res.MaxAbsError = diff
		}
		if !Float32NearEqual(got[i], want[i], tol) {
			res.NumErrors++
			if res.FirstError < 0 {
				res.FirstError = i
			}
		}
	}
	return res
}

// Equal reports whether the comparison found no errors
func (r VerificationResult) Equal() bool {
	return r.NumErrors == 0
}
