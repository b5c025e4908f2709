// Package mpsgemm configuration constants
package mpsgemm

// Statistics ring parameters
const (
	// DefaultRingCapacity is the number of result slots retained before
	// wrap-around overwrites the oldest
	DefaultRingCapacity = 256
)

// Default threshold parameters
const (
	// DefaultLossRatioThreshold is the advisory global lost-ratio threshold
	DefaultLossRatioThreshold = 0.1

	// DefaultScaleParam leaves the safe exponent ranges at the raw
	// format ranges
	DefaultScaleParam = 1.0
)

// Representable exponent ranges of the reduced-precision formats
// (unbiased, normal numbers)
const (
	// FP16 normal range: 2^-14 .. (2-2^-10)*2^15
	fp16ExpMin = -14
	fp16ExpMax = 15

	// TF32 keeps the full 8-bit FP32 exponent
	tf32ExpMin = -126
	tf32ExpMax = 127

	// Mantissa width recovered by the error-correction step; it extends
	// the effective range on the underflow side
	fp16ECBits = 11
	tf32ECBits = 13
)

// Measurement parallelism
const (
	// Operand element count below which classification runs single-threaded
	classifyParallelThreshold = 1 << 16

	// Upper bound on concurrent classification workers per measurement
	classifyMaxWorkers = 16
)

// Config holds the runtime knobs applied at initialization.
type Config struct {
	// RingCapacity is the fixed number of statistics result slots.
	RingCapacity int
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{
		RingCapacity: DefaultRingCapacity,
	}
}
