package kernels

import (
	"math"

	"github.com/x448/float16"
)

// tf32MantissaMask clears the low 13 mantissa bits of a float32,
// leaving the 10 explicit mantissa bits TF32 stores.
const tf32MantissaMask = ^uint32(1<<13 - 1)

// roundFP16 rounds a float32 to the nearest binary16 value.
func roundFP16(x float32) float32 {
	return float16.Fromfloat32(x).Float32()
}

// roundTF32 truncates a float32 mantissa to TF32 width. The exponent
// field is untouched; TF32 keeps the full FP32 exponent range.
func roundTF32(x float32) float32 {
	return math.Float32frombits(math.Float32bits(x) & tf32MantissaMask)
}

// prodFP16TC multiplies binary16-rounded operands.
func prodFP16TC(x, y float32) float32 {
	return roundFP16(x) * roundFP16(y)
}

// prodFP16TCEC multiplies with error correction: each operand splits
// into a binary16 high part and a binary16 residual, and the three
// significant cross terms are accumulated. The lo*lo term is below the
// accumulator's resolution and is dropped, as on hardware.
func prodFP16TCEC(x, y float32) float32 {
	xh := roundFP16(x)
	xl := roundFP16(x - xh)
	yh := roundFP16(y)
	yl := roundFP16(y - yh)
	return xh*yh + xh*yl + xl*yh
}

// prodTF32TC multiplies TF32-truncated operands.
func prodTF32TC(x, y float32) float32 {
	return roundTF32(x) * roundTF32(y)
}

// prodTF32TCEC multiplies with error correction over TF32 parts.
func prodTF32TCEC(x, y float32) float32 {
	xh := roundTF32(x)
	xl := roundTF32(x - xh)
	yh := roundTF32(y)
	yl := roundTF32(y - yh)
	return xh*yh + xh*yl + xl*yh
}
