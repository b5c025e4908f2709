// Package kernels provides the reduced-precision SGEMM kernels the
// hijack runtime dispatches to, one per tensor-core compute mode.
// Importing the package registers the kernels with the default runtime:
//
//	import _ "github.com/mixprec/mpsgemm/kernels"
//
// Each kernel emulates its mode's arithmetic: operand elements are
// rounded to the mode's storage format before multiplying, and the
// error-corrected variants add the residual product terms the
// correction step recovers. Accumulation is float32 throughout, as on
// the hardware the modes model.
package kernels

import (
	"github.com/mixprec/mpsgemm"
)

// tcMinK is the smallest inner dimension the tensor-core kernels
// accept; shorter products fall back to the full-precision path.
const tcMinK = 4

// gemmKernel is a precision-specific SGEMM implementation selected by
// its mode tag. prod computes one simulated product contribution from a
// pair of full-precision operand elements.
type gemmKernel struct {
	name string
	mode mpsgemm.ComputeMode
	prod func(x, y float32) float32
}

func (k *gemmKernel) Name() string { return k.name }

func (k *gemmKernel) Mode() mpsgemm.ComputeMode { return k.mode }

func (k *gemmKernel) Supports(m, n, kk int) bool {
	return m > 0 && n > 0 && kk >= tcMinK
}

// All registered kernels, by mode.
var all = []*gemmKernel{
	{name: "sgemm_fp16tc", mode: mpsgemm.ModeFP16TC, prod: prodFP16TC},
	{name: "sgemm_fp16tcec", mode: mpsgemm.ModeFP16TCEC, prod: prodFP16TCEC},
	{name: "sgemm_tf32tc", mode: mpsgemm.ModeTF32TC, prod: prodTF32TC},
	{name: "sgemm_tf32tcec", mode: mpsgemm.ModeTF32TCEC, prod: prodTF32TCEC},
}

func init() {
	for _, k := range all {
		if err := mpsgemm.RegisterKernel(k); err != nil {
			panic(err)
		}
	}
}
