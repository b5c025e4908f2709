package kernels

import (
	"golang.org/x/sys/cpu"
)

// colTile is the result-column tile width, sized from the detected SIMD
// width so a B panel of one tile stays in L1 during accumulation.
var colTile = 64

func init() {
	switch {
	case cpu.X86.HasAVX512F:
		colTile = 256
	case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
		colTile = 128
	case cpu.ARM64.HasASIMD:
		colTile = 128
	}
}
