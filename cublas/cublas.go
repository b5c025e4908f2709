// Package cublas is an in-process stand-in for a vendor BLAS library's
// single-precision GEMM entry point. It exposes the vendor call surface
// (handle, transpose flags, dimensions, leading dimensions, scalar
// multipliers, operand slices, execution stream) together with the
// symbol table through which that surface is resolved, so that a runtime
// layer can interpose on the entry point without the caller's knowledge.
//
// Matrices are row-major with explicit leading dimensions. The native
// binding of the SGEMM symbol validates its arguments synchronously and
// enqueues the multiply on the handle's stream.
package cublas

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/blas"
	blasimpl "gonum.org/v1/gonum/blas/gonum"

	"github.com/mixprec/mpsgemm/stream"
)

// Operation selects whether an operand is used as stored or transposed.
type Operation byte

const (
	// NoTrans uses the operand as stored.
	NoTrans Operation = 'N'
	// Trans uses the transpose of the stored operand.
	Trans Operation = 'T'
)

// SymSgemm names the single-precision GEMM entry in the symbol table.
const SymSgemm = "cublasSgemm"

// ErrSymbolNotFound reports a lookup of a name the symbol table does not
// export.
var ErrSymbolNotFound = errors.New("cublas: symbol not found")

// Handle carries per-caller library state, most importantly the stream
// on which issued work executes.
type Handle struct {
	mu sync.Mutex
	s  *stream.Stream
}

// Create returns a handle bound to the default stream.
func Create() *Handle {
	return &Handle{s: stream.Default()}
}

// SetStream rebinds the handle's execution stream. A nil stream restores
// the default stream.
func (h *Handle) SetStream(s *stream.Stream) {
	h.mu.Lock()
	if s == nil {
		s = stream.Default()
	}
	h.s = s
	h.mu.Unlock()
}

// Stream returns the stream the handle currently executes on.
func (h *Handle) Stream() *stream.Stream {
	h.mu.Lock()
	s := h.s
	h.mu.Unlock()
	return s
}

// SgemmFunc is the full signature of the SGEMM entry point. It computes
// C = alpha*op(A)*op(B) + beta*C for row-major operands.
type SgemmFunc func(h *Handle, transA, transB Operation, m, n, k int,
	alpha float32, a []float32, lda int, b []float32, ldb int,
	beta float32, c []float32, ldc int) error

// symbol table: name -> current binding. Bindings are swapped under the
// table lock; calls read the current binding under the same lock to keep
// install/call ordering well defined.
var (
	symMu   sync.RWMutex
	symbols = map[string]SgemmFunc{
		SymSgemm: nativeSgemm,
	}
)

// ResolveSymbol returns the current binding of a named entry point.
func ResolveSymbol(name string) (SgemmFunc, error) {
	symMu.RLock()
	fn, ok := symbols[name]
	symMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, name)
	}
	return fn, nil
}

// InstallSymbol rebinds a named entry point and returns the binding it
// replaced, so the installer can forward to the original.
func InstallSymbol(name string, fn SgemmFunc) (SgemmFunc, error) {
	if fn == nil {
		return nil, fmt.Errorf("cublas: nil binding for %q", name)
	}
	symMu.Lock()
	defer symMu.Unlock()
	prev, ok := symbols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, name)
	}
	symbols[name] = fn
	return prev, nil
}

// Sgemm is the public SGEMM entry point. Callers reach whatever binding
// the symbol table currently holds; an installed interposer therefore
// receives every call issued here.
func Sgemm(h *Handle, transA, transB Operation, m, n, k int,
	alpha float32, a []float32, lda int, b []float32, ldb int,
	beta float32, c []float32, ldc int) error {
	symMu.RLock()
	fn := symbols[SymSgemm]
	symMu.RUnlock()
	return fn(h, transA, transB, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc)
}

// CheckSgemmArgs validates an SGEMM argument list against the row-major
// layout rules and returns a descriptive error for the first violation.
// It is shared by the native binding and by interposing kernels so that
// argument errors surface synchronously, before any work is enqueued.
func CheckSgemmArgs(h *Handle, transA, transB Operation, m, n, k int,
	a []float32, lda int, b []float32, ldb int, c []float32, ldc int) error {
	if h == nil {
		return errors.New("cublas: nil handle")
	}
	if transA != NoTrans && transA != Trans {
		return fmt.Errorf("cublas: bad transA %q", transA)
	}
	if transB != NoTrans && transB != Trans {
		return fmt.Errorf("cublas: bad transB %q", transB)
	}
	if m < 0 || n < 0 || k < 0 {
		return fmt.Errorf("cublas: negative dimension m=%d n=%d k=%d", m, n, k)
	}

	// op(A) is m x k, op(B) is k x n, C is m x n. The stored operand's
	// column count bounds its leading dimension.
	aRows, aCols := m, k
	if transA == Trans {
		aRows, aCols = k, m
	}
	bRows, bCols := k, n
	if transB == Trans {
		bRows, bCols = n, k
	}
	if lda < max(1, aCols) {
		return fmt.Errorf("cublas: lda=%d too small for %dx%d operand", lda, aRows, aCols)
	}
	if ldb < max(1, bCols) {
		return fmt.Errorf("cublas: ldb=%d too small for %dx%d operand", ldb, bRows, bCols)
	}
	if ldc < max(1, n) {
		return fmt.Errorf("cublas: ldc=%d too small for %dx%d result", ldc, m, n)
	}
	if aRows > 0 && len(a) < (aRows-1)*lda+aCols {
		return fmt.Errorf("cublas: A shorter than %dx%d with lda=%d", aRows, aCols, lda)
	}
	if bRows > 0 && len(b) < (bRows-1)*ldb+bCols {
		return fmt.Errorf("cublas: B shorter than %dx%d with ldb=%d", bRows, bCols, ldb)
	}
	if m > 0 && n > 0 && len(c) < (m-1)*ldc+n {
		return fmt.Errorf("cublas: C shorter than %dx%d with ldc=%d", m, n, ldc)
	}
	return nil
}

// Native returns the library's own full-precision SGEMM implementation,
// bypassing the symbol table. Interposers that cannot retain the original
// binding may forward here.
func Native() SgemmFunc {
	return nativeSgemm
}

// nativeSgemm is the library's own full-precision implementation: the
// binding the symbol table holds before any interposition. The multiply
// runs on the handle's stream.
func nativeSgemm(h *Handle, transA, transB Operation, m, n, k int,
	alpha float32, a []float32, lda int, b []float32, ldb int,
	beta float32, c []float32, ldc int) error {
	if err := CheckSgemmArgs(h, transA, transB, m, n, k, a, lda, b, ldb, c, ldc); err != nil {
		return err
	}
	if m == 0 || n == 0 {
		return nil
	}
	tA, tB := blas.NoTrans, blas.NoTrans
	if transA == Trans {
		tA = blas.Trans
	}
	if transB == Trans {
		tB = blas.Trans
	}
	h.Stream().Submit(func() {
		blasimpl.Implementation{}.Sgemm(tA, tB, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc)
	})
	return nil
}
