package mpsgemm

import (
	"github.com/mixprec/mpsgemm/cublas"
	"github.com/mixprec/mpsgemm/stream"
)

// Call carries one intercepted SGEMM invocation: the original arguments,
// the stream it executes on, and the compute mode snapshotted at entry.
type Call struct {
	Handle         *cublas.Handle
	TransA, TransB cublas.Operation
	M, N, K        int
	Alpha          float32
	A              []float32
	Lda            int
	B              []float32
	Ldb            int
	Beta           float32
	C              []float32
	Ldc            int

	Mode   ComputeMode
	Stream *stream.Stream
}

// Kernel is an externally supplied precision-specific SGEMM
// implementation, selected by its mode tag and the call's shape.
// Sgemm must validate synchronously, enqueue its numeric work on
// call.Stream, and introduce no data movement beyond its own.
type Kernel interface {
	// Name identifies the kernel, e.g. "sgemm_fp16tcec".
	Name() string
	// Mode is the compute mode the kernel services.
	Mode() ComputeMode
	// Supports reports whether the kernel accepts the given shape.
	Supports(m, n, k int) bool
	// Sgemm performs the multiply with the original call arguments.
	Sgemm(call *Call) error
}

// RegisterKernel makes a kernel available to dispatch for its mode,
// replacing any kernel previously registered for that mode. Kernels for
// the passthrough mode are rejected: that mode always forwards to the
// original implementation.
func (r *Runtime) RegisterKernel(k Kernel) error {
	if k == nil {
		return NewInvalidArgError("RegisterKernel", "nil kernel")
	}
	mode := k.Mode()
	if !mode.valid() || mode == ModeCublas {
		return NewInvalidArgError("RegisterKernel", "kernel mode "+mode.String()+" not dispatchable")
	}
	r.kernelMu.Lock()
	r.kernels[mode] = k
	r.kernelMu.Unlock()
	return nil
}

func (r *Runtime) kernelFor(mode ComputeMode, m, n, k int) Kernel {
	r.kernelMu.RLock()
	kn := r.kernels[mode]
	r.kernelMu.RUnlock()
	if kn == nil || !kn.Supports(m, n, k) {
		return nil
	}
	return kn
}

// LastCalledFunction returns the name of the implementation that
// serviced the most recent hijacked call, empty if none or cleared.
func (r *Runtime) LastCalledFunction() string {
	r.lastFnMu.Lock()
	defer r.lastFnMu.Unlock()
	return r.lastFn
}

// ClearLastCalledFunction resets the last-called record.
func (r *Runtime) ClearLastCalledFunction() {
	r.lastFnMu.Lock()
	r.lastFn = ""
	r.lastFnMu.Unlock()
}

func (r *Runtime) setLastCalled(name string) {
	r.lastFnMu.Lock()
	r.lastFn = name
	r.lastFnMu.Unlock()
}

// originalFn returns the vendor binding retained at install time. A
// runtime driven directly, without an installed interposer, forwards to
// the library's native implementation.
func (r *Runtime) originalFn() cublas.SgemmFunc {
	r.installMu.Lock()
	defer r.installMu.Unlock()
	if r.original != nil {
		return r.original
	}
	return cublas.Native()
}

// hijackedSgemm is the binding installed over the vendor SGEMM symbol.
// It snapshots the compute mode, routes the call to the matching kernel
// or to the retained original implementation, and, when the statistics
// engine is armed, enqueues a measurement on the caller's stream.
func (r *Runtime) hijackedSgemm(h *cublas.Handle, transA, transB cublas.Operation,
	m, n, k int, alpha float32, a []float32, lda int, b []float32, ldb int,
	beta float32, c []float32, ldc int) error {
	if err := cublas.CheckSgemmArgs(h, transA, transB, m, n, k, a, lda, b, ldb, c, ldc); err != nil {
		return NewInvalidArgError("Sgemm", err.Error())
	}

	call := &Call{
		Handle: h,
		TransA: transA, TransB: transB,
		M: m, N: n, K: k,
		Alpha: alpha, A: a, Lda: lda,
		B: b, Ldb: ldb,
		Beta: beta, C: c, Ldc: ldc,
		Mode:   r.GetComputeMode(),
		Stream: h.Stream(),
	}

	var err error
	if kn := r.kernelFor(call.Mode, m, n, k); kn != nil {
		r.setLastCalled(kn.Name())
		err = kn.Sgemm(call)
	} else {
		r.setLastCalled(cublas.SymSgemm)
		err = r.originalFn()(h, transA, transB, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc)
	}
	if err != nil {
		return NewDeviceError("Sgemm", "multiply failed under mode "+call.Mode.String(), err)
	}

	if r.statsEnabled.Load() {
		r.measureCall(call)
	}
	return nil
}
