// Package mpsgemm transparently replaces the vendor single-precision
// matrix-multiply routine with a precision-configurable implementation
// and, on demand, measures the numerical risk of running a given
// multiplication at reduced precision.
//
// Once Init installs the interception, every call reaching the vendor
// SGEMM entry point is redirected into this runtime: the process-wide
// compute mode selects which precision kernel services the call, and,
// when armed, the exponent statistics engine estimates per call how
// many operand elements would suffer significant precision loss under
// the mode's reduced exponent range. Measurements are scheduled on the
// same execution stream as the multiply they instrument and surface
// through a bounded ring of result slots, queried by buffer id.
//
// Example usage:
//
//	if err := mpsgemm.Init(); err != nil {
//		log.Fatal(err)
//	}
//	mpsgemm.SetComputeMode(mpsgemm.ModeFP16TCEC)
//	mpsgemm.EnableExpStats()
//	mpsgemm.SetExpStatsParams(1.0, 250.0)
//
//	h := cublas.Create()
//	cublas.Sgemm(h, cublas.NoTrans, cublas.NoTrans, m, n, k,
//		1, a, k, b, n, 0, c, n) // hijacked transparently
//
//	id := mpsgemm.GetCurrentBufferID()
//	ratio, _ := mpsgemm.GetLostRatio(id)
package mpsgemm

import (
	"sync"
	"sync/atomic"

	"github.com/mixprec/mpsgemm/cublas"
	"github.com/mixprec/mpsgemm/stream"
)

// Runtime is the process-wide hijack state: the current compute mode,
// the statistics arm flag and threshold configuration, the result ring,
// the kernel registry, and the retained original vendor binding. All of
// it is guarded by atomics or short-lived locks; every mutation is
// non-blocking and affects future calls only.
type Runtime struct {
	mode         atomic.Int32
	statsEnabled atomic.Bool
	params       atomic.Pointer[statsParams]
	ring         *statsRing

	kernelMu sync.RWMutex
	kernels  map[ComputeMode]Kernel

	installMu sync.Mutex
	installed bool
	original  cublas.SgemmFunc

	lastFnMu sync.Mutex
	lastFn   string
}

// NewRuntime builds an uninstalled runtime. Most programs use the
// package-level functions over the default runtime instead; separate
// instances are useful when dispatch is driven directly rather than
// through symbol interception.
func NewRuntime(cfg Config) *Runtime {
	r := &Runtime{
		ring:    newStatsRing(cfg.RingCapacity),
		kernels: make(map[ComputeMode]Kernel),
	}
	r.params.Store(buildStatsParams(ThresholdConfig{
		LossRatioThreshold: DefaultLossRatioThreshold,
		ScaleParam:         DefaultScaleParam,
	}))
	return r
}

// Global runtime state
var (
	defaultRuntime *Runtime
	runtimeOnce    sync.Once
)

func defaultRT() *Runtime {
	runtimeOnce.Do(func() {
		defaultRuntime = NewRuntime(DefaultConfig())
	})
	return defaultRuntime
}

// Init installs the interception with the default configuration. It is
// idempotent; a symbol-resolution failure is an Initialization error and
// leaves no partially active hijack state.
func Init() error {
	return InitConfig(DefaultConfig())
}

// InitConfig applies cfg and installs the interception. Once installed,
// later calls are no-ops and cfg is ignored.
func InitConfig(cfg Config) error {
	r := defaultRT()
	r.installMu.Lock()
	if !r.installed && cfg.RingCapacity > 0 && cfg.RingCapacity != len(r.ring.slots) {
		r.ring = newStatsRing(cfg.RingCapacity)
	}
	r.installMu.Unlock()
	return r.install(symTableInterposer{symbol: cublas.SymSgemm})
}

// Package-level control surface over the default runtime.

// SetComputeMode installs the process-wide compute mode.
func SetComputeMode(mode ComputeMode) error { return defaultRT().SetComputeMode(mode) }

// GetComputeMode returns the current compute mode.
func GetComputeMode() ComputeMode { return defaultRT().GetComputeMode() }

// UnsetComputeMode restores the default passthrough mode.
func UnsetComputeMode() { defaultRT().UnsetComputeMode() }

// EnableExpStats arms the statistics engine.
func EnableExpStats() { defaultRT().EnableExpStats() }

// DisableExpStats disarms the statistics engine.
func DisableExpStats() { defaultRT().DisableExpStats() }

// IsExpStatsEnabled reports whether the engine is armed.
func IsExpStatsEnabled() bool { return defaultRT().IsExpStatsEnabled() }

// SetExpStatsParams atomically replaces the threshold configuration.
func SetExpStatsParams(lossRatioThreshold, scaleParam float64) error {
	return defaultRT().SetExpStatsParams(lossRatioThreshold, scaleParam)
}

// GetGlobalLostRatioThreshold returns the advisory lost-ratio threshold.
func GetGlobalLostRatioThreshold() float64 { return defaultRT().GetGlobalLostRatioThreshold() }

// GetExpStatsParams returns the current threshold configuration.
func GetExpStatsParams() ThresholdConfig { return defaultRT().GetExpStatsParams() }

// GetCurrentBufferID returns the most recently assigned buffer id.
func GetCurrentBufferID() uint64 { return defaultRT().GetCurrentBufferID() }

// GetLostRatio returns lost/total for a buffer id.
func GetLostRatio(id uint64) (float64, error) { return defaultRT().GetLostRatio(id) }

// GetExpStats returns the raw (lost, total) counts for a buffer id.
func GetExpStats(id uint64) (lost, total uint64, err error) { return defaultRT().GetExpStats(id) }

// ResetBufferID invalidates all slots and restarts the id sequence.
func ResetBufferID() { defaultRT().ResetBufferID() }

// ExpStats measures a single matrix on a stream, claiming a buffer id.
func ExpStats(s *stream.Stream, rows, cols int, a []float32, ld int) (uint64, error) {
	return defaultRT().ExpStats(s, rows, cols, a, ld)
}

// RegisterKernel makes a kernel available to dispatch for its mode.
func RegisterKernel(k Kernel) error { return defaultRT().RegisterKernel(k) }

// LastCalledFunction names the implementation behind the latest call.
func LastCalledFunction() string { return defaultRT().LastCalledFunction() }

// ClearLastCalledFunction resets the last-called record.
func ClearLastCalledFunction() { defaultRT().ClearLastCalledFunction() }
