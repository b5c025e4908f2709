package mpsgemm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mixprec/mpsgemm/cublas"
	"github.com/mixprec/mpsgemm/stream"
)

// issueSgemm drives the dispatcher directly with a square multiply of
// uniform [0,1) operands on a fresh stream.
func issueSgemm(t *testing.T, r *Runtime, dim int) {
	t.Helper()
	a := make([]float32, dim*dim)
	b := make([]float32, dim*dim)
	c := make([]float32, dim*dim)
	for i := range a {
		a[i] = rand.Float32()
		b[i] = rand.Float32()
	}
	h := cublas.Create()
	s := stream.New()
	t.Cleanup(s.Close)
	h.SetStream(s)
	err := r.hijackedSgemm(h, cublas.NoTrans, cublas.NoTrans, dim, dim, dim,
		1, a, dim, b, dim, 0, c, dim)
	require.NoError(t, err)
}

func TestClassifyExponents(t *testing.T) {
	rng := expRange{lo: -6, hi: 15}
	a := []float32{
		0,           // zero: total only
		1,           // e=0, safe
		0.02,        // e=-6, safe boundary
		0.0078,      // e=-7, lost
		1e-40,       // subnormal, lost
		float32(math.Inf(1)),  // lost
		float32(math.NaN()),   // lost
		65536 * 0.5, // e=15, safe boundary
		65536,       // e=16, lost
	}
	lost, total := classifyExponents(a, 0, 1, len(a), len(a), rng)
	require.Equal(t, uint64(len(a)), total)
	require.Equal(t, uint64(5), lost)
}

func TestClassifyRespectsLeadingDimension(t *testing.T) {
	// 2x2 matrix embedded with ld=3; padding holds values that would
	// classify as lost and must be skipped.
	a := []float32{1, 1, 1e-30, 1, 1, 1e-30}
	lost, total := classifyExponents(a, 0, 2, 2, 3, expRange{lo: -14, hi: 15})
	require.Equal(t, uint64(4), total)
	require.Equal(t, uint64(0), lost)
}

// With stats disabled a call must not advance the id sequence; with
// stats enabled every call produces a new queryable id.
func TestStatsGating(t *testing.T) {
	r := NewRuntime(DefaultConfig())

	issueSgemm(t, r, 8)
	require.Equal(t, uint64(0), r.GetCurrentBufferID(), "disarmed call advanced the sequence")

	r.EnableExpStats()
	issueSgemm(t, r, 8)
	require.Equal(t, uint64(1), r.GetCurrentBufferID())
	issueSgemm(t, r, 8)
	require.Equal(t, uint64(2), r.GetCurrentBufferID())

	r.DisableExpStats()
	issueSgemm(t, r, 8)
	require.Equal(t, uint64(2), r.GetCurrentBufferID(), "disarmed call advanced the sequence")

	// Slots recorded before disarming stay queryable.
	ratio, err := r.GetLostRatio(1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, ratio, 0.0)
	require.LessOrEqual(t, ratio, 1.0)
}

func TestLostRatioRange(t *testing.T) {
	r := NewRuntime(DefaultConfig())
	r.EnableExpStats()
	require.NoError(t, r.SetExpStatsParams(1.0, 250.0))
	require.NoError(t, r.SetComputeMode(ModeFP16TC))

	for i := 0; i < 5; i++ {
		issueSgemm(t, r, 16)
		ratio, err := r.GetLostRatio(r.GetCurrentBufferID())
		require.NoError(t, err)
		require.GreaterOrEqual(t, ratio, 0.0)
		require.LessOrEqual(t, ratio, 1.0)
	}
}

func TestGetLostRatioInvalidID(t *testing.T) {
	r := NewRuntime(DefaultConfig())
	_, err := r.GetLostRatio(0)
	require.True(t, IsInvalidBufferError(err))
	_, err = r.GetLostRatio(7)
	require.True(t, IsInvalidBufferError(err))
	_, _, err = r.GetExpStats(7)
	require.True(t, IsInvalidBufferError(err))
}

// Ring capacity N, N+1 armed calls: the first call's id must be
// rejected after wrap-around.
func TestWrapAroundInvalidatesOldID(t *testing.T) {
	const capacity = 4
	r := NewRuntime(Config{RingCapacity: capacity})
	r.EnableExpStats()

	issueSgemm(t, r, 8)
	first := r.GetCurrentBufferID()
	for i := 0; i < capacity; i++ {
		issueSgemm(t, r, 8)
	}

	_, err := r.GetLostRatio(first)
	require.True(t, IsInvalidBufferError(err),
		"expected InvalidBufferId after wrap-around, got %v", err)
	_, err = r.GetLostRatio(r.GetCurrentBufferID())
	require.NoError(t, err)
}

func TestExpStatsStandalone(t *testing.T) {
	r := NewRuntime(DefaultConfig())
	require.NoError(t, r.SetExpStatsParams(1.0, 1.0))
	require.NoError(t, r.SetComputeMode(ModeFP16TC))

	s := stream.New()
	defer s.Close()

	// Disarmed: rejected without consuming an id.
	_, err := r.ExpStats(s, 2, 2, []float32{1, 1, 1, 1}, 2)
	require.ErrorIs(t, err, ErrStatsDisabled)
	require.Equal(t, uint64(0), r.GetCurrentBufferID())

	r.EnableExpStats()

	// Half the elements sit below the FP16 normal range.
	a := []float32{1, 1e-20, 2, 1e-20}
	id, err := r.ExpStats(s, 2, 2, a, 2)
	require.NoError(t, err)
	lost, total, err := r.GetExpStats(id)
	require.NoError(t, err)
	require.Equal(t, uint64(4), total)
	require.Equal(t, uint64(2), lost)
	ratio, err := r.GetLostRatio(id)
	require.NoError(t, err)
	require.Equal(t, 0.5, ratio)

	// Malformed shapes are rejected synchronously.
	_, err = r.ExpStats(s, -1, 2, a, 2)
	require.Error(t, err)
	_, err = r.ExpStats(s, 2, 2, a, 1)
	require.Error(t, err)
	_, err = r.ExpStats(s, 3, 2, a, 2)
	require.Error(t, err)
}

func TestExpStatsParallelPath(t *testing.T) {
	r := NewRuntime(DefaultConfig())
	r.EnableExpStats()
	require.NoError(t, r.SetExpStatsParams(1.0, 1.0))
	require.NoError(t, r.SetComputeMode(ModeFP16TC))

	// Large enough to cross the parallel classification threshold.
	rows, cols := 512, 256
	a := make([]float32, rows*cols)
	wantLost := uint64(0)
	for i := range a {
		if i%3 == 0 {
			a[i] = 1e-20 // below FP16 range
			wantLost++
		} else {
			a[i] = 1
		}
	}
	id, err := r.ExpStats(nil, rows, cols, a, cols)
	require.NoError(t, err)
	lost, total, err := r.GetExpStats(id)
	require.NoError(t, err)
	require.Equal(t, uint64(rows*cols), total)
	require.Equal(t, wantLost, lost)
}

func TestResetBufferID(t *testing.T) {
	r := NewRuntime(DefaultConfig())
	r.EnableExpStats()
	issueSgemm(t, r, 8)
	id := r.GetCurrentBufferID()
	require.Equal(t, uint64(1), id)

	r.ResetBufferID()
	require.Equal(t, uint64(0), r.GetCurrentBufferID())
	_, err := r.GetLostRatio(id)
	require.True(t, IsInvalidBufferError(err))

	issueSgemm(t, r, 8)
	require.Equal(t, uint64(1), r.GetCurrentBufferID(), "sequence restarts after reset")
}

// A mode change mid-flight must not affect a call already dispatched:
// the measurement uses the snapshot taken at entry.
func TestModeSnapshotPerCall(t *testing.T) {
	r := NewRuntime(DefaultConfig())
	r.EnableExpStats()
	require.NoError(t, r.SetExpStatsParams(1.0, 1.0))
	require.NoError(t, r.SetComputeMode(ModeFP16TC))

	// All elements below the FP16 range: ratio 1 under FP16TC, ratio 0
	// under CUBLAS passthrough.
	dim := 8
	a := make([]float32, dim*dim)
	b := make([]float32, dim*dim)
	c := make([]float32, dim*dim)
	for i := range a {
		a[i] = 1e-20
		b[i] = 1e-20
	}
	h := cublas.Create()
	s := stream.New()
	defer s.Close()
	h.SetStream(s)

	require.NoError(t, r.hijackedSgemm(h, cublas.NoTrans, cublas.NoTrans,
		dim, dim, dim, 1, a, dim, b, dim, 0, c, dim))
	id := r.GetCurrentBufferID()

	// Change the mode after dispatch; the recorded measurement must
	// still reflect FP16TC.
	require.NoError(t, r.SetComputeMode(ModeCublas))
	ratio, err := r.GetLostRatio(id)
	require.NoError(t, err)
	require.Equal(t, 1.0, ratio)
}
