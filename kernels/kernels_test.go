package kernels

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mixprec/mpsgemm"
	"github.com/mixprec/mpsgemm/cublas"
	"github.com/mixprec/mpsgemm/stream"
)

func TestRoundTF32(t *testing.T) {
	// 2^-11 sits below TF32's 10 explicit mantissa bits and truncates
	// away; 2^-10 survives.
	require.Equal(t, float32(1), roundTF32(1+1.0/2048))
	require.Equal(t, float32(1+1.0/1024), roundTF32(1+1.0/1024))

	// The exponent field is untouched: tiny FP32 values stay nonzero.
	require.NotZero(t, roundTF32(1e-30))
	require.Equal(t, float32(0), roundTF32(0))
	neg := roundTF32(-1.5)
	require.Equal(t, float32(-1.5), neg)
}

func TestRoundFP16(t *testing.T) {
	require.Equal(t, float32(1), roundFP16(1))
	require.Equal(t, float32(0.5), roundFP16(0.5))

	// Relative rounding error bounded by the 10-bit mantissa.
	for i := 0; i < 100; i++ {
		x := rand.Float32()
		require.LessOrEqual(t, math.Abs(float64(roundFP16(x)-x)), float64(x)/1024+1e-8)
	}

	// Range behavior: FP16 underflows and overflows where FP32 does not.
	require.Equal(t, float32(0), roundFP16(1e-20))
	require.True(t, math.IsInf(float64(roundFP16(1e5)), 1))
}

// Error correction must shrink the aggregate product error of its base
// mode.
func TestProductErrorCorrection(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var fp16Err, fp16ecErr, tf32Err, tf32ecErr float64
	for i := 0; i < 10000; i++ {
		x := rng.Float32()
		y := rng.Float32()
		exact := float64(x) * float64(y)
		fp16Err += math.Abs(float64(prodFP16TC(x, y)) - exact)
		fp16ecErr += math.Abs(float64(prodFP16TCEC(x, y)) - exact)
		tf32Err += math.Abs(float64(prodTF32TC(x, y)) - exact)
		tf32ecErr += math.Abs(float64(prodTF32TCEC(x, y)) - exact)
	}
	require.Less(t, fp16ecErr, fp16Err)
	require.Less(t, tf32ecErr, tf32Err)
}

func TestSupports(t *testing.T) {
	k := all[0]
	require.True(t, k.Supports(1, 1, tcMinK))
	require.True(t, k.Supports(100, 100, 100))
	require.False(t, k.Supports(8, 8, tcMinK-1), "short products fall back")
	require.False(t, k.Supports(0, 8, 8))
	require.False(t, k.Supports(8, 0, 8))
}

func TestKernelModesAndNames(t *testing.T) {
	want := map[mpsgemm.ComputeMode]string{
		mpsgemm.ModeFP16TC:   "sgemm_fp16tc",
		mpsgemm.ModeFP16TCEC: "sgemm_fp16tcec",
		mpsgemm.ModeTF32TC:   "sgemm_tf32tc",
		mpsgemm.ModeTF32TCEC: "sgemm_tf32tcec",
	}
	require.Len(t, all, len(want))
	for _, k := range all {
		require.Equal(t, want[k.Mode()], k.Name())
	}
}

// With an exact product function the blocked parallel loop must agree
// bit-for-bit with a naive triple loop: same per-element accumulation
// order.
func TestGemmBlockingExact(t *testing.T) {
	exact := func(x, y float32) float32 { return x * y }
	cases := []struct {
		transA, transB bool
		m, n, k        int
		alpha, beta    float32
	}{
		{false, false, 33, 29, 17, 1, 0},
		{true, false, 33, 29, 17, 2, 0},
		{false, true, 16, 64, 8, 1, 0.5},
		{true, true, 7, 5, 11, -1, 2},
	}
	rng := rand.New(rand.NewSource(3))
	for _, tc := range cases {
		aLen := tc.m * tc.k
		bLen := tc.k * tc.n
		a := make([]float32, aLen)
		b := make([]float32, bLen)
		for i := range a {
			a[i] = rng.Float32()*2 - 1
		}
		for i := range b {
			b[i] = rng.Float32()*2 - 1
		}
		c := make([]float32, tc.m*tc.n)
		want := make([]float32, tc.m*tc.n)
		for i := range c {
			c[i] = rng.Float32()
			want[i] = c[i]
		}

		lda := tc.k
		if tc.transA {
			lda = tc.m
		}
		ldb := tc.n
		if tc.transB {
			ldb = tc.k
		}
		gemm(exact, tc.transA, tc.transB, tc.m, tc.n, tc.k, tc.alpha, a, lda, b, ldb, tc.beta, c, tc.n)

		for i := 0; i < tc.m; i++ {
			for j := 0; j < tc.n; j++ {
				var sum float32
				for l := 0; l < tc.k; l++ {
					var av float32
					if tc.transA {
						av = a[l*lda+i]
					} else {
						av = a[i*lda+l]
					}
					var bv float32
					if tc.transB {
						bv = b[j*ldb+l]
					} else {
						bv = b[l*ldb+j]
					}
					sum += av * bv
				}
				want[i*tc.n+j] = tc.alpha*sum + tc.beta*want[i*tc.n+j]
			}
		}
		for i := range want {
			require.Equal(t, want[i], c[i], "element %d (transA=%v transB=%v)", i, tc.transA, tc.transB)
		}
	}
}

// The kernel entry validates synchronously and runs on the call's
// stream.
func TestKernelSgemm(t *testing.T) {
	k := all[1] // fp16tcec
	dim := 32
	a := make([]float32, dim*dim)
	b := make([]float32, dim*dim)
	c := make([]float32, dim*dim)
	rng := rand.New(rand.NewSource(5))
	for i := range a {
		a[i] = rng.Float32()
		b[i] = rng.Float32()
	}

	s := stream.New()
	defer s.Close()
	h := cublas.Create()
	h.SetStream(s)
	call := &mpsgemm.Call{
		Handle: h,
		TransA: cublas.NoTrans, TransB: cublas.NoTrans,
		M: dim, N: dim, K: dim,
		Alpha: 1, A: a, Lda: dim,
		B: b, Ldb: dim,
		Beta: 0, C: c, Ldc: dim,
		Mode:   k.Mode(),
		Stream: s,
	}
	require.NoError(t, k.Sgemm(call))
	s.Synchronize()

	// Against the full-precision product.
	want := make([]float32, dim*dim)
	gemm(func(x, y float32) float32 { return x * y },
		false, false, dim, dim, dim, 1, a, dim, b, dim, 0, want, dim)
	res := mpsgemm.VerifyFloat32Slice(c, want, mpsgemm.ReducedPrecisionTolerance())
	require.Truef(t, res.Equal(), "%d/%d elements outside tolerance (max abs err %g)",
		res.NumErrors, res.TotalItems, res.MaxAbsError)

	// Argument errors surface synchronously.
	bad := *call
	bad.Lda = 1
	require.Error(t, k.Sgemm(&bad))
}
