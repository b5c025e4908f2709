package kernels

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/mixprec/mpsgemm"
	"github.com/mixprec/mpsgemm/cublas"
)

// Sgemm validates synchronously and enqueues the simulated
// reduced-precision multiply on the caller's stream, with the original
// arguments unmodified.
func (k *gemmKernel) Sgemm(call *mpsgemm.Call) error {
	if err := cublas.CheckSgemmArgs(call.Handle, call.TransA, call.TransB,
		call.M, call.N, call.K, call.A, call.Lda, call.B, call.Ldb, call.C, call.Ldc); err != nil {
		return mpsgemm.NewInvalidArgError(k.name, err.Error())
	}
	if call.M == 0 || call.N == 0 {
		return nil
	}
	prod := k.prod
	call.Stream.Submit(func() {
		gemm(prod, call.TransA == cublas.Trans, call.TransB == cublas.Trans,
			call.M, call.N, call.K, call.Alpha, call.A, call.Lda,
			call.B, call.Ldb, call.Beta, call.C, call.Ldc)
	})
	return nil
}

// gemm computes C = alpha*op(A)*op(B) + beta*C row-major, applying prod
// elementwise, with row blocks distributed across workers.
func gemm(prod func(x, y float32) float32, transA, transB bool,
	m, n, k int, alpha float32, a []float32, lda int,
	b []float32, ldb int, beta float32, c []float32, ldc int) {
	workers := runtime.NumCPU()
	if workers > m {
		workers = m
	}
	rowsPerWorker := (m + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		i0 := w * rowsPerWorker
		i1 := i0 + rowsPerWorker
		if i1 > m {
			i1 = m
		}
		g.Go(func() error {
			gemmRows(prod, transA, transB, i0, i1, n, k, alpha, a, lda, b, ldb, beta, c, ldc)
			return nil
		})
	}
	g.Wait()
}

// gemmRows computes rows [i0, i1) of the result, tiling columns so the
// touched B panel stays cache resident.
func gemmRows(prod func(x, y float32) float32, transA, transB bool,
	i0, i1, n, k int, alpha float32, a []float32, lda int,
	b []float32, ldb int, beta float32, c []float32, ldc int) {
	for j0 := 0; j0 < n; j0 += colTile {
		j1 := j0 + colTile
		if j1 > n {
			j1 = n
		}
		for i := i0; i < i1; i++ {
			ci := c[i*ldc : i*ldc+n]
			for j := j0; j < j1; j++ {
				var sum float32
				for l := 0; l < k; l++ {
					var av, bv float32
					if transA {
						av = a[l*lda+i]
					} else {
						av = a[i*lda+l]
					}
					if transB {
						bv = b[j*ldb+l]
					} else {
						bv = b[l*ldb+j]
					}
					sum += prod(av, bv)
				}
				if beta == 0 {
					ci[j] = alpha * sum
				} else {
					ci[j] = alpha*sum + beta*ci[j]
				}
			}
		}
	}
}
