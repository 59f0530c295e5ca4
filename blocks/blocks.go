// Package blocks wraps the dense BLAS-3 kernels the solve engines apply
// per supernode block: GEMM for the lsum update (and for the
// inverse-diagonal fast path) and TRSM for the classical triangular
// diagonal solve. Blocks are stored row-major, matching gonum's blas64
// convention; row-major is an equivalent layout to the more traditional
// column-major block storage, reachable by swapping which operand is "A"
// vs "B" — no numeric difference, just a storage-order adaptation to the
// library this module actually depends on.
package blocks

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// GEMM computes c := alpha*a*b + beta*c, where a is m x k, b is k x n (both
// row-major with the given leading dimensions) and c is m x n row-major
// with leading dimension ldc. This is the one dense matrix multiply that
// substitutes for a TRSM when useInverseDiagonals is set, and is also the
// kernel behind every "lsum[I] -= L(I,K)*X[K]" style update in the L-solve
// and its U(I,K) counterpart in the U-solve.
func GEMM(m, n, k int, alpha float64, a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int) {
	blas64.Implementation().Dgemm(blas.NoTrans, blas.NoTrans, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc)
}

// TRSM solves op(A)*X = alpha*B in place (B is overwritten with X), where
// A is the n x n lower (or upper) triangular block at a, lda, and B is
// n x nrhs at b, ldb. unit selects a unit (L) or non-unit (U) diagonal, and
// lower selects which triangle A occupies.
func TRSM(lower, unit bool, n, nrhs int, alpha float64, a []float64, lda int, b []float64, ldb int) {
	uplo := blas.Upper
	if lower {
		uplo = blas.Lower
	}
	diag := blas.NonUnit
	if unit {
		diag = blas.Unit
	}
	blas64.Implementation().Dtrsm(blas.Left, uplo, blas.NoTrans, diag, n, nrhs, alpha, a, lda, b, ldb)
}

// Identity returns an n x n row-major identity block with leading
// dimension n.
func Identity(n int) []float64 {
	m := make([]float64, n*n)
	for i := 0; i < n; i++ {
		m[i*n+i] = 1
	}
	return m
}
