// Package dinv precomputes the inverse of each locally-owned diagonal
// block: Linv for the unit lower-triangular L(K,K), Uinv
// for the upper-triangular U(K,K). The hot path then replaces a per-block
// TRSM with a GEMM against the cached inverse.
package dinv

import (
	"github.com/cpmech/pdtrisolve/blocks"
	"github.com/cpmech/pdtrisolve/factor"
)

// BuildLinv computes the inverse of the unit-lower-triangular diagonal
// block of size n stored at diag (row-major, leading dimension n) by
// solving L*Linv = I via TRSM against an identity block — no LAPACK
// Dtrtri is available in this module's dependency set (see DESIGN.md), and
// a triangular solve against the identity is the standard, numerically
// equivalent substitute.
func BuildLinv(diag []float64, n int) []float64 {
	inv := blocks.Identity(n)
	blocks.TRSM(true, true, n, n, 1, diag, n, inv, n)
	return inv
}

// BuildUinv computes the inverse of the non-unit upper-triangular diagonal
// block of size n stored at diag.
func BuildUinv(diag []float64, n int) []float64 {
	inv := blocks.Identity(n)
	blocks.TRSM(false, false, n, n, 1, diag, n, inv, n)
	return inv
}

// PrecomputeL fills f.DiagInv with Linv for every locally-owned diagonal
// block present in f.Cols whose supernode id equals its own column, i.e.
// the (K,K) block stored in column K.
func PrecomputeL(f *factor.Factor, supers factor.SupernodeTable) {
	precompute(f, supers, BuildLinv)
}

// PrecomputeU fills f.DiagInv with Uinv for every locally-owned diagonal
// block.
func PrecomputeU(f *factor.Factor, supers factor.SupernodeTable) {
	precompute(f, supers, BuildUinv)
}

func precompute(f *factor.Factor, supers factor.SupernodeTable, build func([]float64, int) []float64) {
	if f.DiagInv == nil {
		f.DiagInv = make(map[int][]float64)
	}
	for K := range f.Cols {
		diag := f.DiagBlock(K)
		if diag == nil {
			continue
		}
		f.DiagInv[K] = build(diag, supers[K].Size)
	}
}
