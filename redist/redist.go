// Package redist implements the B<->X redistribution: scattering the
// right-hand side onto diagonal processes before the L-solve, and
// gathering the solution back to B's distribution afterward.
package redist

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/pdtrisolve/commplan"
	"github.com/cpmech/pdtrisolve/factor"
	"github.com/cpmech/pdtrisolve/grid"
	"github.com/cpmech/pdtrisolve/xport"
)

// Perm holds the row permutations the redistribution composes, and the
// lookup from a permuted global row to its owning supernode. Building the
// permutation vectors themselves is out of scope; redist only applies them.
type Perm struct {
	Pr []int // Pr(i): row permutation applied first
	Pc []int // Pc(i): column/row permutation applied second

	// RowOwner maps a permuted global row to (supernode K, row offset
	// within K's block). Produced by the supernode/ownership index
	// (component A) over the already-factored structure.
	RowOwner func(permutedRow int) (K, offset int)
}

// bucket accumulates the rows destined for one peer process.
type bucket struct {
	rows []int     // permuted (or, for the gather direction, global) row indices
	vals []float64 // nrhs-major payload, len == len(rows)*nrhs
}

// ScatterBtoX redistributes the local rows of B (rows [fstRow,fstRow+mLoc))
// onto the diagonal processes, writing into x (already sized by
// factor.NewRHS over the locally-owned diagonal blocks). plan carries the
// precomputed (by the external setup routine, commplan's counts) send/recv
// counts this exchange must match; ownerOf maps a supernode id to the rank
// of its diagonal process.
func ScatterBtoX(g *grid.Grid, plan *commplan.Plan, perm *Perm, b []float64, fstRow, mLoc, ldb, nrhs int, ownerOf func(K int) int, x *factor.RHS, localIndex map[int]int, t xport.Transport) {

	for K, lb := range localIndex {
		factor.SetHeader(x.X, x.Ilsum, lb, K)
	}

	if g.Single() {
		scatterSingleProcess(perm, b, fstRow, mLoc, ldb, nrhs, x, localIndex)
		return
	}

	buckets := make(map[int]*bucket)
	for i := 0; i < mLoc; i++ {
		globalRow := fstRow + i
		permRow := perm.Pc[perm.Pr[globalRow]]
		K, _ := perm.RowOwner(permRow)
		dest := ownerOf(K)
		bk := buckets[dest]
		if bk == nil {
			bk = &bucket{}
			buckets[dest] = bk
		}
		bk.rows = append(bk.rows, permRow)
		bk.vals = append(bk.vals, b[i*ldb:i*ldb+nrhs]...)
	}

	if len(buckets) == 0 && mLoc > 0 {
		chk.Panic("redist: ScatterBtoX produced no outgoing buckets for %d local rows", mLoc)
	}
	for dest, bk := range buckets {
		if got := len(bk.rows); got != plan.SendCounts[dest] {
			chk.Panic("redist: ScatterBtoX built %d rows for peer %d, communication plan expected %d", got, dest, plan.SendCounts[dest])
		}
	}

	exchange(g, plan, buckets, t, xport.TagLBroadcast, func(bk *bucket) {
		unpackRows(bk, nrhs, perm, x, localIndex)
	})
}

// scatterSingleProcess is the single-process shortcut: memcpy with
// permutation applied, no communication.
func scatterSingleProcess(perm *Perm, b []float64, fstRow, mLoc, ldb, nrhs int, x *factor.RHS, localIndex map[int]int) {
	for i := 0; i < mLoc; i++ {
		globalRow := fstRow + i
		permRow := perm.Pc[perm.Pr[globalRow]]
		K, off := perm.RowOwner(permRow)
		lb := localIndex[K]
		base := x.Ilsum[lb] + factor.XKHeaderWords + off*nrhs
		copy(x.X[base:base+nrhs], b[i*ldb:i*ldb+nrhs])
	}
}

func unpackRows(bk *bucket, nrhs int, perm *Perm, x *factor.RHS, localIndex map[int]int) {
	for r, row := range bk.rows {
		K, off := perm.RowOwner(row)
		lb, ok := localIndex[K]
		if !ok {
			chk.Panic("redist: received a row for supernode %d not locally owned", K)
		}
		base := x.Ilsum[lb] + factor.XKHeaderWords + off*nrhs
		copy(x.X[base:base+nrhs], bk.vals[r*nrhs:(r+1)*nrhs])
	}
}

// GatherXtoB mirrors ScatterBtoX: diagonal processes walk their owned
// supernodes and pack each row into the bucket addressed to rowToProc,
// then every process unpacks what arrives linearly into b.
func GatherXtoB(g *grid.Grid, plan *commplan.Plan, x *factor.RHS, localIndex map[int]int, supers factor.SupernodeTable, rowToProc func(globalRow int) int, b []float64, fstRow, mLoc, ldb, nrhs int, t xport.Transport) {

	if g.Single() {
		gatherSingleProcess(x, localIndex, supers, b, fstRow, mLoc, ldb, nrhs)
		return
	}

	buckets := make(map[int]*bucket)
	for K, lb := range localIndex {
		sz := supers[K].Size
		base := x.Ilsum[lb] + factor.XKHeaderWords
		for row := 0; row < sz; row++ {
			globalRow := supers[K].FirstRow + row
			// the resolved Open Question: no extra inv_perm_c
			// permutation is applied here, ii == irow.
			dest := rowToProc(globalRow)
			bk := buckets[dest]
			if bk == nil {
				bk = &bucket{}
				buckets[dest] = bk
			}
			bk.rows = append(bk.rows, globalRow)
			bk.vals = append(bk.vals, x.X[base+row*nrhs:base+(row+1)*nrhs]...)
		}
	}

	exchange(g, plan, buckets, t, xport.TagLReduce, func(bk *bucket) {
		unpackIntoB(bk, nrhs, b, fstRow, ldb)
	})
}

// exchange runs the common point-to-point all-to-all pattern both
// directions share: send each non-local bucket as one message, apply the
// local one in-place, then receive one message from every other peer whose
// plan.RecvCounts entry is non-zero.
func exchange(g *grid.Grid, plan *commplan.Plan, buckets map[int]*bucket, t xport.Transport, tag xport.Tag, apply func(*bucket)) {
	var handles []xport.SendHandle
	for dest, bk := range buckets {
		if dest == g.Rank {
			apply(bk)
			continue
		}
		handles = append(handles, t.Send(dest, tag, packBucket(bk)))
	}
	for _, h := range handles {
		h.Wait()
	}

	expected := 0
	for p, c := range plan.RecvCounts {
		if p != g.Rank && c > 0 {
			expected++
		}
	}
	for n := 0; n < expected; n++ {
		apply(unpackBucket(t.RecvAny()))
	}
}

// packBucket serializes a bucket's row indices and nrhs-major values into
// one Msg: Header carries the row count, Data is the row-index list (as
// float64) followed by the values, so a single message travels the
// transport's one Header+Data envelope instead of needing a second channel
// for indices.
func packBucket(bk *bucket) xport.Msg {
	data := make([]float64, len(bk.rows)+len(bk.vals))
	for i, row := range bk.rows {
		data[i] = float64(row)
	}
	copy(data[len(bk.rows):], bk.vals)
	return xport.Msg{Header: len(bk.rows), Data: data}
}

func unpackBucket(m xport.Msg) *bucket {
	n := m.Header
	bk := &bucket{rows: make([]int, n), vals: append([]float64(nil), m.Data[n:]...)}
	for i := 0; i < n; i++ {
		bk.rows[i] = int(m.Data[i])
	}
	return bk
}

func gatherSingleProcess(x *factor.RHS, localIndex map[int]int, supers factor.SupernodeTable, b []float64, fstRow, mLoc, ldb, nrhs int) {
	for K, lb := range localIndex {
		sz := supers[K].Size
		base := x.Ilsum[lb] + factor.XKHeaderWords
		for row := 0; row < sz; row++ {
			globalRow := supers[K].FirstRow + row
			i := globalRow - fstRow
			if i < 0 || i >= mLoc {
				continue
			}
			copy(b[i*ldb:i*ldb+nrhs], x.X[base+row*nrhs:base+(row+1)*nrhs])
		}
	}
}

func unpackIntoB(bk *bucket, nrhs int, b []float64, fstRow, ldb int) {
	for r, row := range bk.rows {
		i := row - fstRow
		copy(b[i*ldb:i*ldb+nrhs], bk.vals[r*nrhs:(r+1)*nrhs])
	}
}
