package grid

import "github.com/cpmech/gosl/chk"

// SupernodeIndex maps global supernode ids to local block indices for the
// blocks a process owns along a row or a column (lbi(K)/lbj(K)), and back.
type SupernodeIndex struct {
	global []int         // local index -> global supernode id
	local  map[int]int   // global supernode id -> local index
}

// NewSupernodeIndex builds an index over the given globally-owned ids, in
// the order given (callers pass ids in increasing global order, which is
// the order the dependency loops iterate in).
func NewSupernodeIndex(owned []int) *SupernodeIndex {
	idx := &SupernodeIndex{
		global: append([]int(nil), owned...),
		local:  make(map[int]int, len(owned)),
	}
	for lb, K := range owned {
		idx.local[K] = lb
	}
	return idx
}

// Len returns the number of locally owned blocks.
func (s *SupernodeIndex) Len() int { return len(s.global) }

// Global returns the global supernode id for local block index lb.
func (s *SupernodeIndex) Global(lb int) int {
	if lb < 0 || lb >= len(s.global) {
		chk.Panic("grid: local block index %d out of range [0,%d)", lb, len(s.global))
	}
	return s.global[lb]
}

// Local returns the local block index for global supernode K, and whether
// K is locally owned at all.
func (s *SupernodeIndex) Local(K int) (lb int, ok bool) {
	lb, ok = s.local[K]
	return
}

// Map returns a copy of the global-supernode-id -> local-index lookup, the
// shape lsolve.Context/usolve.Context expect for XLocal/LsumLocal.
func (s *SupernodeIndex) Map() map[int]int {
	m := make(map[int]int, len(s.local))
	for K, lb := range s.local {
		m[K] = lb
	}
	return m
}

// BuildRowIndex returns the SupernodeIndex of block-rows owned by this
// process (RowOwner(K)==MyRow), over supernodes [0,nsupers).
func (g *Grid) BuildRowIndex(nsupers int) *SupernodeIndex {
	var owned []int
	for K := 0; K < nsupers; K++ {
		if g.OwnsRow(K) {
			owned = append(owned, K)
		}
	}
	return NewSupernodeIndex(owned)
}

// BuildColIndex returns the SupernodeIndex of block-columns owned by this
// process (ColOwner(K)==MyCol), over supernodes [0,nsupers).
func (g *Grid) BuildColIndex(nsupers int) *SupernodeIndex {
	var owned []int
	for K := 0; K < nsupers; K++ {
		if g.OwnsCol(K) {
			owned = append(owned, K)
		}
	}
	return NewSupernodeIndex(owned)
}

// BuildDiagIndex returns the SupernodeIndex of the diagonal blocks this
// process owns (IsDiag(K)), over supernodes [0,nsupers). L(K,K) and
// U(K,K) always live on the same process, so lsolve and usolve share this
// one index for their X buffers.
func (g *Grid) BuildDiagIndex(nsupers int) *SupernodeIndex {
	var owned []int
	for K := 0; K < nsupers; K++ {
		if g.IsDiag(K) {
			owned = append(owned, K)
		}
	}
	return NewSupernodeIndex(owned)
}
