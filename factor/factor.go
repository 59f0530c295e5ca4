// Package factor holds the data model consumed by the triangular solve:
// the distributed L/U factor layout, supernode table and the packed
// right-hand-side / solution buffers. None of it is computed here — it is
// produced by a prior factorization and setup step (out of scope) and
// handed to the solve packages read-only (L/U) or read-write (RHS).
package factor

// Supernode describes one block column/row of the factored matrix.
type Supernode struct {
	Size     int // sK, number of columns in the supernode
	FirstRow int // global first row of the supernode
}

// SupernodeTable maps global supernode id to its description.
type SupernodeTable []Supernode

// NumSupers returns the total number of supernodes.
func (t SupernodeTable) NumSupers() int { return len(t) }

// BlockCol holds one local block-column of a triangular factor (L or U).
// RowBlocks lists, in increasing order, the global supernode ids of the
// nonzero blocks at and below (L) or at and above (U) the diagonal in this
// column; the diagonal block itself is listed when the column holds it.
type BlockCol struct {
	RowBlocks []int       // global row-supernode ids with a nonzero block here
	Values    [][]float64 // Values[i] is the dense, row-major block for RowBlocks[i]
	Rows      []int       // Rows[i] is the block height (rows) of Values[i]
}

// Factor holds one triangular factor (L or U) as owned by this process:
// one BlockCol per locally-owned block column, for U as well as for L.
type Factor struct {
	Supers SupernodeTable
	Cols   map[int]*BlockCol // keyed by global supernode id (local block columns)

	// Linv/Uinv hold the precomputed diagonal-block inverse, keyed by
	// global supernode id, when a diagonal column/row is locally owned.
	// Populated by the dinv package; nil entries mean "not computed yet".
	DiagInv map[int][]float64
}

// Bundle is the pair of factors the solve operates on.
type Bundle struct {
	N     int // matrix order
	Nrhs  int // number of right-hand sides solved simultaneously
	L     *Factor
	U     *Factor
}

// Block returns the block-column for supernode k, or nil if this process
// does not own column k of the factor.
func (f *Factor) Block(k int) *BlockCol {
	if f.Cols == nil {
		return nil
	}
	return f.Cols[k]
}

// DiagBlock returns the dense (K,K) diagonal block stored in column K
// (first in an L column, last in a U column), or nil if column K is not
// locally owned or carries no diagonal entry.
func (f *Factor) DiagBlock(K int) []float64 {
	col := f.Block(K)
	if col == nil {
		return nil
	}
	for i, row := range col.RowBlocks {
		if row == K {
			return col.Values[i]
		}
	}
	return nil
}
