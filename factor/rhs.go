package factor

// XKHeaderWords is the number of header words prefixed to every packed
// X/lsum block: a single word recording the block's global supernode id.
const XKHeaderWords = 1

// LSUMHeaderWords mirrors XKHeaderWords for the lsum accumulator.
const LSUMHeaderWords = 1

// RHS is the packed, nrhs-major right-hand-side/solution buffer local to
// one process: the concatenation of all locally-owned X-blocks, each
// prefixed by its XKHeaderWords header, plus the offset table that locates
// each local block's data region.
type RHS struct {
	Nrhs int

	// X is the solution/partial-result buffer: for each locally owned
	// block with local index lbi, X[Ilsum[lbi] : Ilsum[lbi]+XKHeaderWords]
	// is the header (global supernode id) and the remainder up to
	// Ilsum[lbi+1] is the sK*Nrhs row-major payload.
	X []float64

	// Ilsum[lbi] is the start offset (header word) of local block lbi in
	// X (and, symmetrically, in Lsum). len(Ilsum) == numLocalBlocks+1.
	Ilsum []int

	// Lsum accumulates partial L- or U-products pending reduction; same
	// layout as X.
	Lsum []float64
}

// Header returns the supernode id recorded at the start of local block
// lbi within buf (X or Lsum), or -1 if out of range.
func Header(buf []float64, ilsum []int, lbi int) int {
	if lbi < 0 || lbi+1 >= len(ilsum) {
		return -1
	}
	return int(buf[ilsum[lbi]])
}

// Payload returns the mutable nrhs-major payload slice of local block lbi
// within buf, skipping its header word.
func Payload(buf []float64, ilsum []int, lbi int) []float64 {
	return buf[ilsum[lbi]+XKHeaderWords : ilsum[lbi+1]]
}

// NewRHS allocates X and Lsum for the given local block sizes (in rows,
// i.e. supernode size) and number of right-hand sides. blockSizes[i] is
// the row count of the i-th locally owned block (diagonal-process blocks
// for X, all locally touched blocks for Lsum).
func NewRHS(blockSizes []int, nrhs int) *RHS {
	ilsum := make([]int, len(blockSizes)+1)
	off := 0
	for i, sz := range blockSizes {
		ilsum[i] = off
		off += XKHeaderWords + sz*nrhs
	}
	ilsum[len(blockSizes)] = off
	return &RHS{
		Nrhs:  nrhs,
		X:     make([]float64, off),
		Ilsum: ilsum,
		Lsum:  make([]float64, off),
	}
}

// SetHeader stamps the global supernode id into local block lbi of buf.
func SetHeader(buf []float64, ilsum []int, lbi, globalK int) {
	buf[ilsum[lbi]] = float64(globalK)
}
