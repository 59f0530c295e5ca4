// Package grid maps global supernode/block ids to owning processes and to
// local block indices on a Pr x Pc process mesh. Construction of the mesh
// itself (deciding Pr, Pc and which physical ranks sit where) is out of
// scope; Grid only does the index arithmetic: block (I,J) of L or U is
// owned by process (I mod Pr, J mod Pc).
package grid

import "github.com/cpmech/gosl/chk"

// Grid is a Pr x Pc process mesh coordinate for the local process.
type Grid struct {
	Pr, Pc       int
	MyRow, MyCol int
	Rank         int
}

// New builds a Grid from an already-decided mesh shape and this process's
// rank, using row-major rank assignment (rank = myrow*Pc + mycol), the
// convention used throughout: rowOwner(K) = K mod Pr.
func New(pr, pc, rank int) *Grid {
	if pr <= 0 || pc <= 0 {
		chk.Panic("grid: pr and pc must be positive, got pr=%d pc=%d", pr, pc)
	}
	if rank < 0 || rank >= pr*pc {
		chk.Panic("grid: rank %d out of range for a %dx%d mesh", rank, pr, pc)
	}
	return &Grid{
		Pr: pr, Pc: pc,
		MyRow: rank / pc,
		MyCol: rank % pc,
		Rank:  rank,
	}
}

// RowOwner returns the mesh row owning block-row K.
func RowOwner(K, pr int) int { return K % pr }

// ColOwner returns the mesh column owning block-column K.
func ColOwner(K, pc int) int { return K % pc }

// RankOf returns the rank owning mesh coordinate (row,col) under row-major
// assignment.
func (g *Grid) RankOf(row, col int) int { return row*g.Pc + col }

// IsDiag reports whether this process is the diagonal process for
// supernode K.
func (g *Grid) IsDiag(K int) bool {
	return RowOwner(K, g.Pr) == g.MyRow && ColOwner(K, g.Pc) == g.MyCol
}

// OwnsRow reports whether this process owns block-row K (participates in
// column-broadcast reception or reduction authorship for row K).
func (g *Grid) OwnsRow(K int) bool { return RowOwner(K, g.Pr) == g.MyRow }

// OwnsCol reports whether this process owns block-column K.
func (g *Grid) OwnsCol(K int) bool { return ColOwner(K, g.Pc) == g.MyCol }

// Single reports whether this is a trivial single-process grid.
func (g *Grid) Single() bool { return g.Pr == 1 && g.Pc == 1 }
