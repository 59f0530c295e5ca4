// Command pdtrisolve assembles a tiny triangular-solve problem and runs it
// through solve.Solve, for manual smoke-testing of the engine outside a
// test binary.
package main

import (
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/mpi"
	"github.com/cpmech/gosl/utl"
	"github.com/cpmech/pdtrisolve/commplan"
	"github.com/cpmech/pdtrisolve/factor"
	"github.com/cpmech/pdtrisolve/grid"
	"github.com/cpmech/pdtrisolve/lsolve"
	"github.com/cpmech/pdtrisolve/redist"
	"github.com/cpmech/pdtrisolve/solve"
	"github.com/cpmech/pdtrisolve/tree"
	"github.com/cpmech/pdtrisolve/usolve"
	"github.com/cpmech/pdtrisolve/xport"
)

func main() {

	defer func() {
		if err := recover(); err != nil {
			if mpi.Rank() == 0 {
				chk.Verbose = true
				for i := 8; i > 3; i-- {
					chk.CallerInfo(i)
				}
				io.PfRed("ERROR: %v\n", err)
			}
		}
		mpi.Stop(false)
	}()
	mpi.Start(false)

	useInverseDiagonals := io.ArgToBool(0, false)
	verbose := io.ArgToBool(1, true)

	if verbose && mpi.Rank() == 0 {
		io.PfWhite("\npdtrisolve -- distributed sparse triangular solve\n\n")
		io.Pf("\n%v\n", io.ArgsTable(
			"use cached diagonal inverses", "useInverseDiagonals", useInverseDiagonals,
			"show messages", "verbose", verbose,
		))
	}

	defer utl.DoProf(false)()

	if mpi.Size() > 1 {
		chk.Panic("pdtrisolve: the built-in demo problem only runs on one process; run the package tests for multi-rank coverage")
	}

	lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b := demoProblem()

	world := xport.NewChanWorld(1)
	cfg := solve.Config{
		UseInverseDiagonals: useInverseDiagonals,
		NumWorkers:          2,
		OwnerOf:             func(K int) int { return 0 },
		RowToProc:           func(row int) int { return 0 },
		T:                   world[0],
	}

	stats := solve.Stats(solve.NoopStats{})
	if verbose {
		stats = solve.LoggingStats{}
	}

	if err := solve.Solve(cfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b, stats); err != nil {
		chk.Panic("solve failed:\n%v", err)
	}

	if mpi.Rank() == 0 {
		io.Pf("X = %v\n", b.Data)
	}
}

// demoProblem builds the single-process 3x3 A=L*U system used for
// smoke-testing: L unit lower with L10=2, L20=1, L21=3; U upper with
// diag(4,5,6), U01=7, U02=1, U12=2. Its exact solution is X=[1,2,3].
func demoProblem() (*factor.Bundle, *grid.Grid, *redist.Perm, *commplan.Plan, *commplan.Plan, *lsolve.Schedule, *usolve.Schedule, *solve.LocalB) {

	supers := factor.SupernodeTable{{Size: 1, FirstRow: 0}, {Size: 1, FirstRow: 1}, {Size: 1, FirstRow: 2}}

	L := &factor.Factor{Supers: supers, Cols: map[int]*factor.BlockCol{
		0: {RowBlocks: []int{0, 1, 2}, Values: [][]float64{{1}, {2}, {1}}},
		1: {RowBlocks: []int{1, 2}, Values: [][]float64{{1}, {3}}},
		2: {RowBlocks: []int{2}, Values: [][]float64{{1}}},
	}}
	U := &factor.Factor{Supers: supers, Cols: map[int]*factor.BlockCol{
		0: {RowBlocks: []int{0}, Values: [][]float64{{4}}},
		1: {RowBlocks: []int{0, 1}, Values: [][]float64{{7}, {5}}},
		2: {RowBlocks: []int{0, 1, 2}, Values: [][]float64{{1}, {2}, {6}}},
	}}
	lu := &factor.Bundle{N: 3, Nrhs: 1, L: L, U: U}

	g := grid.New(1, 1, 0)

	identity3 := []int{0, 1, 2}
	perm := &redist.Perm{
		Pr: identity3, Pc: identity3,
		RowOwner: func(permutedRow int) (int, int) { return permutedRow, 0 },
	}

	scatterPlan := commplan.Build([]int{0}, []int{0})
	gatherPlan := commplan.Build([]int{0}, []int{0})

	trivial := func() tree.Tree { return tree.NewBroadcastTree(nil, true, 1) }
	i32 := func(v int32) *int32 { return &v }

	lsched := &lsolve.Schedule{
		Supers:    supers,
		DiagOwned: []int{0, 1, 2},
		ContribsByK: map[int][]lsolve.Contrib{
			0: {{K: 0, I: 1, Block: []float64{2}}, {K: 0, I: 2, Block: []float64{1}}},
			1: {{K: 1, I: 2, Block: []float64{3}}},
		},
		BCTrees:   map[int]tree.Tree{0: trivial(), 1: trivial(), 2: trivial()},
		RDTrees:   map[int]tree.Tree{},
		Pending:   map[int]*int32{0: i32(0), 1: i32(1), 2: i32(2)},
		RecvCount: 0,
	}

	usched := &usolve.Schedule{
		Supers:    supers,
		DiagOwned: []int{0, 1, 2},
		ContribsByK: map[int][]usolve.Contrib{
			2: {{K: 2, I: 0, Block: []float64{1}}, {K: 2, I: 1, Block: []float64{2}}},
			1: {{K: 1, I: 0, Block: []float64{7}}},
		},
		BCTrees:   map[int]tree.Tree{0: trivial(), 1: trivial(), 2: trivial()},
		RDTrees:   map[int]tree.Tree{},
		Pending:   map[int]*int32{0: i32(2), 1: i32(1), 2: i32(0)},
		RecvCount: 0,
	}

	b := &solve.LocalB{Data: []float64{21, 58, 87}, FirstRow: 0, MLoc: 3, Ldb: 1, Nrhs: 1}

	return lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b
}
