package solve

import (
	"math"
	"sync"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/pdtrisolve/commplan"
	"github.com/cpmech/pdtrisolve/factor"
	"github.com/cpmech/pdtrisolve/grid"
	"github.com/cpmech/pdtrisolve/lsolve"
	"github.com/cpmech/pdtrisolve/redist"
	"github.com/cpmech/pdtrisolve/tree"
	"github.com/cpmech/pdtrisolve/usolve"
	"github.com/cpmech/pdtrisolve/xport"
)

func i32(v int32) *int32 { return &v }

// buildProblem assembles a single-process 3x3 A=L*U (all supernodes size
// 1, diag(L)=unit) with known solution X=[1,2,3], and returns everything
// Solve needs to reproduce it from B=A*X.
func buildProblem() (*factor.Bundle, *grid.Grid, *redist.Perm, *commplan.Plan, *commplan.Plan, *lsolve.Schedule, *usolve.Schedule, *LocalB) {

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

	b := &LocalB{Data: []float64{21, 58, 87}, FirstRow: 0, MLoc: 3, Ldb: 1, Nrhs: 1}

	return lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b
}

func Test_solve01(tst *testing.T) {

	chk.PrintTitle("solve01: single-process round trip A*X=B")

	lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b := buildProblem()

	world := xport.NewChanWorld(1)
	cfg := Config{
		UseInverseDiagonals: false,
		NumWorkers:          2,
		OwnerOf:             func(K int) int { return 0 },
		RowToProc:           func(row int) int { return 0 },
		T:                   world[0],
	}

	if err := Solve(cfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b, NoopStats{}); err != nil {
		tst.Fatalf("Solve failed: %v", err)
	}

	want := []float64{1, 2, 3}
	for i, w := range want {
		if math.Abs(b.Data[i]-w) > 1e-9 {
			tst.Errorf("X[%d] = %v, want %v", i, b.Data[i], w)
		}
	}
}

func Test_solve01_inverseDiagonals(tst *testing.T) {

	chk.PrintTitle("solve01b: same problem via the inverse-diagonal GEMM fast path")

	lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b := buildProblem()

	world := xport.NewChanWorld(1)
	cfg := Config{
		UseInverseDiagonals: true,
		NumWorkers:          2,
		OwnerOf:             func(K int) int { return 0 },
		RowToProc:           func(row int) int { return 0 },
		T:                   world[0],
	}

	if err := Solve(cfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b, LoggingStats{}); err != nil {
		tst.Fatalf("Solve failed: %v", err)
	}

	want := []float64{1, 2, 3}
	for i, w := range want {
		if math.Abs(b.Data[i]-w) > 1e-9 {
			tst.Errorf("X[%d] = %v, want %v", i, b.Data[i], w)
		}
	}
}

func Test_solve_argErrors(tst *testing.T) {

	chk.PrintTitle("solve_argErrors: malformed arguments report the failing index")

	lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b := buildProblem()
	world := xport.NewChanWorld(1)
	validCfg := Config{
		OwnerOf:   func(K int) int { return 0 },
		RowToProc: func(row int) int { return 0 },
		T:         world[0],
	}

	cases := []struct {
		name  string
		index int
		run   func() error
	}{
		{"nil transport", 1, func() error {
			cfg := validCfg
			cfg.T = nil
			return Solve(cfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b, nil)
		}},
		{"nil bundle", 2, func() error {
			return Solve(validCfg, nil, g, perm, scatterPlan, gatherPlan, lsched, usched, b, nil)
		}},
		{"nil grid", 3, func() error {
			return Solve(validCfg, lu, nil, perm, scatterPlan, gatherPlan, lsched, usched, b, nil)
		}},
		{"nil perm", 4, func() error {
			return Solve(validCfg, lu, g, nil, scatterPlan, gatherPlan, lsched, usched, b, nil)
		}},
		{"nil plan", 5, func() error {
			return Solve(validCfg, lu, g, perm, nil, nil, lsched, usched, b, nil)
		}},
		{"nil lsched", 7, func() error {
			return Solve(validCfg, lu, g, perm, scatterPlan, gatherPlan, nil, usched, b, nil)
		}},
		{"nil usched", 8, func() error {
			return Solve(validCfg, lu, g, perm, scatterPlan, gatherPlan, lsched, nil, b, nil)
		}},
		{"nil rhs", 9, func() error {
			return Solve(validCfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, nil, nil)
		}},
	}

	for _, c := range cases {
		err := c.run()
		if err == nil {
			tst.Errorf("%s: expected an ArgError, got nil", c.name)
			continue
		}
		ae, ok := err.(*ArgError)
		if !ok {
			tst.Errorf("%s: expected *ArgError, got %T (%v)", c.name, err, err)
			continue
		}
		if ae.Index != c.index {
			tst.Errorf("%s: ArgError.Index = %d, want %d", c.name, ae.Index, c.index)
		}
	}
}

func Test_solve_nrhs3(tst *testing.T) {

	chk.PrintTitle("solve_nrhs3: single-process round trip with three right-hand sides at once")

	lu, g, perm, scatterPlan, gatherPlan, lsched, usched, _ := buildProblem()
	lu.Nrhs = 3

	// Columns 0 and 1 of B are A*Xc for Xc = (c+1)*[1,2,3], reusing the A
	// implied by buildProblem's L*U (A = [[4,7,1],[8,19,4],[4,22,13]]);
	// column 2 is A*[0,1,-1], an off-axis column to catch any nrhs-stride
	// bug.
	b := &LocalB{
		Data: []float64{
			21, 42, 6,
			58, 116, 15,
			87, 174, 9,
		},
		FirstRow: 0, MLoc: 3, Ldb: 3, Nrhs: 3,
	}

	world := xport.NewChanWorld(1)
	cfg := Config{
		NumWorkers: 2,
		OwnerOf:    func(K int) int { return 0 },
		RowToProc:  func(row int) int { return 0 },
		T:          world[0],
	}

	if err := Solve(cfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b, NoopStats{}); err != nil {
		tst.Fatalf("Solve failed: %v", err)
	}

	want := []float64{
		1, 2, 0,
		2, 4, 1,
		3, 6, -1,
	}
	for i, w := range want {
		if math.Abs(b.Data[i]-w) > 1e-9 {
			tst.Errorf("Data[%d] = %v, want %v", i, b.Data[i], w)
		}
	}
}

// buildDistributedProblem returns the same 3-supernode A=L*U system as
// buildProblem, but split across a 2x1 process grid: rank0 is the diagonal
// process for supernodes 0 and 2, rank1 for supernode 1, and B arrives
// distributed as row0 on rank0 and rows 1-2 on rank1. Both lsolve and
// usolve fully resolve their dependencies with only broadcasts (this grid
// shape never puts two different processes' off-diagonal blocks on the
// same row), which keeps the plumbing readable while still exercising a
// real cross-process scatter, solve, broadcast and gather over whichever
// transport t provides.
func buildDistributedProblem(rank int, t xport.Transport) (Config, *factor.Bundle, *grid.Grid, *redist.Perm,
	*commplan.Plan, *commplan.Plan, *lsolve.Schedule, *usolve.Schedule, *LocalB) {

	supers := factor.SupernodeTable{{Size: 1, FirstRow: 0}, {Size: 1, FirstRow: 1}, {Size: 1, FirstRow: 2}}
	g := grid.New(2, 1, rank)

	identity3 := []int{0, 1, 2}
	perm := &redist.Perm{
		Pr: identity3, Pc: identity3,
		RowOwner: func(permutedRow int) (int, int) { return permutedRow, 0 },
	}

	rowToProc := func(row int) int {
		if row == 0 {
			return 0
		}
		return 1
	}
	cfg := Config{
		NumWorkers: 2,
		OwnerOf:    func(K int) int { return K % 2 },
		RowToProc:  rowToProc,
		T:          t,
	}

	trivial := func() tree.Tree { return tree.NewBroadcastTree(nil, true, 1) }
	leaf := func() tree.Tree { return tree.NewBroadcastTree(nil, false, 1) }

	if rank == 0 {
		L := &factor.Factor{Supers: supers, Cols: map[int]*factor.BlockCol{
			0: {RowBlocks: []int{0}, Values: [][]float64{{1}}},
			2: {RowBlocks: []int{2}, Values: [][]float64{{1}}},
		}}
		U := &factor.Factor{Supers: supers, Cols: map[int]*factor.BlockCol{
			0: {RowBlocks: []int{0}, Values: [][]float64{{4}}},
			2: {RowBlocks: []int{2}, Values: [][]float64{{6}}},
		}}
		lu := &factor.Bundle{N: 3, Nrhs: 1, L: L, U: U}

		scatterPlan := commplan.Build([]int{1, 0}, []int{0, 1})
		gatherPlan := commplan.Build([]int{1, 1}, []int{0, 0})

		lsched := &lsolve.Schedule{
			Supers:    supers,
			DiagOwned: []int{0, 2},
			ContribsByK: map[int][]lsolve.Contrib{
				0: {{K: 0, I: 2, Block: []float64{1}}},
				1: {{K: 1, I: 2, Block: []float64{3}}},
			},
			BCTrees:   map[int]tree.Tree{0: tree.NewBroadcastTree([]int{1}, true, 1), 1: leaf(), 2: trivial()},
			RDTrees:   map[int]tree.Tree{},
			Pending:   map[int]*int32{0: i32(0), 2: i32(2)},
			RecvCount: 1,
		}
		usched := &usolve.Schedule{
			Supers:    supers,
			DiagOwned: []int{0, 2},
			ContribsByK: map[int][]usolve.Contrib{
				2: {{K: 2, I: 0, Block: []float64{1}}},
				1: {{K: 1, I: 0, Block: []float64{7}}},
			},
			BCTrees:   map[int]tree.Tree{2: tree.NewBroadcastTree([]int{1}, true, 1), 1: leaf(), 0: trivial()},
			RDTrees:   map[int]tree.Tree{},
			Pending:   map[int]*int32{2: i32(0), 0: i32(2)},
			RecvCount: 1,
		}
		b := &LocalB{Data: []float64{21}, FirstRow: 0, MLoc: 1, Ldb: 1, Nrhs: 1}
		return cfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b
	}

	L := &factor.Factor{Supers: supers, Cols: map[int]*factor.BlockCol{
		1: {RowBlocks: []int{1}, Values: [][]float64{{1}}},
	}}
	U := &factor.Factor{Supers: supers, Cols: map[int]*factor.BlockCol{
		1: {RowBlocks: []int{1}, Values: [][]float64{{5}}},
	}}
	lu := &factor.Bundle{N: 3, Nrhs: 1, L: L, U: U}

	scatterPlan := commplan.Build([]int{1, 1}, []int{0, 0})
	gatherPlan := commplan.Build([]int{0, 1}, []int{1, 0})

	lsched := &lsolve.Schedule{
		Supers:      supers,
		DiagOwned:   []int{1},
		ContribsByK: map[int][]lsolve.Contrib{0: {{K: 0, I: 1, Block: []float64{2}}}},
		BCTrees:     map[int]tree.Tree{0: leaf(), 1: tree.NewBroadcastTree([]int{0}, true, 1)},
		RDTrees:     map[int]tree.Tree{},
		Pending:     map[int]*int32{1: i32(1)},
		RecvCount:   1,
	}
	usched := &usolve.Schedule{
		Supers:      supers,
		DiagOwned:   []int{1},
		ContribsByK: map[int][]usolve.Contrib{2: {{K: 2, I: 1, Block: []float64{2}}}},
		BCTrees:     map[int]tree.Tree{2: leaf(), 1: tree.NewBroadcastTree([]int{0}, true, 1)},
		RDTrees:     map[int]tree.Tree{},
		Pending:     map[int]*int32{1: i32(1)},
		RecvCount:   1,
	}
	b := &LocalB{Data: []float64{58, 87}, FirstRow: 1, MLoc: 2, Ldb: 1, Nrhs: 1}
	return cfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b
}

func Test_solve_rma(tst *testing.T) {

	chk.PrintTitle("solve_rma: two-rank round trip over the one-sided transport")

	world := xport.NewRMAWorld(2)
	bs := make([]*LocalB, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	for rank := 0; rank < 2; rank++ {
		rank := rank
		go func() {
			defer wg.Done()
			cfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b := buildDistributedProblem(rank, world[rank])
			bs[rank] = b
			errs[rank] = Solve(cfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b, NoopStats{})
		}()
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			tst.Fatalf("rank %d Solve failed: %v", rank, err)
		}
	}

	if math.Abs(bs[0].Data[0]-1) > 1e-9 {
		tst.Errorf("rank0 X[0] = %v, want 1", bs[0].Data[0])
	}
	want1 := []float64{2, 3}
	for i, w := range want1 {
		if math.Abs(bs[1].Data[i]-w) > 1e-9 {
			tst.Errorf("rank1 X[%d] = %v, want %v", i, bs[1].Data[i], w)
		}
	}
}
