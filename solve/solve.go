// Package solve is the top-level entry point: it wires redist, lsolve,
// usolve and dinv together into one A·X=B call, given an already-computed
// factorization and an already-built communication/dependency plan. None
// of those inputs are produced here — factorization, process-grid layout,
// permutations, communication counts and solve schedules are all the
// responsibility of a prior setup routine, per the scoping line this
// module draws throughout (see grid, commplan, redist, lsolve, usolve).
package solve

import (
	"fmt"

	"github.com/cpmech/gosl/io"
	"github.com/cpmech/pdtrisolve/commplan"
	"github.com/cpmech/pdtrisolve/dinv"
	"github.com/cpmech/pdtrisolve/factor"
	"github.com/cpmech/pdtrisolve/grid"
	"github.com/cpmech/pdtrisolve/lsolve"
	"github.com/cpmech/pdtrisolve/redist"
	"github.com/cpmech/pdtrisolve/usolve"
	"github.com/cpmech/pdtrisolve/xport"
)

// LocalB is the caller's local share of the right-hand side/solution: mLoc
// contiguous global rows starting at FirstRow, Nrhs columns, row-major
// with leading dimension Ldb. Solve overwrites Data with X in place, the
// same in-out convention as a LAPACK *gesv driver.
type LocalB struct {
	Data     []float64
	FirstRow int
	MLoc     int
	Ldb      int
	Nrhs     int
}

// Config carries the pieces of a solve that are policy, not data: whether
// to use the cached inverse-diagonal GEMM fast path instead of TRSM, the
// worker-pool width, the transport to run both solves and the B<->X
// redistribution over, and the two row-ownership functions redist needs
// (diagonal-process lookup and B-distribution row lookup).
type Config struct {
	UseInverseDiagonals bool
	NumWorkers          int
	OwnerOf             func(K int) int
	RowToProc           func(globalRow int) int
	T                   xport.Transport
}

// Stats receives progress notifications from Solve; pass NoopStats{} to
// disable them or LoggingStats{} to print them with gosl/io.
type Stats interface {
	Event(format string, args ...interface{})
}

// NoopStats discards every event.
type NoopStats struct{}

func (NoopStats) Event(string, ...interface{}) {}

// LoggingStats prints every event with gosl/io.Pf.
type LoggingStats struct{}

func (LoggingStats) Event(format string, args ...interface{}) {
	io.Pf(format+"\n", args...)
}

// ArgError reports that the argument at the given 1-based position was
// invalid, the info=-k convention of classical LAPACK drivers: callers can
// recover k via errors.As without parsing a message string.
type ArgError struct {
	Index int
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("pdtrisolve: invalid argument at position %d (info=-%d)", e.Index, e.Index)
}

func validate(cfg Config, lu *factor.Bundle, g *grid.Grid, perm *redist.Perm,
	scatterPlan, gatherPlan *commplan.Plan, lsched *lsolve.Schedule, usched *usolve.Schedule, b *LocalB) error {

	if cfg.OwnerOf == nil || cfg.RowToProc == nil || cfg.T == nil {
		return &ArgError{Index: 1}
	}
	if lu == nil || lu.L == nil || lu.U == nil || lu.Nrhs <= 0 {
		return &ArgError{Index: 2}
	}
	if g == nil {
		return &ArgError{Index: 3}
	}
	if perm == nil || perm.RowOwner == nil {
		return &ArgError{Index: 4}
	}
	if scatterPlan == nil {
		return &ArgError{Index: 5}
	}
	if gatherPlan == nil {
		return &ArgError{Index: 6}
	}
	if lsched == nil {
		return &ArgError{Index: 7}
	}
	if usched == nil {
		return &ArgError{Index: 8}
	}
	if b == nil || b.Nrhs != lu.Nrhs || (b.MLoc > 0 && len(b.Data) < b.MLoc*b.Ldb) {
		return &ArgError{Index: 9}
	}
	return nil
}

// Solve computes X such that A·X=B, where A's LU factorization and its
// distribution across the process mesh are already given by lu/g/perm,
// the B<->X communication plans by scatterPlan/gatherPlan, and the
// dependency-driven solve order by lsched/usched. On success b.Data holds
// X in place of B. Every malformed argument is reported through the
// returned *ArgError rather than a panic; any other fault (a broken
// schedule, a transport violating its contract) is a chk.Panic abort, per
// this module's error-handling policy.
func Solve(cfg Config, lu *factor.Bundle, g *grid.Grid, perm *redist.Perm,
	scatterPlan, gatherPlan *commplan.Plan, lsched *lsolve.Schedule, usched *usolve.Schedule,
	b *LocalB, stats Stats) error {

	if err := validate(cfg, lu, g, perm, scatterPlan, gatherPlan, lsched, usched, b); err != nil {
		return err
	}
	if stats == nil {
		stats = NoopStats{}
	}

	nsupers := lu.L.Supers.NumSupers()
	nrhs := lu.Nrhs

	if cfg.UseInverseDiagonals {
		if lu.L.DiagInv == nil {
			stats.Event("pdtrisolve: caching L diagonal inverses")
			dinv.PrecomputeL(lu.L, lu.L.Supers)
		}
		if lu.U.DiagInv == nil {
			stats.Event("pdtrisolve: caching U diagonal inverses")
			dinv.PrecomputeU(lu.U, lu.U.Supers)
		}
	}

	diagIdx := g.BuildDiagIndex(nsupers)
	xLocal := diagIdx.Map()
	xSizes := make([]int, diagIdx.Len())
	for lb := 0; lb < diagIdx.Len(); lb++ {
		xSizes[lb] = lu.L.Supers[diagIdx.Global(lb)].Size
	}
	x := factor.NewRHS(xSizes, nrhs)

	stats.Event("pdtrisolve: scattering B onto diagonal processes")
	redist.ScatterBtoX(g, scatterPlan, perm, b.Data, b.FirstRow, b.MLoc, b.Ldb, nrhs, cfg.OwnerOf, x, xLocal, cfg.T)

	lsumLIdx := grid.NewSupernodeIndex(lsched.TouchedRows())
	lsumLLocal := lsumLIdx.Map()
	lsumLSizes := make([]int, lsumLIdx.Len())
	for lb := 0; lb < lsumLIdx.Len(); lb++ {
		lsumLSizes[lb] = lu.L.Supers[lsumLIdx.Global(lb)].Size
	}
	lsumL := factor.NewRHS(lsumLSizes, nrhs)

	stats.Event("pdtrisolve: running forward L-solve")
	err := lsolve.Run(&lsolve.Context{
		Sched: lsched, L: lu.L,
		X: x, XLocal: xLocal,
		Lsum: lsumL, LsumLocal: lsumLLocal,
		UseInverseDiagonals: cfg.UseInverseDiagonals,
		T:                   cfg.T,
		NumWorkers:          cfg.NumWorkers,
	})
	if err != nil {
		return err
	}

	lsumUIdx := grid.NewSupernodeIndex(usched.TouchedRows())
	lsumULocal := lsumUIdx.Map()
	lsumUSizes := make([]int, lsumUIdx.Len())
	for lb := 0; lb < lsumUIdx.Len(); lb++ {
		lsumUSizes[lb] = lu.U.Supers[lsumUIdx.Global(lb)].Size
	}
	lsumU := factor.NewRHS(lsumUSizes, nrhs)

	stats.Event("pdtrisolve: running backward U-solve")
	err = usolve.Run(&usolve.Context{
		Sched: usched, U: lu.U,
		X: x, XLocal: xLocal,
		Lsum: lsumU, LsumLocal: lsumULocal,
		UseInverseDiagonals: cfg.UseInverseDiagonals,
		T:                   cfg.T,
		NumWorkers:          cfg.NumWorkers,
	})
	if err != nil {
		return err
	}

	stats.Event("pdtrisolve: gathering X back onto B's distribution")
	redist.GatherXtoB(g, gatherPlan, x, xLocal, lu.L.Supers, cfg.RowToProc, b.Data, b.FirstRow, b.MLoc, b.Ldb, nrhs, cfg.T)

	return nil
}
