// Package usolve drives the backward substitution U·X = Y once the
// L-solve has produced Y. It mirrors lsolve's dependency-driven sweep,
// but walks supernodes in reverse dependency order — the roots of the
// factorization DAG (the last, highest-index supernodes) form the
// initial frontier — and contributions run the other way: column K
// updates rows I < K instead of I > K.
package usolve

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/pdtrisolve/blocks"
	"github.com/cpmech/pdtrisolve/factor"
	"github.com/cpmech/pdtrisolve/tree"
	"github.com/cpmech/pdtrisolve/xport"
)

// Contrib is one locally-stored block U(I,K) with I<K, applied once X[K]
// is known.
type Contrib struct {
	K, I  int
	Block []float64 // row-major, Supers[I].Size x Supers[K].Size
}

// Schedule is the per-process dependency plan the backward sweep
// executes, the U-solve analog of lsolve.Schedule. Its construction is
// the setup routine's job; Run only consumes it.
type Schedule struct {
	Supers factor.SupernodeTable

	DiagOwned []int // global K this rank is the diagonal process for

	ContribsByK map[int][]Contrib // local U(I,K), I<K, keyed by K

	BCTrees map[int]tree.Tree // keyed by global K: column-K broadcast tree
	RDTrees map[int]tree.Tree // keyed by global I: row-I reduce tree

	Pending map[int]*int32 // same semantics as lsolve.Schedule.Pending

	RecvCount int
}

// Context bundles a Schedule with the numeric buffers the sweep mutates.
type Context struct {
	Sched *Schedule
	U     *factor.Factor // supplies DiagBlock(K) and DiagInv[K] (Uinv)

	X      *factor.RHS
	XLocal map[int]int

	Lsum      *factor.RHS
	LsumLocal map[int]int

	UseInverseDiagonals bool
	T                   xport.Transport
	NumWorkers          int

	// rowMu guards each local Lsum row against the concurrent writers a
	// worker pool creates: two different columns K1!=K2 can both target
	// row I from two different goroutines (a pool worker solving K1's
	// diagonal and the receive goroutine applying a broadcast for K2, or
	// two pool workers for two ready diagonals) with nothing else
	// serializing their GEMM/Fold accumulation into the same slice.
	// Indexed by the same local index as LsumLocal; built by Run.
	rowMu []sync.Mutex
}

type taskKind int

const (
	taskSolveDiag taskKind = iota
	taskForwardReduce
)

type task struct {
	kind taskKind
	id   int
}

// TouchedRows returns, in increasing global order, every row this rank
// must track an Lsum partial sum for; see lsolve.Schedule.TouchedRows.
func (s *Schedule) TouchedRows() []int {
	seen := make(map[int]bool)
	for _, contribs := range s.ContribsByK {
		for _, c := range contribs {
			seen[c.I] = true
		}
	}
	for _, K := range s.DiagOwned {
		seen[K] = true
	}
	rows := make([]int, 0, len(seen))
	for I := range seen {
		rows = append(rows, I)
	}
	sort.Ints(rows)
	return rows
}

// Run executes the backward-substitution sweep to completion, blocking
// until this rank has received exactly Sched.RecvCount messages and
// every task they (and the initial DAG-root frontier) triggered has
// finished.
func Run(ctx *Context) error {
	sched := ctx.Sched
	ctx.rowMu = make([]sync.Mutex, len(ctx.Lsum.Ilsum)-1)
	ready := make(chan task, 256)
	var pendingWG sync.WaitGroup

	enqueue := func(t task) {
		pendingWG.Add(1)
		ready <- t
	}

	for _, K := range sched.DiagOwned {
		p := sched.Pending[K]
		if p == nil {
			chk.Panic("usolve: missing pending counter for diagonal %d", K)
		}
		if atomic.LoadInt32(p) == 0 {
			enqueue(task{taskSolveDiag, K})
		}
	}

	nw := ctx.NumWorkers
	if nw < 1 {
		nw = 1
	}
	var workersWG sync.WaitGroup
	for w := 0; w < nw; w++ {
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			for t := range ready {
				ctx.process(t, enqueue)
				pendingWG.Done()
			}
		}()
	}

	recvDone := make(chan error, 1)
	go func() {
		for n := 0; n < sched.RecvCount; n++ {
			msg := ctx.T.RecvAny()
			if err := ctx.handleMessage(msg, enqueue); err != nil {
				recvDone <- err
				return
			}
		}
		recvDone <- nil
	}()

	err := <-recvDone
	pendingWG.Wait()
	close(ready)
	workersWG.Wait()
	return err
}

func (ctx *Context) process(t task, enqueue func(task)) {
	switch t.kind {
	case taskSolveDiag:
		ctx.solveDiagonal(t.id, enqueue)
	case taskForwardReduce:
		ctx.forwardReduce(t.id, enqueue)
	}
}

// solveDiagonal folds any locally accumulated partial sum for K into X[K],
// solves the diagonal block (GEMM against Uinv, or TRSM against a
// non-unit upper triangle), broadcasts the result down K's column, and
// applies the blocks this rank owns in that column.
func (ctx *Context) solveDiagonal(K int, enqueue func(task)) {
	lb, ok := ctx.XLocal[K]
	if !ok {
		chk.Panic("usolve: rank is not the diagonal process for supernode %d", K)
	}
	nrhs := ctx.X.Nrhs
	sK := ctx.Sched.Supers[K].Size

	x := factor.Payload(ctx.X.X, ctx.X.Ilsum, lb)
	if lbsum, ok := ctx.LsumLocal[K]; ok {
		// Pending[K] reaching zero is what enqueued this task, and every
		// writer into row K's Lsum slot goes through decrementPending on
		// its way out; no lock is needed here since there cannot be a
		// writer still in flight for this row by the time we read it.
		acc := factor.Payload(ctx.Lsum.Lsum, ctx.Lsum.Ilsum, lbsum)
		tree.Fold(x, acc)
	}

	if ctx.UseInverseDiagonals {
		uinv := ctx.U.DiagInv[K]
		if uinv == nil {
			chk.Panic("usolve: useInverseDiagonals set but no Uinv cached for supernode %d", K)
		}
		tmp := make([]float64, sK*nrhs)
		blocks.GEMM(sK, nrhs, sK, 1, uinv, sK, x, nrhs, 0, tmp, nrhs)
		copy(x, tmp)
	} else {
		diag := ctx.U.DiagBlock(K)
		if diag == nil {
			chk.Panic("usolve: no diagonal block stored for supernode %d", K)
		}
		blocks.TRSM(false, false, sK, nrhs, 1, diag, sK, x, nrhs)
	}

	bc, ok := ctx.Sched.BCTrees[K]
	if !ok {
		chk.Panic("usolve: no broadcast tree registered for column %d", K)
	}
	bc.Forward(ctx.T, xport.TagUBroadcast, xport.Msg{Header: K, Data: x})
	ctx.applyColumn(K, x, enqueue)
	bc.AwaitSends()
}

// applyColumn subtracts U(I,K)*X[K] (I<K) from every locally stored row I
// in column K, decrementing each row's pending counter.
func (ctx *Context) applyColumn(K int, xK []float64, enqueue func(task)) {
	nrhs := ctx.X.Nrhs
	sK := ctx.Sched.Supers[K].Size
	for _, c := range ctx.Sched.ContribsByK[K] {
		lbI, ok := ctx.LsumLocal[c.I]
		if !ok {
			chk.Panic("usolve: contribution targets row %d not locally tracked", c.I)
		}
		sI := ctx.Sched.Supers[c.I].Size
		lsumI := factor.Payload(ctx.Lsum.Lsum, ctx.Lsum.Ilsum, lbI)
		ctx.rowMu[lbI].Lock()
		blocks.GEMM(sI, nrhs, sK, -1, c.Block, sK, xK, nrhs, 1, lsumI, nrhs)
		ctx.rowMu[lbI].Unlock()
		ctx.decrementPending(c.I, enqueue)
	}
}

// forwardReduce sends this rank's accumulated partial sum for row I up
// I's reduce tree toward its diagonal process.
func (ctx *Context) forwardReduce(I int, enqueue func(task)) {
	lbI, ok := ctx.LsumLocal[I]
	if !ok {
		chk.Panic("usolve: no local partial sum tracked for row %d", I)
	}
	payload := factor.Payload(ctx.Lsum.Lsum, ctx.Lsum.Ilsum, lbI)
	rd, ok := ctx.Sched.RDTrees[I]
	if !ok {
		chk.Panic("usolve: no reduce tree registered for row %d", I)
	}
	rd.Forward(ctx.T, xport.TagUReduce, xport.Msg{Header: I, Data: payload})
	rd.AwaitSends()
}

func (ctx *Context) decrementPending(I int, enqueue func(task)) {
	p, ok := ctx.Sched.Pending[I]
	if !ok {
		chk.Panic("usolve: no pending counter tracked for row %d", I)
	}
	if atomic.AddInt32(p, -1) != 0 {
		return
	}
	if _, isDiag := ctx.XLocal[I]; isDiag {
		enqueue(task{taskSolveDiag, I})
	} else {
		enqueue(task{taskForwardReduce, I})
	}
}

func (ctx *Context) handleMessage(msg xport.Msg, enqueue func(task)) error {
	switch msg.Tag {
	case xport.TagUBroadcast:
		return ctx.handleBroadcast(msg, enqueue)
	case xport.TagUReduce:
		return ctx.handleReduce(msg, enqueue)
	default:
		chk.Panic("usolve: unexpected tag %d on a U-solve transport", msg.Tag)
		return nil
	}
}

func (ctx *Context) handleBroadcast(msg xport.Msg, enqueue func(task)) error {
	K := msg.Header
	if K < 0 || K >= ctx.Sched.Supers.NumSupers() {
		chk.Panic("usolve: broadcast header %d out of range [0,%d)", K, ctx.Sched.Supers.NumSupers())
	}
	if bc, ok := ctx.Sched.BCTrees[K]; ok {
		bc.Forward(ctx.T, xport.TagUBroadcast, msg)
		ctx.applyColumn(K, msg.Data, enqueue)
		bc.AwaitSends()
	} else {
		ctx.applyColumn(K, msg.Data, enqueue)
	}
	return nil
}

func (ctx *Context) handleReduce(msg xport.Msg, enqueue func(task)) error {
	I := msg.Header
	if I < 0 || I >= ctx.Sched.Supers.NumSupers() {
		chk.Panic("usolve: reduce header %d out of range [0,%d)", I, ctx.Sched.Supers.NumSupers())
	}
	lbI, ok := ctx.LsumLocal[I]
	if !ok {
		chk.Panic("usolve: reduce message for row %d not locally tracked", I)
	}
	dst := factor.Payload(ctx.Lsum.Lsum, ctx.Lsum.Ilsum, lbI)
	ctx.rowMu[lbI].Lock()
	tree.Fold(dst, msg.Data)
	ctx.rowMu[lbI].Unlock()
	ctx.decrementPending(I, enqueue)
	return nil
}
