// Package lsolve drives the forward substitution L·Y = B1 once B1 has
// already been scattered onto diagonal processes by redist.ScatterBtoX.
// This is the core dependency-driven sweep: a diagonal block solves as
// soon as every off-diagonal contribution and reduce-tree child has
// reported in, then broadcasts its solution down the column it feeds,
// which in turn unblocks the rows that depend on it.
package lsolve

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

// Contrib is one locally-stored off-diagonal block L(I,K), applied once
// X[K] is known (from this rank's own diagonal solve or a broadcast
// received from K's diagonal process).
type Contrib struct {
	K, I  int
	Block []float64 // row-major, Supers[I].Size x Supers[K].Size
}

// Schedule is the per-process dependency plan the sweep executes. Its
// construction — supernode dependency analysis, tree shapes, and message
// counts — belongs to a prior setup routine; Run only consumes it.
type Schedule struct {
	Supers factor.SupernodeTable

	DiagOwned []int // global K this rank is the diagonal process for

	// ContribsByK[K] lists this rank's local off-diagonal blocks that
	// depend on column K's solution.
	ContribsByK map[int][]Contrib

	BCTrees map[int]tree.Tree // keyed by global K: column-K broadcast tree
	RDTrees map[int]tree.Tree // keyed by global I: row-I reduce tree

	// Pending[I] starts at the number of local contributions touching
	// row I plus I's reduce-tree child count, and is driven to zero one
	// decrement at a time. Reaching zero triggers a diagonal solve (if
	// this rank owns I) or a forward up I's reduce tree.
	Pending map[int]*int32

	// RecvCount is the exact number of inbound messages this rank must
	// receive before the sweep is complete; this is the only
	// termination condition, never a barrier or global count check.
	RecvCount int
}

// Context bundles a Schedule with the numeric buffers the sweep mutates.
type Context struct {
	Sched *Schedule
	L     *factor.Factor // supplies DiagBlock(K) and DiagInv[K] (Linv)

	X      *factor.RHS // diagonal-block solution buffer
	XLocal map[int]int // global K -> local index into X

	Lsum      *factor.RHS // partial-sum accumulator for rows this rank touches
	LsumLocal map[int]int // global I -> local index into Lsum

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
// must track an Lsum partial sum for: its local off-diagonal contribution
// targets plus any diagonal row it owns (which folds an incoming partial
// sum into X before solving). The caller uses this to size and index the
// Lsum buffer it hands to Context.
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

// Run executes the forward-substitution sweep to completion, blocking
// until this rank has received exactly Sched.RecvCount messages and every
// task those messages (and the initial leaf frontier) triggered has
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
			chk.Panic("lsolve: missing pending counter for diagonal %d", K)
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
// solves the diagonal block (GEMM against Linv, or TRSM), broadcasts the
// result down K's column, and applies the blocks this rank owns in that
// column.
func (ctx *Context) solveDiagonal(K int, enqueue func(task)) {
	lb, ok := ctx.XLocal[K]
	if !ok {
		chk.Panic("lsolve: rank is not the diagonal process for supernode %d", K)
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
		linv := ctx.L.DiagInv[K]
		if linv == nil {
			chk.Panic("lsolve: useInverseDiagonals set but no Linv cached for supernode %d", K)
		}
		tmp := make([]float64, sK*nrhs)
		blocks.GEMM(sK, nrhs, sK, 1, linv, sK, x, nrhs, 0, tmp, nrhs)
		copy(x, tmp)
	} else {
		diag := ctx.L.DiagBlock(K)
		if diag == nil {
			chk.Panic("lsolve: no diagonal block stored for supernode %d", K)
		}
		blocks.TRSM(true, true, sK, nrhs, 1, diag, sK, x, nrhs)
	}

	bc, ok := ctx.Sched.BCTrees[K]
	if !ok {
		chk.Panic("lsolve: no broadcast tree registered for column %d", K)
	}
	bc.Forward(ctx.T, xport.TagLBroadcast, xport.Msg{Header: K, Data: x})
	ctx.applyColumn(K, x, enqueue)
	bc.AwaitSends()
}

// applyColumn subtracts L(I,K)*X[K] from every locally stored row I in
// column K, decrementing each row's pending counter.
func (ctx *Context) applyColumn(K int, xK []float64, enqueue func(task)) {
	nrhs := ctx.X.Nrhs
	sK := ctx.Sched.Supers[K].Size
	for _, c := range ctx.Sched.ContribsByK[K] {
		lbI, ok := ctx.LsumLocal[c.I]
		if !ok {
			chk.Panic("lsolve: contribution targets row %d not locally tracked", c.I)
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
		chk.Panic("lsolve: no local partial sum tracked for row %d", I)
	}
	payload := factor.Payload(ctx.Lsum.Lsum, ctx.Lsum.Ilsum, lbI)
	rd, ok := ctx.Sched.RDTrees[I]
	if !ok {
		chk.Panic("lsolve: no reduce tree registered for row %d", I)
	}
	rd.Forward(ctx.T, xport.TagLReduce, xport.Msg{Header: I, Data: payload})
	rd.AwaitSends()
}

func (ctx *Context) decrementPending(I int, enqueue func(task)) {
	p, ok := ctx.Sched.Pending[I]
	if !ok {
		chk.Panic("lsolve: no pending counter tracked for row %d", I)
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
	case xport.TagLBroadcast:
		return ctx.handleBroadcast(msg, enqueue)
	case xport.TagLReduce:
		return ctx.handleReduce(msg, enqueue)
	default:
		chk.Panic("lsolve: unexpected tag %d on an L-solve transport", msg.Tag)
		return nil
	}
}

func (ctx *Context) handleBroadcast(msg xport.Msg, enqueue func(task)) error {
	K := msg.Header
	if K < 0 || K >= ctx.Sched.Supers.NumSupers() {
		chk.Panic("lsolve: broadcast header %d out of range [0,%d)", K, ctx.Sched.Supers.NumSupers())
	}
	if bc, ok := ctx.Sched.BCTrees[K]; ok {
		bc.Forward(ctx.T, xport.TagLBroadcast, msg)
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
		chk.Panic("lsolve: reduce header %d out of range [0,%d)", I, ctx.Sched.Supers.NumSupers())
	}
	lbI, ok := ctx.LsumLocal[I]
	if !ok {
		chk.Panic("lsolve: reduce message for row %d not locally tracked", I)
	}
	dst := factor.Payload(ctx.Lsum.Lsum, ctx.Lsum.Ilsum, lbI)
	ctx.rowMu[lbI].Lock()
	tree.Fold(dst, msg.Data)
	ctx.rowMu[lbI].Unlock()
	ctx.decrementPending(I, enqueue)
	return nil
}
