// Package tree implements the broadcast and reduction trees used to fan a
// column's solution down a block column, and fan partial lsum contributions
// back up to a row's diagonal process. Trees are transport-agnostic: they
// forward bytes over whatever xport.Transport the solve engine gives them.
package tree

import "github.com/cpmech/pdtrisolve/xport"

// Tree is the common capability set of both tree kinds: IsRoot, DestCount
// (children for a broadcast node, the one parent for a non-root reduce
// node), Forward and AwaitSends.
type Tree interface {
	IsRoot() bool
	DestCount() int
	// Forward relays msg to this node's children (broadcast) or its
	// single parent (reduce), tagging the sends with kind.
	Forward(t xport.Transport, kind xport.Tag, msg xport.Msg)
	// AwaitSends blocks until every send issued by the most recent
	// Forward has completed. A tree's Forward must not be called
	// concurrently with its own AwaitSends.
	AwaitSends()
}

// baseTree carries the bookkeeping shared by broadcast and reduce trees:
// the destination ranks to forward to, and the in-flight send handles from
// the last Forward call.
type baseTree struct {
	dests   []int // ranks to forward to (children for BC, parent for RD)
	root    bool
	pending []xport.SendHandle
}

func (b *baseTree) IsRoot() bool    { return b.root }
func (b *baseTree) DestCount() int  { return len(b.dests) }

func (b *baseTree) forward(t xport.Transport, kind xport.Tag, msg xport.Msg) {
	b.pending = b.pending[:0]
	for _, d := range b.dests {
		b.pending = append(b.pending, t.Send(d, kind, msg))
	}
}

func (b *baseTree) AwaitSends() {
	for _, h := range b.pending {
		h.Wait()
	}
	b.pending = b.pending[:0]
}

// BroadcastTree fans X_K out to every process owning a block in column K.
type BroadcastTree struct {
	baseTree
	MsgSize int // payload words excluding header
}

// NewBroadcastTree builds a broadcast tree node whose children (in this
// tree) are the given ranks; isRoot marks the diagonal process that
// originates the broadcast. The tree shape (flat, binomial or k-ary) is
// decided by the setup routine; this constructor is shape-agnostic and simply takes the
// already-computed children list.
func NewBroadcastTree(children []int, isRoot bool, msgSize int) *BroadcastTree {
	return &BroadcastTree{baseTree: baseTree{dests: children, root: isRoot}, MsgSize: msgSize}
}

func (bc *BroadcastTree) Forward(t xport.Transport, kind xport.Tag, msg xport.Msg) {
	bc.forward(t, kind, msg)
}

// ReduceTree fans partial lsum contributions in to a row's diagonal
// process. A reduce tree node always
// forwards to exactly one parent, except at the root which has none.
type ReduceTree struct {
	baseTree
	MsgSize    int
	ChildCount int // number of reduce-tree children this node waits on
}

// NewReduceTree builds a reduce tree node. parent is -1 at the root.
func NewReduceTree(parent int, childCount, msgSize int) *ReduceTree {
	var dests []int
	if parent >= 0 {
		dests = []int{parent}
	}
	return &ReduceTree{
		baseTree:   baseTree{dests: dests, root: parent < 0},
		MsgSize:    msgSize,
		ChildCount: childCount,
	}
}

func (rd *ReduceTree) Forward(t xport.Transport, kind xport.Tag, msg xport.Msg) {
	rd.forward(t, kind, msg)
}
