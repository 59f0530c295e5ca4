package xport

import "github.com/cpmech/gosl/chk"

// ChanTransport simulates a rank's transport using an in-process Go
// channel per destination: plain goroutines plus a channel drained by the
// caller, the same pattern used elsewhere in this codebase for small-scale
// concurrent sections. It is how the two-sided tests in this module
// exercise multi-rank behavior without an MPI launcher, and it is also the
// transport cmd/pdtrisolve hands solve.Solve on a single-process grid.
type ChanTransport struct {
	rank  int
	size  int
	inbox chan Msg
	peers []chan Msg // peers[r] is rank r's inbox
}

// NewChanWorld builds n connected ChanTransports, one per simulated rank,
// sharing the same set of inbox channels so rank i can Send to rank j.
func NewChanWorld(n int) []*ChanTransport {
	if n <= 0 {
		chk.Panic("xport: NewChanWorld requires n>0, got %d", n)
	}
	inboxes := make([]chan Msg, n)
	for i := range inboxes {
		inboxes[i] = make(chan Msg, 4*n)
	}
	world := make([]*ChanTransport, n)
	for i := range world {
		world[i] = &ChanTransport{rank: i, size: n, inbox: inboxes[i], peers: inboxes}
	}
	return world
}

func (c *ChanTransport) Rank() int { return c.rank }
func (c *ChanTransport) Size() int { return c.size }

type chanSendHandle struct{ done chan struct{} }

func (h *chanSendHandle) Wait() { <-h.done }

// Send delivers msg to dest asynchronously; the returned handle completes
// as soon as the message has been enqueued on dest's inbox (the in-process
// analog of "non-blocking send, completion awaited separately").
func (c *ChanTransport) Send(dest int, kind Tag, msg Msg) SendHandle {
	if dest < 0 || dest >= len(c.peers) {
		chk.Panic("xport: Send to out-of-range rank %d (size=%d)", dest, len(c.peers))
	}
	msg.Tag = kind
	done := make(chan struct{})
	go func() {
		c.peers[dest] <- msg
		close(done)
	}()
	return &chanSendHandle{done: done}
}

// RecvAny blocks until any message addressed to this rank arrives.
func (c *ChanTransport) RecvAny() Msg {
	return <-c.inbox
}

// Close drains nothing by itself; the channels are garbage collected once
// both ends drop their reference. Present to satisfy Transport's lifecycle
// contract.
func (c *ChanTransport) Close() {}
