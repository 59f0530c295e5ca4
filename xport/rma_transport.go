package xport

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cpmech/gosl/chk"
)

// RMATransport implements the one-sided transport variant: each process
// exposes one window laid out as
//
//	[Pc+Pr counters] [BC region, per-source-row] [RD region, per-source-col]
//
// Senders Put the payload into the receiver's designated slot and
// atomically increment the matching counter word in the receiver's window;
// receivers poll their counter region to discover new messages rather than
// blocking on an any-source receive call, the defining difference from the
// two-sided ChanTransport/MPITransport path. This implementation models
// the window as one in-process slot channel per (source,dest) pair plus a
// shared counter matrix every rank's row of which is its own window: Send
// bumps counters[dest][src] only after the payload channel send has
// completed, so a poller that observes the bump is guaranteed the payload
// is already there (a channel send happens-before its receive, giving the
// same "payload visible before counter bump" ordering a real RDMA window
// requires).
type RMATransport struct {
	rank int
	size int

	seq      []uint64   // this rank's own counter row: seq[src] = messages src has put into us
	consumed []uint64   // local to RecvAny's poll loop, not shared
	inboxes  []chan Msg // inboxes[src] = slot channel src delivers into, for this rank

	counters [][]uint64 // counters[dest] is dest's seq row, shared so Send can bump it remotely
	allInbox [][]chan Msg
}

// NewRMAWorld builds n connected RMATransports sharing counter-region
// semantics, for use by tests exercising the one-sided path.
func NewRMAWorld(n int) []*RMATransport {
	if n <= 0 {
		chk.Panic("xport: NewRMAWorld requires n>0, got %d", n)
	}
	counters := make([][]uint64, n)
	inboxes := make([][]chan Msg, n)
	for i := 0; i < n; i++ {
		counters[i] = make([]uint64, n)
		inboxes[i] = make([]chan Msg, n)
		for j := 0; j < n; j++ {
			inboxes[i][j] = make(chan Msg, 4)
		}
	}
	world := make([]*RMATransport, n)
	for i := range world {
		world[i] = &RMATransport{
			rank: i, size: n,
			seq: counters[i], consumed: make([]uint64, n), inboxes: inboxes[i],
			counters: counters, allInbox: inboxes,
		}
	}
	return world
}

func (r *RMATransport) Rank() int { return r.rank }
func (r *RMATransport) Size() int { return r.size }

type rmaSendHandle struct{ done chan struct{} }

func (h *rmaSendHandle) Wait() { <-h.done }

// Send puts msg into dest's window slot for this source and bumps dest's
// per-source counter only after the payload is visible, matching the
// "payload put before counter bump" ordering the one-sided contract
// requires.
func (r *RMATransport) Send(dest int, kind Tag, msg Msg) SendHandle {
	if dest < 0 || dest >= r.size {
		chk.Panic("xport: RMA Send to out-of-range rank %d (size=%d)", dest, r.size)
	}
	msg.Tag = kind
	done := make(chan struct{})
	go func() {
		r.allInbox[dest][r.rank] <- msg
		atomic.AddUint64(&r.counters[dest][r.rank], 1)
		close(done)
	}()
	return &rmaSendHandle{done: done}
}

// RecvAny polls this rank's counter region for the next delivered message:
// it scans seq[src] for every source looking for an un-consumed increment,
// then drains the corresponding slot. A real RMA binding would spin on the
// hardware counter word the same way; here the spin backs off with
// runtime.Gosched and, after a few idle sweeps, a short sleep so the poll
// loop doesn't starve the goroutines it's waiting on.
func (r *RMATransport) RecvAny() Msg {
	idle := 0
	for {
		for src := 0; src < r.size; src++ {
			if atomic.LoadUint64(&r.seq[src]) <= r.consumed[src] {
				continue
			}
			select {
			case msg := <-r.inboxes[src]:
				r.consumed[src]++
				return msg
			default:
				// Send bumps the counter only after its channel write,
				// so a bumped counter always has a message waiting; this
				// branch only keeps the select non-blocking.
			}
		}
		idle++
		if idle < 64 {
			runtime.Gosched()
		} else {
			time.Sleep(time.Microsecond)
		}
	}
}

func (r *RMATransport) Close() {}
