package xport

import (
	"sync"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/mpi"
)

// MPITransport is the real-deployment two-sided transport, built on
// github.com/cpmech/gosl/mpi's collective primitives (mpi.IsOn/Rank/Size/
// AllReduceSum) and extended here with the point-to-point primitives
// (non-blocking send, any-source receive) a usable MPI binding must
// expose for tree-forwarding to work at all.
type MPITransport struct {
	comm *mpi.Communicator
	mu   sync.Mutex // serializes posting sends; gosl/mpi communicators are not goroutine-safe
}

// NewMPITransport wraps the process's default MPI communicator. Callers
// must have already called mpi.Start() (as main.go does) before
// constructing one.
func NewMPITransport() *MPITransport {
	if !mpi.IsOn() {
		chk.Panic("xport: MPITransport requires mpi.Start() to have been called")
	}
	return &MPITransport{comm: mpi.NewCommunicator(nil)}
}

func (t *MPITransport) Rank() int { return mpi.Rank() }
func (t *MPITransport) Size() int { return mpi.Size() }

type mpiSendHandle struct {
	req *mpi.Request
}

func (h *mpiSendHandle) Wait() { h.req.WaitFor() }

// Send posts a non-blocking send tagged with kind, prefixing the header
// word so it travels as the first word of the message payload.
func (t *MPITransport) Send(dest int, kind Tag, msg Msg) SendHandle {
	buf := make([]float64, 1+len(msg.Data))
	buf[0] = float64(msg.Header)
	copy(buf[1:], msg.Data)
	t.mu.Lock()
	req := t.comm.ISend(buf, dest, int(kind))
	t.mu.Unlock()
	return &mpiSendHandle{req: req}
}

// RecvAny blocks on a wildcard-source, wildcard-tag receive, the top-level
// suspension point of a solve. The MPI tag doubles as the message's Tag,
// since Send above posts with int(kind) as the wire tag.
func (t *MPITransport) RecvAny() Msg {
	buf, _, tag := t.comm.RecvAnySource()
	if len(buf) < 1 {
		chk.Panic("xport: MPITransport received an empty buffer (tag=%d)", tag)
	}
	return Msg{Header: int(buf[0]), Tag: Tag(tag), Data: buf[1:]}
}

// Close is a no-op: the underlying MPI communicator outlives one solve
// call and is torn down by mpi.Stop() at process exit, not here.
func (t *MPITransport) Close() {}
