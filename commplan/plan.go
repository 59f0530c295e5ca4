// Package commplan builds the send/recv displacement tables used by the
// B<->X all-to-all redistribution. The per-destination send/recv counts
// are produced by a prior setup routine and handed in; this package turns
// counts into displacements (prefix sums) and validates them, which is the
// part of the communication plan actually owned by the solve core.
package commplan

import "github.com/cpmech/gosl/chk"

// Plan holds, for the forward (B->X) or backward (X->B) exchange, the
// per-destination-process send counts and the matching receive counts,
// plus the displacement (prefix-sum) tables derived from them.
type Plan struct {
	Nproc int

	SendCounts []int // SendCounts[p] = number of rows this process sends to p
	RecvCounts []int // RecvCounts[p] = number of rows this process receives from p

	SendDispls []int // prefix sum of SendCounts
	RecvDispls []int // prefix sum of RecvCounts
}

// Build validates sendCounts/recvCounts (as produced by the external setup
// routine) and computes the displacement tables.
func Build(sendCounts, recvCounts []int) *Plan {
	if len(sendCounts) != len(recvCounts) {
		chk.Panic("commplan: sendCounts and recvCounts must have the same length, got %d and %d", len(sendCounts), len(recvCounts))
	}
	nproc := len(sendCounts)
	p := &Plan{
		Nproc:      nproc,
		SendCounts: append([]int(nil), sendCounts...),
		RecvCounts: append([]int(nil), recvCounts...),
		SendDispls: make([]int, nproc),
		RecvDispls: make([]int, nproc),
	}
	soff, roff := 0, 0
	for i := 0; i < nproc; i++ {
		if sendCounts[i] < 0 || recvCounts[i] < 0 {
			chk.Panic("commplan: negative count at peer %d (send=%d recv=%d)", i, sendCounts[i], recvCounts[i])
		}
		p.SendDispls[i] = soff
		p.RecvDispls[i] = roff
		soff += sendCounts[i]
		roff += recvCounts[i]
	}
	return p
}

// TotalSend returns the total number of rows sent to all peers.
func (p *Plan) TotalSend() int {
	n := 0
	for _, c := range p.SendCounts {
		n += c
	}
	return n
}

// TotalRecv returns the total number of rows received from all peers.
func (p *Plan) TotalRecv() int {
	n := 0
	for _, c := range p.RecvCounts {
		n += c
	}
	return n
}
