package frame

import (
	"sync/atomic"

	ethercat "github.com/go-ethercat/master"
)

// Pool is a fixed-size array of frame slots. The slot count and per-slot
// payload capacity are fixed at construction; Pool itself holds no other
// mutable state, so Claim is wait-free under contention below capacity —
// every goroutine racing to claim a slot only ever contends on a single
// slot's atomic state word, never on a shared counter or lock.
type Pool struct {
	slots []*Slot

	// rxFrameCount is incremented for every inbound Ethernet frame the
	// receive task observes, including malformed or unmatched ones.
	rxFrameCount atomic.Uint64
	// rxDropped counts frames dropped due to unknown index or
	// malformed content.
	rxDropped atomic.Uint64
}

// NewPool allocates a pool of n slots, each with the given per-slot
// payload capacity.
func NewPool(n, maxPDUData int) *Pool {
	p := &Pool{slots: make([]*Slot, n)}
	for i := range p.slots {
		p.slots[i] = newSlot(i, maxPDUData)
	}
	return p
}

// Len returns the pool's slot capacity.
func (p *Pool) Len() int { return len(p.slots) }

// Slot returns the slot at the given index. Panics if out of range,
// mirroring slice indexing semantics since indices always originate from
// Pool itself (PDU index == slot index).
func (p *Pool) Slot(index int) *Slot { return p.slots[index] }

// Claim scans for the first slot in StateNone and claims it, returning
// ErrIndexInUse if every slot is occupied. Scanning rather than keeping a
// free-list mirrors the "first None slot found" allocation policy in the
// protocol design, and keeps claiming wait-free: a losing CAS just moves
// on to the next slot instead of retrying the one it lost.
func (p *Pool) Claim() (*Slot, error) {
	for _, s := range p.slots {
		if s.claimFree() {
			return s, nil
		}
	}
	return nil, ethercat.ErrIndexInUse
}

// EachSendable calls fn for every slot currently in StateSendable,
// claiming it for send (Sendable -> Sending) before the call so a
// concurrent claimer never observes the same slot twice. Used by the
// send task to drain all pending work in one pass.
func (p *Pool) EachSendable(fn func(*Slot)) {
	for _, s := range p.slots {
		if s.claimForSend() {
			fn(s)
		}
	}
}

// RecordFrame increments the inbound frame counter.
func (p *Pool) RecordFrame() { p.rxFrameCount.Add(1) }

// RecordDrop increments the dropped-frame counter.
func (p *Pool) RecordDrop() { p.rxDropped.Add(1) }

// Stats returns the cumulative inbound and dropped frame counts.
func (p *Pool) Stats() (received, dropped uint64) {
	return p.rxFrameCount.Load(), p.rxDropped.Load()
}
