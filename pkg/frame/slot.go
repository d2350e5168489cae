// Package frame implements the frame-slot pool described in the protocol
// design: a fixed-size array of slots, each progressing through a small
// state machine via atomic compare-and-swap, so the send and receive
// tasks of the PDU loop never need a shared lock. The shape follows the
// teacher's lock-free correlation of CAN responses to waiting callers
// (pkg/sdo's rxNew flag set from a Handle callback and polled by the
// blocking caller), generalized from a single in-flight SDO transfer to
// a pool of N concurrently in-flight PDUs.
package frame

import (
	"sync/atomic"

	ethercat "github.com/go-ethercat/master"
)

// State is a frame slot's position in its lifecycle; the constants below
// describe each state.
type State int32

const (
	// StateNone: unused, owned by nobody.
	StateNone State = iota
	// StateCreated: a caller is writing PDUs into the slot.
	StateCreated
	// StateSendable: ready for the send task to serialize onto the wire.
	StateSendable
	// StateSending: the send task is serializing this slot right now.
	StateSending
	// StateSent: awaiting a network response.
	StateSent
	// StateRxBusy: the receive task is copying a response into the slot.
	StateRxBusy
	// StateRxDone: response available, waker fired.
	StateRxDone
	// StateRxProcessing: the caller is reading the response buffer.
	StateRxProcessing
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateCreated:
		return "created"
	case StateSendable:
		return "sendable"
	case StateSending:
		return "sending"
	case StateSent:
		return "sent"
	case StateRxBusy:
		return "rx-busy"
	case StateRxDone:
		return "rx-done"
	case StateRxProcessing:
		return "rx-processing"
	default:
		return "unknown"
	}
}

// Slot is one fixed-size element of a Pool. It is created once at pool
// init and never reallocated; callers hold only a temporary logical
// reservation while building or awaiting a frame.
type Slot struct {
	index      int
	generation atomic.Uint64
	state      atomic.Int32

	// buf holds one complete Ethernet+EtherCAT frame as it is being
	// built by the claiming caller, then serialized by the send task.
	buf []byte
	// frameLen is the number of valid bytes in buf.
	frameLen int

	// reqCommand and reqAddr record the command code and addressing
	// bytes the caller sent, so the response's echoed fields can be
	// validated without a second shared lookup table.
	reqCommand byte
	reqAddr    [4]byte

	// respWKC, respPayload, respCommand and respAddr are populated by
	// the receive task while in StateRxBusy and read by the caller once
	// in StateRxDone. respErr is populated instead of the rest by
	// AbandonSend when the slot never made it onto the wire.
	respWKC     uint16
	respPayload []byte
	respCommand byte
	respAddr    [4]byte
	respErr     error

	// wake is a single-slot waker: a buffered channel of capacity 1.
	// The receive task sends (non-blocking) when it transitions the
	// slot to StateRxDone; the awaiting caller receives.
	wake chan struct{}
}

// frameOverhead is the number of bytes surrounding a single PDU's payload
// in a slot's frame: Ethernet header, EtherCAT frame header, and the PDU
// header plus working counter.
const frameOverhead = ethercat.EthernetHeaderLen + 2 + 12

func newSlot(index, maxPDUData int) *Slot {
	s := &Slot{
		index: index,
		buf:   make([]byte, frameOverhead+maxPDUData),
		wake:  make(chan struct{}, 1),
	}
	return s
}

// Index returns the slot's fixed position in the pool. A PDU's
// correlation index is always equal to its slot's index.
func (s *Slot) Index() int { return s.index }

// Generation returns the current reuse counter, bumped every time the
// slot returns to StateNone. Holders of a stale generation must treat
// the slot as no longer theirs.
func (s *Slot) Generation() uint64 { return s.generation.Load() }

// State returns the slot's current state.
func (s *Slot) State() State { return State(s.state.Load()) }

// cas attempts the given state transition and reports whether it
// succeeded; every transition in the diagram goes through this.
func (s *Slot) cas(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// claimFree attempts to claim this slot for a new PDU, transitioning
// None -> Created and bumping the generation so late responses
// addressed to the slot's previous occupant are recognizably stale.
func (s *Slot) claimFree() bool {
	if s.cas(StateNone, StateCreated) {
		s.generation.Add(1)
		s.frameLen = 0
		s.respPayload = nil
		s.respWKC = 0
		s.respErr = nil
		// drain any stale wake left over from a cancelled previous use
		select {
		case <-s.wake:
		default:
		}
		return true
	}
	return false
}

// Buffer returns the slot's backing buffer for the caller to write its
// Ethernet+EtherCAT frame into while in StateCreated.
func (s *Slot) Buffer() []byte { return s.buf }

// SetRequest records the command code and addressing bytes the caller is
// about to send, used later to validate the response echo.
func (s *Slot) SetRequest(command byte, addr [4]byte) {
	s.reqCommand = command
	s.reqAddr = addr
}

// Request returns the command code and addressing bytes recorded by SetRequest.
func (s *Slot) Request() (command byte, addr [4]byte) { return s.reqCommand, s.reqAddr }

// Finalize records how many bytes of Buffer() are valid and transitions
// Created -> Sendable.
func (s *Slot) Finalize(frameLen int) bool {
	s.frameLen = frameLen
	return s.cas(StateCreated, StateSendable)
}

// FrameLen returns the number of valid bytes in Buffer().
func (s *Slot) FrameLen() int { return s.frameLen }

// claimForSend is used by the send task: Sendable -> Sending.
func (s *Slot) claimForSend() bool { return s.cas(StateSendable, StateSending) }

// MarkSent transitions Sending -> Sent after a successful write.
func (s *Slot) MarkSent() bool { return s.cas(StateSending, StateSent) }

// AbandonSend transitions Sending directly to RxDone carrying err as the
// slot's result, so the awaiting caller observes the transport failure
// instead of hanging until timeout or, worse, reading stale response
// fields left over from the slot's previous occupant.
func (s *Slot) AbandonSend(err error) bool {
	s.respErr = err
	ok := s.cas(StateSending, StateRxDone)
	if ok {
		s.wakeCaller()
	}
	return ok
}

// ClaimForRx is used by the receive task: Sent -> RxBusy.
func (s *Slot) ClaimForRx() bool { return s.cas(StateSent, StateRxBusy) }

// CompleteRx records the response payload, echoed command/addressing
// bytes and working counter, then transitions RxBusy -> RxDone and fires
// the waker.
func (s *Slot) CompleteRx(command byte, addr [4]byte, payload []byte, wkc uint16) bool {
	s.respCommand = command
	s.respAddr = addr
	s.respPayload = payload
	s.respWKC = wkc
	s.respErr = nil
	ok := s.cas(StateRxBusy, StateRxDone)
	if ok {
		s.wakeCaller()
	}
	return ok
}

func (s *Slot) wakeCaller() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Wake returns the channel a waiting caller receives from until the slot
// reaches StateRxDone.
func (s *Slot) Wake() <-chan struct{} { return s.wake }

// BeginProcessing transitions RxDone -> RxProcessing so the caller can
// safely read the response fields.
func (s *Slot) BeginProcessing() bool { return s.cas(StateRxDone, StateRxProcessing) }

// Response returns the payload slice and working counter recorded by the
// receive task. Valid only once in StateRxProcessing.
func (s *Slot) Response() ([]byte, uint16) { return s.respPayload, s.respWKC }

// ResponseEcho returns the command code and addressing bytes echoed back
// by the response, for validation against the original request.
func (s *Slot) ResponseEcho() (command byte, addr [4]byte) { return s.respCommand, s.respAddr }

// Err returns the transport error recorded by AbandonSend, or nil for a
// slot that reached RxDone via a real response. Valid once in
// StateRxProcessing, alongside Response and ResponseEcho.
func (s *Slot) Err() error { return s.respErr }

// Release returns the slot to StateNone from any state a caller might
// hold it in (RxProcessing after reading, or RxDone/Created/Sendable on
// cancellation/timeout), bumping the generation so abandoned responses
// are recognized as stale.
func (s *Slot) Release() {
	for {
		cur := State(s.state.Load())
		if cur == StateNone {
			return
		}
		if s.state.CompareAndSwap(int32(cur), int32(StateNone)) {
			s.generation.Add(1)
			return
		}
	}
}

// MatchesGeneration reports whether gen is still the slot's current
// generation, so a holder of an earlier generation can tell that the slot
// has since been released or reused.
func (s *Slot) MatchesGeneration(gen uint64) bool {
	return s.generation.Load() == gen
}
