package pdu

import (
	"context"
	"time"

	ethercat "github.com/go-ethercat/master"
)

// Builder configures one PDU operation before a terminal call invokes
// SendAndAwait. The chained with_wkc/ignore_wkc/with_len then
// send/receive/send_receive shape follows the teacher's SDO client
// helpers, which build up a request (index, subindex, optional
// complete-access flag) before a single terminal Read/Write call.
type Builder struct {
	loop    *Loop
	cmd     Command
	addr    Address
	payload []byte
	lenOver int

	expectWKC   *uint16
	ignoreWKC   bool
	timeout     time.Duration
}

func newBuilder(loop *Loop, cmd Command, addr Address, payload []byte) *Builder {
	return &Builder{loop: loop, cmd: cmd, addr: addr, payload: payload, timeout: loop.cfg.PDUTimeout}
}

// WithWKC sets the working counter the caller expects; a mismatch after
// the terminal call returns a *ethercat.WorkingCounterError unless
// IgnoreWKC was also called.
func (b *Builder) WithWKC(n uint16) *Builder {
	b.expectWKC = &n
	return b
}

// IgnoreWKC disables working-counter validation entirely.
func (b *Builder) IgnoreWKC() *Builder {
	b.ignoreWKC = true
	return b
}

// WithLen forces a PDU data length larger than len(payload), used for
// reads into a buffer bigger than any write payload supplied.
func (b *Builder) WithLen(n int) *Builder {
	b.lenOver = n
	return b
}

// WithTimeout overrides the configured default PDU timeout for this operation.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

func (b *Builder) checkWKC(wkc uint16) error {
	if b.ignoreWKC || b.expectWKC == nil {
		return nil
	}
	if wkc != *b.expectWKC {
		return &ethercat.WorkingCounterError{Expected: *b.expectWKC, Received: wkc, Context: b.cmd.String()}
	}
	return nil
}

// Send performs a write-only terminal operation: the payload is sent,
// any response payload is discarded, and only the working counter is
// returned.
func (b *Builder) Send(ctx context.Context) (wkc uint16, err error) {
	_, wkc, err = b.loop.SendAndAwait(ctx, b.cmd, b.addr, b.payload, b.lenOver, b.timeout)
	if err != nil {
		return wkc, err
	}
	return wkc, b.checkWKC(wkc)
}

// Receive performs a read-only terminal operation, allocating a fresh
// slice for the response payload.
func (b *Builder) Receive(ctx context.Context) (data []byte, wkc uint16, err error) {
	data, wkc, err = b.loop.SendAndAwait(ctx, b.cmd, b.addr, b.payload, b.lenOver, b.timeout)
	if err != nil {
		return nil, wkc, err
	}
	return data, wkc, b.checkWKC(wkc)
}

// ReceiveInto performs a read-only terminal operation, copying the
// response payload into dst instead of allocating. dst must be at least
// as long as the expected response.
func (b *Builder) ReceiveInto(ctx context.Context, dst []byte) (wkc uint16, err error) {
	if b.lenOver < len(dst) {
		b.lenOver = len(dst)
	}
	data, wkc, err := b.loop.SendAndAwait(ctx, b.cmd, b.addr, b.payload, b.lenOver, b.timeout)
	if err != nil {
		return wkc, err
	}
	copy(dst, data)
	return wkc, b.checkWKC(wkc)
}

// SendReceive performs a combined read-write terminal operation (LRW):
// the payload is sent and the response payload (of equal length) is
// returned, allocating a fresh slice.
func (b *Builder) SendReceive(ctx context.Context) (data []byte, wkc uint16, err error) {
	return b.Receive(ctx)
}

// SendReceiveInto performs a combined read-write terminal operation,
// copying the response into dst.
func (b *Builder) SendReceiveInto(ctx context.Context, dst []byte) (wkc uint16, err error) {
	return b.ReceiveInto(ctx, dst)
}

// APRD reads length bytes from register at the device reached by the
// given auto-increment position.
func APRD(loop *Loop, position, register uint16, length int) *Builder {
	b := newBuilder(loop, CmdAPRD, AutoIncrement(position, register), nil)
	return b.WithLen(length)
}

// APWR writes data to register at the device reached by position.
func APWR(loop *Loop, position, register uint16, data []byte) *Builder {
	return newBuilder(loop, CmdAPWR, AutoIncrement(position, register), data)
}

// FPRD reads length bytes from register on the device at the given
// configured station address.
func FPRD(loop *Loop, station, register uint16, length int) *Builder {
	b := newBuilder(loop, CmdFPRD, Configured(station, register), nil)
	return b.WithLen(length)
}

// FPWR writes data to register on the device at the given configured
// station address.
func FPWR(loop *Loop, station, register uint16, data []byte) *Builder {
	return newBuilder(loop, CmdFPWR, Configured(station, register), data)
}

// BRD reads length bytes from register on every device (bitwise OR'd by
// the ring... in practice only the first device's contribution is
// meaningful for anything but the working counter itself, since each
// device ORs the same register into the circulating frame).
func BRD(loop *Loop, register uint16, length int) *Builder {
	b := newBuilder(loop, CmdBRD, Broadcast(register), nil)
	return b.WithLen(length)
}

// BWR writes data to register on every device.
func BWR(loop *Loop, register uint16, data []byte) *Builder {
	return newBuilder(loop, CmdBWR, Broadcast(register), data)
}

// LRD reads length bytes from the logical address space.
func LRD(loop *Loop, logicalAddr uint32, length int) *Builder {
	b := newBuilder(loop, CmdLRD, Logical(logicalAddr), nil)
	return b.WithLen(length)
}

// LWR writes data to the logical address space.
func LWR(loop *Loop, logicalAddr uint32, data []byte) *Builder {
	return newBuilder(loop, CmdLWR, Logical(logicalAddr), data)
}

// LRW performs a combined logical read-write: data is written out and
// the region's current contents (as updated in-flight by SubDevices) are
// read back into the same span. This is the workhorse cyclic command.
func LRW(loop *Loop, logicalAddr uint32, data []byte) *Builder {
	return newBuilder(loop, CmdLRW, Logical(logicalAddr), data)
}

// FRMW reads from the device at station and, in the same frame, writes
// the value it read into every downstream device. Used for distributed
// clock propagation.
func FRMW(loop *Loop, station, register uint16, data []byte) *Builder {
	return newBuilder(loop, CmdFRMW, Configured(station, register), data)
}
