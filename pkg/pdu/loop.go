package pdu

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/pkg/frame"
	"github.com/go-ethercat/master/pkg/wire"
)

// pduHeaderLen is the fixed per-PDU overhead: command(1) + index(1) +
// address(4) + flags(2) + irq(2) + working-counter(2).
const pduHeaderLen = 12

// maxFrameSize is the buffer size used by the receive task to read one
// inbound Ethernet frame; comfortably above the standard 1500-byte MTU.
const maxFrameSize = 2048

// Loop is the wait-free send/receive engine described in the protocol
// design: it multiplexes concurrent SendAndAwait calls over a bounded
// pool of Ethernet frames, correlating responses by PDU index. It
// follows the teacher's split between a blocking per-transfer caller
// (pkg/sdo's SDOClient.ReadRaw) and an async frame-arrival callback
// (SDOClient.Handle), generalized to N concurrent transfers sharing one
// frame pool instead of one SDO client owning one in-flight transfer.
type Loop struct {
	pool      *frame.Pool
	socket    ethercat.Socket
	sourceMAC [6]byte
	logger    *log.Entry
	cfg       ethercat.Config

	sendSignal chan struct{}
	exit       atomic.Bool
	eg         *errgroup.Group
}

// NewLoop creates a Loop bound to the given socket. cfg.MaxFrames and
// cfg.MaxPDUData size the underlying frame pool.
func NewLoop(socket ethercat.Socket, cfg ethercat.Config, sourceMAC [6]byte, logger *log.Entry) *Loop {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Loop{
		pool:       frame.NewPool(cfg.MaxFrames, cfg.MaxPDUData),
		socket:     socket,
		sourceMAC:  sourceMAC,
		logger:     logger.WithField("component", "pdu-loop"),
		cfg:        cfg,
		sendSignal: make(chan struct{}, 1),
	}
}

// Pool exposes the underlying frame pool, mainly for diagnostics (Stats).
func (l *Loop) Pool() *frame.Pool { return l.pool }

// Start launches the send and receive tasks as goroutines, tracked with an
// errgroup so Wait can report whichever of the two returns an error first,
// the way the teacher tracks its own concurrent worker goroutines.
func (l *Loop) Start(ctx context.Context) {
	l.eg = &errgroup.Group{}
	l.eg.Go(func() error {
		l.sendTask(ctx)
		return nil
	})
	l.eg.Go(func() error {
		l.receiveTask(ctx)
		if !l.exit.Load() && ctx.Err() == nil {
			return ethercat.ErrReceiveFailed
		}
		return nil
	})
}

// Stop sets the exit flag, wakes the send task so it observes it, and
// closes the socket so a blocked Receive call unblocks.
func (l *Loop) Stop() {
	l.exit.Store(true)
	l.wake()
	_ = l.socket.Close()
}

// Wait blocks until both tasks have returned after Stop.
func (l *Loop) Wait() error { return l.eg.Wait() }

func (l *Loop) wake() {
	select {
	case l.sendSignal <- struct{}{}:
	default:
	}
}

// sendTask walks the pool, claims each Sendable slot, writes the fully
// formed frame to the socket, and transitions to Sent; it returns only
// when the exit flag is observed.
func (l *Loop) sendTask(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.sendSignal:
			if l.exit.Load() {
				return
			}
			l.pool.EachSendable(func(s *frame.Slot) { l.sendSlot(s) })
		}
	}
}

// sendSlot writes one Sendable slot's frame to the socket, retrying
// transient failures per cfg.RetryBehaviour before abandoning the slot
// with the last error observed.
func (l *Loop) sendSlot(s *frame.Slot) {
	frameBytes := s.Buffer()[:s.FrameLen()]
	attempt := 0
	for {
		attempt++
		n, err := l.socket.Send(frameBytes)
		if err == nil && n == len(frameBytes) {
			if !s.MarkSent() {
				l.logger.Warnf("[PDU] slot %v left Sending state unexpectedly", s.Index())
			}
			return
		}

		var sendErr error
		if err != nil {
			sendErr = fmt.Errorf("%w: %v", ethercat.ErrSendFailed, err)
		} else {
			sendErr = ethercat.ErrPartialWrite
		}
		l.logger.Warnf("[PDU] frame send failed on slot %v (attempt %v): %v", s.Index(), attempt, sendErr)
		if l.cfg.RetryBehaviour.Allows(attempt) {
			continue
		}
		s.AbandonSend(sendErr)
		return
	}
}

// receiveTask blocks on the socket for whole inbound Ethernet frames,
// validates the EtherCAT header, walks the chained PDUs and delivers
// each to its slot by index. Unknown indices and malformed frames are
// dropped silently with a counter increment.
func (l *Loop) receiveTask(ctx context.Context) {
	buf := make([]byte, maxFrameSize)
	attempt := 0
	for {
		if l.exit.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := l.socket.Receive(buf)
		if err != nil {
			if l.exit.Load() {
				return
			}
			attempt++
			l.logger.Warnf("[PDU] socket receive failed (attempt %v): %v", attempt, err)
			if l.cfg.RetryBehaviour.Allows(attempt) {
				continue
			}
			l.logger.Errorf("[PDU] receive task exiting after exhausting retries: %v", err)
			return
		}
		attempt = 0
		l.pool.RecordFrame()
		l.handleFrame(buf[:n])
	}
}

func (l *Loop) handleFrame(data []byte) {
	if len(data) < ethercat.EthernetHeaderLen+2 {
		l.pool.RecordDrop()
		return
	}
	var eth wire.EthernetHeader
	_ = eth.UnpackFrom(data[:14])
	if eth.EtherType != ethercat.EtherTypeEcat {
		l.pool.RecordDrop()
		return
	}
	var fh wire.FrameHeader
	_ = fh.UnpackFrom(data[14:16])
	if fh.Protocol != wire.ProtocolDLPDU {
		l.pool.RecordDrop()
		return
	}

	pos := 16
	end := 16 + int(fh.Length)
	if end > len(data) {
		l.pool.RecordDrop()
		return
	}
	for pos < end {
		if pos+pduHeaderLen > end {
			l.pool.RecordDrop()
			return
		}
		command := data[pos]
		index := data[pos+1]
		var addr [4]byte
		copy(addr[:], data[pos+2:pos+6])

		var flags wire.PDUFlags
		_ = flags.UnpackFrom(data[pos+6 : pos+8])
		payloadLen := int(flags.Length)
		payloadStart := pos + 10
		payloadEnd := payloadStart + payloadLen
		wkcEnd := payloadEnd + 2
		if wkcEnd > end {
			l.pool.RecordDrop()
			return
		}
		wkc := wire.GetUint16(data[payloadEnd:wkcEnd])

		if int(index) >= l.pool.Len() {
			l.pool.RecordDrop()
		} else {
			slot := l.pool.Slot(int(index))
			if slot.ClaimForRx() {
				payload := append([]byte(nil), data[payloadStart:payloadEnd]...)
				if !slot.CompleteRx(command, addr, payload, wkc) {
					l.pool.RecordDrop()
				}
			} else {
				l.pool.RecordDrop()
			}
		}

		if !flags.NextPDU {
			break
		}
		pos = wkcEnd
	}
}

// SendAndAwait claims a slot, writes one PDU into a fresh Ethernet frame,
// hands it to the send task, and blocks until a response arrives or
// timeout expires. It implements the terminal operation shared by every
// command builder.
func (l *Loop) SendAndAwait(ctx context.Context, cmd Command, addr Address, payload []byte, lenOverride int, timeout time.Duration) (resp []byte, wkc uint16, err error) {
	slot, err := l.pool.Claim()
	if err != nil {
		return nil, 0, err
	}

	dataLen := len(payload)
	if lenOverride > dataLen {
		dataLen = lenOverride
	}

	buf := slot.Buffer()
	pduLen := pduHeaderLen + dataLen
	frameLen := ethercat.EthernetHeaderLen + 2 + pduLen
	if frameLen < ethercat.MinEthernetFrameLen {
		frameLen = ethercat.MinEthernetFrameLen
	}
	if frameLen > len(buf) {
		slot.Release()
		return nil, 0, ethercat.ErrPDITooLong
	}
	for i := range buf[:frameLen] {
		buf[i] = 0
	}

	ethHeader := wire.NewEthernetHeader(l.sourceMAC)
	ethHeader.PackTo(buf[0:14])

	fh := wire.FrameHeader{Length: uint16(pduLen), Protocol: wire.ProtocolDLPDU}
	fh.PackTo(buf[14:16])

	encodedAddr := addr.Encode()
	pos := 16
	buf[pos] = byte(cmd)
	buf[pos+1] = byte(slot.Index())
	copy(buf[pos+2:pos+6], encodedAddr[:])
	flags := wire.PDUFlags{Length: uint16(dataLen)}
	flags.PackTo(buf[pos+6 : pos+8])
	// IRQ field (pos+8:pos+10) stays zero.
	copy(buf[pos+10:pos+10+len(payload)], payload)
	// working-counter placeholder (last 2 bytes of the PDU) stays zero.

	slot.SetRequest(byte(cmd), encodedAddr)
	if !slot.Finalize(frameLen) {
		slot.Release()
		return nil, 0, ethercat.ErrIndexInUse
	}

	l.wake()

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-slot.Wake():
	case <-timeoutCh:
		slot.Release()
		return nil, 0, &ethercat.TimeoutError{Kind: "pdu"}
	case <-ctx.Done():
		slot.Release()
		return nil, 0, ctx.Err()
	}
	defer slot.Release()

	if !slot.BeginProcessing() {
		return nil, 0, ethercat.ErrMalformed
	}

	if sendErr := slot.Err(); sendErr != nil {
		return nil, 0, sendErr
	}

	respCmd, respAddr := slot.ResponseEcho()
	if respCmd != byte(cmd) {
		return nil, 0, ethercat.ErrCommandMismatch
	}
	if respAddr != encodedAddr {
		return nil, 0, ethercat.ErrAddressMismatch
	}

	data, gotWKC := slot.Response()
	return data, gotWKC, nil
}
