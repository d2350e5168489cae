package txtest

import (
	"context"
	"encoding/binary"
	"sync"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/pkg/wire"
)

const pduHeaderLen = 12

// regConfiguredStationAddress is the register the configurator writes a
// device's station address to. The emulator mirrors that write into
// Device.Station so subsequent FPRD/FPWR/FRMW traffic can address it.
const regConfiguredStationAddress = 0x0010

// regALControl and regALStatus mirror package subdevice's AL state machine
// registers. The emulator has no real state machine to validate a
// transition against, so it plays a device that always accepts whatever
// state is requested: writing AL control mirrors the requested state (low
// byte only, so the error flag never gets set) straight into AL status.
const (
	regALControl = 0x0120
	regALStatus  = 0x0130
)

// Emulator plays a ring of Devices against one end of a Pair: it reads
// whole Ethernet frames, walks their chained PDUs the way a real ring of
// ESCs would as the frame passes through each of them in turn, and writes
// the mutated frame back. It is driven entirely by a test, never by
// package ethercat itself.
type Emulator struct {
	mu      sync.Mutex
	devices []*Device
}

// NewEmulator returns an Emulator with n unassigned devices in ring order.
func NewEmulator(n int) *Emulator {
	e := &Emulator{devices: make([]*Device, n)}
	for i := range e.devices {
		e.devices[i] = NewDevice()
	}
	return e
}

// Devices returns the emulator's devices in ring order, for tests to
// inspect or pre-seed registers before the bus is driven.
func (e *Emulator) Devices() []*Device { return e.devices }

// Run reads frames from sock until ctx is cancelled or a read fails,
// processing and echoing each one back.
func (e *Emulator) Run(ctx context.Context, sock *FileSocket) error {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := sock.Receive(buf)
		if err != nil {
			return err
		}
		frame := e.process(buf[:n])
		if _, err := sock.Send(frame); err != nil {
			return err
		}
	}
}

func (e *Emulator) process(data []byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := append([]byte(nil), data...)
	if len(out) < 16+2 {
		return out
	}
	var fh wire.FrameHeader
	_ = fh.UnpackFrom(out[14:16])

	pos := 16
	end := 16 + int(fh.Length)
	if end > len(out) {
		end = len(out)
	}
	for pos+pduHeaderLen <= end {
		cmd := out[pos]
		addr := out[pos+2 : pos+6]
		var flags wire.PDUFlags
		_ = flags.UnpackFrom(out[pos+6 : pos+8])
		payloadStart := pos + 10
		payloadEnd := payloadStart + int(flags.Length)
		wkcStart := payloadEnd
		if wkcStart+2 > end {
			break
		}
		payload := out[payloadStart:payloadEnd]
		wkc := e.dispatch(cmd, addr, payload)
		binary.LittleEndian.PutUint16(out[wkcStart:wkcStart+2], wkc)

		if !flags.NextPDU {
			break
		}
		pos = wkcStart + 2
	}
	return out
}

func (e *Emulator) dispatch(cmd byte, addr []byte, payload []byte) uint16 {
	register := binary.LittleEndian.Uint16(addr[2:4])
	switch cmd {
	case 0x01: // APRD
		d := e.byPosition(binary.LittleEndian.Uint16(addr[0:2]))
		if d == nil {
			return 0
		}
		copy(payload, d.read(register, len(payload)))
		return 1
	case 0x02: // APWR
		d := e.byPosition(binary.LittleEndian.Uint16(addr[0:2]))
		if d == nil {
			return 0
		}
		d.write(register, payload)
		if register == regConfiguredStationAddress && len(payload) >= 2 {
			d.Station = binary.LittleEndian.Uint16(payload)
		}
		return 1
	case 0x04: // FPRD
		d := e.byStation(binary.LittleEndian.Uint16(addr[0:2]))
		if d == nil {
			return 0
		}
		copy(payload, d.read(register, len(payload)))
		return 1
	case 0x05: // FPWR
		d := e.byStation(binary.LittleEndian.Uint16(addr[0:2]))
		if d == nil {
			return 0
		}
		d.write(register, payload)
		if register == regALControl && len(payload) >= 1 {
			d.write(regALStatus, []byte{payload[0], 0})
		}
		if register == regSIIControl && len(payload) >= 6 {
			control := binary.LittleEndian.Uint16(payload[0:2])
			if control&siiCmdRead != 0 {
				d.simulateSIIRead(uint16(binary.LittleEndian.Uint32(payload[2:6])))
			}
		}
		return 1
	case 0x07: // BRD
		var wkc uint16
		merged := make([]byte, len(payload))
		for _, d := range e.devices {
			v := d.read(register, len(payload))
			for i, b := range v {
				merged[i] |= b
			}
			wkc++
		}
		copy(payload, merged)
		return wkc
	case 0x08: // BWR
		for _, d := range e.devices {
			d.write(register, payload)
		}
		return uint16(len(e.devices))
	case 0x0A: // LRD
		logical := binary.LittleEndian.Uint32(addr[0:4])
		var wkc uint16
		merged := make([]byte, len(payload))
		for _, d := range e.devices {
			if d.applyLogicalRead(logical, merged) {
				wkc++
			}
		}
		copy(payload, merged)
		return wkc
	case 0x0B: // LWR
		logical := binary.LittleEndian.Uint32(addr[0:4])
		var wkc uint16
		for _, d := range e.devices {
			if d.applyLogicalWrite(logical, payload) {
				wkc++
			}
		}
		return wkc
	case 0x0C: // LRW
		logical := binary.LittleEndian.Uint32(addr[0:4])
		var wkc uint16
		writeView := append([]byte(nil), payload...)
		for _, d := range e.devices {
			if d.applyLogicalWrite(logical, writeView) {
				wkc += 2
			}
		}
		merged := append([]byte(nil), payload...)
		for _, d := range e.devices {
			if d.applyLogicalRead(logical, merged) {
				wkc++
			}
		}
		copy(payload, merged)
		return wkc
	case 0x0E: // FRMW
		target := e.byStation(binary.LittleEndian.Uint16(addr[0:2]))
		if target == nil {
			return 0
		}
		copy(payload, target.read(register, len(payload)))
		var wkc uint16
		for _, d := range e.devices {
			if d != target {
				d.write(register, payload)
			}
			wkc++
		}
		return wkc
	default:
		return 0
	}
}

func (e *Emulator) byPosition(position uint16) *Device {
	if int(position) >= len(e.devices) {
		return nil
	}
	return e.devices[position]
}

func (e *Emulator) byStation(station uint16) *Device {
	for _, d := range e.devices {
		if d.Station == station {
			return d
		}
	}
	return nil
}

var _ ethercat.Socket = (*FileSocket)(nil)
