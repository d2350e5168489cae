package txtest

import "github.com/go-ethercat/master/pkg/wire"

const (
	regFMMU0Base  = 0x0600
	regFMMUStride = 0x10
	fmmuCount     = 8
)

// Device is one emulated SubDevice's register memory: a sparse, byte
// addressable space written and read the same way a real ESC's process
// data interface is, including the FMMU entries the configurator programs,
// which this emulator decodes to route LRD/LWR/LRW traffic the way real
// FMMU hardware would.
type Device struct {
	Station uint16
	regs    map[uint16]byte

	// EEPROM is the raw SII image tests seed before bus discovery; the
	// emulator serves SII reads directly from it instead of modelling
	// the real busy-poll delay.
	EEPROM []byte
	// SIIRead8 selects whether simulated SII reads return 8-byte chunks
	// instead of the default 4.
	SIIRead8 bool
}

// NewDevice returns a Device with configured station address 0 (unassigned).
func NewDevice() *Device { return &Device{regs: make(map[uint16]byte)} }

const (
	regSIIControl = 0x0502
	regSIIData    = 0x0508
	siiCmdRead    = 1 << 8
)

// simulateSIIRead serves an SII word read synchronously: it copies the
// requested chunk out of EEPROM into the data register and reports
// not-busy, no-error status, skipping the real busy-poll delay since this
// emulator has no asynchronous EEPROM controller to wait on.
func (d *Device) simulateSIIRead(wordAddr uint16) {
	chunkLen := 4
	if d.SIIRead8 {
		chunkLen = 8
	}
	data := make([]byte, chunkLen)
	off := int(wordAddr) * 2
	if off < len(d.EEPROM) {
		copy(data, d.EEPROM[off:])
	}
	d.write(regSIIData, data)

	var status uint16
	if d.SIIRead8 {
		status |= 1 << 6
	}
	d.write(regSIIControl, []byte{byte(status), byte(status >> 8)})
}

// ReadRegister and WriteRegister expose a Device's register memory to
// tests that need to play the device side of a protocol directly, such as
// a CoE mailbox responder, without going through the PDU wire format.
func (d *Device) ReadRegister(addr uint16, n int) []byte { return d.read(addr, n) }
func (d *Device) WriteRegister(addr uint16, data []byte) { d.write(addr, data) }

func (d *Device) read(addr uint16, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = d.regs[addr+uint16(i)]
	}
	return out
}

func (d *Device) write(addr uint16, data []byte) {
	for i, b := range data {
		d.regs[addr+uint16(i)] = b
	}
}

type fmmuView struct {
	logicalStart  uint32
	logicalLength uint16
	physicalStart uint16
	read, write   bool
	active        bool
}

func (d *Device) fmmus() []fmmuView {
	views := make([]fmmuView, 0, fmmuCount)
	for i := 0; i < fmmuCount; i++ {
		base := uint16(regFMMU0Base + i*regFMMUStride)
		entry := d.read(base, regFMMUStride)
		access := entry[11]
		views = append(views, fmmuView{
			logicalStart:  wire.GetUint32(entry[0:4]),
			logicalLength: wire.GetUint16(entry[4:6]),
			physicalStart: wire.GetUint16(entry[8:10]),
			read:          access&0x01 != 0,
			write:         access&0x02 != 0,
			active:        entry[12]&0x01 != 0,
		})
	}
	return views
}

// applyLogicalWrite copies the write-direction bytes of in, wherever an
// active write-enabled FMMU on d maps into [logicalStart, logicalStart+len),
// into d's physical registers, and reports whether any FMMU matched (which
// increments the working counter by one, matching real ESC behaviour).
func (d *Device) applyLogicalWrite(logicalStart uint32, in []byte) bool {
	matched := false
	for _, f := range d.fmmus() {
		if !f.active || !f.write || f.logicalLength == 0 {
			continue
		}
		if !overlaps(f.logicalStart, uint32(f.logicalLength), logicalStart, uint32(len(in))) {
			continue
		}
		d.copyAcrossWindows(in, logicalStart, f, false)
		matched = true
	}
	return matched
}

// applyLogicalRead ORs d's read-enabled FMMU-mapped physical bytes into out
// wherever they overlap [logicalStart, logicalStart+len(out)), and reports
// whether any FMMU matched.
func (d *Device) applyLogicalRead(logicalStart uint32, out []byte) bool {
	matched := false
	for _, f := range d.fmmus() {
		if !f.active || !f.read || f.logicalLength == 0 {
			continue
		}
		if !overlaps(f.logicalStart, uint32(f.logicalLength), logicalStart, uint32(len(out))) {
			continue
		}
		d.copyAcrossWindows(out, logicalStart, f, true)
		matched = true
	}
	return matched
}

// copyAcrossWindows moves bytes between buf (which represents the frame's
// logical window starting at logicalStart) and d's physical registers
// starting at f.physicalStart, for whatever sub-range the two windows
// share. fromPhysical selects the direction.
func (d *Device) copyAcrossWindows(buf []byte, logicalStart uint32, f fmmuView, fromPhysical bool) {
	loStart := maxU32(logicalStart, f.logicalStart)
	loEnd := minU32(logicalStart+uint32(len(buf)), f.logicalStart+uint32(f.logicalLength))
	if loEnd <= loStart {
		return
	}
	bufOff := loStart - logicalStart
	physOff := uint16(loStart - f.logicalStart)
	n := int(loEnd - loStart)
	if fromPhysical {
		copy(buf[bufOff:bufOff+uint32(n)], d.read(f.physicalStart+physOff, n))
	} else {
		d.write(f.physicalStart+physOff, buf[bufOff:bufOff+uint32(n)])
	}
}

func overlaps(startA, lenA, startB, lenB uint32) bool {
	return startA < startB+lenB && startB < startA+lenA
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
