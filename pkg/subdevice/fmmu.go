package subdevice

import "github.com/go-ethercat/master/pkg/wire"

// fmmuEntry is the 16-byte on-device FMMU descriptor written to
// regFMMU0Base + n*regFMMUStride.
type fmmuEntry struct {
	LogicalStart     uint32
	LogicalLength    uint16
	LogicalStartBit  uint8
	LogicalStopBit   uint8
	PhysicalStart    uint16
	PhysicalStartBit uint8
	ReadEnable       bool
	WriteEnable      bool
	Activate         bool
}

func (e fmmuEntry) pack() []byte {
	buf := make([]byte, fmmuEntryLen)
	wire.PutUint32(buf[0:4], e.LogicalStart)
	wire.PutUint16(buf[4:6], e.LogicalLength)
	buf[6] = e.LogicalStartBit
	buf[7] = e.LogicalStopBit
	wire.PutUint16(buf[8:10], e.PhysicalStart)
	buf[10] = e.PhysicalStartBit
	var access byte
	if e.ReadEnable {
		access |= 0x01
	}
	if e.WriteEnable {
		access |= 0x02
	}
	buf[11] = access
	if e.Activate {
		buf[12] = 0x01
	}
	return buf
}

// smEntry is the 8-byte on-device SyncManager descriptor written to
// regSM0Base + n*regSMStride.
type smEntry struct {
	PhysicalStart uint16
	Length        uint16
	Control       byte
	Activate      bool
}

func (e smEntry) pack() []byte {
	buf := make([]byte, smEntryLen)
	wire.PutUint16(buf[0:2], e.PhysicalStart)
	wire.PutUint16(buf[2:4], e.Length)
	buf[4] = e.Control
	if e.Activate {
		buf[6] = 0x01
	}
	return buf
}

// SyncManager control byte values for the two mailbox directions and the
// two common process-data directions, ETG.1000.4 table 36.
const (
	smControlMailboxWrite = 0x26 // buffered, write by master, PDI read
	smControlMailboxRead  = 0x22 // buffered, read by master, PDI write
	smControlOutputs      = 0x64 // 3-buffer, write by master
	smControlInputs       = 0x20 // 3-buffer, read by master
)
