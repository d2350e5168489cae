// Package pdu implements the PDU loop: a wait-free send/receive engine
// multiplexing many concurrent logical operations over a bounded pool of
// Ethernet frames (see pkg/frame), plus the typed command layer built on
// top of it (APRD/FPRD/BRD/LRD/FRMW/BWR/APWR/FPWR/LWR/LRW). The builder
// pattern used for terminal operations (with_wkc/ignore_wkc/with_len then
// send/receive/send_receive) follows the teacher's chained SDO request
// helpers in pkg/sdo (ReadUint8/ReadUint16/... built over one shared
// send/await primitive).
package pdu

// Command is the 1-byte EtherCAT command code, per ETG.1000.4.
type Command byte

const (
	CmdNOP  Command = 0x00
	CmdAPRD Command = 0x01
	CmdAPWR Command = 0x02
	CmdFPRD Command = 0x04
	CmdFPWR Command = 0x05
	CmdBRD  Command = 0x07
	CmdBWR  Command = 0x08
	CmdLRD  Command = 0x0A
	CmdLWR  Command = 0x0B
	CmdLRW  Command = 0x0C
	CmdFRMW Command = 0x0E
)

func (c Command) String() string {
	switch c {
	case CmdNOP:
		return "NOP"
	case CmdAPRD:
		return "APRD"
	case CmdAPWR:
		return "APWR"
	case CmdFPRD:
		return "FPRD"
	case CmdFPWR:
		return "FPWR"
	case CmdBRD:
		return "BRD"
	case CmdBWR:
		return "BWR"
	case CmdLRD:
		return "LRD"
	case CmdLWR:
		return "LWR"
	case CmdLRW:
		return "LRW"
	case CmdFRMW:
		return "FRMW"
	default:
		return "UNKNOWN"
	}
}

// AddressMode selects how the 4 address bytes following the command code
// are interpreted.
type AddressMode uint8

const (
	// AddrAutoIncrement: 2-byte position (decremented by each SubDevice,
	// device at -1 is the target) + 2-byte register. Used only before
	// station addresses are assigned.
	AddrAutoIncrement AddressMode = iota
	// AddrConfigured: 2-byte configured station address + 2-byte
	// register. The default post-configuration addressing mode.
	AddrConfigured
	// AddrBroadcast: 2-byte position (always zero on send) + 2-byte
	// register; every device acts and increments the working counter.
	AddrBroadcast
	// AddrLogical: 4-byte logical address, used for cyclic PDI exchange.
	AddrLogical
)

// Address is the addressing half of a PDU, rendered to 4 wire bytes by Encode.
type Address struct {
	Mode     AddressMode
	Position uint16 // auto-increment / broadcast
	Station  uint16 // configured
	Register uint16 // auto-increment / configured / broadcast
	Logical  uint32 // logical
}

// Encode packs the address into its 4-byte wire form.
func (a Address) Encode() [4]byte {
	var buf [4]byte
	switch a.Mode {
	case AddrAutoIncrement, AddrBroadcast:
		pos := a.Position
		if a.Mode == AddrBroadcast {
			pos = 0
		}
		buf[0] = byte(pos)
		buf[1] = byte(pos >> 8)
		buf[2] = byte(a.Register)
		buf[3] = byte(a.Register >> 8)
	case AddrConfigured:
		buf[0] = byte(a.Station)
		buf[1] = byte(a.Station >> 8)
		buf[2] = byte(a.Register)
		buf[3] = byte(a.Register >> 8)
	case AddrLogical:
		buf[0] = byte(a.Logical)
		buf[1] = byte(a.Logical >> 8)
		buf[2] = byte(a.Logical >> 16)
		buf[3] = byte(a.Logical >> 24)
	}
	return buf
}

// AutoIncrement builds an auto-increment address targeting the device at
// the given ring position (0-based from the master).
func AutoIncrement(position uint16, register uint16) Address {
	return Address{Mode: AddrAutoIncrement, Position: position, Register: register}
}

// Configured builds a configured-station-address address.
func Configured(station uint16, register uint16) Address {
	return Address{Mode: AddrConfigured, Station: station, Register: register}
}

// Broadcast builds a broadcast address.
func Broadcast(register uint16) Address {
	return Address{Mode: AddrBroadcast, Register: register}
}

// Logical builds a logical-address address used by LRD/LWR/LRW.
func Logical(addr uint32) Address {
	return Address{Mode: AddrLogical, Logical: addr}
}
