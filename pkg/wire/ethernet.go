package wire

import ethercat "github.com/go-ethercat/master"

// EthernetHeader is the 14-byte Ethernet II header carried by every
// EtherCAT frame: destination MAC, source MAC and EtherType.
type EthernetHeader struct {
	Destination [6]byte
	Source      [6]byte
	EtherType   uint16
}

func (EthernetHeader) WireName() string { return "EthernetHeader" }
func (EthernetHeader) PackedLen() int   { return 14 }

func (h EthernetHeader) PackTo(buf []byte) {
	copy(buf[0:6], h.Destination[:])
	copy(buf[6:12], h.Source[:])
	PutUint16(buf[12:14], h.EtherType)
}

func (h *EthernetHeader) UnpackFrom(buf []byte) error {
	copy(h.Destination[:], buf[0:6])
	copy(h.Source[:], buf[6:12])
	h.EtherType = GetUint16(buf[12:14])
	return nil
}

// NewEthernetHeader builds the header used on every outgoing EtherCAT
// frame: broadcast destination, the given source MAC, EtherType 0x88A4.
func NewEthernetHeader(source [6]byte) EthernetHeader {
	return EthernetHeader{
		Destination: ethercat.BroadcastMAC,
		Source:      source,
		EtherType:   ethercat.EtherTypeEcat,
	}
}

// ProtocolType is the 4-bit protocol discriminant carried in the
// EtherCAT frame header. DL-PDU (0x1) is the only type this master
// produces or consumes; other values observed on the wire are rejected.
type ProtocolType uint8

const (
	ProtocolDLPDU ProtocolType = 1
)

// FrameHeader is the 2-byte little-endian EtherCAT frame header: an
// 11-bit length of the following PDU bytes and a 4-bit protocol type,
// packed as length | (type << 12). One reserved bit (bit 11) is always
// zero on send and ignored on receive.
type FrameHeader struct {
	Length   uint16
	Protocol ProtocolType
}

const frameLengthMask = 0x07FF

func (FrameHeader) WireName() string { return "FrameHeader" }
func (FrameHeader) PackedLen() int   { return 2 }

func (h FrameHeader) PackTo(buf []byte) {
	raw := (h.Length & frameLengthMask) | (uint16(h.Protocol) << 12)
	PutUint16(buf, raw)
}

func (h *FrameHeader) UnpackFrom(buf []byte) error {
	raw := GetUint16(buf)
	h.Length = raw & frameLengthMask
	h.Protocol = ProtocolType((raw >> 12) & 0x0F)
	return nil
}

// PDUFlags is the 2-byte flags word trailing a PDU's addressing fields:
// an 11-bit data length, 3 reserved bits, a circulating bit (bit 14) and
// a "more PDUs follow" bit (bit 15). This mirrors ethercrab's PduFlags
// (src/pdu_loop/pdu_flags.rs): length | circulating<<14 | next<<15.
type PDUFlags struct {
	Length      uint16
	Circulating bool
	NextPDU     bool
}

func (PDUFlags) WireName() string { return "PDUFlags" }
func (PDUFlags) PackedLen() int   { return 2 }

func (f PDUFlags) PackTo(buf []byte) {
	raw := (f.Length & frameLengthMask)
	if f.Circulating {
		raw |= 1 << 14
	}
	if f.NextPDU {
		raw |= 1 << 15
	}
	PutUint16(buf, raw)
}

func (f *PDUFlags) UnpackFrom(buf []byte) error {
	raw := GetUint16(buf)
	f.Length = raw & frameLengthMask
	f.Circulating = (raw>>14)&0x01 == 1
	f.NextPDU = (raw>>15)&0x01 == 1
	return nil
}
