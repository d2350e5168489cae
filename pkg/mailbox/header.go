// Package mailbox implements the dual-SyncManager mailbox transport and the
// CoE (CANopen-over-EtherCAT) SDO upload/download protocol layered on top of
// it. The request/response state machine and abort-code catalogue follow
// the teacher's SDO client (pkg/sdo/client.go, pkg/sdo/common.go),
// generalized from CAN frames exchanged over a bus handle to mailbox frames
// exchanged over SM0/SM1 via FPWR/FPRD.
package mailbox

import (
	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/pkg/wire"
)

// Type identifies the mailbox protocol carried by one frame.
type Type uint8

const (
	TypeError Type = 0
	TypeAoE   Type = 1
	TypeEoE   Type = 2
	TypeCoE   Type = 3
	TypeFoE   Type = 4
	TypeSoE   Type = 5
	TypeVoE   Type = 0x0F
)

// Header is the fixed 6-byte mailbox frame header: length, address,
// priority, protocol type and the per-channel sequence counter.
type Header struct {
	Length   uint16
	Address  uint16
	Priority uint8
	Proto    Type
	Counter  uint8 // 1..7, wraps skipping 0
}

func (Header) WireName() string { return "mailbox.Header" }
func (Header) PackedLen() int   { return 6 }

func (h Header) PackTo(buf []byte) {
	wire.PutUint16(buf[0:2], h.Length)
	wire.PutUint16(buf[2:4], h.Address)
	word := uint16(h.Priority&0x03) | uint16(h.Proto&0x0F)<<2 | uint16(h.Counter&0x0F)<<6
	wire.PutUint16(buf[4:6], word)
}

func (h *Header) UnpackFrom(buf []byte) error {
	if len(buf) < 6 {
		return &ethercat.WireError{Kind: "read-buffer-too-short", Type: "mailbox.Header", Want: 6, Got: len(buf)}
	}
	h.Length = wire.GetUint16(buf[0:2])
	h.Address = wire.GetUint16(buf[2:4])
	word := wire.GetUint16(buf[4:6])
	h.Priority = uint8(word & 0x03)
	h.Proto = Type((word >> 2) & 0x0F)
	h.Counter = uint8((word >> 6) & 0x0F)
	return nil
}
