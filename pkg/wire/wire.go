// Package wire implements the deterministic, little-endian, bit-packed
// serialization used throughout the EtherCAT wire format: Ethernet and
// EtherCAT frame headers, PDU flag words, and the mailbox/CoE structures
// built on top of them. The approach — explicit PutX/GetX helpers plus a
// checked and an unchecked variant of every composite pack/unpack — mirrors
// the teacher's od.EncodeFromTypeExactToBuffer family in pkg/od/encoding.go,
// generalized from CANopen datatypes to fixed-width wire structs.
package wire

import (
	"encoding/binary"

	ethercat "github.com/go-ethercat/master"
)

// PutUint16 packs v little-endian into buf[0:2], panicking if buf is too
// short. Used by the unchecked fast path inside already-bounds-checked
// frame writers.
func PutUint16(buf []byte, v uint16) { binary.LittleEndian.PutUint16(buf, v) }

// PutUint32 packs v little-endian into buf[0:4].
func PutUint32(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }

// GetUint16 unpacks a little-endian uint16 from buf[0:2].
func GetUint16(buf []byte) uint16 { return binary.LittleEndian.Uint16(buf) }

// GetUint32 unpacks a little-endian uint32 from buf[0:4].
func GetUint32(buf []byte) uint32 { return binary.LittleEndian.Uint32(buf) }

// PutUint64 packs v little-endian into buf[0:8]. Used for the 64-bit
// distributed-clock system time and start-time registers.
func PutUint64(buf []byte, v uint64) { binary.LittleEndian.PutUint64(buf, v) }

// GetUint64 unpacks a little-endian uint64 from buf[0:8].
func GetUint64(buf []byte) uint64 { return binary.LittleEndian.Uint64(buf) }

// PutUint16Checked is the checked counterpart of PutUint16: it returns a
// *ethercat.WireError instead of panicking when buf is undersized.
func PutUint16Checked(buf []byte, v uint16, typeName string) error {
	if len(buf) < 2 {
		return &ethercat.WireError{Kind: "write-buffer-too-short", Type: typeName, Want: 2, Got: len(buf)}
	}
	PutUint16(buf, v)
	return nil
}

// PutUint32Checked is the checked counterpart of PutUint32.
func PutUint32Checked(buf []byte, v uint32, typeName string) error {
	if len(buf) < 4 {
		return &ethercat.WireError{Kind: "write-buffer-too-short", Type: typeName, Want: 4, Got: len(buf)}
	}
	PutUint32(buf, v)
	return nil
}

// GetUint16Checked is the checked counterpart of GetUint16.
func GetUint16Checked(buf []byte, typeName string) (uint16, error) {
	if len(buf) < 2 {
		return 0, &ethercat.WireError{Kind: "read-buffer-too-short", Type: typeName, Want: 2, Got: len(buf)}
	}
	return GetUint16(buf), nil
}

// GetUint32Checked is the checked counterpart of GetUint32.
func GetUint32Checked(buf []byte, typeName string) (uint32, error) {
	if len(buf) < 4 {
		return 0, &ethercat.WireError{Kind: "read-buffer-too-short", Type: typeName, Want: 4, Got: len(buf)}
	}
	return GetUint32(buf), nil
}

// Codec is implemented by every composite wire type: a fixed-width struct
// that knows how to serialize itself into, and parse itself out of, a
// byte slice of exactly PackedLen() bytes.
type Codec interface {
	// PackedLen returns the wire width in bytes of this type.
	PackedLen() int
	// PackTo writes the wire representation into buf, which must be at
	// least PackedLen() bytes; it panics otherwise (the "unchecked"
	// variant named in the design, for hot paths that pre-size buffers).
	PackTo(buf []byte)
	// UnpackFrom parses the wire representation from buf. The
	// implementations in this package do not check len(buf) and panic if
	// it is shorter than PackedLen(); Unpack checks the length first and
	// returns a *ethercat.WireError instead.
	UnpackFrom(buf []byte) error
}

// Pack is the checked pack entry point: it validates buf length before
// delegating to PackTo, returning a WriteBufferTooShort WireError instead
// of panicking.
func Pack(c Codec, buf []byte) error {
	if len(buf) < c.PackedLen() {
		return &ethercat.WireError{
			Kind: "write-buffer-too-short",
			Type: typeName(c),
			Want: c.PackedLen(),
			Got:  len(buf),
		}
	}
	c.PackTo(buf)
	return nil
}

// Unpack is the checked unpack entry point: it validates buf length
// before delegating to UnpackFrom.
func Unpack(c Codec, buf []byte) error {
	if len(buf) < c.PackedLen() {
		return &ethercat.WireError{
			Kind: "read-buffer-too-short",
			Type: typeName(c),
			Want: c.PackedLen(),
			Got:  len(buf),
		}
	}
	return c.UnpackFrom(buf)
}

func typeName(c Codec) string {
	type named interface{ WireName() string }
	if n, ok := c.(named); ok {
		return n.WireName()
	}
	return "wire.Codec"
}
