package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEthernetHeaderRoundTrip(t *testing.T) {
	h := NewEthernetHeader([6]byte{0x10, 0x10, 0x10, 0x10, 0x10, 0x10})
	buf := make([]byte, h.PackedLen())
	h.PackTo(buf)

	var got EthernetHeader
	assert.NoError(t, got.UnpackFrom(buf))
	assert.Equal(t, h, got)
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	h := FrameHeader{Length: 0x3FF, Protocol: ProtocolDLPDU}
	buf := make([]byte, h.PackedLen())
	h.PackTo(buf)

	var got FrameHeader
	assert.NoError(t, got.UnpackFrom(buf))
	assert.Equal(t, h, got)
}

func TestFrameHeaderLengthMasking(t *testing.T) {
	// Length is only 11 bits wide; values above frameLengthMask must be
	// truncated on pack rather than corrupting the protocol nibble.
	h := FrameHeader{Length: 0xFFFF, Protocol: ProtocolDLPDU}
	buf := make([]byte, h.PackedLen())
	h.PackTo(buf)

	var got FrameHeader
	assert.NoError(t, got.UnpackFrom(buf))
	assert.Equal(t, uint16(0xFFFF)&frameLengthMask, got.Length)
	assert.Equal(t, ProtocolDLPDU, got.Protocol)
}

func TestPDUFlagsRoundTrip(t *testing.T) {
	for _, f := range []PDUFlags{
		{Length: 4},
		{Length: 4, Circulating: true},
		{Length: 4, NextPDU: true},
		{Length: 4, Circulating: true, NextPDU: true},
	} {
		buf := make([]byte, f.PackedLen())
		f.PackTo(buf)
		var got PDUFlags
		assert.NoError(t, got.UnpackFrom(buf))
		assert.Equal(t, f, got)
	}
}

func TestUint16Uint32Uint64RoundTrip(t *testing.T) {
	buf16 := make([]byte, 2)
	PutUint16(buf16, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), GetUint16(buf16))

	buf32 := make([]byte, 4)
	PutUint32(buf32, 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), GetUint32(buf32))

	buf64 := make([]byte, 8)
	PutUint64(buf64, 0x0123456789ABCDEF)
	assert.Equal(t, uint64(0x0123456789ABCDEF), GetUint64(buf64))
}

func TestCheckedHelpersRejectShortBuffers(t *testing.T) {
	_, err := GetUint16Checked([]byte{0x01}, "test")
	assert.Error(t, err)

	_, err = GetUint32Checked([]byte{0x01, 0x02}, "test")
	assert.Error(t, err)

	err = PutUint16Checked([]byte{0x01}, 5, "test")
	assert.Error(t, err)

	err = PutUint32Checked([]byte{0x01}, 5, "test")
	assert.Error(t, err)
}

func TestPackUnpackValidateLength(t *testing.T) {
	h := FrameHeader{Length: 10, Protocol: ProtocolDLPDU}
	short := make([]byte, 1)
	assert.Error(t, Pack(&h, short))
	assert.Error(t, Unpack(&h, short))

	buf := make([]byte, h.PackedLen())
	assert.NoError(t, Pack(&h, buf))
	var got FrameHeader
	assert.NoError(t, Unpack(&got, buf))
	assert.Equal(t, h, got)
}
