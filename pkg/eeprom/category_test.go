package eeprom

import (
	"context"
	"testing"
	"time"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/internal/crc"
	"github.com/go-ethercat/master/internal/txtest"
	"github.com/go-ethercat/master/pkg/pdu"
	"github.com/go-ethercat/master/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildImage assembles a minimal but complete SII image: the fixed
// identity/mailbox fields, a checksum, one SyncManager category, one FMMU
// category, one Strings category, one General category and the end marker.
func buildImage() []byte {
	img := make([]byte, 256)
	put16 := func(word uint16, v uint16) { wire.PutUint16(img[int(word)*2:], v) }
	put32 := func(word uint16, v uint32) { wire.PutUint32(img[int(word)*2:], v) }

	put32(wordVendorID, 0x00000001)
	put32(wordProduct, 0x00000002)
	put32(wordRevision, 0x00000003)
	put32(wordSerial, 0x00000004)

	put16(wordMailbox, 0x1000)   // recv offset
	put16(wordMailbox+1, 64)     // recv size
	put16(wordMailbox+2, 0x1100) // send offset
	put16(wordMailbox+3, 64)     // send size
	put16(wordMbxProto, 0x0004)  // CoE

	sum := crc.Sum8(img[0:14])
	img[14] = byte(sum)

	word := firstCategoryWord
	smEntry := []byte{0x00, 0x10, 64, 0, 0x26, 0, 0x01, 0}
	word = writeCategory(img, word, CategorySyncManager, smEntry)

	fmmuEntry := []byte{byte(FMMUOutputs), byte(FMMUUnused)}
	word = writeCategory(img, word, CategoryFMMU, fmmuEntry)

	// Strings: "Acme Servo", "Acme Corp" (indices 1 and 2).
	strEntry := []byte{2, 10}
	strEntry = append(strEntry, []byte("Acme Servo")...)
	strEntry = append(strEntry, 9)
	strEntry = append(strEntry, []byte("Acme Corp")...)
	word = writeCategory(img, word, CategoryStrings, strEntry)

	// General: NameIdx=1 (Acme Servo), CoE enabled.
	genEntry := make([]byte, 12)
	genEntry[3] = 1    // NameIdx
	genEntry[5] = 0x01 // CoEDetails: SDO info
	word = writeCategory(img, word, CategoryGeneral, genEntry)

	put16(word, uint16(categoryEnd))
	return img
}

// writeCategory writes one category header (type, length-in-words) plus
// its payload at word, returning the word address immediately after it.
func writeCategory(img []byte, word uint16, catType CategoryType, payload []byte) uint16 {
	lengthWords := uint16((len(payload) + 1) / 2)
	wire.PutUint16(img[int(word)*2:], uint16(catType))
	wire.PutUint16(img[int(word+1)*2:], lengthWords)
	copy(img[int(word+2)*2:], payload)
	return word + 2 + lengthWords
}

func newCategoryReader(t *testing.T, img []byte) *Reader {
	t.Helper()
	pair, err := txtest.NewPair()
	require.NoError(t, err)
	emu := txtest.NewEmulator(1)
	dev := emu.Devices()[0]
	dev.Station = 0x1000
	dev.EEPROM = img

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = emu.Run(ctx, pair.Far) }()

	cfg := ethercat.DefaultConfig()
	cfg.EepromTimeout = 200 * time.Millisecond
	loop := pdu.NewLoop(pair.Near, cfg, ethercat.DefaultMasterMAC, nil)
	loop.Start(ctx)
	t.Cleanup(func() {
		loop.Stop()
		loop.Wait()
		cancel()
	})
	return NewReader(loop, 0x1000, cfg)
}

func TestVerifyChecksumAccepts(t *testing.T) {
	r := newCategoryReader(t, buildImage())
	assert.NoError(t, r.VerifyChecksum(context.Background()))
}

func TestVerifyChecksumRejectsCorruption(t *testing.T) {
	img := buildImage()
	img[0] ^= 0xFF
	r := newCategoryReader(t, img)
	assert.ErrorIs(t, r.VerifyChecksum(context.Background()), ethercat.ErrEepromDecode)
}

func TestWalkCategoriesDecodesIdentityMailboxAndSections(t *testing.T) {
	r := newCategoryReader(t, buildImage())
	m, err := r.WalkCategories(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Identity{VendorID: 1, Product: 2, Revision: 3, Serial: 4}, m.Identity)
	assert.True(t, m.Mailbox.HasCoE())
	assert.Equal(t, uint16(0x1000), m.Mailbox.StandardRecvOffset)
	require.Len(t, m.SyncManagers, 1)
	assert.Equal(t, uint16(64), m.SyncManagers[0].Length)
	require.Len(t, m.FMMUs, 2)
	assert.Equal(t, FMMUOutputs, m.FMMUs[0])
	assert.Equal(t, FMMUUnused, m.FMMUs[1])
	assert.False(t, m.HasDCDefaults)

	require.Len(t, m.Strings, 2)
	assert.Equal(t, "Acme Servo", m.Strings[0])
	assert.Equal(t, "Acme Corp", m.Strings[1])

	require.True(t, m.HasGeneral)
	assert.Equal(t, uint8(1), m.General.NameIndex)
	assert.Equal(t, byte(0x01), m.General.CoEDetails)
	assert.Equal(t, "Acme Servo", m.String(m.General.NameIndex))
	assert.Equal(t, "", m.String(0))
}
