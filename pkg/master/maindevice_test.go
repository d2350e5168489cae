package master

import (
	"context"
	"testing"
	"time"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/internal/crc"
	"github.com/go-ethercat/master/internal/txtest"
	"github.com/go-ethercat/master/pkg/subdevice"
	"github.com/go-ethercat/master/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SII word addresses and category layout, ETG.2010 table 2 / ETG.1000.6,
// duplicated locally since package eeprom keeps them unexported.
const (
	wordVendorID      = 0x0008
	wordProduct       = 0x000A
	wordRevision      = 0x000C
	wordSerial        = 0x000E
	wordMailbox       = 0x0018
	wordMbxProto      = 0x001C
	firstCategoryWord = 0x0040
	categoryEnd       = 0xFFFF
	categorySM        = 41
	categoryDC        = 60
)

// buildSII assembles an SII image with identity, fixed mailbox fields, a
// process-data SyncManager pair and, optionally, a DC-defaults category.
// When hasCoE is set, the SyncManager category also carries the mailbox
// pair at index 0/1 ahead of the process-data pair at index 2/3, matching
// the layout a real CoE device's EEPROM would describe.
func buildSII(product uint32, hasCoE, hasDC bool) []byte {
	img := make([]byte, 256)
	put16 := func(word int, v uint16) { wire.PutUint16(img[word*2:], v) }
	put32 := func(word int, v uint32) { wire.PutUint32(img[word*2:], v) }

	put32(wordVendorID, 1)
	put32(wordProduct, product)
	put32(wordRevision, 1)
	put32(wordSerial, 1)

	put16(wordMailbox, 0x1000)
	put16(wordMailbox+1, 64)
	put16(wordMailbox+2, 0x1100)
	put16(wordMailbox+3, 64)
	if hasCoE {
		put16(wordMbxProto, 0x0004)
	}

	sum := crc.Sum8(img[0:14])
	img[14] = byte(sum)

	var smEntry []byte
	if hasCoE {
		smEntry = append(smEntry, []byte{0x00, 0x10, 64, 0, 0x26, 0, 0x01, 0}...) // SM0 mailbox out
		smEntry = append(smEntry, []byte{0x00, 0x11, 64, 0, 0x22, 0, 0x01, 0}...) // SM1 mailbox in
	}
	smEntry = append(smEntry, []byte{0x00, 0x20, 2, 0, 0x64, 0, 0x01, 0}...) // process out
	smEntry = append(smEntry, []byte{0x00, 0x21, 2, 0, 0x20, 0, 0x01, 0}...) // process in

	word := firstCategoryWord
	word = writeCategory(img, word, categorySM, smEntry)

	if hasDC {
		word = writeCategory(img, word, categoryDC, []byte{0x00, 0x00})
	}

	put16(word, categoryEnd)
	return img
}

func writeCategory(img []byte, word, catType int, payload []byte) int {
	lengthWords := (len(payload) + 1) / 2
	wire.PutUint16(img[word*2:], uint16(catType))
	wire.PutUint16(img[(word+1)*2:], uint16(lengthWords))
	copy(img[(word+2)*2:], payload)
	return word + 2 + lengthWords
}

func newTestMainDevice(t *testing.T, images ...[]byte) (*MainDevice, *txtest.Emulator) {
	t.Helper()
	pair, err := txtest.NewPair()
	require.NoError(t, err)
	emu := txtest.NewEmulator(len(images))
	for i, img := range images {
		emu.Devices()[i].EEPROM = img
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = emu.Run(ctx, pair.Far) }()

	cfg := ethercat.DefaultConfig()
	cfg.EepromTimeout = 200 * time.Millisecond
	cfg.StateTransitionTimeout = 500 * time.Millisecond
	cfg.WaitLoopDelay = time.Millisecond
	cfg.DCStaticSyncIterations = 2

	m := New(pair.Near, cfg, ethercat.DefaultMasterMAC, nil)
	m.Start(ctx)
	t.Cleanup(func() {
		m.Stop()
		cancel()
	})
	return m, emu
}

func TestMainDeviceEndToEndBringUp(t *testing.T) {
	m, emu := newTestMainDevice(t, buildSII(100, true, true), buildSII(200, false, false))

	devices, err := m.Configure(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.True(t, devices[0].HasDC)
	assert.False(t, devices[1].HasDC)

	ref, ok := FirstDCCapable(devices)
	require.True(t, ok)
	assert.Equal(t, devices[0].Station, ref)

	aligner := m.NewClockAligner(ref)
	_, err = aligner.StaticDriftCompensation(context.Background(), 2)
	require.NoError(t, err)

	builder := m.NewGroupBuilder(0x20000)
	init, err := builder.Build(context.Background(), devices)
	require.NoError(t, err)
	preOp, err := init.IntoPreOp(context.Background())
	require.NoError(t, err)
	safeOp, err := preOp.IntoSafeOp(context.Background())
	require.NoError(t, err)
	op, err := safeOp.IntoOp(context.Background())
	require.NoError(t, err)

	wkc, err := op.TxRx(context.Background())
	require.NoError(t, err)
	assert.Equal(t, op.ExpectedWKC(), wkc)

	_ = emu
	require.NoError(t, op.Free(context.Background()))
}

func TestFirstDCCapableNoneFound(t *testing.T) {
	devices := []*subdevice.SubDevice{{Station: 0x1000, HasDC: false}}
	_, ok := FirstDCCapable(devices)
	assert.False(t, ok)
}
