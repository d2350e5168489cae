package group

import (
	"context"
	"testing"
	"time"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/internal/txtest"
	"github.com/go-ethercat/master/pkg/eeprom"
	"github.com/go-ethercat/master/pkg/pdu"
	"github.com/go-ethercat/master/pkg/subdevice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBuilder wires a Builder against an emulator with len(stations)
// devices, already "discovered" by hand: each returned SubDevice carries a
// process-output SyncManager (SM0) and a process-input SyncManager (SM1)
// at distinct physical addresses on its emulated device, mimicking what
// Configurator.Configure would have populated from an EEPROM walk.
func newTestBuilder(t *testing.T, outLen, inLen uint16, stations ...uint16) (*Builder, []*subdevice.SubDevice, *txtest.Emulator) {
	t.Helper()
	pair, err := txtest.NewPair()
	require.NoError(t, err)
	emu := txtest.NewEmulator(len(stations))
	for i, st := range stations {
		emu.Devices()[i].Station = st
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = emu.Run(ctx, pair.Far) }()

	cfg := ethercat.DefaultConfig()
	cfg.StateTransitionTimeout = 500 * time.Millisecond
	cfg.WaitLoopDelay = time.Millisecond
	loop := pdu.NewLoop(pair.Near, cfg, ethercat.DefaultMasterMAC, nil)
	loop.Start(ctx)
	t.Cleanup(func() {
		loop.Stop()
		loop.Wait()
		cancel()
	})

	cfgr := subdevice.NewConfigurator(loop, cfg, nil)
	devices := make([]*subdevice.SubDevice, len(stations))
	for i, st := range stations {
		devices[i] = &subdevice.SubDevice{
			Station: st,
			State:   subdevice.ALStateInit,
			SyncManagers: []eeprom.SyncManagerDescriptor{
				{PhysicalStartAddress: 0x3000, Length: outLen, Enable: true},
				{PhysicalStartAddress: 0x3100, Length: inLen, Enable: true},
			},
		}
	}

	b := NewBuilder(loop, cfgr, cfg, nil, 0x10000)
	return b, devices, emu
}

func TestBuildLaysOutOutputsThenInputsInRingOrder(t *testing.T) {
	b, devices, _ := newTestBuilder(t, 2, 3, 0x1000, 0x1001)

	init, err := b.Build(context.Background(), devices)
	require.NoError(t, err)

	assert.Equal(t, uint32(0x10000), devices[0].Outputs.Offset)
	assert.Equal(t, uint32(2), devices[0].Outputs.Length)
	assert.Equal(t, uint32(0x10002), devices[1].Outputs.Offset)
	assert.Equal(t, uint32(2), devices[1].Outputs.Length)

	assert.Equal(t, uint32(0x10004), devices[0].Inputs.Offset)
	assert.Equal(t, uint32(3), devices[0].Inputs.Length)
	assert.Equal(t, uint32(0x10007), devices[1].Inputs.Offset)
	assert.Equal(t, uint32(3), devices[1].Inputs.Length)

	assert.Equal(t, uint16(3*2), init.ExpectedWKC()) // 2 devices, combined I/O each
}

func TestLifecycleInitToOpAndBackToInit(t *testing.T) {
	b, devices, _ := newTestBuilder(t, 2, 2, 0x1000)
	init, err := b.Build(context.Background(), devices)
	require.NoError(t, err)

	preOp, err := init.IntoPreOp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subdevice.ALStatePreOp, devices[0].State)

	safeOp, err := preOp.IntoSafeOp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subdevice.ALStateSafeOp, devices[0].State)

	op, err := safeOp.IntoOp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subdevice.ALStateOp, devices[0].State)

	backToInit, err := op.IntoInit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subdevice.ALStateInit, devices[0].State)
	_ = backToInit
}

func TestPreOpIntoInitTearsDownWithoutReachingSafeOp(t *testing.T) {
	b, devices, _ := newTestBuilder(t, 2, 2, 0x1000)
	init, err := b.Build(context.Background(), devices)
	require.NoError(t, err)

	preOp, err := init.IntoPreOp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subdevice.ALStatePreOp, devices[0].State)

	_, err = preOp.IntoInit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subdevice.ALStateInit, devices[0].State)
}

func TestSafeOpFreeTearsDownWithoutReachingOp(t *testing.T) {
	b, devices, _ := newTestBuilder(t, 2, 2, 0x1000)
	init, err := b.Build(context.Background(), devices)
	require.NoError(t, err)

	preOp, err := init.IntoPreOp(context.Background())
	require.NoError(t, err)
	safeOp, err := preOp.IntoSafeOp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subdevice.ALStateSafeOp, devices[0].State)

	err = safeOp.Free(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subdevice.ALStateInit, devices[0].State)
}

func TestOpTxRxExchangesOutputsAndInputs(t *testing.T) {
	b, devices, emu := newTestBuilder(t, 2, 2, 0x1000)
	init, err := b.Build(context.Background(), devices)
	require.NoError(t, err)
	preOp, err := init.IntoPreOp(context.Background())
	require.NoError(t, err)
	safeOp, err := preOp.IntoSafeOp(context.Background())
	require.NoError(t, err)
	op, err := safeOp.IntoOp(context.Background())
	require.NoError(t, err)

	dev := emu.Devices()[0]
	dev.WriteRegister(0x3100, []byte{0xAA, 0xBB}) // sensor input data

	outBuf, release, err := op.BorrowOutputs(devices[0])
	require.NoError(t, err)
	copy(outBuf, []byte{0x11, 0x22})
	release()

	wkc, err := op.TxRx(context.Background())
	require.NoError(t, err)
	assert.Equal(t, op.ExpectedWKC(), wkc)

	assert.Equal(t, []byte{0x11, 0x22}, dev.ReadRegister(0x3000, 2))

	inBuf, release, err := op.BorrowInputs(devices[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, inBuf)
	release()
}

func TestBorrowConflictOnOverlappingSegments(t *testing.T) {
	b, devices, _ := newTestBuilder(t, 2, 2, 0x1000)
	init, err := b.Build(context.Background(), devices)
	require.NoError(t, err)
	preOp, err := init.IntoPreOp(context.Background())
	require.NoError(t, err)
	safeOp, err := preOp.IntoSafeOp(context.Background())
	require.NoError(t, err)
	op, err := safeOp.IntoOp(context.Background())
	require.NoError(t, err)

	_, release, err := op.BorrowOutputs(devices[0])
	require.NoError(t, err)
	defer release()

	_, _, err = op.BorrowOutputs(devices[0])
	assert.ErrorIs(t, err, ethercat.ErrBorrowConflict)
}
