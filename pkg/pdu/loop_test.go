package pdu

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/internal/txtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySocket wraps a real Socket, forcing the first failSends Send calls
// to fail so tests can exercise the transport-error and retry paths
// without a faulty emulator.
type flakySocket struct {
	ethercat.Socket
	failSends int32
}

func (f *flakySocket) Send(frame []byte) (int, error) {
	if atomic.AddInt32(&f.failSends, -1) >= 0 {
		return 0, errors.New("injected send failure")
	}
	return f.Socket.Send(frame)
}

// alwaysFailSocket fails every Receive call, used to exercise the receive
// task's bounded-retry exit path.
type alwaysFailSocket struct {
	calls int32
}

func (a *alwaysFailSocket) Send([]byte) (int, error) { return 0, errors.New("unused") }

func (a *alwaysFailSocket) Receive([]byte) (int, error) {
	atomic.AddInt32(&a.calls, 1)
	return 0, errors.New("permanent receive failure")
}

func (a *alwaysFailSocket) Close() error { return nil }

func newTestLoop(t *testing.T, n int) (*Loop, *txtest.Emulator, context.CancelFunc) {
	t.Helper()
	pair, err := txtest.NewPair()
	require.NoError(t, err)

	emu := txtest.NewEmulator(n)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = emu.Run(ctx, pair.Far) }()

	cfg := ethercat.DefaultConfig()
	cfg.PDUTimeout = 200 * time.Millisecond
	loop := NewLoop(pair.Near, cfg, ethercat.DefaultMasterMAC, nil)
	loop.Start(ctx)

	t.Cleanup(func() {
		loop.Stop()
		loop.Wait()
		cancel()
	})
	return loop, emu, cancel
}

func TestBRDCountsDevices(t *testing.T) {
	loop, _, _ := newTestLoop(t, 3)
	_, wkc, err := BRD(loop, 0x0000, 1).Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(3), wkc)
}

func TestAPWRAssignsStationAddress(t *testing.T) {
	loop, emu, _ := newTestLoop(t, 2)
	buf := []byte{0x00, 0x10}
	wkc, err := APWR(loop, 1, 0x0010, buf).WithWKC(1).Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(1), wkc)

	data, _, err := FPRD(loop, 0x1000, 0x0010, 2).Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, buf, data)
	_ = emu
}

func TestWorkingCounterMismatchSurfaces(t *testing.T) {
	loop, _, _ := newTestLoop(t, 1)
	_, err := APWR(loop, 5, 0x0010, []byte{1, 2}).WithWKC(1).Send(context.Background())
	var wkcErr *ethercat.WorkingCounterError
	require.ErrorAs(t, err, &wkcErr)
	assert.Equal(t, uint16(1), wkcErr.Expected)
	assert.Equal(t, uint16(0), wkcErr.Received)
}

func TestPDUTimeoutWhenNoResponse(t *testing.T) {
	pair, err := txtest.NewPair()
	require.NoError(t, err)
	// No emulator reading pair.Far: every request must time out rather
	// than hang forever.
	cfg := ethercat.DefaultConfig()
	cfg.PDUTimeout = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := NewLoop(pair.Near, cfg, ethercat.DefaultMasterMAC, nil)
	loop.Start(ctx)
	defer func() {
		loop.Stop()
		loop.Wait()
	}()

	_, err = BRD(loop, 0, 1).Receive(context.Background())
	var timeoutErr *ethercat.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestFrameSlotIndexReusedAcrossPoolCapacity(t *testing.T) {
	cfg := ethercat.DefaultConfig()
	cfg.MaxFrames = 2
	pair, err := txtest.NewPair()
	require.NoError(t, err)
	emu := txtest.NewEmulator(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = emu.Run(ctx, pair.Far) }()

	loop := NewLoop(pair.Near, cfg, ethercat.DefaultMasterMAC, nil)
	loop.Start(ctx)
	defer func() {
		loop.Stop()
		loop.Wait()
	}()

	for i := 0; i < 10; i++ {
		_, _, err := BRD(loop, 0, 1).Receive(context.Background())
		require.NoError(t, err)
	}
	received, dropped := loop.Pool().Stats()
	assert.Equal(t, uint64(10), received)
	assert.Equal(t, uint64(0), dropped)
}

// TestSendFailureSurfacesTransportErrorWithNoRetry guards against the
// abandoned-slot hazard: without a retry policy, a send failure must
// surface as a transport error to the waiting caller, never as a
// successful zero-WKC response built from stale slot fields.
func TestSendFailureSurfacesTransportErrorWithNoRetry(t *testing.T) {
	pair, err := txtest.NewPair()
	require.NoError(t, err)
	emu := txtest.NewEmulator(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = emu.Run(ctx, pair.Far) }()

	cfg := ethercat.DefaultConfig()
	cfg.PDUTimeout = 200 * time.Millisecond
	cfg.RetryBehaviour = ethercat.RetryNone()
	sock := &flakySocket{Socket: pair.Near, failSends: 1}
	loop := NewLoop(sock, cfg, ethercat.DefaultMasterMAC, nil)
	loop.Start(ctx)
	defer func() {
		loop.Stop()
		loop.Wait()
	}()

	_, _, err = BRD(loop, 0, 1).Receive(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ethercat.ErrSendFailed)
}

// TestSendRetriesTransientFailureBeforeSucceeding exercises cfg.RetryBehaviour
// actually being consulted by the send path: a transient failure within
// the retry budget must not reach the caller at all.
func TestSendRetriesTransientFailureBeforeSucceeding(t *testing.T) {
	pair, err := txtest.NewPair()
	require.NoError(t, err)
	emu := txtest.NewEmulator(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = emu.Run(ctx, pair.Far) }()

	cfg := ethercat.DefaultConfig()
	cfg.PDUTimeout = 200 * time.Millisecond
	cfg.RetryBehaviour = ethercat.RetryCount(3)
	sock := &flakySocket{Socket: pair.Near, failSends: 1}
	loop := NewLoop(sock, cfg, ethercat.DefaultMasterMAC, nil)
	loop.Start(ctx)
	defer func() {
		loop.Stop()
		loop.Wait()
	}()

	_, wkc, err := BRD(loop, 0, 1).Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(1), wkc)
}

// TestReceiveTaskExitsAfterExhaustingRetries confirms the receive task
// stops retrying (and returns) once cfg.RetryBehaviour is exhausted,
// rather than spinning on a permanently broken socket forever.
func TestReceiveTaskExitsAfterExhaustingRetries(t *testing.T) {
	cfg := ethercat.DefaultConfig()
	cfg.RetryBehaviour = ethercat.RetryCount(3)
	sock := &alwaysFailSocket{}
	loop := NewLoop(sock, cfg, ethercat.DefaultMasterMAC, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		loop.receiveTask(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receive task did not exit after exhausting retries")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&sock.calls))
}
