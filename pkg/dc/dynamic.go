package dc

import (
	"context"
	"time"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/pkg/pdu"
	"github.com/go-ethercat/master/pkg/wire"
)

// startMargin is how many SYNC0 periods in the future the cyclic start
// time is set, so every device on the bus has time to load it before it
// arrives.
const startMargin = 2

// ProgramCyclicOperation writes station's SYNC0 (and, for Sync01, SYNC1)
// cycle time and a cyclic-operation start time on a SYNC0 period boundary,
// startMargin boundaries after the start of the current period (so more
// than startMargin-1 periods from now), then enables the cyclic unit. Config.Mode of SyncDisabled leaves the device free-running
// and programs nothing.
func (a *Aligner) ProgramCyclicOperation(ctx context.Context, station uint16, cfg Config, now time.Time) error {
	if cfg.Mode == SyncDisabled {
		return nil
	}

	period := cfg.Sync0Period.Nanoseconds()
	if period <= 0 {
		return &ethercat.WireError{Kind: "invalid-value", Type: "dc.Config.Sync0Period", Want: 1, Got: 0}
	}

	nowNanos := now.UnixNano() - ecatEpochUnixNano
	startTime := ((nowNanos / period) + startMargin) * period

	buf := make([]byte, 8)
	wire.PutUint64(buf, uint64(startTime))
	if err := a.writeChecked(ctx, station, regStartTimeCyclicOp, buf); err != nil {
		return err
	}

	cycleBuf := make([]byte, 4)
	wire.PutUint32(cycleBuf, uint32(period))
	if err := a.writeChecked(ctx, station, regSync0CycleTime, cycleBuf); err != nil {
		return err
	}

	control := byte(cyclicUnitSync0Enable)
	if cfg.Mode == Sync01 {
		sync1Buf := make([]byte, 4)
		wire.PutUint32(sync1Buf, uint32(cfg.Sync1Period.Nanoseconds()))
		if err := a.writeChecked(ctx, station, regSync1CycleTime, sync1Buf); err != nil {
			return err
		}
		control |= cyclicUnitSync1Enable
	}

	return a.writeChecked(ctx, station, regCyclicUnitControl, []byte{control})
}

func (a *Aligner) writeChecked(ctx context.Context, station uint16, register uint16, data []byte) error {
	wkc, err := pdu.FPWR(a.loop, station, register, data).Send(ctx)
	if err != nil {
		return err
	}
	if wkc != 1 {
		return &ethercat.WorkingCounterError{Expected: 1, Received: wkc, Context: "dc register write"}
	}
	return nil
}

// PropagationDelay reads station's measured propagation delay from the
// reference device, as recorded in the system time delay register during
// static drift compensation.
func (a *Aligner) PropagationDelay(ctx context.Context, station uint16) (time.Duration, error) {
	data, _, err := pdu.FPRD(a.loop, station, regSystemTimeDelay, 4).Receive(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(wire.GetUint32(data)), nil
}
