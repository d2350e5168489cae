package subdevice

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/pkg/eeprom"
	"github.com/go-ethercat/master/pkg/mailbox"
	"github.com/go-ethercat/master/pkg/pdu"
	"github.com/go-ethercat/master/pkg/wire"
)

// InitHook is a user callback invoked once per CoE-capable SubDevice after
// it reaches PRE-OP, with its mailbox ready. Devices without CoE are not
// passed to it. It is the only point where caller code runs inside the
// bring-up sequence.
type InitHook func(ctx context.Context, sd *SubDevice) error

// Configurator drives the whole-bus bring-up sequence described for the
// SubDevice lifecycle: reset and count, station address assignment,
// per-device identity and EEPROM category walk, mailbox bring-up, and the
// INIT -> PRE-OP transition. It also exposes Transition for later stages
// (SAFE-OP, OP) driven by the group manager once PDI layout is known.
type Configurator struct {
	loop   *pdu.Loop
	cfg    ethercat.Config
	logger *log.Entry
}

// NewConfigurator returns a Configurator bound to loop, using cfg's timeouts
// and retry policy.
func NewConfigurator(loop *pdu.Loop, cfg ethercat.Config, logger *log.Entry) *Configurator {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Configurator{loop: loop, cfg: cfg, logger: logger.WithField("component", "subdevice-configurator")}
}

// Configure resets the bus, assigns station addresses, reads each device's
// identity and EEPROM categories, brings up CoE mailboxes, transitions
// every device to PRE-OP, and then runs initHook once per CoE-capable
// device. It returns the discovered devices in ring order.
func (c *Configurator) Configure(ctx context.Context, initHook InitHook) ([]*SubDevice, error) {
	count, err := c.resetAndCount(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	devices := make([]*SubDevice, count)
	for i := 0; i < count; i++ {
		sd, err := c.assignStation(ctx, uint16(i))
		if err != nil {
			return nil, err
		}
		devices[i] = sd
	}

	for _, sd := range devices {
		if err := c.readIdentityAndCategories(ctx, sd); err != nil {
			return nil, err
		}
	}

	for _, sd := range devices {
		if err := c.bringUpMailbox(ctx, sd); err != nil {
			return nil, err
		}
	}

	for _, sd := range devices {
		if err := c.Transition(ctx, sd, ALStatePreOp); err != nil {
			return nil, err
		}
	}

	if initHook != nil {
		for _, sd := range devices {
			if !sd.HasCoE() {
				continue
			}
			if err := initHook(ctx, sd); err != nil {
				return nil, fmt.Errorf("init hook for subdevice 0x%04x: %w", sd.Station, err)
			}
		}
	}

	return devices, nil
}

func (c *Configurator) resetAndCount(ctx context.Context) (int, error) {
	initCmd := []byte{byte(ALStateInit), 0}
	if _, err := pdu.BWR(c.loop, regALControl, initCmd).IgnoreWKC().Send(ctx); err != nil {
		return 0, err
	}
	_, wkc, err := pdu.BRD(c.loop, regType, 1).Receive(ctx)
	if err != nil {
		return 0, err
	}
	return int(wkc), nil
}

func (c *Configurator) assignStation(ctx context.Context, position uint16) (*SubDevice, error) {
	station := 0x1000 + position
	buf := make([]byte, 2)
	wire.PutUint16(buf, station)
	if _, err := pdu.APWR(c.loop, position, regConfiguredStationAddress, buf).WithWKC(1).Send(ctx); err != nil {
		return nil, err
	}
	return &SubDevice{Position: position, Station: station, State: ALStateInit}, nil
}

func (c *Configurator) readIdentityAndCategories(ctx context.Context, sd *SubDevice) error {
	reader := eeprom.NewReader(c.loop, sd.Station, c.cfg)
	m, err := reader.WalkCategories(ctx)
	if err != nil {
		return err
	}
	sd.Identity = m.Identity
	sd.Mailbox = m.Mailbox
	sd.SyncManagers = m.SyncManagers
	sd.FMMUs = m.FMMUs
	sd.HasDC = m.HasDCDefaults
	sd.eepromMap = m
	sd.hasEeprom = true
	return nil
}

func (c *Configurator) bringUpMailbox(ctx context.Context, sd *SubDevice) error {
	if !sd.HasCoE() {
		return nil
	}

	writeSM := eeprom.SyncManagerDescriptor{
		PhysicalStartAddress: sd.Mailbox.StandardRecvOffset,
		Length:               sd.Mailbox.StandardRecvSize,
		ControlByte:          smControlMailboxWrite,
		Enable:                true,
	}
	readSM := eeprom.SyncManagerDescriptor{
		PhysicalStartAddress: sd.Mailbox.StandardSendOffset,
		Length:               sd.Mailbox.StandardSendSize,
		ControlByte:          smControlMailboxRead,
		Enable:                true,
	}

	if err := c.programSM(ctx, sd.Station, 0, writeSM); err != nil {
		return err
	}
	if err := c.programSM(ctx, sd.Station, 1, readSM); err != nil {
		return err
	}

	ch := mailbox.NewChannel(c.loop, sd.Station, c.cfg, writeSM, 0, readSM, 1)
	sd.SDO = mailbox.NewSDOClient(ch)
	return nil
}

func (c *Configurator) programSM(ctx context.Context, station uint16, index int, d eeprom.SyncManagerDescriptor) error {
	entry := smEntry{PhysicalStart: d.PhysicalStartAddress, Length: d.Length, Control: d.ControlByte, Activate: d.Enable}
	reg := uint16(regSM0Base + index*regSMStride)
	wkc, err := pdu.FPWR(c.loop, station, reg, entry.pack()).Send(ctx)
	if err != nil {
		return err
	}
	if wkc != 1 {
		return &ethercat.WorkingCounterError{Expected: 1, Received: wkc, Context: "program sync manager"}
	}
	return nil
}

// ProgramFMMU writes one FMMU descriptor at the given FMMU unit index for
// station, used by the group manager once logical addresses are assigned.
func (c *Configurator) ProgramFMMU(ctx context.Context, station uint16, index int, logicalStart uint32, length uint16, physicalStart uint16, read, write bool) error {
	entry := fmmuEntry{
		LogicalStart:  logicalStart,
		LogicalLength: length,
		LogicalStopBit: 7,
		PhysicalStart: physicalStart,
		ReadEnable:    read,
		WriteEnable:   write,
		Activate:      true,
	}
	reg := uint16(regFMMU0Base + index*regFMMUStride)
	wkc, err := pdu.FPWR(c.loop, station, reg, entry.pack()).Send(ctx)
	if err != nil {
		return err
	}
	if wkc != 1 {
		return &ethercat.WorkingCounterError{Expected: 1, Received: wkc, Context: "program fmmu"}
	}
	return nil
}

// ProgramDataSM writes one process-data SyncManager descriptor, used by the
// group manager alongside ProgramFMMU.
func (c *Configurator) ProgramDataSM(ctx context.Context, station uint16, index int, physicalStart uint16, length uint16, outputs bool) error {
	control := byte(smControlInputs)
	if outputs {
		control = smControlOutputs
	}
	return c.programSM(ctx, station, index, eeprom.SyncManagerDescriptor{
		PhysicalStartAddress: physicalStart,
		Length:               length,
		ControlByte:          control,
		Enable:               true,
	})
}

// Transition requests target AL state on sd and polls AL status until it is
// reached, bounded by cfg.StateTransitionTimeout. On failure it reads the AL
// status code register for diagnostics.
func (c *Configurator) Transition(ctx context.Context, sd *SubDevice, target ALState) error {
	buf := []byte{byte(target), 0}
	wkc, err := pdu.FPWR(c.loop, sd.Station, regALControl, buf).Send(ctx)
	if err != nil {
		return err
	}
	if wkc != 1 {
		return &ethercat.WorkingCounterError{Expected: 1, Received: wkc, Context: "al control write"}
	}

	deadline := time.Now().Add(c.cfg.StateTransitionTimeout)
	for {
		data, _, err := pdu.FPRD(c.loop, sd.Station, regALStatus, 2).Receive(ctx)
		if err != nil {
			return err
		}
		status := ALState(data[0])
		if status&^alStateErrorFlag == target && !status.HasError() {
			sd.State = status
			return nil
		}
		if status.HasError() || time.Now().After(deadline) {
			code, _ := c.readStatusCode(ctx, sd.Station)
			return &ethercat.StateTransitionError{
				ConfiguredAddress: sd.Station,
				Requested:         uint8(target),
				Actual:            uint8(status &^ alStateErrorFlag),
				ALStatusCode:      uint16(code),
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.WaitLoopDelay):
		}
	}
}

func (c *Configurator) readStatusCode(ctx context.Context, station uint16) (ALStatusCode, error) {
	data, _, err := pdu.FPRD(c.loop, station, regALStatusCode, 2).Receive(ctx)
	if err != nil {
		return 0, err
	}
	return ALStatusCode(wire.GetUint16(data)), nil
}
