// Package master wires the protocol layers into the single facade callers
// use: MainDevice composes the PDU loop, the SubDevice configurator, group
// builders and distributed-clock alignment the way the teacher's Network
// composes a busManager, node table and SDO client (network.go) into one
// object constructed once and driven through its lifecycle.
package master

import (
	"context"
	log "github.com/sirupsen/logrus"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/pkg/dc"
	"github.com/go-ethercat/master/pkg/group"
	"github.com/go-ethercat/master/pkg/pdu"
	"github.com/go-ethercat/master/pkg/subdevice"
)

// MainDevice is the top-level handle to one EtherCAT bus: it owns the PDU
// loop, drives SubDevice discovery and bring-up, and hands out group
// builders and a distributed-clock aligner once devices are known.
type MainDevice struct {
	loop   *pdu.Loop
	cfgr   *subdevice.Configurator
	cfg    ethercat.Config
	logger *log.Entry
}

// New builds a MainDevice bound to socket. It does not start the PDU loop
// or touch the bus; call Start first.
func New(socket ethercat.Socket, cfg ethercat.Config, sourceMAC [6]byte, logger *log.Entry) *MainDevice {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	loop := pdu.NewLoop(socket, cfg, sourceMAC, logger)
	return &MainDevice{
		loop:   loop,
		cfgr:   subdevice.NewConfigurator(loop, cfg, logger),
		cfg:    cfg,
		logger: logger.WithField("component", "master"),
	}
}

// Start launches the send/receive tasks. Call Stop to tear them down.
func (m *MainDevice) Start(ctx context.Context) { m.loop.Start(ctx) }

// Stop requests the PDU loop exit and blocks until it has.
func (m *MainDevice) Stop() {
	m.loop.Stop()
	m.loop.Wait()
}

// Loop exposes the underlying PDU loop for callers issuing raw commands
// outside the discovery/group flow (diagnostics, custom registers).
func (m *MainDevice) Loop() *pdu.Loop { return m.loop }

// Configure resets the bus, assigns station addresses, reads identity and
// EEPROM categories, brings up CoE mailboxes and transitions every
// discovered SubDevice to PRE-OP, invoking initHook per CoE-capable device.
func (m *MainDevice) Configure(ctx context.Context, initHook subdevice.InitHook) ([]*subdevice.SubDevice, error) {
	return m.cfgr.Configure(ctx, initHook)
}

// NewGroupBuilder starts laying out a process data image at logicalBase for
// a subset (or all) of the devices returned by Configure.
func (m *MainDevice) NewGroupBuilder(logicalBase uint32) *group.Builder {
	return group.NewBuilder(m.loop, m.cfgr, m.cfg, m.logger, logicalBase)
}

// NewClockAligner returns a distributed-clock Aligner using referenceStation
// (typically the first DC-capable device) as the bus's time reference.
func (m *MainDevice) NewClockAligner(referenceStation uint16) *dc.Aligner {
	return dc.NewAligner(m.loop, m.cfg, m.logger, referenceStation)
}

// FirstDCCapable returns the station address of the first device in devices
// whose EEPROM reported a DC defaults category, and true, or (0, false) if
// none did. Callers typically use this station as the DC reference.
func FirstDCCapable(devices []*subdevice.SubDevice) (uint16, bool) {
	for _, sd := range devices {
		if sd.HasDC {
			return sd.Station, true
		}
	}
	return 0, false
}
