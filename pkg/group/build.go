package group

import (
	"context"

	"github.com/go-ethercat/master/pkg/subdevice"
)

// Build lays out the logical address space for devices (outputs for every
// device first, in ring order, followed by inputs for every device, in
// ring order), programs each device's process-data FMMUs and SyncManagers,
// and returns an Init handle. Devices must already be in PRE-OP.
func (b *Builder) Build(ctx context.Context, devices []*subdevice.SubDevice) (*Init, error) {
	layouts := make([]deviceLayout, len(devices))
	sms := make([]*outputInputSM, len(devices))
	ins := make([]*outputInputSM, len(devices))

	var outputsLen, inputsLen uint32
	var expectedWKC uint16
	for i, sd := range devices {
		out, in := processSMs(sd)
		sms[i], ins[i] = out, in
		expectedWKC += contribution(out, in)
		if out != nil {
			outputsLen += uint32(out.length)
		}
		if in != nil {
			inputsLen += uint32(in.length)
		}
	}

	outCursor := b.logicalBase
	inCursor := b.logicalBase + outputsLen

	for i, sd := range devices {
		layouts[i].sd = sd
		if out := sms[i]; out != nil {
			layouts[i].outputs = subdevice.Segment{Offset: outCursor, Length: uint32(out.length)}
			out.fmmuIndex = 0
			layouts[i].outSM = out
			outCursor += uint32(out.length)
		}
		if in := ins[i]; in != nil {
			layouts[i].inputs = subdevice.Segment{Offset: inCursor, Length: uint32(in.length)}
			in.fmmuIndex = 1
			layouts[i].inSM = in
			inCursor += uint32(in.length)
		}
		sd.Outputs = layouts[i].outputs
		sd.Inputs = layouts[i].inputs
	}

	for i, l := range layouts {
		if l.outSM != nil {
			if err := b.cfgr.ProgramDataSM(ctx, l.sd.Station, l.outSM.smIndex, l.outSM.physicalStart, l.outSM.length, true); err != nil {
				return nil, err
			}
			if err := b.cfgr.ProgramFMMU(ctx, l.sd.Station, l.outSM.fmmuIndex, l.outputs.Offset, uint16(l.outputs.Length), l.outSM.physicalStart, false, true); err != nil {
				return nil, err
			}
		}
		if l.inSM != nil {
			if err := b.cfgr.ProgramDataSM(ctx, l.sd.Station, l.inSM.smIndex, l.inSM.physicalStart, l.inSM.length, false); err != nil {
				return nil, err
			}
			if err := b.cfgr.ProgramFMMU(ctx, l.sd.Station, l.inSM.fmmuIndex, l.inputs.Offset, uint16(l.inputs.Length), l.inSM.physicalStart, true, false); err != nil {
				return nil, err
			}
		}
		layouts[i] = l
	}

	s := &shared{
		loop: b.loop, cfgr: b.cfgr, cfg: b.cfg, logger: b.logger,
		layouts:     layouts,
		pdi:         make([]byte, outputsLen+inputsLen),
		logicalBase: b.logicalBase,
		outputsLen:  outputsLen,
		inputsLen:   inputsLen,
		expectedWKC: expectedWKC,
	}
	return &Init{shared: s}, nil
}
