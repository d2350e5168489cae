package mailbox

import (
	"context"
	"time"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/pkg/eeprom"
	"github.com/go-ethercat/master/pkg/pdu"
)

// SyncManager register layout, ETG.1000.4: an 8-byte control block per
// channel starting at 0x0800, stride 8 bytes.
const (
	smRegisterBase   = 0x0800
	smRegisterStride = 8
	smStatusOffset   = 5
	smStatusFullBit  = 1 << 3
)

// Channel is one mailbox, pairing the write SyncManager (master->device,
// conventionally SM0) with the read SyncManager (device->master, SM1).
type Channel struct {
	loop    *pdu.Loop
	station uint16
	cfg     ethercat.Config

	writeSM      eeprom.SyncManagerDescriptor
	writeSMIndex int
	readSM       eeprom.SyncManagerDescriptor
	readSMIndex  int

	counter uint8
}

// NewChannel constructs a Channel from the write/read SyncManager
// descriptors decoded from the device's EEPROM category walk.
func NewChannel(loop *pdu.Loop, station uint16, cfg ethercat.Config, writeSM eeprom.SyncManagerDescriptor, writeIndex int, readSM eeprom.SyncManagerDescriptor, readIndex int) *Channel {
	return &Channel{
		loop: loop, station: station, cfg: cfg,
		writeSM: writeSM, writeSMIndex: writeIndex,
		readSM: readSM, readSMIndex: readIndex,
		counter: 1,
	}
}

func (c *Channel) nextCounter() uint8 {
	v := c.counter
	c.counter++
	if c.counter > 7 {
		c.counter = 1
	}
	return v
}

func smStatusRegister(index int) uint16 {
	return uint16(smRegisterBase + index*smRegisterStride + smStatusOffset)
}

func (c *Channel) smFull(ctx context.Context, index int) (bool, error) {
	data, _, err := pdu.FPRD(c.loop, c.station, smStatusRegister(index), 1).Receive(ctx)
	if err != nil {
		return false, err
	}
	return data[0]&smStatusFullBit != 0, nil
}

// drainStale reads and discards any response already sitting in SM1, so a
// prior cancelled or timed-out transfer cannot be mistaken for this one's
// response.
func (c *Channel) drainStale(ctx context.Context) error {
	full, err := c.smFull(ctx, c.readSMIndex)
	if err != nil {
		return err
	}
	if !full {
		return nil
	}
	_, _, err = pdu.FPRD(c.loop, c.station, c.readSM.PhysicalStartAddress, int(c.readSM.Length)).Receive(ctx)
	return err
}

// Send writes one mailbox frame carrying payload to SM0. If SM0 is already
// full the transfer fails fast as a timeout, per the "avoid re-entrancy"
// rule: a master never queues a second request behind an unconsumed one.
func (c *Channel) Send(ctx context.Context, proto Type, payload []byte) error {
	full, err := c.smFull(ctx, c.writeSMIndex)
	if err != nil {
		return err
	}
	if full {
		return &ethercat.TimeoutError{Kind: "mailbox"}
	}

	hdr := Header{Length: uint16(len(payload)), Proto: proto, Counter: c.nextCounter()}
	buf := make([]byte, 6+len(payload))
	hdr.PackTo(buf[0:6])
	copy(buf[6:], payload)

	if len(buf) > int(c.writeSM.Length) {
		return ethercat.ErrMailboxTooLong
	}

	wkc, err := pdu.FPWR(c.loop, c.station, c.writeSM.PhysicalStartAddress, buf).Send(ctx)
	if err != nil {
		return err
	}
	if wkc == 0 {
		return ethercat.ErrNoMailbox
	}
	return nil
}

// Receive waits for SM1 to report a full mailbox frame, bounded by
// cfg.MailboxResponseTimeout, then reads and parses it.
func (c *Channel) Receive(ctx context.Context) (Header, []byte, error) {
	deadline := time.Now().Add(c.cfg.MailboxResponseTimeout)
	for {
		full, err := c.smFull(ctx, c.readSMIndex)
		if err != nil {
			return Header{}, nil, err
		}
		if full {
			break
		}
		if time.Now().After(deadline) {
			return Header{}, nil, &ethercat.TimeoutError{Kind: "mailbox"}
		}
		select {
		case <-ctx.Done():
			return Header{}, nil, ctx.Err()
		case <-time.After(c.cfg.WaitLoopDelay):
		}
	}

	data, _, err := pdu.FPRD(c.loop, c.station, c.readSM.PhysicalStartAddress, int(c.readSM.Length)).Receive(ctx)
	if err != nil {
		return Header{}, nil, err
	}
	var hdr Header
	if err := hdr.UnpackFrom(data[0:6]); err != nil {
		return Header{}, nil, err
	}
	end := 6 + int(hdr.Length)
	if end > len(data) {
		return Header{}, nil, ethercat.ErrMailboxTooLong
	}
	return hdr, data[6:end], nil
}
