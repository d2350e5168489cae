package eeprom

import (
	"context"
	"time"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/pkg/pdu"
	"github.com/go-ethercat/master/pkg/wire"
)

// maxCommandErrorRetries bounds how many times a single word read retries
// after observing the command-error status flag before giving up.
const maxCommandErrorRetries = 20

// Reader performs SII word reads against one SubDevice addressed by its
// configured station address.
type Reader struct {
	loop    *pdu.Loop
	station uint16
	cfg     ethercat.Config
}

// NewReader returns a Reader bound to the given station address.
func NewReader(loop *pdu.Loop, station uint16, cfg ethercat.Config) *Reader {
	return &Reader{loop: loop, station: station, cfg: cfg}
}

// ReadWord reads one chunk (4 or 8 bytes, device-dependent) starting at the
// given SII word address, retrying up to maxCommandErrorRetries times if the
// device reports a command error.
func (r *Reader) ReadWord(ctx context.Context, wordAddr uint16) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxCommandErrorRetries; attempt++ {
		if err := r.clearErrors(ctx); err != nil {
			return nil, err
		}
		if err := r.issueRead(ctx, wordAddr); err != nil {
			return nil, err
		}
		status, err := r.waitNotBusy(ctx)
		if err != nil {
			return nil, err
		}
		if status.CommandError {
			lastErr = ethercat.ErrEepromClearErrors
			continue
		}
		data, err := r.readData(ctx, status.chunkLen())
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	if lastErr == nil {
		lastErr = ethercat.ErrEepromClearErrors
	}
	return nil, lastErr
}

func (r *Reader) issueRead(ctx context.Context, wordAddr uint16) error {
	buf := make([]byte, 6)
	wire.PutUint16(buf[0:2], siiCmdRead)
	wire.PutUint32(buf[2:6], uint32(wordAddr))
	_, err := pdu.FPWR(r.loop, r.station, RegisterSIIControl, buf).Send(ctx)
	return err
}

func (r *Reader) waitNotBusy(ctx context.Context) (siiStatus, error) {
	deadline := time.Now().Add(r.cfg.EepromTimeout)
	for {
		data, _, err := pdu.FPRD(r.loop, r.station, RegisterSIIControl, 2).Receive(ctx)
		if err != nil {
			return siiStatus{}, err
		}
		status := decodeSIIStatus(wire.GetUint16(data))
		if !status.Busy {
			return status, nil
		}
		if time.Now().After(deadline) {
			return siiStatus{}, &ethercat.TimeoutError{Kind: "eeprom"}
		}
		select {
		case <-ctx.Done():
			return siiStatus{}, ctx.Err()
		case <-time.After(r.cfg.WaitLoopDelay):
		}
	}
}

func (r *Reader) readData(ctx context.Context, chunkLen int) ([]byte, error) {
	data, _, err := pdu.FPRD(r.loop, r.station, RegisterSIIData, chunkLen).Receive(ctx)
	return data, err
}

// ReadBytes reads length bytes starting at wordAddr, issuing as many
// ReadWord calls as needed since a device may return 4- or 8-byte chunks
// regardless of how much the caller actually wants.
func (r *Reader) ReadBytes(ctx context.Context, wordAddr uint16, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	addr := wordAddr
	for len(out) < length {
		chunk, err := r.ReadWord(ctx, addr)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		addr += uint16(len(chunk) / 2)
	}
	return out[:length], nil
}

// clearErrors reads the current status word and, if any error flag is set,
// writes a zeroed status word back to acknowledge it, failing with
// ErrEepromClearErrors if the flags persist.
func (r *Reader) clearErrors(ctx context.Context) error {
	data, _, err := pdu.FPRD(r.loop, r.station, RegisterSIIControl, 2).Receive(ctx)
	if err != nil {
		return err
	}
	status := decodeSIIStatus(wire.GetUint16(data))
	if !status.CommandError {
		return nil
	}
	clear := make([]byte, 2)
	wire.PutUint16(clear, 0)
	if _, err := pdu.FPWR(r.loop, r.station, RegisterSIIControl, clear).Send(ctx); err != nil {
		return err
	}
	data, _, err = pdu.FPRD(r.loop, r.station, RegisterSIIControl, 2).Receive(ctx)
	if err != nil {
		return err
	}
	if decodeSIIStatus(wire.GetUint16(data)).CommandError {
		return ethercat.ErrEepromClearErrors
	}
	return nil
}
