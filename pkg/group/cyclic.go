package group

import (
	"context"

	"github.com/go-ethercat/master/pkg/pdu"
	"github.com/go-ethercat/master/pkg/subdevice"
)

// TxRx issues a single LRW covering the group's logical address range,
// sending the current PDI contents and overwriting it in place with the
// response: outputs are forwarded to every output device in-flight, and
// the input segments are overwritten by their devices before the frame
// returns. The returned working counter must equal ExpectedWKC(); the
// caller decides whether to tolerate a mismatch (WithWKC enforcement
// happens inside this call and surfaces as an error here).
func (o *Op) TxRx(ctx context.Context) (uint16, error) {
	resp, wkc, err := pdu.LRW(o.loop, o.logicalBase, o.pdi).WithWKC(o.expectedWKC).SendReceive(ctx)
	if err != nil {
		return wkc, err
	}
	copy(o.pdi, resp)
	return wkc, nil
}

// BorrowOutputs claims exclusive access to one device's output segment for
// the duration the caller holds the returned release function, returning
// ErrBorrowConflict if it overlaps an already-held borrow.
func (o *Op) BorrowOutputs(sd *subdevice.SubDevice) ([]byte, func(), error) {
	return o.borrowSegment(sd.Outputs.Offset, sd.Outputs.Length)
}

// BorrowInputs claims exclusive access to one device's input segment.
func (o *Op) BorrowInputs(sd *subdevice.SubDevice) ([]byte, func(), error) {
	return o.borrowSegment(sd.Inputs.Offset, sd.Inputs.Length)
}

func (o *shared) borrowSegment(offset, length uint32) ([]byte, func(), error) {
	release, err := o.borrow.Borrow(offset, length)
	if err != nil {
		return nil, nil, err
	}
	base := offset - o.logicalBase
	return o.pdi[base : base+length], release, nil
}
