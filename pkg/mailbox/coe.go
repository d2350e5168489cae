package mailbox

import (
	"context"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/internal/fifo"
	"github.com/go-ethercat/master/pkg/wire"
)

// CoE service codes, carried in the top 4 bits of the 2-byte CoE header.
const (
	coeServiceEmergency  = 1
	coeServiceSDORequest = 2
	coeServiceSDOResponse = 3
)

// SDO command-specifier values, carried in the top 3 bits of the first
// payload byte after the CoE header.
const (
	ccsInitiateDownload = 1
	ccsInitiateUpload   = 2
	ccsUploadSegment    = 3
	ccsDownloadSegment  = 0

	scsInitiateUpload   = 2
	scsInitiateDownload = 3
	scsDownloadSegment  = 1
	scsUploadSegment    = 0
	scsAbort            = 4
)

const maxSegmentData = 7

// packCoEHeader writes the 2-byte CoE header: a 9-bit number field
// (unused by SDO, left 0) and the 4-bit service code.
func packCoEHeader(service uint8) []byte {
	buf := make([]byte, 2)
	word := uint16(service&0x0F) << 12
	wire.PutUint16(buf, word)
	return buf
}

func coeService(buf []byte) uint8 {
	return uint8(wire.GetUint16(buf[0:2]) >> 12)
}

// SDOClient performs CoE SDO uploads and downloads over one mailbox Channel.
type SDOClient struct {
	ch *Channel
}

// NewSDOClient wraps a mailbox Channel with the CoE SDO protocol.
func NewSDOClient(ch *Channel) *SDOClient { return &SDOClient{ch: ch} }

// Upload reads the value of one object, returning the expedited value
// inline or the concatenation of all segments for a segmented transfer.
func (c *SDOClient) Upload(ctx context.Context, index uint16, subIndex uint8, completeAccess bool) ([]byte, error) {
	if err := c.ch.drainStale(ctx); err != nil {
		return nil, err
	}

	cmd := byte(ccsInitiateUpload << 5)
	if completeAccess {
		cmd |= 1 << 4
	}
	req := make([]byte, 4)
	req[0] = cmd
	wire.PutUint16(req[1:3], index)
	req[3] = byte(subIndex)
	payload := append(packCoEHeader(coeServiceSDORequest), req...)

	if err := c.ch.Send(ctx, TypeCoE, payload); err != nil {
		return nil, err
	}
	_, resp, err := c.ch.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if coeService(resp) != coeServiceSDOResponse {
		return nil, ethercat.ErrMailboxTooLong
	}
	body := resp[2:]
	cmdByte := body[0]
	scs := cmdByte >> 5
	if scs == scsAbort {
		return nil, abortFromBody(body)
	}
	if scs != scsInitiateUpload {
		return nil, ethercat.ErrInvalidCounter
	}

	sizeIndicator := cmdByte&0x01 != 0
	expedited := cmdByte&0x02 != 0
	dataSetSize := (cmdByte >> 2) & 0x03

	data := body[4:8]
	if expedited {
		n := 4
		if sizeIndicator {
			n = 4 - int(dataSetSize)
		}
		return append([]byte(nil), data[:n]...), nil
	}

	// Segmented: the initiate response carries up to the first 4 bytes
	// inline; the remainder arrives via segment round trips.
	value := append([]byte(nil), data...)
	toggle := false
	for {
		segCmd := byte(ccsUploadSegment << 5)
		if toggle {
			segCmd |= 1
		}
		segPayload := append(packCoEHeader(coeServiceSDORequest), segCmd)
		if err := c.ch.Send(ctx, TypeCoE, segPayload); err != nil {
			return nil, err
		}
		_, segResp, err := c.ch.Receive(ctx)
		if err != nil {
			return nil, err
		}
		segBody := segResp[2:]
		segCmdByte := segBody[0]
		if segCmdByte>>5 == scsAbort {
			return nil, abortFromBody(segBody)
		}
		last := segCmdByte&0x02 != 0
		unused := int((segCmdByte >> 2) & 0x07)
		segData := segBody[1:]
		n := maxSegmentData - unused
		if n > len(segData) {
			n = len(segData)
		}
		value = append(value, segData[:n]...)
		if last {
			break
		}
		toggle = !toggle
	}
	return value, nil
}

// Download writes a value to one object, using the expedited path for
// payloads of 4 bytes or less and segmenting larger ones.
func (c *SDOClient) Download(ctx context.Context, index uint16, subIndex uint8, value []byte, completeAccess bool) error {
	if err := c.ch.drainStale(ctx); err != nil {
		return err
	}

	if len(value) <= 4 {
		cmd := byte(ccsInitiateDownload<<5) | 0x03 // sizeIndicator + expedited
		cmd |= byte(4-len(value)) << 2
		if completeAccess {
			cmd |= 1 << 4
		}
		req := make([]byte, 8)
		req[0] = cmd
		wire.PutUint16(req[1:3], index)
		req[3] = byte(subIndex)
		copy(req[4:4+len(value)], value)
		payload := append(packCoEHeader(coeServiceSDORequest), req...)
		return c.downloadAwait(ctx, payload)
	}

	cmd := byte(ccsInitiateDownload << 5) // not expedited
	if completeAccess {
		cmd |= 1 << 4
	}
	req := make([]byte, 8)
	req[0] = cmd
	wire.PutUint16(req[1:3], index)
	req[3] = byte(subIndex)
	first := value[:4]
	copy(req[4:8], first)
	payload := append(packCoEHeader(coeServiceSDORequest), req...)
	if err := c.downloadAwait(ctx, payload); err != nil {
		return err
	}

	// The remaining bytes are staged in a Fifo and walked with its
	// alternate read cursor: each segment is peeked (not committed)
	// before it is sent, and only advanced past once the device has
	// acked it. A failed round trip returns its error at once; no
	// segment is resent, and the Fifo is discarded with the call.
	remaining := value[4:]
	buf := fifo.New(len(remaining) + 1)
	buf.Write(remaining)
	buf.AltBegin(0)

	toggle := false
	for buf.AltOccupied() > 0 {
		chunk := make([]byte, maxSegmentData)
		n := buf.AltRead(chunk)
		chunk = chunk[:n]
		last := buf.AltOccupied() == 0

		segCmd := byte(ccsDownloadSegment << 5)
		if toggle {
			segCmd |= 1
		}
		if last {
			segCmd |= 0x02
		}
		unused := maxSegmentData - n
		segCmd |= byte(unused) << 2

		segReq := make([]byte, 1+maxSegmentData)
		segReq[0] = segCmd
		copy(segReq[1:1+n], chunk)
		segPayload := append(packCoEHeader(coeServiceSDORequest), segReq...)
		if err := c.downloadAwait(ctx, segPayload); err != nil {
			buf.AltBegin(0)
			return err
		}
		buf.AltFinish()
		toggle = !toggle
	}
	return nil
}

func (c *SDOClient) downloadAwait(ctx context.Context, payload []byte) error {
	if err := c.ch.Send(ctx, TypeCoE, payload); err != nil {
		return err
	}
	_, resp, err := c.ch.Receive(ctx)
	if err != nil {
		return err
	}
	body := resp[2:]
	scs := body[0] >> 5
	if scs == scsAbort {
		return abortFromBody(body)
	}
	if scs != scsInitiateDownload && scs != scsDownloadSegment {
		return ethercat.ErrInvalidCounter
	}
	return nil
}

func abortFromBody(body []byte) error {
	index := wire.GetUint16(body[1:3])
	subIndex := body[3]
	code := AbortCode(wire.GetUint32(body[4:8]))
	return &AbortError{Index: index, SubIndex: subIndex, Code: code}
}
