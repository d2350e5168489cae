package ethercat

import (
	"errors"
	"fmt"
)

// Static, sentinel errors. These mirror the taxonomy in the spec: transport,
// protocol validation, timeout and resource exhaustion kinds that carry no
// extra context beyond the error itself.
var (
	// Transport
	ErrSendFailed    = errors.New("send to socket failed")
	ErrReceiveFailed = errors.New("receive from socket failed")
	ErrPartialWrite  = errors.New("partial write to socket")
	ErrShortFrame    = errors.New("received frame shorter than EtherCAT header")
	ErrMalformed     = errors.New("malformed ethernet frame")

	// Protocol validation
	ErrCommandMismatch  = errors.New("response command code does not match request")
	ErrIndexMismatch    = errors.New("response pdu index does not match request")
	ErrUnexpectedProto  = errors.New("unexpected ethercat protocol type")
	ErrUnknownAlState   = errors.New("unknown subdevice AL state")
	ErrAddressMismatch  = errors.New("response addressing fields do not match request")

	// Resource exhaustion
	ErrIndexInUse       = errors.New("no free frame slot: index in use")
	ErrSubDeviceStorage = errors.New("subdevice storage overflow")
	ErrPDITooLong       = errors.New("process data image exceeds logical address space")
	ErrStringTooLong    = errors.New("string exceeds declared wire width")

	// EEPROM
	ErrEepromDecode       = errors.New("eeprom category decode failed")
	ErrEepromOverrun      = errors.New("eeprom section overrun")
	ErrEepromMissing      = errors.New("eeprom category missing")
	ErrEepromClearErrors  = errors.New("failed to clear eeprom error flags")

	// Mailbox / CoE
	ErrNoMailbox           = errors.New("subdevice does not support mailbox communication")
	ErrMailboxTooLong      = errors.New("mailbox payload exceeds sync manager size")
	ErrInvalidCounter      = errors.New("mailbox counter out of sequence")
	ErrSegmentedOverflow   = errors.New("segmented upload exceeded buffer capacity")

	// User
	ErrUnknownSubDevice = errors.New("init callback referenced an unknown subdevice")
	ErrBorrowConflict   = errors.New("conflicting borrow of process data image region")

	// Distributed clocks
	ErrNoDCReference = errors.New("no distributed-clock-capable reference subdevice")
)

// WireError reports a codec failure: packing into an undersized buffer or
// unpacking a value that doesn't fit the declared wire width.
type WireError struct {
	Kind string // "write-buffer-too-short", "read-buffer-too-short", "invalid-value"
	Type string // name of the wire type involved
	Want int    // bytes/bits required
	Got  int    // bytes/bits available
}

func (e *WireError) Error() string {
	return fmt.Sprintf("wire: %s decoding %s: want %d, got %d", e.Kind, e.Type, e.Want, e.Got)
}

// WorkingCounterError reports that the working counter returned by a PDU
// did not match the caller's expectation.
type WorkingCounterError struct {
	Expected uint16
	Received uint16
	Context  string
}

func (e *WorkingCounterError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("working counter mismatch (%s): expected %d, received %d", e.Context, e.Expected, e.Received)
	}
	return fmt.Sprintf("working counter mismatch: expected %d, received %d", e.Expected, e.Received)
}

// TimeoutError reports that a bounded wait expired before its condition
// was met. Kind identifies which deadline fired.
type TimeoutError struct {
	Kind string // "pdu", "eeprom", "mailbox", "state-transition"
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout", e.Kind)
}

// Is allows errors.Is(err, ErrTimeout) to match any TimeoutError regardless
// of kind.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ErrTimeout is the generic sentinel matched by every TimeoutError via Is.
var ErrTimeout = errors.New("timeout")

// StateTransitionError reports that a SubDevice failed to reach a
// requested AL state, including the diagnostic status code read back
// from the device.
type StateTransitionError struct {
	ConfiguredAddress uint16
	Requested         uint8
	Actual            uint8
	ALStatusCode      uint16
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf(
		"subdevice 0x%04x failed to reach state 0x%02x (stuck at 0x%02x), al status code 0x%04x",
		e.ConfiguredAddress, e.Requested, e.Actual, e.ALStatusCode,
	)
}
