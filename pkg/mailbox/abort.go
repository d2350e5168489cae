package mailbox

import "fmt"

// AbortCode is the 4-byte CoE SDO abort code returned by a device that
// rejects an upload or download, mirroring the teacher's SDOAbortCode
// catalogue (pkg/sdo/common.go) but restricted to the codes CoE devices
// actually emit.
type AbortCode uint32

const (
	AbortToggleBit       AbortCode = 0x05030000
	AbortTimeout         AbortCode = 0x05040000
	AbortUnknownCommand  AbortCode = 0x05040001
	AbortOutOfMemory     AbortCode = 0x05040005
	AbortUnsupportedAccess AbortCode = 0x06010000
	AbortWriteOnly       AbortCode = 0x06010001
	AbortReadOnly        AbortCode = 0x06010002
	AbortObjectNotExist  AbortCode = 0x06020000
	AbortMapIncompatible AbortCode = 0x06040043
	AbortHardware        AbortCode = 0x06060000
	AbortLengthMismatch  AbortCode = 0x06070010
	AbortLengthTooLong   AbortCode = 0x06070012
	AbortLengthTooShort  AbortCode = 0x06070013
	AbortSubIndexUnknown AbortCode = 0x06090011
	AbortInvalidValue    AbortCode = 0x06090030
	AbortGeneral         AbortCode = 0x08000000
)

// AbortCodeDescriptionMap mirrors the teacher's AbortCodeDescriptionMap.
var AbortCodeDescriptionMap = map[AbortCode]string{
	AbortToggleBit:         "Toggle bit not altered",
	AbortTimeout:           "SDO protocol timed out",
	AbortUnknownCommand:    "Command specifier not valid or unknown",
	AbortOutOfMemory:       "Out of memory",
	AbortUnsupportedAccess: "Unsupported access to an object",
	AbortWriteOnly:         "Attempt to read a write only object",
	AbortReadOnly:          "Attempt to write a read only object",
	AbortObjectNotExist:    "Object does not exist in the object dictionary",
	AbortMapIncompatible:   "General parameter incompatibility reasons",
	AbortHardware:          "Access failed due to hardware error",
	AbortLengthMismatch:    "Data type does not match, length does not match",
	AbortLengthTooLong:     "Data type does not match, length too high",
	AbortLengthTooShort:    "Data type does not match, length too short",
	AbortSubIndexUnknown:   "Sub index does not exist",
	AbortInvalidValue:      "Invalid value for parameter (download only)",
	AbortGeneral:           "General error",
}

func (a AbortCode) String() string {
	if desc, ok := AbortCodeDescriptionMap[a]; ok {
		return desc
	}
	return fmt.Sprintf("abort code 0x%08x", uint32(a))
}

// AbortError reports a CoE abort response to an SDO transfer.
type AbortError struct {
	Index    uint16
	SubIndex uint8
	Code     AbortCode
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("sdo abort on 0x%04x:%d: %s", e.Index, e.SubIndex, e.Code)
}
