// Package subdevice implements the SubDevice lifecycle: discovery, station
// address assignment, EEPROM-driven SyncManager/FMMU/mailbox configuration,
// and the INIT -> PRE-OP -> SAFE-OP -> OP transitions. The bring-up sequence
// and its retry/diagnostic reporting follow the teacher's NMT state-change
// pattern (pkg/nmt's blocking RequestedStateChange + status polling),
// generalized from a single CANopen node to a chain of EtherCAT SubDevices
// addressed over the PDU loop.
package subdevice

import "fmt"

// ALState is the EtherCAT Application Layer state, ETG.1000.6 6.4.1.
type ALState uint8

const (
	ALStateNone      ALState = 0x00
	ALStateInit      ALState = 0x01
	ALStatePreOp     ALState = 0x02
	ALStateBootstrap ALState = 0x03
	ALStateSafeOp    ALState = 0x04
	ALStateOp        ALState = 0x08

	// alStateErrorFlag is OR'd into a read AL status to indicate the
	// device refused the requested transition.
	alStateErrorFlag ALState = 0x10
)

func (s ALState) String() string {
	switch s &^ alStateErrorFlag {
	case ALStateNone:
		return "None"
	case ALStateInit:
		return "Init"
	case ALStatePreOp:
		return "Pre-Operational"
	case ALStateBootstrap:
		return "Bootstrap"
	case ALStateSafeOp:
		return "Safe-Operational"
	case ALStateOp:
		return "Operational"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(s))
	}
}

// HasError reports whether the device flagged an error alongside its
// current state in the last AL status read.
func (s ALState) HasError() bool { return s&alStateErrorFlag != 0 }

// ALStatusCode is the 16-bit diagnostic code read from register 0x0134
// alongside a failed or error-flagged AL status.
type ALStatusCode uint16

// Well-known ETG.1000.6 table 16 codes; not exhaustive, but enough to give
// a human-readable diagnostic for the failures a configurator will see.
const (
	ALStatusNoError                    ALStatusCode = 0x0000
	ALStatusUnspecifiedError           ALStatusCode = 0x0001
	ALStatusInvalidRequestedStateChange ALStatusCode = 0x0011
	ALStatusUnknownRequestedState      ALStatusCode = 0x0012
	ALStatusInvalidMailboxConfigPreOp  ALStatusCode = 0x0015
	ALStatusInvalidMailboxConfigSafeOp ALStatusCode = 0x0016
	ALStatusInvalidSyncManagerConfig   ALStatusCode = 0x0017
	ALStatusNoValidInputs              ALStatusCode = 0x0018
	ALStatusNoValidOutputs             ALStatusCode = 0x0019
	ALStatusSyncError                  ALStatusCode = 0x001A
	ALStatusSMWatchdog                 ALStatusCode = 0x001B
	ALStatusInvalidOutputConfig        ALStatusCode = 0x001D
	ALStatusInvalidInputConfig         ALStatusCode = 0x001E
	ALStatusInvalidWatchdogConfig      ALStatusCode = 0x001F
	ALStatusSlaveNeedsColdStart        ALStatusCode = 0x0020
	ALStatusSlaveNeedsInit             ALStatusCode = 0x0021
	ALStatusSlaveNeedsPreOp            ALStatusCode = 0x0022
	ALStatusSlaveNeedsSafeOp           ALStatusCode = 0x0023
	ALStatusInvalidDCSyncConfig        ALStatusCode = 0x0030
	ALStatusDCSyncTimeoutError         ALStatusCode = 0x0034
)

var alStatusDescriptions = map[ALStatusCode]string{
	ALStatusNoError:                     "no error",
	ALStatusUnspecifiedError:            "unspecified error",
	ALStatusInvalidRequestedStateChange: "invalid requested state change",
	ALStatusUnknownRequestedState:       "unknown requested state",
	ALStatusInvalidMailboxConfigPreOp:   "invalid mailbox configuration (preop)",
	ALStatusInvalidMailboxConfigSafeOp:  "invalid mailbox configuration (safeop)",
	ALStatusInvalidSyncManagerConfig:    "invalid sync manager configuration",
	ALStatusNoValidInputs:               "no valid inputs available",
	ALStatusNoValidOutputs:              "no valid outputs available",
	ALStatusSyncError:                   "synchronization error",
	ALStatusSMWatchdog:                  "sync manager watchdog",
	ALStatusInvalidOutputConfig:         "invalid output configuration",
	ALStatusInvalidInputConfig:          "invalid input configuration",
	ALStatusInvalidWatchdogConfig:       "invalid watchdog configuration",
	ALStatusSlaveNeedsColdStart:         "subdevice needs cold start",
	ALStatusSlaveNeedsInit:              "subdevice needs init",
	ALStatusSlaveNeedsPreOp:             "subdevice needs preop",
	ALStatusSlaveNeedsSafeOp:            "subdevice needs safeop",
	ALStatusInvalidDCSyncConfig:         "invalid distributed clock sync configuration",
	ALStatusDCSyncTimeoutError:          "distributed clock sync timeout",
}

// Description returns a human-readable diagnostic for the code, or a
// generic fallback for codes outside the known table.
func (c ALStatusCode) Description() string {
	if d, ok := alStatusDescriptions[c]; ok {
		return d
	}
	return fmt.Sprintf("unknown al status code 0x%04x", uint16(c))
}
