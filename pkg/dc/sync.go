package dc

import (
	"fmt"
	"time"
)

// SyncMode mirrors ethercrab's DcSync enum (src/subdevice/dc.rs): whether a
// SubDevice free-runs, synchronises on SYNC0 alone, or on SYNC0 and SYNC1
// together.
type SyncMode uint8

const (
	// SyncDisabled runs the SubDevice without a distributed-clock pulse.
	SyncDisabled SyncMode = iota
	// Sync0 drives the SubDevice from the SYNC0 pulse alone.
	Sync0
	// Sync01 drives the SubDevice from both SYNC0 and SYNC1.
	Sync01
)

func (m SyncMode) String() string {
	switch m {
	case SyncDisabled:
		return "disabled"
	case Sync0:
		return "SYNC0"
	case Sync01:
		return "SYNC0+SYNC1"
	default:
		return fmt.Sprintf("SyncMode(%d)", uint8(m))
	}
}

// Config is one SubDevice's distributed-clock sync configuration: the mode,
// the SYNC0 period every mode but Disabled requires, and the SYNC1 period
// Sync01 additionally uses. Sync1Shift is carried in the struct but
// ProgramCyclicOperation does not write it to the device.
type Config struct {
	Mode        SyncMode
	Sync0Period time.Duration
	Sync1Period time.Duration
	Sync1Shift  time.Duration
}

func (c Config) String() string {
	switch c.Mode {
	case Sync0:
		return fmt.Sprintf("SYNC0 period %s", c.Sync0Period)
	case Sync01:
		return fmt.Sprintf("SYNC0 period %s, SYNC1 period %s", c.Sync0Period, c.Sync1Period)
	default:
		return c.Mode.String()
	}
}
