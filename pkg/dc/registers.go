// Package dc implements distributed clock bring-up: static drift
// compensation via repeated FRMW rounds to the reference SubDevice's system
// time register, and dynamic SYNC0/SYNC1 programming, following the two
// phases described for the bus lifecycle and grounded in ethercrab's
// examples/dc.rs (the FRMW-to-DcTimePort0 shape) and src/subdevice/dc.rs
// (the Disabled/Sync0/Sync01 sync mode enum).
package dc

// Register offsets for the DC block of the ESC register map. These are
// standard ETG.1000.4 addresses; examples/dc.rs only names DcTimePort0, so
// the remainder are adapted from general EtherCAT ESC documentation rather
// than a file present in the retrieved pack (see DESIGN.md).
const (
	regReceiveTimePort0  uint16 = 0x0900 // 4 bytes, port 0 local receive timestamp
	regSystemTime        uint16 = 0x0910 // 8 bytes, free-running local copy of the reference clock
	regSystemTimeOffset  uint16 = 0x0920 // 8 bytes, offset applied to align this device to the reference
	regSystemTimeDelay   uint16 = 0x0928 // 4 bytes, measured propagation delay from the reference device
	regCyclicUnitControl uint16 = 0x0980 // 1 byte, sync0/sync1 enable bits
	regStartTimeCyclicOp uint16 = 0x0990 // 8 bytes, absolute start time of the first SYNC0 pulse
	regSync0CycleTime    uint16 = 0x09A0 // 4 bytes, SYNC0 period in nanoseconds
	regSync1CycleTime    uint16 = 0x09A4 // 4 bytes, SYNC1 period in nanoseconds
)

const (
	cyclicUnitSync0Enable = 1 << 0
	cyclicUnitSync1Enable = 1 << 1
)

// ecatEpochUnixNano is the DC system time epoch, 2000-01-01T00:00:00Z, in
// Unix nanoseconds, per ETG.1000.4. Start times and offsets are nanosecond counts since this
// instant.
const ecatEpochUnixNano int64 = 946684800_000000000
