// Package ethercat is a pure Go implementation of an EtherCAT MainDevice:
// a protocol master that discovers, configures and cyclically exchanges
// process data with a ring of SubDevices over raw Ethernet.
//
// The package itself only holds the types shared by every sub-package
// (the wire socket abstraction, the configuration surface and the error
// taxonomy). Protocol logic lives in the pkg/ sub-packages: wire (codec),
// frame (frame pool), pdu (PDU loop and commands), subdevice (discovery
// and configuration), eeprom (SII access), mailbox (CoE transport), group
// (process data image and cyclic exchange) and dc (distributed clocks).
package ethercat

const (
	// EtherTypeEcat is the EtherType carried by every EtherCAT Ethernet frame.
	EtherTypeEcat = 0x88A4

	// MinEthernetFrameLen is the minimum Ethernet frame length (excluding
	// the 4-byte FCS) that must be sent on the wire; shorter frames are
	// padded with zeros rather than relying on the kernel to do it.
	MinEthernetFrameLen = 60

	// EthernetHeaderLen is the size in bytes of the Ethernet header
	// (destination MAC, source MAC, EtherType).
	EthernetHeaderLen = 14
)

// DefaultMasterMAC is the source MAC address used on outgoing frames when
// none is configured. It is customary among software EtherCAT masters and
// carries no special meaning.
var DefaultMasterMAC = [6]byte{0x10, 0x10, 0x10, 0x10, 0x10, 0x10}

// BroadcastMAC is the destination MAC address used on every EtherCAT frame;
// every SubDevice processes the frame regardless of the value so broadcast
// is customary rather than required by the protocol.
var BroadcastMAC = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
