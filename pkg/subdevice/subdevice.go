package subdevice

import (
	"fmt"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/pkg/eeprom"
	"github.com/go-ethercat/master/pkg/mailbox"
)

// Segment is a contiguous, byte-addressed window into a group's logical
// process data image.
type Segment struct {
	Offset uint32
	Length uint32
}

// SubDevice is one discovered bus participant and everything learned about
// it during configuration.
type SubDevice struct {
	// Position is the auto-increment ring position used during discovery,
	// before a station address exists.
	Position uint16
	// Station is the configured station address assigned by the master.
	Station uint16

	Identity eeprom.Identity
	Mailbox  eeprom.MailboxInfo
	SyncManagers []eeprom.SyncManagerDescriptor
	FMMUs        []eeprom.FMMUUsage
	HasDC        bool

	Inputs  Segment
	Outputs Segment

	State ALState

	// SDO is non-nil only for devices whose EEPROM mailbox info reports
	// CoE support and whose mailbox SyncManagers have been brought up.
	SDO *mailbox.SDOClient

	// eepromMap holds the full category walk result (General/Strings
	// included), set once by Configurator.Configure. hasEeprom
	// distinguishes "not configured yet" from a genuinely empty Map.
	eepromMap eeprom.Map
	hasEeprom bool
}

// HasCoE reports whether this device supports CoE mailbox communication.
func (s *SubDevice) HasCoE() bool { return s.Mailbox.HasCoE() }

// EEPROM returns the full decoded category map for this device, including
// the General and Strings categories that SyncManagers/FMMUs/HasDC surface
// only a subset of. It errors if called before Configurator.Configure has
// walked this device's EEPROM.
func (s *SubDevice) EEPROM() (eeprom.Map, error) {
	if !s.hasEeprom {
		return eeprom.Map{}, ethercat.ErrEepromMissing
	}
	return s.eepromMap, nil
}

// String renders an identifying label for logging.
func (s *SubDevice) String() string {
	return fmt.Sprintf("0x%04x vendor=0x%08x product=0x%08x", s.Station, s.Identity.VendorID, s.Identity.Product)
}
