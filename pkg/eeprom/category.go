package eeprom

import (
	"context"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/internal/crc"
	"github.com/go-ethercat/master/pkg/wire"
)

// Fixed-field word addresses from the SII station area, ETG.2010 table 2.
const (
	wordChecksum = 0x0007 // CRC-8 over words 0x0000-0x0006
	wordVendorID = 0x0008 // 32-bit
	wordProduct  = 0x000A // 32-bit
	wordRevision = 0x000C // 32-bit
	wordSerial   = 0x000E // 32-bit
	wordMailbox  = 0x0018 // standard mailbox recv offset(2)/size(2)/send offset(2)/size(2)
	wordMbxProto = 0x001C // supported mailbox protocol bitmask, 1 word

	// firstCategoryWord is the start of the first category header, after
	// the fixed fields.
	firstCategoryWord uint16 = 0x0040
	categoryEnd       uint16 = 0xFFFF
)

// CategoryType identifies the payload format of one EEPROM category.
type CategoryType uint16

const (
	CategoryStrings       CategoryType = 10
	CategoryDataTypes     CategoryType = 20
	CategoryGeneral       CategoryType = 30
	CategoryFMMU          CategoryType = 40
	CategorySyncManager   CategoryType = 41
	CategoryTxPDO         CategoryType = 50
	CategoryRxPDO         CategoryType = 51
	CategoryDC            CategoryType = 60
)

// GeneralInfo decodes the ETG.2010 General category: device classification
// (as indices into the Strings table) and the mailbox protocol detail
// bitmasks beyond the plain supported-protocol mask in MailboxInfo.
type GeneralInfo struct {
	GroupIndex uint8 // index into Map.Strings, 0 means "none"
	ImageIndex uint8
	OrderIndex uint8
	NameIndex  uint8
	CoEDetails byte
	FoEDetails byte
	EoEDetails byte
	Flags      byte
}

// Identity is the device's fixed vendor/product/revision/serial identity,
// read from SII words 0x0008-0x000F.
type Identity struct {
	VendorID uint32
	Product  uint32
	Revision uint32
	Serial   uint32
}

// SyncManagerDescriptor is one entry decoded from a CategorySyncManager section.
type SyncManagerDescriptor struct {
	PhysicalStartAddress uint16
	Length               uint16
	ControlByte          byte
	Enable               bool
}

// FMMUUsage is one entry decoded from a CategoryFMMU section: what purpose
// (if any) the corresponding FMMU unit should be configured for.
type FMMUUsage byte

const (
	FMMUUnused FMMUUsage = iota
	FMMUOutputs
	FMMUInputs
	FMMUSyncManagerStatus
)

// MailboxInfo is the fixed-field mailbox configuration block (SM0/SM1
// addresses and sizes before any EEPROM category override) plus the
// supported-protocol bitmask.
type MailboxInfo struct {
	StandardRecvOffset uint16
	StandardRecvSize   uint16
	StandardSendOffset uint16
	StandardSendSize   uint16
	Protocols          uint16
}

// HasCoE reports whether the CoE mailbox protocol bit is set.
func (m MailboxInfo) HasCoE() bool { return m.Protocols&0x0004 != 0 }

// Map is the decoded result of a category walk: identity, mailbox
// configuration and every SyncManager/FMMU/DC/General/Strings section
// found. TxPDO, RxPDO and DataTypes sections are skipped and not recorded.
type Map struct {
	Identity       Identity
	Mailbox        MailboxInfo
	SyncManagers   []SyncManagerDescriptor
	FMMUs          []FMMUUsage
	HasDCDefaults  bool
	DCDefaultsRaw  []byte
	HasGeneral     bool
	General        GeneralInfo
	Strings        []string
}

// String looks up a 1-based Strings table index, returning "" for index 0
// (the SII convention for "no string assigned") or an out-of-range index.
func (m Map) String(index uint8) string {
	if index == 0 || int(index) > len(m.Strings) {
		return ""
	}
	return m.Strings[index-1]
}

// ReadIdentity reads the fixed vendor/product/revision/serial fields.
func (r *Reader) ReadIdentity(ctx context.Context) (Identity, error) {
	data, err := r.ReadBytes(ctx, wordVendorID, 16)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		VendorID: wire.GetUint32(data[0:4]),
		Product:  wire.GetUint32(data[4:8]),
		Revision: wire.GetUint32(data[8:12]),
		Serial:   wire.GetUint32(data[12:16]),
	}, nil
}

// ReadMailboxInfo reads the fixed mailbox configuration block.
func (r *Reader) ReadMailboxInfo(ctx context.Context) (MailboxInfo, error) {
	data, err := r.ReadBytes(ctx, wordMailbox, 10)
	if err != nil {
		return MailboxInfo{}, err
	}
	proto, err := r.ReadBytes(ctx, wordMbxProto, 2)
	if err != nil {
		return MailboxInfo{}, err
	}
	return MailboxInfo{
		StandardRecvOffset: wire.GetUint16(data[0:2]),
		StandardRecvSize:   wire.GetUint16(data[2:4]),
		StandardSendOffset: wire.GetUint16(data[4:6]),
		StandardSendSize:   wire.GetUint16(data[6:8]),
		Protocols:          wire.GetUint16(proto[0:2]),
	}, nil
}

// VerifyChecksum reads the first 7 words (0x0000-0x0006) plus the checksum
// word (0x0007) and reports whether the CRC-8 over the first 7 words
// matches the stored value.
func (r *Reader) VerifyChecksum(ctx context.Context) error {
	data, err := r.ReadBytes(ctx, 0x0000, 16)
	if err != nil {
		return err
	}
	got := crc.Sum8(data[0:14])
	want := data[14]
	if byte(got) != want {
		return ethercat.ErrEepromDecode
	}
	return nil
}

// WalkCategories reads every category starting at firstCategoryWord,
// dispatching known types into the returned Map and skipping (but not
// erroring on) unrecognized ones, until the End marker (0xFFFF) is found.
// Each category header is 2 words (type, length in words) and its payload
// follows immediately.
func (r *Reader) WalkCategories(ctx context.Context) (Map, error) {
	m := Map{}

	identity, err := r.ReadIdentity(ctx)
	if err != nil {
		return Map{}, err
	}
	m.Identity = identity

	mailbox, err := r.ReadMailboxInfo(ctx)
	if err != nil {
		return Map{}, err
	}
	m.Mailbox = mailbox

	word := firstCategoryWord
	for {
		header, err := r.ReadBytes(ctx, word, 4)
		if err != nil {
			return Map{}, err
		}
		catType := CategoryType(wire.GetUint16(header[0:2]))
		lengthWords := wire.GetUint16(header[2:4])
		if catType == categoryEnd {
			break
		}
		if lengthWords == 0 {
			// Zero-length categories carry no payload; treat as present
			// but empty rather than looping forever.
			word += 2
			continue
		}

		payload, err := r.ReadBytes(ctx, word+2, int(lengthWords)*2)
		if err != nil {
			return Map{}, err
		}

		switch catType {
		case CategorySyncManager:
			m.SyncManagers = append(m.SyncManagers, decodeSyncManagers(payload)...)
		case CategoryFMMU:
			m.FMMUs = append(m.FMMUs, decodeFMMUs(payload)...)
		case CategoryDC:
			m.HasDCDefaults = true
			m.DCDefaultsRaw = payload
		case CategoryStrings:
			m.Strings = decodeStrings(payload)
		case CategoryGeneral:
			m.HasGeneral = true
			m.General = decodeGeneral(payload)
		default:
			// DataTypes/TxPDO/RxPDO are outside the scope needed to bring
			// up FMMU/SyncManager/mailbox configuration.
		}

		word += 2 + lengthWords
	}
	return m, nil
}

func decodeSyncManagers(payload []byte) []SyncManagerDescriptor {
	const entryLen = 8
	var out []SyncManagerDescriptor
	for off := 0; off+entryLen <= len(payload); off += entryLen {
		entry := payload[off : off+entryLen]
		out = append(out, SyncManagerDescriptor{
			PhysicalStartAddress: wire.GetUint16(entry[0:2]),
			Length:               wire.GetUint16(entry[2:4]),
			ControlByte:          entry[4],
			Enable:               entry[6]&0x01 != 0,
		})
	}
	return out
}

func decodeFMMUs(payload []byte) []FMMUUsage {
	out := make([]FMMUUsage, len(payload))
	for i, b := range payload {
		out[i] = FMMUUsage(b)
	}
	return out
}

// decodeGeneral decodes the fixed-layout portion of the ETG.2010 General
// category. Only the fields this reader has a use for are pulled out; the
// rest of the 16+-byte record (current consumption, physical port config,
// reserved bytes) is left undecoded.
func decodeGeneral(payload []byte) GeneralInfo {
	g := GeneralInfo{}
	if len(payload) > 0 {
		g.GroupIndex = payload[0]
	}
	if len(payload) > 1 {
		g.ImageIndex = payload[1]
	}
	if len(payload) > 2 {
		g.OrderIndex = payload[2]
	}
	if len(payload) > 3 {
		g.NameIndex = payload[3]
	}
	if len(payload) > 6 {
		g.CoEDetails = payload[5]
		g.FoEDetails = payload[6]
	}
	if len(payload) > 7 {
		g.EoEDetails = payload[7]
	}
	if len(payload) > 11 {
		g.Flags = payload[11]
	}
	return g
}

// decodeStrings decodes the ETG.2010 Strings category: a 1-byte count
// followed by that many length-prefixed (1 byte each), non-terminated
// strings, in declaration order. The returned slice is 0-indexed; SII
// string indices elsewhere in the map are 1-based, with 0 meaning "unset"
// (see Map.String).
func decodeStrings(payload []byte) []string {
	if len(payload) == 0 {
		return nil
	}
	count := int(payload[0])
	out := make([]string, 0, count)
	pos := 1
	for i := 0; i < count && pos < len(payload); i++ {
		n := int(payload[pos])
		pos++
		end := pos + n
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, string(payload[pos:end]))
		pos = end
	}
	return out
}
