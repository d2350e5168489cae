package subdevice

// ESC register addresses used by the configurator, ETG.1000.4.
const (
	regType                     = 0x0000 // 1 byte
	regConfiguredStationAddress = 0x0010 // 2 bytes
	regALControl                = 0x0120 // 2 bytes
	regALStatus                 = 0x0130 // 2 bytes
	regALStatusCode             = 0x0134 // 2 bytes

	regFMMU0Base   = 0x0600
	regFMMUStride  = 0x10
	fmmuEntryLen   = 16

	regSM0Base  = 0x0800
	regSMStride = 0x08
	smEntryLen  = 8
)

// etherCATSubdeviceType is the device-type byte returned by every conformant
// SubDevice on a read of register 0x0000.
const etherCATSubdeviceType = 0x11
