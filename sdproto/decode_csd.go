package sdproto

import (
	"fmt"

	"github.com/daedaluz/sdspi/bitslice"
)

// CSDVersion is the top 2 bits of CSD byte 0.
type CSDVersion uint8

const (
	CSDVersion1 CSDVersion = 0
	CSDVersion2 CSDVersion = 1
)

// CSD holds the fields common to both versions plus the version-specific
// device-size fields. Fields that only exist on one version are zero on
// the other.
type CSD struct {
	Version CSDVersion

	TAAC               uint8
	NSAC               uint8
	TransferRate       uint8
	CCC                uint16
	ReadBlockLength    uint8
	ReadPartial        bool
	WriteMisalign      bool
	ReadMisalign       bool
	DSRImplemented     bool
	DeviceSize         uint32 // 12 bits (v1) or 22 bits (v2)
	ReadCurrentVddMin  uint8  // v1 only
	ReadCurrentVddMax  uint8  // v1 only
	WriteCurrentVddMin uint8  // v1 only
	WriteCurrentVddMax uint8  // v1 only
	DeviceSizeMult     uint8  // v1 only
	EraseBlockEnable   bool
	EraseSectorSize    uint8
	WPGroupSize        uint8
	WPGroupEnable      bool
	WriteSpeedFactor   uint8
	WriteBlockLength   uint8
	WritePartial       bool
	FileFormatGroup    bool
	Copy               bool
	WPPermanent        bool
	WPTemporary        bool
	FileFormat         uint8
	Checksum           uint8
}

// DecodeCSD decodes a 16-byte CSD register payload, branching on version
// for the device-size and current fields. The checksum is always
// extracted as 7 bits for both versions.
func DecodeCSD(data []byte) (CSD, error) {
	if len(data) != 16 {
		return CSD{}, fmt.Errorf("sdproto: CSD payload must be 16 bytes, got %d", len(data))
	}

	// The 16-byte length is checked above, so every fixed-offset field
	// below is in range.
	get := func(offset, length int) uint32 {
		return bitslice.MustSlice(data, offset, length)
	}
	version := CSDVersion(get(0, 2))

	c := CSD{Version: version}
	c.TAAC = uint8(get(8, 8))
	c.NSAC = uint8(get(16, 8))
	c.TransferRate = uint8(get(24, 8))
	c.CCC = uint16(get(32, 12))
	c.ReadBlockLength = uint8(get(44, 4))
	c.ReadPartial = get(48, 1) != 0
	c.WriteMisalign = get(49, 1) != 0
	c.ReadMisalign = get(50, 1) != 0
	c.DSRImplemented = get(51, 1) != 0

	switch version {
	case CSDVersion1:
		c.DeviceSize = get(54, 12)
		c.ReadCurrentVddMin = uint8(get(66, 3))
		c.ReadCurrentVddMax = uint8(get(69, 3))
		c.WriteCurrentVddMin = uint8(get(72, 3))
		c.WriteCurrentVddMax = uint8(get(75, 3))
		c.DeviceSizeMult = uint8(get(78, 3))
	case CSDVersion2:
		c.DeviceSize = get(58, 22)
	default:
		return CSD{}, fmt.Errorf("sdproto: unsupported CSD version %d", version)
	}

	c.EraseBlockEnable = get(81, 1) != 0
	c.EraseSectorSize = uint8(get(82, 7))
	c.WPGroupSize = uint8(get(89, 7))
	c.WPGroupEnable = get(96, 1) != 0
	c.WriteSpeedFactor = uint8(get(99, 3))
	c.WriteBlockLength = uint8(get(102, 4))
	c.WritePartial = get(106, 1) != 0
	c.FileFormatGroup = get(112, 1) != 0
	c.Copy = get(113, 1) != 0
	c.WPPermanent = get(114, 1) != 0
	c.WPTemporary = get(115, 1) != 0
	c.FileFormat = uint8(get(116, 2))
	c.Checksum = uint8(get(120, 7))

	return c, nil
}

// DeviceSizeBytes computes the card capacity in bytes from the decoded
// fields, the way the v1/v2 size formulas in the SD spec define it.
func (c CSD) DeviceSizeBytes() uint64 {
	switch c.Version {
	case CSDVersion1:
		blockLen := uint64(1) << c.ReadBlockLength
		blockNr := uint64(c.DeviceSize+1) << (c.DeviceSizeMult + 2)
		return blockNr * blockLen
	case CSDVersion2:
		return (uint64(c.DeviceSize) + 1) * 512 * 1024
	default:
		return 0
	}
}
