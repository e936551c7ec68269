package sdproto

import (
	"fmt"

	"github.com/daedaluz/sdspi/bitslice"
)

// CID is the 16-byte Card Identification register.
type CID struct {
	ManufacturerID   uint8
	OEMApplication   uint16
	ProductName      [5]byte
	ProductRev       uint8
	SerialNumber     uint32
	ManufactureYear  uint16 // 2000 + decoded 8-bit year field
	ManufactureMonth uint8
	Checksum         uint8
}

// DecodeCID decodes a 16-byte CID payload.
func DecodeCID(data []byte) (CID, error) {
	if len(data) != 16 {
		return CID{}, fmt.Errorf("sdproto: CID payload must be 16 bytes, got %d", len(data))
	}

	// The 16-byte length is checked above, so every fixed-offset field
	// below is in range.
	get := func(offset, length int) uint32 {
		return bitslice.MustSlice(data, offset, length)
	}

	var c CID
	c.ManufacturerID = uint8(get(0, 8))
	c.OEMApplication = uint16(get(8, 16))
	for i := 0; i < 5; i++ {
		c.ProductName[i] = byte(get(24+i*8, 8))
	}
	c.ProductRev = uint8(get(64, 8))
	c.SerialNumber = get(72, 32)
	c.ManufactureYear = 2000 + uint16(get(108, 8))
	c.ManufactureMonth = uint8(get(116, 4))
	c.Checksum = uint8(get(120, 7))

	return c, nil
}
