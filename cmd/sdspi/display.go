package main

import (
	"fmt"
	"io"

	"github.com/daedaluz/sdspi/crc"
	"github.com/daedaluz/sdspi/sdproto"
)

// The display* helpers below mirror the source tool's fixed-width
// "  %-32s..." dump format, label then value, one field per line.

func displayString(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-32s%s\n", label, value)
}

func displayFlag(w io.Writer, label string, v bool) {
	n := 0
	if v {
		n = 1
	}
	yesNo := "No"
	if v {
		yesNo = "Yes"
	}
	fmt.Fprintf(w, "  %-32s0x%02x (%s)\n", label, n, yesNo)
}

func displayVersion(w io.Writer, label string, major, minor uint8) {
	fmt.Fprintf(w, "  %-32s%d.%d\n", label, major, minor)
}

func displayDate(w io.Writer, label string, year uint16, month uint8) {
	fmt.Fprintf(w, "  %-32s%d/%02d\n", label, year, month)
}

func display8(w io.Writer, label string, v uint8) {
	fmt.Fprintf(w, "  %-32s0x%02x\n", label, v)
}

func describe8(w io.Writer, label string, v uint8, description string) {
	fmt.Fprintf(w, "  %-32s0x%02x (%s)\n", label, v, description)
}

func display16(w io.Writer, label string, v uint16) {
	fmt.Fprintf(w, "  %-32s0x%04x\n", label, v)
}

func display32(w io.Writer, label string, v uint32) {
	fmt.Fprintf(w, "  %-32s0x%08x\n", label, v)
}

func describe32(w io.Writer, label string, v uint32, description string) {
	fmt.Fprintf(w, "  %-32s0x%08x (%s)\n", label, v, description)
}

func r1Label(r1 sdproto.R1Flags) string {
	switch r1 {
	case sdproto.R1Ready:
		return "Ready"
	case sdproto.R1Idle:
		return "Idle"
	case sdproto.R1EraseReset:
		return "Erase/Reset"
	case sdproto.R1IllegalCommand:
		return "Illegal Command"
	case sdproto.R1ChecksumError:
		return "Checksum Error"
	case sdproto.R1EraseSeqError:
		return "Erase Sequence Error"
	case sdproto.R1AddressError:
		return "Address Error"
	case sdproto.R1ParameterError:
		return "Parameter Error"
	default:
		return "Unknown"
	}
}

func dumpR1(w io.Writer, r1 sdproto.R1Flags) {
	describe8(w, "Card State", uint8(r1), r1Label(r1))
	fmt.Fprintln(w)
}

func dumpR3(w io.Writer, r3 sdproto.R3) {
	if r3.Busy() {
		describe32(w, "OCR", 1<<31, "Busy")
	} else {
		describe32(w, "OCR", 0, "Idle")
	}
	if r3.CCS() {
		describe32(w, "", 1<<30, "High Capacity")
	} else {
		describe32(w, "", 0, "Standard Capacity")
	}
	voltageWindows := []struct {
		bit   uint
		label string
	}{
		{23, "3.5V - 3.6V OK"},
		{22, "3.4V - 3.5V OK"},
		{21, "3.3V - 3.4V OK"},
		{20, "3.2V - 3.3V OK"},
		{19, "3.1V - 3.2V OK"},
		{18, "3.0V - 3.1V OK"},
		{17, "2.9V - 3.0V OK"},
		{16, "2.8V - 2.9V OK"},
		{15, "2.7V - 2.8V OK"},
		{7, "Low Voltage OK"},
	}
	for _, vw := range voltageWindows {
		if r3.OCR&(1<<vw.bit) != 0 {
			describe32(w, "", 1<<vw.bit, vw.label)
		}
	}
	fmt.Fprintln(w)
}

func dumpR7(w io.Writer, r7 sdproto.R7) {
	voltageLabel := "Unknown"
	switch r7.Voltage {
	case 1:
		voltageLabel = "2.7V - 3.6V"
	case 2:
		voltageLabel = "Low Voltage"
	}
	describe8(w, "Voltage Accepted", r7.Voltage, voltageLabel)
	display8(w, "Check Pattern", r7.Pattern)
	fmt.Fprintln(w)
}

func dumpCSD(w io.Writer, c sdproto.CSD) {
	switch c.Version {
	case sdproto.CSDVersion1:
		displayVersion(w, "CSD Version", 1, 0)
	case sdproto.CSDVersion2:
		displayVersion(w, "CSD Version", 2, 0)
	}
	display8(w, "TAAC", c.TAAC)
	display8(w, "NSAC", c.NSAC)
	display8(w, "Maximum Transfer Rate", c.TransferRate)
	display16(w, "Command Classes", c.CCC)
	display8(w, "Maximum Read Block Length", c.ReadBlockLength)
	displayFlag(w, "Partial Block Reads?", c.ReadPartial)
	displayFlag(w, "Write Block Misalignment?", c.WriteMisalign)
	displayFlag(w, "Read Block Misalignment?", c.ReadMisalign)
	displayFlag(w, "DSR Implemented?", c.DSRImplemented)
	if c.Version == sdproto.CSDVersion1 {
		display16(w, "Device Size", uint16(c.DeviceSize))
		display8(w, "Max Read Current @ min(Vdd)", c.ReadCurrentVddMin)
		display8(w, "Max Read Current @ max(Vdd)", c.ReadCurrentVddMax)
		display8(w, "Max Write Current @ min(Vdd)", c.WriteCurrentVddMin)
		display8(w, "Max Write Current @ max(Vdd)", c.WriteCurrentVddMax)
		display8(w, "Device Size Multiplier", c.DeviceSizeMult)
	} else {
		display32(w, "Device Size (Block Count)", c.DeviceSize)
	}
	displayFlag(w, "Erase Block Enabled?", c.EraseBlockEnable)
	display8(w, "Erase Sector Size", c.EraseSectorSize)
	display8(w, "Write Protect Group Size", c.WPGroupSize)
	displayFlag(w, "Write Protect Group Enabled?", c.WPGroupEnable)
	display8(w, "Write Speed Factor", c.WriteSpeedFactor)
	display8(w, "Max Write Block Length", c.WriteBlockLength)
	displayFlag(w, "Partial Block Writes?", c.WritePartial)
	displayFlag(w, "File Format Group?", c.FileFormatGroup)
	displayFlag(w, "Copy?", c.Copy)
	displayFlag(w, "Permanent Write Protection?", c.WPPermanent)
	displayFlag(w, "Temporary Write Protection?", c.WPTemporary)
	display8(w, "File Format", c.FileFormat)
	display8(w, "CSD Checksum", c.Checksum)
	fmt.Fprintf(w, "  %-32s%d bytes\n", "Capacity", c.DeviceSizeBytes())
	fmt.Fprintln(w)
}

func dumpCID(w io.Writer, c sdproto.CID) {
	display8(w, "Manufacturer", c.ManufacturerID)
	displayString(w, "OEM/Application", oemString(c.OEMApplication))
	displayString(w, "Product", string(c.ProductName[:]))
	displayVersion(w, "Revision", c.ProductRev>>4, c.ProductRev&0x0F)
	display32(w, "Serial Number", c.SerialNumber)
	displayDate(w, "Manufactured", c.ManufactureYear, c.ManufactureMonth)
	display8(w, "Checksum", c.Checksum)
	fmt.Fprintln(w)
}

func oemString(v uint16) string {
	return string([]byte{byte(v >> 8), byte(v)})
}

func blockTokenLabel(t sdproto.DataToken) string {
	switch t {
	case sdproto.TokenStart:
		return "Block Start"
	case sdproto.TokenError:
		return "Error"
	case sdproto.TokenCCError:
		return "CC Error"
	case sdproto.TokenECCFailure:
		return "Card ECC Failure"
	case sdproto.TokenOutOfRange:
		return "Out of Range"
	default:
		return "Unknown"
	}
}

func dumpBlock(w io.Writer, db sdproto.DataBlock) {
	describe8(w, "Token", uint8(db.Token), blockTokenLabel(db.Token))
	if db.Token == sdproto.TokenStart {
		calculated := crc.CRC16CCITT(db.Payload)
		display16(w, "Checksum (received)", db.CRC)
		display16(w, "Checksum (calculated)", calculated)
	}
	fmt.Fprintln(w)
}
