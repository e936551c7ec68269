package sdproto

// R1Flags is the single-byte R1 response flag set.
type R1Flags uint8

const (
	R1Ready          R1Flags = 0x00
	R1Idle           R1Flags = 0x01
	R1EraseReset     R1Flags = 0x02
	R1IllegalCommand R1Flags = 0x04
	R1ChecksumError  R1Flags = 0x08
	R1EraseSeqError  R1Flags = 0x10
	R1AddressError   R1Flags = 0x20
	R1ParameterError R1Flags = 0x40
)

// Ready reports whether no R1 flag is set.
func (r R1Flags) Ready() bool { return r == R1Ready }

// Idle reports whether the Idle flag is set. CMD8's R7 reply is only
// followed by its four trailing bytes when this gate holds.
func (r R1Flags) Idle() bool { return r&R1Idle != 0 }

func (r R1Flags) String() string {
	if r == R1Ready {
		return "ready"
	}
	s := ""
	add := func(flag R1Flags, name string) {
		if r&flag != 0 {
			if s != "" {
				s += ","
			}
			s += name
		}
	}
	add(R1Idle, "idle")
	add(R1EraseReset, "erase-reset")
	add(R1IllegalCommand, "illegal-command")
	add(R1ChecksumError, "checksum-error")
	add(R1EraseSeqError, "erase-seq-error")
	add(R1AddressError, "address-error")
	add(R1ParameterError, "parameter-error")
	return s
}

// R3 is the OCR response to CMD58, valid only when R1 is Ready.
type R3 struct {
	R1  R1Flags
	OCR uint32
}

const (
	ocrBitCCS  = 30
	ocrBitBusy = 31
)

// CCS reports the Card Capacity Status bit: set means a block-addressed
// high-capacity card.
func (r R3) CCS() bool { return r.OCR&(1<<ocrBitCCS) != 0 }

// Busy reports whether the card has completed power-up.
func (r R3) Busy() bool { return r.OCR&(1<<ocrBitBusy) != 0 }

// R7 is the interface-condition response to CMD8, valid only when R1 is
// Idle.
type R7 struct {
	R1      R1Flags
	Voltage uint8 // 4 bits at absolute bit offset 20
	Pattern uint8 // 8 bits at absolute bit offset 24
}

// DataToken is the first byte of a data-block response.
type DataToken uint8

const (
	TokenStart      DataToken = 0xFE
	TokenError      DataToken = 0x01
	TokenCCError    DataToken = 0x02
	TokenECCFailure DataToken = 0x04
	TokenOutOfRange DataToken = 0x08
)

// IsError reports whether the token is an error token: a value in
// 0x01..0x0F built from the Error/CCError/ECCFailure/OutOfRange bits.
// Such a token introduces no payload.
func (t DataToken) IsError() bool { return t != 0 && t&0xF0 == 0 }

// DataBlock is the result of a data-block read: R1 gate, the start/error
// token, and (on success) the payload and its trailing CRC16 as received
// on the wire. The caller owns Payload; Go's GC reclaims it, no manual
// release needed.
type DataBlock struct {
	R1      R1Flags
	Token   DataToken
	Payload []byte // nil when Token != TokenStart
	CRC     uint16 // as received; not enforced, only reported
}

// WriteStatus is the response byte after a data-out block.
type WriteStatus uint8

const (
	WriteAccepted WriteStatus = 0x02
	WriteCRCError WriteStatus = 0x05
	WriteError    WriteStatus = 0x06
)

// WriteStatusFromByte extracts bits 3..1 of the raw write-status byte.
func WriteStatusFromByte(b byte) WriteStatus {
	return WriteStatus((b >> 1) & 0x07)
}
