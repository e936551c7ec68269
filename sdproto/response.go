package sdproto

import (
	"encoding/binary"

	"github.com/daedaluz/sdspi/bitslice"
	"github.com/daedaluz/sdspi/internal/protoerr"
)

// ErrNotReady is returned when a data-block read's gating R1 byte is not
// Ready: no block follows on the wire in that case.
var ErrNotReady = protoerr.New("sdproto: R1 not ready, no block follows")

// SendCommand frames and transmits a command; it does not read any
// response (callers pair it with one of the Read* functions below).
func SendCommand(t Transport, index uint8, arg uint32) error {
	frame := Frame(index, arg)
	return t.SendOnly(frame[:])
}

// ReadR1 reads the single R1 byte, polling for the response start token.
func ReadR1(t Transport) (R1Flags, error) {
	b, err := t.ReceiveOnly(1, DefaultMaxPolls)
	if err != nil {
		return 0, err
	}
	return R1Flags(b[0]), nil
}

// ReadR3 reads R1 and, only if Ready, the 32-bit OCR that follows.
func ReadR3(t Transport) (R3, error) {
	r1, err := ReadR1(t)
	if err != nil {
		return R3{}, err
	}
	if !r1.Ready() {
		return R3{R1: r1}, nil
	}
	b, err := t.ReceiveOnly(4, DefaultMaxPolls)
	if err != nil {
		return R3{R1: r1}, err
	}
	return R3{R1: r1, OCR: binary.BigEndian.Uint32(b)}, nil
}

// ReadR7 reads R1 and, only if Idle, the voltage-accepted and echo-pattern
// fields bit-sliced from the trailing 4 bytes.
func ReadR7(t Transport) (R7, error) {
	r1, err := ReadR1(t)
	if err != nil {
		return R7{}, err
	}
	if !r1.Idle() {
		return R7{R1: r1}, nil
	}
	b, err := t.ReceiveOnly(4, DefaultMaxPolls)
	if err != nil {
		return R7{R1: r1}, err
	}
	voltage, err := bitslice.Slice(b, 20, 4)
	if err != nil {
		return R7{R1: r1}, err
	}
	pattern, err := bitslice.Slice(b, 24, 8)
	if err != nil {
		return R7{R1: r1}, err
	}
	return R7{R1: r1, Voltage: uint8(voltage), Pattern: uint8(pattern)}, nil
}

// ReadDataBlock reads an R1 gate followed by a data block of the given
// payload length L: it always clocks in 1 token byte, L payload bytes and a
// trailing 2-byte CRC16, and fills Payload and CRC only if the token is
// TokenStart.
func ReadDataBlock(t Transport, length int) (DataBlock, error) {
	r1, err := ReadR1(t)
	if err != nil {
		return DataBlock{}, err
	}
	if !r1.Ready() {
		return DataBlock{R1: r1}, ErrNotReady
	}

	raw, err := t.ReceiveOnly(1+length+2, DefaultMaxPolls)
	if err != nil {
		return DataBlock{R1: r1}, err
	}

	token := DataToken(raw[0])
	if token != TokenStart {
		return DataBlock{R1: r1, Token: token}, nil
	}

	payload := make([]byte, length)
	copy(payload, raw[1:1+length])
	recvCRC := binary.BigEndian.Uint16(raw[1+length : 3+length])

	return DataBlock{R1: r1, Token: token, Payload: payload, CRC: recvCRC}, nil
}

// WriteDataBlock sends a data-out block (token 0xFE + payload), paired
// with a preceding CMD24 Ready R1, then reads the write status and, if
// accepted, busy-polls until the card releases the bus.
func WriteDataBlock(t Transport, payload []byte) (WriteStatus, error) {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(TokenStart)
	copy(buf[1:], payload)

	if err := t.SendOnly(buf); err != nil {
		return 0, err
	}

	statusByte, err := t.ReceiveOnly(1, DefaultMaxPolls)
	if err != nil {
		return 0, err
	}
	status := WriteStatusFromByte(statusByte[0])
	if status != WriteAccepted {
		return status, nil
	}

	probe := []byte{0xFF}
	resp := make([]byte, 1)
	for i := 0; i < DefaultMaxPolls; i++ {
		if err := t.Exchange(probe, resp); err != nil {
			return status, err
		}
		if resp[0] != 0x00 {
			return status, nil
		}
	}
	return status, protoerr.New("sdproto: write busy-poll exceeded bound")
}
