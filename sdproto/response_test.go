package sdproto

import (
	"bytes"
	"errors"
	"testing"
)

// fakeTransport scripts a fixed byte stream for ReceiveOnly/Exchange and
// records everything sent via SendOnly, so protocol logic can be tested
// without a real SPI character device.
type fakeTransport struct {
	rx     []byte // bytes to hand out, one at a time, from Exchange/ReceiveOnly
	pos    int
	sent   [][]byte
	exchgN int
}

func (f *fakeTransport) next() byte {
	if f.pos >= len(f.rx) {
		return 0xFF
	}
	b := f.rx[f.pos]
	f.pos++
	return b
}

func (f *fakeTransport) Exchange(tx, rx []byte) error {
	f.exchgN++
	for i := range rx {
		rx[i] = f.next()
	}
	return nil
}

func (f *fakeTransport) SendOnly(req []byte) error {
	cp := make([]byte, len(req))
	copy(cp, req)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) ReceiveOnly(n int, maxPolls int) ([]byte, error) {
	// Mimic spidev.Device.ReceiveOnly: poll (discard 0xFF) for the first
	// byte, then read the rest one-for-one.
	for i := 0; i < maxPolls; i++ {
		b := f.next()
		if b != 0xFF {
			out := make([]byte, n)
			out[0] = b
			for j := 1; j < n; j++ {
				out[j] = f.next()
			}
			return out, nil
		}
	}
	return nil, errors.New("fakeTransport: exhausted poll budget")
}

func TestSendCommandFramesAndSends(t *testing.T) {
	ft := &fakeTransport{}
	if err := SendCommand(ft, 0, 0); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if len(ft.sent) != 1 {
		t.Fatalf("expected exactly one SendOnly call, got %d", len(ft.sent))
	}
	want := Frame(0, 0)
	if !bytes.Equal(ft.sent[0], want[:]) {
		t.Fatalf("sent frame = % x, want % x", ft.sent[0], want)
	}
}

func TestReadR1Ready(t *testing.T) {
	ft := &fakeTransport{rx: []byte{0xFF, 0xFF, 0x00}}
	r1, err := ReadR1(ft)
	if err != nil {
		t.Fatalf("ReadR1: %v", err)
	}
	if !r1.Ready() {
		t.Fatalf("expected Ready, got %v", r1)
	}
}

func TestReadR1Idle(t *testing.T) {
	ft := &fakeTransport{rx: []byte{0x01}}
	r1, err := ReadR1(ft)
	if err != nil {
		t.Fatalf("ReadR1: %v", err)
	}
	if !r1.Idle() || r1.Ready() {
		t.Fatalf("expected idle-only flags, got %v", r1)
	}
}

func TestReadR3DecodesOCRAndCCS(t *testing.T) {
	// R1 = Ready, OCR = 0xC0FF8000 (CCS and Busy both set).
	ft := &fakeTransport{rx: []byte{0x00, 0xC0, 0xFF, 0x80, 0x00}}
	r3, err := ReadR3(ft)
	if err != nil {
		t.Fatalf("ReadR3: %v", err)
	}
	if !r3.CCS() {
		t.Fatalf("expected CCS set from OCR %#x", r3.OCR)
	}
	if !r3.Busy() {
		t.Fatalf("expected Busy set from OCR %#x", r3.OCR)
	}
}

func TestReadR3NotReadySkipsOCR(t *testing.T) {
	ft := &fakeTransport{rx: []byte{0x04}} // illegal command, not ready
	r3, err := ReadR3(ft)
	if err != nil {
		t.Fatalf("ReadR3: %v", err)
	}
	if r3.OCR != 0 {
		t.Fatalf("expected zero OCR when R1 not ready, got %#x", r3.OCR)
	}
}

func TestReadR7DecodesVoltageAndPattern(t *testing.T) {
	// R1 = Idle, trailing 4 bytes encode voltage nibble 0x1 at bits [20,24)
	// and echo pattern 0xAA at bits [24,32).
	ft := &fakeTransport{rx: []byte{0x01, 0x00, 0x00, 0x01, 0xAA}}
	r7, err := ReadR7(ft)
	if err != nil {
		t.Fatalf("ReadR7: %v", err)
	}
	if r7.Voltage != 0x1 {
		t.Fatalf("Voltage = %#x, want 0x1", r7.Voltage)
	}
	if r7.Pattern != 0xAA {
		t.Fatalf("Pattern = %#x, want 0xAA", r7.Pattern)
	}
}

func TestReadDataBlockHappyPath(t *testing.T) {
	payload := bytes.Repeat([]byte{0x55}, 8)
	stream := []byte{0x00, 0xFE} // R1 ready, then start token
	stream = append(stream, payload...)
	stream = append(stream, 0x12, 0x34) // CRC16
	ft := &fakeTransport{rx: stream}

	db, err := ReadDataBlock(ft, 8)
	if err != nil {
		t.Fatalf("ReadDataBlock: %v", err)
	}
	if db.Token != TokenStart {
		t.Fatalf("Token = %#x, want TokenStart", db.Token)
	}
	if !bytes.Equal(db.Payload, payload) {
		t.Fatalf("Payload = % x, want % x", db.Payload, payload)
	}
	if db.CRC != 0x1234 {
		t.Fatalf("CRC = %#x, want 0x1234", db.CRC)
	}
}

func TestReadDataBlockNotReady(t *testing.T) {
	ft := &fakeTransport{rx: []byte{0x20}} // address error
	_, err := ReadDataBlock(ft, 8)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestReadDataBlockErrorToken(t *testing.T) {
	stream := []byte{0x00, 0x04} // R1 ready, ECC failure token
	ft := &fakeTransport{rx: stream}
	db, err := ReadDataBlock(ft, 8)
	if err != nil {
		t.Fatalf("ReadDataBlock: %v", err)
	}
	if db.Token != TokenECCFailure {
		t.Fatalf("Token = %#x, want TokenECCFailure", db.Token)
	}
	if db.Payload != nil {
		t.Fatalf("expected nil payload on error token, got % x", db.Payload)
	}
}

func TestWriteDataBlockAcceptedAfterBusy(t *testing.T) {
	// Status byte encodes WriteAccepted (0x02 at bits 3..1 => raw 0x05),
	// then two busy (0x00) polls, then a non-zero release byte.
	raw := byte(WriteAccepted<<1) | 0x01
	stream := []byte{raw, 0x00, 0x00, 0xFF}
	ft := &fakeTransport{rx: stream}

	payload := bytes.Repeat([]byte{0xAB}, 4)
	status, err := WriteDataBlock(ft, payload)
	if err != nil {
		t.Fatalf("WriteDataBlock: %v", err)
	}
	if status != WriteAccepted {
		t.Fatalf("status = %#x, want WriteAccepted", status)
	}
	if len(ft.sent) != 1 {
		t.Fatalf("expected one SendOnly call for the data-out block, got %d", len(ft.sent))
	}
	sent := ft.sent[0]
	if len(sent) != 1+len(payload) {
		t.Fatalf("sent %d bytes, want token + %d payload bytes", len(sent), len(payload))
	}
	if sent[0] != byte(TokenStart) {
		t.Fatalf("first sent byte = %#x, want TokenStart", sent[0])
	}
	if !bytes.Equal(sent[1:], payload) {
		t.Fatalf("sent payload = % x, want % x", sent[1:], payload)
	}
}

func TestWriteDataBlockCRCError(t *testing.T) {
	raw := byte(WriteCRCError<<1) | 0x01
	ft := &fakeTransport{rx: []byte{raw}}
	status, err := WriteDataBlock(ft, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("WriteDataBlock: %v", err)
	}
	if status != WriteCRCError {
		t.Fatalf("status = %#x, want WriteCRCError", status)
	}
}
