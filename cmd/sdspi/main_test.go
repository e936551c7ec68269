package main

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/daedaluz/sdspi/session"
)

func newTestRepl() (*repl, *bytes.Buffer) {
	out := &bytes.Buffer{}
	r := &repl{sess: session.New(), out: out, scanner: bufio.NewScanner(strings.NewReader(""))}
	return r, out
}

func TestParseUint32AcceptsHexAndDecimal(t *testing.T) {
	v, ok := parseUint32([]string{"0x1AA"})
	assert.True(t, ok)
	assert.Equal(t, uint32(0x1AA), v)

	v, ok = parseUint32([]string{"512"})
	assert.True(t, ok)
	assert.Equal(t, uint32(512), v)

	_, ok = parseUint32([]string{"not-a-number"})
	assert.False(t, ok)

	_, ok = parseUint32(nil)
	assert.False(t, ok)
}

func TestFaultVerbTogglesFaultTolerant(t *testing.T) {
	r, _ := newTestRepl()

	r.fault([]string{"tolerant"})
	assert.True(t, r.sess.FaultTolerant)

	r.fault([]string{"intolerant"})
	assert.False(t, r.sess.FaultTolerant)

	r.fault([]string{"sideways"})
	assert.False(t, r.sess.FaultTolerant, "an unrecognised fault argument must not change state")
}

func TestRetryVerbSetsRetryCount(t *testing.T) {
	r, _ := newTestRepl()
	r.retry([]string{"5"})
	assert.Equal(t, uint32(5), r.sess.RetryCount)
}

func TestDispatchUnopenedDeviceRefusesCommands(t *testing.T) {
	r, out := newTestRepl()
	assert.False(t, r.requireOpen())
	r.dispatch([]string{"cmd0"})
	assert.Empty(t, out.String())
}

func TestByeStopsTheLoop(t *testing.T) {
	r, _ := newTestRepl()
	r.dispatch([]string{"bye"})
	assert.True(t, r.done)
}

func TestVerboseAndQuietToggleSessionFlag(t *testing.T) {
	r, _ := newTestRepl()
	r.dispatch([]string{"quiet"})
	assert.False(t, r.sess.Verbose)
	r.dispatch([]string{"verbose"})
	assert.True(t, r.sess.Verbose)
}

func TestHelpListsEveryVerb(t *testing.T) {
	r, out := newTestRepl()
	r.dispatch([]string{"?"})
	for _, verb := range []string{
		"?", "session?", "verbose", "quiet", "bye", "clock", "open", "close",
		"cmd0", "cmd1", "cmd6", "cmd8", "cmd9", "cmd10", "cmd16", "cmd17", "cmd58",
		"acmd41", "fault tolerant", "fault intolerant", "retry", "push", "pull",
	} {
		assert.Contains(t, out.String(), verb)
	}
}

func TestSessionQueryReportsCurrentState(t *testing.T) {
	r, out := newTestRepl()
	r.sess.ClockFrequency = 4_000_000
	r.dispatch([]string{"session?"})
	assert.Contains(t, out.String(), "Clock Frequency")
	assert.Contains(t, out.String(), "4000000Hz")
}

// scriptedDevice hands out a fixed byte stream, one byte at a time, the
// way a card on the far side of the bus would.
type scriptedDevice struct {
	rx  []byte
	pos int
}

func (d *scriptedDevice) next() byte {
	if d.pos >= len(d.rx) {
		return 0xFF
	}
	b := d.rx[d.pos]
	d.pos++
	return b
}

func (d *scriptedDevice) Close() error          { return nil }
func (d *scriptedDevice) SetSpeed(uint32) error { return nil }
func (d *scriptedDevice) SendOnly([]byte) error { return nil }

func (d *scriptedDevice) Exchange(tx, rx []byte) error {
	for i := range rx {
		rx[i] = d.next()
	}
	return nil
}

func (d *scriptedDevice) ReceiveOnly(n int, maxPolls int) ([]byte, error) {
	out := make([]byte, n)
	for polls := 0; ; polls++ {
		if polls >= maxPolls {
			return nil, errors.New("scriptedDevice: no response start token")
		}
		b := d.next()
		if b != 0xFF {
			out[0] = b
			break
		}
	}
	for i := 1; i < n; i++ {
		out[i] = d.next()
	}
	return out, nil
}

func TestCmd58FlipsHighCapacityFromOCR(t *testing.T) {
	r, _ := newTestRepl()
	// R1 Ready, then OCR C0 FF 80 00: Busy and CCS both set.
	r.sess.Descriptor = &scriptedDevice{rx: []byte{0x00, 0xC0, 0xFF, 0x80, 0x00}}
	r.sess.Verbose = false

	assert.False(t, r.sess.HighCapacity)
	r.dispatch([]string{"cmd58"})
	assert.True(t, r.sess.HighCapacity)

	// Address arithmetic switches with the flip.
	assert.Equal(t, uint32(7), r.sess.WireAddress(7))
}

func TestQuietSuppressesDecodedDump(t *testing.T) {
	r, out := newTestRepl()
	r.sess.Descriptor = &scriptedDevice{rx: []byte{0x01}}
	r.sess.Verbose = false
	r.dispatch([]string{"cmd0"})
	assert.Empty(t, out.String())

	r.sess.Descriptor = &scriptedDevice{rx: []byte{0x01}}
	r.sess.Verbose = true
	r.dispatch([]string{"cmd0"})
	assert.Contains(t, out.String(), "Card State")
}
