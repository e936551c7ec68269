// Package session holds the mutable state of one interactive sdspi run:
// the open device handle, the negotiated clock/block parameters, and the
// fault-handling knobs the transfer loops consult. It replaces the source
// tool's process-globals with a single value the CLI layer owns and passes
// explicitly to every operation.
package session

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/daedaluz/sdspi/sdproto"
	"github.com/daedaluz/sdspi/spidev"
)

// Default session parameters, matching the source tool's initial values.
const (
	DefaultBlockLength  = 512
	DefaultPollInterval = 1_000_000 // microseconds
)

// Device is what a Session needs from an open descriptor: the protocol
// Transport plus the lifecycle/clock operations the CLI's open/close/clock
// verbs drive. *spidev.Device satisfies it; tests substitute a scripted
// fake so transfer.Push/Pull can run without real hardware.
type Device interface {
	sdproto.Transport
	Close() error
	SetSpeed(hz uint32) error
}

// Session is the single owner of device and protocol state for one run.
// It is not safe for concurrent use except for Interrupted, which a signal
// handler goroutine may set at any time.
type Session struct {
	Device     string
	Descriptor Device

	ClockFrequency uint32
	Mode           uint32
	BitsPerWord    uint8

	BlockLength   uint16
	PollInterval  uint32 // microseconds between idle-polls of CMD1/ACMD41
	HighCapacity  bool   // set as a side effect of observing R3.OCR.CCS
	FaultTolerant bool
	RetryCount    uint32
	Verbose       bool

	// Interrupted is set by the process's SIGINT handler and polled once
	// per block-transfer iteration; it is never touched mid-exchange.
	Interrupted atomic.Bool
}

// New returns a Session with the source tool's documented defaults.
func New() *Session {
	return &Session{
		BitsPerWord:  8,
		BlockLength:  DefaultBlockLength,
		PollInterval: DefaultPollInterval,
	}
}

// Open acquires a new SPI character device handle, releasing any handle
// already held: "acquiring a new one releases the prior one."
func (s *Session) Open(path string) error {
	if s.Descriptor != nil {
		_ = s.Descriptor.Close()
		s.Descriptor = nil
	}
	dev, err := spidev.Open(path, spidev.Config{
		Mode:  s.Mode,
		Bits:  s.BitsPerWord,
		Speed: s.ClockFrequency,
	})
	if err != nil {
		return err
	}
	s.Device = path
	s.Descriptor = dev
	return nil
}

// Close releases the device handle, if any.
func (s *Session) Close() error {
	if s.Descriptor == nil {
		return nil
	}
	err := s.Descriptor.Close()
	s.Descriptor = nil
	s.Device = ""
	return err
}

// IsOpen reports whether a device handle is currently held.
func (s *Session) IsOpen() bool {
	return s.Descriptor != nil
}

// SetClockFrequency updates the session's clock knob and, if a device is
// already open, re-applies it via the speed ioctl immediately.
func (s *Session) SetClockFrequency(hz uint32) error {
	s.ClockFrequency = hz
	if s.Descriptor != nil {
		return s.Descriptor.SetSpeed(hz)
	}
	return nil
}

// WireAddress translates a logical block index to the address that goes on
// the wire in a CMD17/CMD24 argument: verbatim for high-capacity cards,
// scaled by BlockLength for standard-capacity cards.
func (s *Session) WireAddress(logical uint32) uint32 {
	if s.HighCapacity {
		return logical
	}
	return logical * uint32(s.BlockLength)
}

// LogicalAddress is the inverse of WireAddress, used when reporting a bad
// block: the operator always sees the logical block index, never the wire
// address.
func (s *Session) LogicalAddress(wire uint32) uint32 {
	if s.HighCapacity {
		return wire
	}
	return wire / uint32(s.BlockLength)
}

// NextAddress advances a wire address by one block: +1 for high-capacity
// cards (block-addressed), +BlockLength otherwise (byte-addressed).
func (s *Session) NextAddress(wire uint32) uint32 {
	if s.HighCapacity {
		return wire + 1
	}
	return wire + uint32(s.BlockLength)
}

// Report formats the session? dump the way the source tool lays it out:
// the fixed-width label column, then device, clock frequency, poll
// interval in milliseconds, fault-tolerant yes/no, retry count,
// high-capacity yes/no. Block length and verbosity are deliberately not
// part of this dump.
func (s *Session) Report() string {
	yesNo := func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	}
	device := s.Device
	if device == "" {
		device = "none"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  %-32s%s\n", "Device", device)
	fmt.Fprintf(&b, "  %-32s%dHz\n", "Clock Frequency", s.ClockFrequency)
	fmt.Fprintf(&b, "  %-32s%dms\n", "Poll Interval", s.PollInterval/1000)
	fmt.Fprintf(&b, "  %-32s%s\n", "Fault Tolerant?", yesNo(s.FaultTolerant))
	fmt.Fprintf(&b, "  %-32s0x%02x\n", "Retry Count", s.RetryCount)
	fmt.Fprintf(&b, "  %-32s%s\n", "High Capacity?", yesNo(s.HighCapacity))
	return b.String()
}
