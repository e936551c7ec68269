package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaults(t *testing.T) {
	s := New()
	assert.Equal(t, uint16(DefaultBlockLength), s.BlockLength)
	assert.Equal(t, uint32(DefaultPollInterval), s.PollInterval)
	assert.False(t, s.FaultTolerant)
	assert.Zero(t, s.RetryCount)
	assert.False(t, s.HighCapacity)
}

func TestWireAddressStandardCapacity(t *testing.T) {
	s := New()
	s.HighCapacity = false
	s.BlockLength = 512
	assert.Equal(t, uint32(1536), s.WireAddress(3))
}

func TestWireAddressHighCapacity(t *testing.T) {
	s := New()
	s.HighCapacity = true
	assert.Equal(t, uint32(3), s.WireAddress(3))
}

func TestNextAddressAdvancesByBlockLengthOrOne(t *testing.T) {
	s := New()
	s.BlockLength = 512

	s.HighCapacity = false
	assert.Equal(t, uint32(2048), s.NextAddress(1536))

	s.HighCapacity = true
	assert.Equal(t, uint32(4), s.NextAddress(3))
}

func TestLogicalAddressRoundTrips(t *testing.T) {
	s := New()
	s.BlockLength = 512

	s.HighCapacity = false
	assert.Equal(t, uint32(7), s.LogicalAddress(s.WireAddress(7)))

	s.HighCapacity = true
	assert.Equal(t, uint32(7), s.LogicalAddress(s.WireAddress(7)))
}

func TestReportFieldOrderAndUnits(t *testing.T) {
	s := New()
	s.Device = "/dev/spidev0.0"
	s.ClockFrequency = 4_000_000
	s.PollInterval = 500_000
	s.FaultTolerant = true
	s.RetryCount = 3
	s.HighCapacity = true

	want := "  Device                          /dev/spidev0.0\n" +
		"  Clock Frequency                 4000000Hz\n" +
		"  Poll Interval                   500ms\n" +
		"  Fault Tolerant?                 Yes\n" +
		"  Retry Count                     0x03\n" +
		"  High Capacity?                  Yes\n"
	assert.Equal(t, want, s.Report())
}

func TestReportOmitsBlockLengthAndVerbose(t *testing.T) {
	s := New()
	s.BlockLength = 1024
	s.Verbose = true
	report := s.Report()
	assert.NotContains(t, report, "Block Length")
	assert.NotContains(t, report, "Verbose")
}

func TestDeviceDefaultsToNoneWhenUnset(t *testing.T) {
	s := New()
	assert.Contains(t, s.Report(), "none")
}
