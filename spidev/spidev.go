// Package spidev drives a Linux SPI character device
// (/dev/spidevB.D) through the SPI_IOC_MESSAGE ioctl, full-duplex. It is
// adapted from daedaluz/goserial's spi subpackage, generalized from a
// single Tx call into the three transport operations the SD-over-SPI wire
// protocol needs: a plain full-duplex exchange, a send-only write, and a
// polling receive that detects the start of a framed response.
package spidev

import (
	"reflect"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"

	"github.com/daedaluz/sdspi/internal/protoerr"
)

const spiIOCMagic = 'k'

type spiIOCTransfer struct {
	txBuf uint64
	rxBuf uint64

	length  uint32
	speedHz uint32

	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNBits        uint8
	rxNBits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

var (
	spiIOCWrMaxSpeedHz  = ioctl.IOW(spiIOCMagic, 4, 4)
	spiIOCWrBitsPerWord = ioctl.IOW(spiIOCMagic, 3, 1)
	spiIOCWrMode32      = ioctl.IOW(spiIOCMagic, 5, 4)
	spiIOCMessage       = ioctl.IOW(spiIOCMagic, 0, unsafe.Sizeof(spiIOCTransfer{}))
)

// Config mirrors the mode/bits/speed knobs session.Session keeps: SPI
// mode byte, fixed at 8 bits per word, and the clock rate in Hz.
type Config struct {
	Mode  uint32
	Bits  uint8
	Speed uint32
}

// Device is an open SPI character device.
type Device struct {
	fd     int
	cfg    Config
	closed bool
}

// ErrClosed is returned by any operation on a Device after Close.
var ErrClosed = protoerr.New("spidev: device already closed")

// Open opens path and programs mode, bits-per-word, and clock speed via
// the three ioctls a Linux spidev expects before the first transfer.
func Open(path string, cfg Config) (*Device, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		return nil, protoerr.Wrap("spidev: open", err)
	}

	speed := cfg.Speed
	if err := ioctl.Ioctl(uintptr(fd), spiIOCWrMaxSpeedHz, uintptr(unsafe.Pointer(&speed))); err != nil {
		syscall.Close(fd)
		return nil, protoerr.Wrap("spidev: set speed", err)
	}

	bits := cfg.Bits
	if err := ioctl.Ioctl(uintptr(fd), spiIOCWrBitsPerWord, uintptr(unsafe.Pointer(&bits))); err != nil {
		syscall.Close(fd)
		return nil, protoerr.Wrap("spidev: set bits per word", err)
	}

	mode := cfg.Mode
	if err := ioctl.Ioctl(uintptr(fd), spiIOCWrMode32, uintptr(unsafe.Pointer(&mode))); err != nil {
		syscall.Close(fd)
		return nil, protoerr.Wrap("spidev: set mode", err)
	}

	return &Device{fd: fd, cfg: cfg}, nil
}

// SetSpeed reprograms the clock rate used by subsequent Exchange calls
// (session.Session's "clock <hz>" verb).
func (d *Device) SetSpeed(hz uint32) error {
	if d.closed {
		return ErrClosed
	}
	if err := ioctl.Ioctl(uintptr(d.fd), spiIOCWrMaxSpeedHz, uintptr(unsafe.Pointer(&hz))); err != nil {
		return protoerr.Wrap("spidev: set speed", err)
	}
	d.cfg.Speed = hz
	return nil
}

func (d *Device) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return syscall.Close(d.fd)
}

// Exchange performs a full-duplex transfer: tx and rx must have equal
// length; rx is filled with the bytes the card clocked back during the
// simultaneous send of tx.
func (d *Device) Exchange(tx, rx []byte) error {
	if d.closed {
		return ErrClosed
	}
	if len(tx) != len(rx) {
		return protoerr.New("spidev: tx/rx length mismatch")
	}
	if len(tx) == 0 {
		return nil
	}

	txHeader := (*reflect.SliceHeader)(unsafe.Pointer(&tx))
	rxHeader := (*reflect.SliceHeader)(unsafe.Pointer(&rx))

	xfer := &spiIOCTransfer{
		txBuf:       uint64(txHeader.Data),
		rxBuf:       uint64(rxHeader.Data),
		length:      uint32(txHeader.Len),
		speedHz:     d.cfg.Speed,
		bitsPerWord: d.cfg.Bits,
	}
	if err := ioctl.Ioctl(uintptr(d.fd), spiIOCMessage, uintptr(unsafe.Pointer(xfer))); err != nil {
		return protoerr.Wrap("spidev: exchange", err)
	}
	return nil
}

// SendOnly clocks out req, discarding whatever the card clocks back.
func (d *Device) SendOnly(req []byte) error {
	rx := make([]byte, len(req))
	return d.Exchange(req, rx)
}

// ReceiveOnly clocks out n bytes of 0xFF, returning what comes back. For
// the first byte it exchanges one byte at a time until a non-0xFF byte
// arrives (the card signaling the start of its response); the remaining
// n-1 bytes are exchanged one-for-one. maxPolls bounds the idle-poll so a
// disconnected or unresponsive card cannot hang the caller forever.
func (d *Device) ReceiveOnly(n int, maxPolls int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	resp := make([]byte, n)
	probe := []byte{0xFF}
	first := make([]byte, 1)

	polls := 0
	for {
		if err := d.Exchange(probe, first); err != nil {
			return nil, err
		}
		if first[0] != 0xFF {
			break
		}
		polls++
		if maxPolls > 0 && polls >= maxPolls {
			return nil, protoerr.New("spidev: timed out waiting for response start token")
		}
	}
	resp[0] = first[0]

	if n > 1 {
		tx := make([]byte, n-1)
		for i := range tx {
			tx[i] = 0xFF
		}
		if err := d.Exchange(tx, resp[1:]); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
