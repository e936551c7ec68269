// Package sdproto implements the bit-exact SD/MMC-over-SPI protocol
// engine: command framing, response reading, and register decoding. It
// consumes a Transport (satisfied by *spidev.Device, or a scripted fake in
// tests) and never imports spidev directly, so the protocol logic can be
// tested without a real character device.
package sdproto

// Transport is the full-duplex byte-exchange contract this package
// consumes from the outside world — the only thing it needs from a real
// SPI character device or a scripted fake.
type Transport interface {
	Exchange(tx, rx []byte) error
	SendOnly(req []byte) error
	ReceiveOnly(n int, maxPolls int) ([]byte, error)
}

// DefaultMaxPolls bounds the idle-poll loops (response-start detection,
// write-status busy wait) so a non-responsive card produces an error
// instead of hanging the driver forever. The SD spec gives no fixed
// timeout for SPI-mode polling; this is a generous bound in poll counts
// rather than wall-clock time, so it composes with Session.PollInterval.
const DefaultMaxPolls = 1 << 16
