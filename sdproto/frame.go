package sdproto

import "github.com/daedaluz/sdspi/crc"

// Frame assembles the 7-byte wire frame for a command: a leading 0xFF
// sync byte, then the 6-byte command body (start/transmitter bits, index,
// 32-bit big-endian argument, CRC7, stop bit).
//
//	[0] = 0xFF
//	[1] = 0x40 | index
//	[2..5] = argument, big-endian
//	[6] = (CRC7(frame[1:6]) << 1) | 0x01
func Frame(index uint8, arg uint32) [7]byte {
	var f [7]byte
	f[0] = 0xFF
	f[1] = 0x40 | (index & 0x3F)
	f[2] = byte(arg >> 24)
	f[3] = byte(arg >> 16)
	f[4] = byte(arg >> 8)
	f[5] = byte(arg)
	f[6] = (crc.CRC7(f[1:6]) << 1) | 0x01
	return f
}
