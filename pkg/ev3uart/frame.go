package ev3uart

import "math/bits"

// buildHeader constructs a header byte from a message type, a payload
// size (must be a power of two in 1..32), and a 3-bit command or mode
// index. It is the left inverse of parseHeader for size = 1<<k,
// k in 0..5 (property P5 in spec.md).
func buildHeader(t MsgType, size int, cmd uint8) byte {
	sizeCode := byte(log2(size)&0x7) << 3
	return byte(t)&msgTypeMask | sizeCode | cmd&msgCmdMask
}

// parseHeader decodes a header byte into its message type, payload
// size, and command/mode field.
func parseHeader(h byte) (t MsgType, size int, cmd uint8) {
	t = MsgType(h & msgTypeMask)
	size = 1 << ((h >> 3) & 0x7)
	cmd = h & msgCmdMask
	return
}

// log2 returns the position of the most significant set bit of v,
// matching find_last_bit semantics used by the original driver's
// legoev3_uart_set_msg_hdr.
func log2(v int) int {
	if v <= 0 {
		return 0
	}
	return bits.Len(uint(v)) - 1
}

// msgSize returns the total frame length (header, optional INFO
// sub-command byte, payload, checksum) implied by a header byte.
// SYS frames are a single byte with no checksum unless split-sync
// logic (handled by the caller) extends them.
func msgSize(header byte) int {
	if header&msgTypeMask == byte(MsgSys) {
		return 1
	}
	t, size, _ := parseHeader(header)
	n := size + 2 // header + checksum
	if t == MsgInfo {
		n++ // extra INFO sub-command byte
	}
	return n
}

// checksumOK computes the XOR checksum (0xFF seeded) over frame[:len(frame)-1]
// and reports whether it equals the frame's trailing byte.
func checksumOK(frame []byte) bool {
	if len(frame) < 2 {
		return true
	}
	c := byte(0xFF)
	for _, b := range frame[:len(frame)-1] {
		c ^= b
	}
	return c == frame[len(frame)-1]
}

// checksumOf returns the XOR checksum (0xFF seeded) over data.
func checksumOf(data ...[]byte) byte {
	c := byte(0xFF)
	for _, d := range data {
		for _, b := range d {
			c ^= b
		}
	}
	return c
}
