package tritium

// Bit accessors over a fixed-size byte buffer, MSB-first: bit 0 is the most
// significant bit of buf[0]. Field offsets elsewhere in this package use the
// same numbering as the protocol definition.

// getBits reads width bits starting at bit offset off. The first bit read
// becomes the most significant bit of the result. width must be <= 64 and
// the range must lie within buf.
func getBits(buf []byte, off, width uint) uint64 {
	var v uint64
	for i := off; i < off+width; i++ {
		v = v<<1 | uint64(buf[i>>3]>>(7-i&7)&1)
	}
	return v
}

// setBits writes the low width bits of v starting at bit offset off, most
// significant bit first. Bits outside the range are left untouched.
func setBits(buf []byte, off, width uint, v uint64) {
	for i := uint(0); i < width; i++ {
		pos := off + width - 1 - i
		mask := byte(1) << (7 - pos&7)
		if v&1 != 0 {
			buf[pos>>3] |= mask
		} else {
			buf[pos>>3] &^= mask
		}
		v >>= 1
	}
}
