package wire

// PackVersion packs a protocol version as (major << 16) | (minor << 8) | patch.
func PackVersion(major uint16, minor, patch uint8) uint32 {
	return uint32(major)<<16 | uint32(minor)<<8 | uint32(patch)
}

// UnpackVersion splits a packed protocol version.
func UnpackVersion(v uint32) (major uint16, minor, patch uint8) {
	return uint16(v >> 16), uint8(v >> 8), uint8(v)
}
