package rdb

// Flags is the bitfield word carried by every RdbEntry. Go has no native
// bitfield-struct packing, so the word is stored raw and field access
// goes through masks rather than individual bool/uint struct fields.
type Flags uint32

const (
	flagsUnkMask     Flags = 0x0000FFFF // bits 0..15
	flagExternal     Flags = 1 << 16
	flagInternal     Flags = 1 << 17
	flagsUnk2Mask    Flags = 0x3 << 18 // bits 18..19
	flagZlibCompress Flags = 1 << 20
	flagLz4Compress  Flags = 1 << 21
	flagsUnk3Mask    Flags = 0x3FF << 22 // bits 22..31
)

// Unk returns the preserved opaque low 16 bits.
func (f Flags) Unk() uint16 { return uint16(f & flagsUnkMask) }

// External reports whether the entry's payload lives in a separate file.
func (f Flags) External() bool { return f&flagExternal != 0 }

// Internal reports whether the entry's payload is inline in the RDB.
func (f Flags) Internal() bool { return f&flagInternal != 0 }

// Unk2 returns the preserved opaque bits 18..19.
func (f Flags) Unk2() uint8 { return uint8((f & flagsUnk2Mask) >> 18) }

// ZlibCompressed reports whether the payload is zlib-compressed.
func (f Flags) ZlibCompressed() bool { return f&flagZlibCompress != 0 }

// Lz4Compressed reports whether the payload is lz4-compressed.
//
// Both ZlibCompressed and Lz4Compressed set simultaneously means the
// payload is encrypted; rdbmerge never writes that combination.
func (f Flags) Lz4Compressed() bool { return f&flagLz4Compress != 0 }

// Unk3 returns the preserved opaque high bits 22..31.
func (f Flags) Unk3() uint16 { return uint16((f & flagsUnk3Mask) >> 22) }

func (f Flags) with(mask Flags, set bool) Flags {
	if set {
		return f | mask
	}
	return f &^ mask
}

// SetExternal returns f with the external bit set to v, all other bits
// preserved.
func (f Flags) SetExternal(v bool) Flags { return f.with(flagExternal, v) }

// SetInternal returns f with the internal bit set to v, all other bits
// preserved.
func (f Flags) SetInternal(v bool) Flags { return f.with(flagInternal, v) }

// SetZlibCompressed returns f with the zlib bit set to v, all other bits
// preserved.
func (f Flags) SetZlibCompressed(v bool) Flags { return f.with(flagZlibCompress, v) }

// SetLz4Compressed returns f with the lz4 bit set to v, all other bits
// preserved.
func (f Flags) SetLz4Compressed(v bool) Flags { return f.with(flagLz4Compress, v) }

// AsExternalUncompressed returns f with external set, internal cleared,
// and both compression bits cleared — the transformation the entry
// mutator applies to every patched entry. All other bits, including the
// opaque unk ranges, are preserved bit-for-bit.
func (f Flags) AsExternalUncompressed() Flags {
	return f.SetExternal(true).
		SetInternal(false).
		SetZlibCompressed(false).
		SetLz4Compressed(false)
}
