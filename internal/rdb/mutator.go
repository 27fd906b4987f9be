package rdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"golang.org/x/xerrors"
)

// externalHeaderSizeByType maps entry_type to the size, in bytes, of the
// header prepended to a synthesized external payload. entry_type itself
// is part of the game's own format and is not renamed.
var externalHeaderSizeByType = map[uint32]uint32{
	0:  0x38, // generic; 8 bytes of tail content on top of the fixed entry prefix
	1:  0x48, // KidsSingletonDb(?)
	4:  0x48, // G1E
	8:  0x58, // G1A, G1T
	12: 0x68, // G1M and likely other model formats
}

// Source identifies the replacement payload an entry is being repointed
// at: its path on disk and the hex hash string that names its destination
// file in the output tree.
type Source struct {
	Path string // filesystem path of the replacement file
	Hash string // lowercase hex KTID string, no "0x" prefix
}

// Mutate repoints e at an external, uncompressed payload in place: it
// resizes e's name if it carries an "@"-encoded size marker, fixes up
// entry_size/string_size to match, and sets e's flags to
// external+uncompressed.
//
// It then returns the bytes of a freshly-headered external payload file
// ready to be written to "0x<hash>.file", unless src's file already
// begins with the "IDRK" external-payload signature, in which case it
// returns ErrAlreadyExternal and the caller must copy src.Path verbatim
// instead.
func Mutate(e *Entry, src Source) ([]byte, error) {
	newFileSize, err := fileSize(src.Path)
	if err != nil {
		return nil, xerrors.Errorf("statting replacement file %s: %w", src.Path, err)
	}

	resizeName(e, newFileSize)
	e.Flags = e.Flags.AsExternalUncompressed()

	return synthesizeExternal(e, src, newFileSize)
}

func fileSize(path string) (uint64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}

// resizeName applies the "@"-suffix size-marker convention: if the
// current name contains '@', everything from the first '@' onward is
// replaced with "@" + the replacement file's size in lowercase hex.
// Names without '@' are left untouched. entry_size/string_size are fixed
// up to stay consistent with the new name length.
func resizeName(e *Entry, newFileSize uint64) {
	name := string(e.Name)
	if idx := strings.IndexByte(name, '@'); idx >= 0 {
		name = name[:idx] + fmt.Sprintf("@%x", newFileSize)
	}

	newName := []byte(name)
	e.EntrySize = e.EntrySize - e.StringSize + uint32(len(newName))
	e.StringSize = uint32(len(newName))
	e.Name = newName
}

// idrkSignature is the ASCII marker ("RDB" spelled in reverse-memory
// order of a little-endian u32) that identifies a payload file as an
// already-formatted external entry.
var idrkSignature = [4]byte{'I', 'D', 'R', 'K'}

func synthesizeExternal(e *Entry, src Source, newFileSize uint64) ([]byte, error) {
	raw, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, xerrors.Errorf("reading replacement file %s: %w", src.Path, err)
	}

	if len(raw) >= 4 && [4]byte{raw[0], raw[1], raw[2], raw[3]} == idrkSignature {
		return nil, ErrAlreadyExternal
	}

	headerSize, ok := externalHeaderSizeByType[e.EntryType]
	if !ok {
		return nil, xerrors.Errorf("rdb: unknown entry type %d", e.EntryType)
	}

	ext := *e
	ext.Name = nil
	ext.StringSize = uint32(newFileSize)
	ext.Flags = 0
	ext.FileSize = newFileSize
	ext.EntrySize = headerSize + uint32(newFileSize)

	headerBytes, err := writeExternalHeader(&ext, headerSize)
	if err != nil {
		return nil, xerrors.Errorf("serializing external header: %w", err)
	}

	out := make([]byte, 0, len(headerBytes)+len(raw))
	out = append(out, headerBytes...)
	out = append(out, raw...)
	return out, nil
}

// writeExternalHeader serializes ext's fixed fields followed by exactly
// headerSize-entryFixedSize bytes of unk_content, for a total of
// headerSize bytes. The external header's name is always empty and the
// header's length is wholly determined by entry_type, not by the length
// of the original entry's unk_content — which is truncated or
// zero-extended to fit, matching the type-dependent fixed layout the
// game itself expects.
func writeExternalHeader(ext *Entry, headerSize uint32) ([]byte, error) {
	if headerSize < entryFixedSize {
		return nil, xerrors.Errorf("header size %#x smaller than fixed entry prefix %#x", headerSize, entryFixedSize)
	}
	tailLen := headerSize - entryFixedSize

	tail := make([]byte, tailLen)
	copy(tail, ext.UnkContent)

	fixed := struct {
		Magic        uint32
		Version      uint32
		EntrySize    uint32
		Unk          uint32
		StringSize   uint32
		Unk2         uint32
		FileSize     uint64
		EntryType    uint32
		FileKTID     uint32
		TypeInfoKTID uint32
		Flags        uint32
	}{
		ext.Magic, ext.Version, ext.EntrySize, ext.Unk, ext.StringSize, ext.Unk2,
		ext.FileSize, ext.EntryType, ext.FileKTID, ext.TypeInfoKTID, uint32(ext.Flags),
	}

	var buf bytes.Buffer
	buf.Grow(int(headerSize))
	if err := binary.Write(&buf, binary.LittleEndian, &fixed); err != nil {
		return nil, err
	}
	buf.Write(tail)
	return buf.Bytes(), nil
}
