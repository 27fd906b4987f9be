package rdb

import (
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// Read parses a complete RDB file from r, which must expose its full
// extent via size: an io.ReaderAt plus an explicit length, read in
// bounded sections via io.SectionReader.
//
// Parsing is strict: the header and every entry's version field must
// equal wireVersion, and an entry's declared sizes must be internally
// consistent.
func Read(r io.ReaderAt, size int64) (*Rdb, error) {
	hr := io.NewSectionReader(r, 0, size)
	header, err := readHeader(hr)
	if err != nil {
		return nil, xerrors.Errorf("reading RDB header: %w", err)
	}

	entries := make([]Entry, 0, header.FileCount)
	er := io.NewSectionReader(r, int64(header.HeaderSize), size-int64(header.HeaderSize))
	for i := uint32(0); i < header.FileCount; i++ {
		e, err := readEntry(er)
		if err != nil {
			return nil, xerrors.Errorf("reading entry %d/%d: %w", i, header.FileCount, err)
		}
		entries = append(entries, *e)
	}

	return &Rdb{Header: *header, Entries: entries}, nil
}

func readHeader(r io.Reader) (*Header, error) {
	var fixed struct {
		Magic      uint32
		Version    uint32
		HeaderSize uint32
		SystemID   uint32
		FileCount  uint32
		KTID       uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return nil, xerrors.Errorf("reading fixed header fields: %w", err)
	}
	if fixed.Version != wireVersion {
		return nil, xerrors.Errorf("bad header version: got %#x, want %#x", fixed.Version, wireVersion)
	}

	path, err := readNULTerminated(r)
	if err != nil {
		return nil, xerrors.Errorf("reading header path: %w", err)
	}

	return &Header{
		Magic:      fixed.Magic,
		Version:    fixed.Version,
		HeaderSize: fixed.HeaderSize,
		SystemID:   fixed.SystemID,
		FileCount:  fixed.FileCount,
		KTID:       fixed.KTID,
		Path:       path,
	}, nil
}

func readNULTerminated(r io.Reader) (string, error) {
	var buf bytes.Buffer
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return buf.String(), nil
		}
		buf.WriteByte(b[0])
	}
}

func readEntry(r io.Reader) (*Entry, error) {
	var fixed struct {
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
	}
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return nil, xerrors.Errorf("reading fixed entry fields: %w", err)
	}
	if fixed.Version != wireVersion {
		return nil, xerrors.Errorf("bad entry version: got %#x, want %#x", fixed.Version, wireVersion)
	}
	if fixed.EntrySize < fixed.StringSize+entryFixedSize {
		return nil, xerrors.Errorf("impossible entry_size %d: smaller than string_size %d + %#x", fixed.EntrySize, fixed.StringSize, entryFixedSize)
	}

	unkContentLen := fixed.EntrySize - fixed.StringSize - entryFixedSize
	unkContent := make([]byte, unkContentLen)
	if _, err := io.ReadFull(r, unkContent); err != nil {
		return nil, xerrors.Errorf("reading unk_content (%d bytes): %w", unkContentLen, err)
	}

	name := make([]byte, fixed.StringSize)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, xerrors.Errorf("reading name (%d bytes): %w", fixed.StringSize, err)
	}

	// Consume the alignment padding after name without retaining it: since
	// entryFixedSize (0x30) is itself 4-byte aligned and entries start on
	// a 4-byte boundary, the padding needed is whatever brings
	// unk_content+name up to the next multiple of 4. Only string_size
	// bytes of name are kept.
	if rem := (unkContentLen + fixed.StringSize) % 4; rem != 0 {
		pad := make([]byte, 4-rem)
		if _, err := io.ReadFull(r, pad); err != nil {
			return nil, xerrors.Errorf("reading name alignment padding: %w", err)
		}
	}

	return &Entry{
		Magic:        fixed.Magic,
		Version:      fixed.Version,
		EntrySize:    fixed.EntrySize,
		Unk:          fixed.Unk,
		StringSize:   fixed.StringSize,
		Unk2:         fixed.Unk2,
		FileSize:     fixed.FileSize,
		EntryType:    fixed.EntryType,
		FileKTID:     fixed.FileKTID,
		TypeInfoKTID: fixed.TypeInfoKTID,
		Flags:        Flags(fixed.Flags),
		UnkContent:   unkContent,
		Name:         name,
	}, nil
}
