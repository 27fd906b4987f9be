package rdb

import (
	"encoding/binary"
	"io"

	"github.com/orcaman/writerseeker"
	"golang.org/x/xerrors"
)

// Write serializes r in full: the header, then the entry array starting
// exactly at header.HeaderSize, each entry padded with zero bytes to the
// next 4-byte boundary. The writer trusts that the mutator already kept
// entry_size consistent with entryFixedSize + len(unk_content) +
// string_size for every entry it touched; it does not recompute either
// field.
func Write(r *Rdb) ([]byte, error) {
	var ws writerseeker.WriterSeeker

	if err := writeHeader(&ws, &r.Header); err != nil {
		return nil, xerrors.Errorf("writing header: %w", err)
	}

	pos, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, xerrors.Errorf("querying header length: %w", err)
	}
	if gap := int64(r.Header.HeaderSize) - pos; gap > 0 {
		if _, err := ws.Write(make([]byte, gap)); err != nil {
			return nil, xerrors.Errorf("padding to header_size: %w", err)
		}
	} else if gap < 0 {
		return nil, xerrors.Errorf("serialized header (%d bytes) exceeds header_size (%d)", pos, r.Header.HeaderSize)
	}

	for i := range r.Entries {
		if err := writeEntry(&ws, &r.Entries[i]); err != nil {
			return nil, xerrors.Errorf("writing entry %d: %w", i, err)
		}
	}

	out, err := io.ReadAll(ws.BytesReader())
	if err != nil {
		return nil, xerrors.Errorf("reading back assembled RDB: %w", err)
	}
	return out, nil
}

func writeHeader(ws *writerseeker.WriterSeeker, h *Header) error {
	fixed := struct {
		Magic      uint32
		Version    uint32
		HeaderSize uint32
		SystemID   uint32
		FileCount  uint32
		KTID       uint32
	}{h.Magic, h.Version, h.HeaderSize, h.SystemID, h.FileCount, h.KTID}
	if err := binary.Write(ws, binary.LittleEndian, &fixed); err != nil {
		return err
	}
	if _, err := ws.Write([]byte(h.Path)); err != nil {
		return err
	}
	_, err := ws.Write([]byte{0})
	return err
}

func writeEntry(ws *writerseeker.WriterSeeker, e *Entry) error {
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
		e.Magic, e.Version, e.EntrySize, e.Unk, e.StringSize, e.Unk2,
		e.FileSize, e.EntryType, e.FileKTID, e.TypeInfoKTID, uint32(e.Flags),
	}
	if err := binary.Write(ws, binary.LittleEndian, &fixed); err != nil {
		return err
	}
	if _, err := ws.Write(e.UnkContent); err != nil {
		return err
	}
	if _, err := ws.Write(e.Name); err != nil {
		return err
	}
	if rem := (uint32(len(e.UnkContent)) + uint32(len(e.Name))) % 4; rem != 0 {
		if _, err := ws.Write(make([]byte, 4-rem)); err != nil {
			return err
		}
	}
	return nil
}
