package rdb

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/xerrors"
)

func newTestEntry(entryType uint32, name string, unkContent []byte) Entry {
	e := Entry{
		Magic:        0x1,
		Version:      wireVersion,
		EntryType:    entryType,
		FileKTID:     0xAAAA,
		TypeInfoKTID: 0xBBBB,
		Flags:        Flags(0).SetInternal(true).SetZlibCompressed(true),
		UnkContent:   unkContent,
		Name:         []byte(name),
	}
	e.StringSize = uint32(len(e.Name))
	e.EntrySize = entryFixedSize + uint32(len(e.UnkContent)) + e.StringSize
	return e
}

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestResizeNameRewritesAtSuffix(t *testing.T) {
	e := newTestEntry(8, "R_g1t［texture］@10", nil)
	resizeName(&e, 0x2A)

	if got, want := string(e.Name), "R_g1t［texture］@2a"; got != want {
		t.Fatalf("Name = %q, want %q", got, want)
	}
	if e.StringSize != uint32(len(e.Name)) {
		t.Fatalf("StringSize = %d, want %d", e.StringSize, len(e.Name))
	}
	if e.EntrySize != entryFixedSize+uint32(len(e.UnkContent))+e.StringSize {
		t.Fatalf("EntrySize inconsistent with unk_content/name lengths: EntrySize=%d", e.EntrySize)
	}
}

func TestResizeNameLeavesNamesWithoutMarkerUntouched(t *testing.T) {
	e := newTestEntry(8, "R_g1t［texture］", nil)
	before := string(e.Name)
	resizeName(&e, 0xFF)
	if string(e.Name) != before {
		t.Fatalf("Name changed to %q, want unchanged %q", e.Name, before)
	}
}

func TestMutateSynthesizesExternalHeaderOfDeclaredSize(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("new texture bytes")
	src := writeTempFile(t, dir, "replacement.g1t", payload)

	e := newTestEntry(8, "R_g1t［texture］@0", []byte{0xAA, 0xBB})

	out, err := Mutate(&e, Source{Path: src})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	wantHeaderSize := externalHeaderSizeByType[8]
	if uint32(len(out)) != wantHeaderSize+uint32(len(payload)) {
		t.Fatalf("synthesized payload length = %d, want %d", len(out), wantHeaderSize+uint32(len(payload)))
	}
	if string(out[wantHeaderSize:]) != string(payload) {
		t.Fatal("synthesized payload tail does not match the replacement file's raw bytes")
	}

	if !e.Flags.External() || e.Flags.Internal() || e.Flags.ZlibCompressed() || e.Flags.Lz4Compressed() {
		t.Fatalf("entry flags not normalized to external+uncompressed: %v", e.Flags)
	}
	if got, want := string(e.Name), fmt.Sprintf("R_g1t［texture］@%x", len(payload)); got != want {
		t.Fatalf("Name = %q, want %q", got, want)
	}
}

func TestMutateRejectsUnknownEntryType(t *testing.T) {
	dir := t.TempDir()
	src := writeTempFile(t, dir, "f.bin", []byte("x"))
	e := newTestEntry(99, "name", nil)

	if _, err := Mutate(&e, Source{Path: src}); err == nil {
		t.Fatal("Mutate succeeded for an unknown entry_type, want error")
	}
}

func TestMutateDetectsAlreadyExternalPayload(t *testing.T) {
	dir := t.TempDir()
	already := append([]byte("IDRK"), []byte("...rest of a pre-formed external file")...)
	src := writeTempFile(t, dir, "already_external.g1t", already)
	e := newTestEntry(8, "name", nil)

	_, err := Mutate(&e, Source{Path: src})
	if !xerrors.Is(err, ErrAlreadyExternal) {
		t.Fatalf("Mutate error = %v, want ErrAlreadyExternal", err)
	}
}

func TestWriteExternalHeaderTruncatesOrPadsUnkContentToFitDeclaredSize(t *testing.T) {
	e := newTestEntry(0, "name", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	hdr, err := writeExternalHeader(&e, externalHeaderSizeByType[0])
	if err != nil {
		t.Fatalf("writeExternalHeader: %v", err)
	}
	if uint32(len(hdr)) != externalHeaderSizeByType[0] {
		t.Fatalf("header length = %d, want %d", len(hdr), externalHeaderSizeByType[0])
	}
}
