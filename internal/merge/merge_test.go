package merge

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/modkit/rdbmerge/internal/rdb"
)

type fakeIndex map[string]string

func (f fakeIndex) Lookup(hash string) (string, bool) {
	name, ok := f[hash]
	return name, ok
}

// writeFixtureRdb writes a minimal valid RDB with a single entry whose
// FileKTID is ktidHex to path.
func writeFixtureRdb(t *testing.T, path string, ktidHex uint32, entryType uint32, nameHasMarker bool) {
	t.Helper()

	name := "R_g1t［texture］"
	if nameHasMarker {
		name = name + "@0"
	}
	entry := rdb.Entry{
		Magic:        0x1,
		Version:      0x30303030,
		FileSize:     4,
		EntryType:    entryType,
		FileKTID:     ktidHex,
		TypeInfoKTID: 0xBBBB,
		UnkContent:   []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28},
		Name:         []byte(name),
	}
	entry.StringSize = uint32(len(entry.Name))
	entry.EntrySize = 0x30 + uint32(len(entry.UnkContent)) + entry.StringSize

	r := &rdb.Rdb{
		Header: rdb.Header{
			Magic:     0x42,
			Version:   0x30303030,
			SystemID:  1,
			FileCount: 1,
			KTID:      0x1,
			Path:      "romfs:/",
		},
		Entries: []rdb.Entry{entry},
	}
	r.Header.HeaderSize = uint32(24 + len(r.Header.Path) + 1)

	out, err := rdb.Write(r)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func mustWriteFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func readOutputRdb(t *testing.T, outDir, name string) *rdb.Rdb {
	t.Helper()
	path := filepath.Join(outDir, "romfs", "asset", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	r, err := rdb.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("rdb.Read: %v", err)
	}
	return r
}

func TestRunEmptyWorkingDirectory(t *testing.T) {
	workDir := t.TempDir()
	romfs := t.TempDir()
	if err := os.MkdirAll(filepath.Join(romfs, "asset"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	cfg := Config{RomfsPath: romfs, Index: fakeIndex{}}
	if err := Run(workDir, cfg, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	outDir := filepath.Join(workDir, outputDirName)
	for _, sub := range scaffoldSubpaths {
		if fi, err := os.Stat(filepath.Join(outDir, sub)); err != nil || !fi.IsDir() {
			t.Errorf("scaffold %s missing: %v", sub, err)
		}
	}
}

func TestRunSingleModOneReplacement(t *testing.T) {
	workDir := t.TempDir()
	romfs := t.TempDir()
	writeFixtureRdb(t, filepath.Join(romfs, "asset", "SomeTable.rdb"), 0x12345678, 8, true)

	mustWriteFile(t, filepath.Join(workDir, "modA", "romfs", "asset", "data", "0x12345678.file"), []byte("replacement-bytes"))

	cfg := Config{RomfsPath: romfs, Index: fakeIndex{"12345678": "SomeTable.rdb"}}
	if err := Run(workDir, cfg, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	outDir := filepath.Join(workDir, outputDirName)
	r := readOutputRdb(t, outDir, "SomeTable.rdb")
	e := r.EntryByKTID(0x12345678)
	if e == nil {
		t.Fatal("patched entry not found")
	}
	if !e.Flags.External() || e.Flags.Internal() {
		t.Fatalf("entry flags not externalized: %v", e.Flags)
	}

	dataPath := filepath.Join(outDir, "romfs", "asset", "data", "0x12345678.file")
	if _, err := os.Stat(dataPath); err != nil {
		t.Fatalf("expected payload file: %v", err)
	}
}

func TestRunAuxTreeCopiesTopLevelOnlySkipsNestedDirs(t *testing.T) {
	workDir := t.TempDir()
	romfs := t.TempDir()
	if err := os.MkdirAll(filepath.Join(romfs, "asset"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	// modA only counts as a mod if it has romfs/asset/data.
	if err := os.MkdirAll(filepath.Join(workDir, "modA", "romfs", "asset", "data"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	mustWriteFile(t, filepath.Join(workDir, "modA", "exefs", "main.npdm"), []byte("top-level"))
	mustWriteFile(t, filepath.Join(workDir, "modA", "exefs", "nested", "extra.bin"), []byte("nested"))

	cfg := Config{RomfsPath: romfs, Index: fakeIndex{}}
	if err := Run(workDir, cfg, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	outDir := filepath.Join(workDir, outputDirName)
	got, err := os.ReadFile(filepath.Join(outDir, "exefs", "main.npdm"))
	if err != nil || string(got) != "top-level" {
		t.Fatalf("exefs/main.npdm = (%q, %v), want (top-level, nil)", got, err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "exefs", "nested")); !os.IsNotExist(err) {
		t.Fatalf("nested exefs subdirectory was copied, want it skipped: %v", err)
	}
}

func TestRunLastWinsPrecedence(t *testing.T) {
	workDir := t.TempDir()
	romfs := t.TempDir()
	writeFixtureRdb(t, filepath.Join(romfs, "asset", "SomeTable.rdb"), 0xAAAA0001, 8, false)

	mustWriteFile(t, filepath.Join(workDir, "modA", "romfs", "asset", "data", "0xAAAA0001.file"), []byte{0x01})
	mustWriteFile(t, filepath.Join(workDir, "modB", "romfs", "asset", "data", "0xAAAA0001.file"), []byte{0x02})

	cfg := Config{RomfsPath: romfs, Index: fakeIndex{"aaaa0001": "SomeTable.rdb"}}
	if err := Run(workDir, cfg, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	outDir := filepath.Join(workDir, outputDirName)
	dataPath := filepath.Join(outDir, "romfs", "asset", "data", "0xaaaa0001.file")
	data, err := os.ReadFile(dataPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	headerSize := uint32(0x58) // entry_type 8
	if len(data) <= int(headerSize) || data[len(data)-1] != 0x02 {
		t.Fatalf("payload tail = %x, want last byte 0x02 (modB must win)", data)
	}
}

func TestRunHiddenModIsSkipped(t *testing.T) {
	workDir := t.TempDir()
	romfs := t.TempDir()
	writeFixtureRdb(t, filepath.Join(romfs, "asset", "SomeTable.rdb"), 0x12345678, 8, false)

	mustWriteFile(t, filepath.Join(workDir, "#draft", "romfs", "asset", "data", "0x12345678.file"), []byte("draft"))

	cfg := Config{RomfsPath: romfs, Index: fakeIndex{"12345678": "SomeTable.rdb"}}
	if err := Run(workDir, cfg, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// With the only mod hidden, no RDB is patched, so neither the RDB nor
	// the payload appears in the output tree.
	outDir := filepath.Join(workDir, outputDirName)
	if _, err := os.Stat(filepath.Join(outDir, "romfs", "asset", "SomeTable.rdb")); !os.IsNotExist(err) {
		t.Fatalf("hidden mod's replacement was applied (RDB written), want it skipped: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "romfs", "asset", "data", "0x12345678.file")); !os.IsNotExist(err) {
		t.Fatalf("hidden mod's replacement was applied (payload written), want it skipped: %v", err)
	}
}

func TestRunUnknownHashDropped(t *testing.T) {
	workDir := t.TempDir()
	romfs := t.TempDir()
	if err := os.MkdirAll(filepath.Join(romfs, "asset"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	mustWriteFile(t, filepath.Join(workDir, "modA", "romfs", "asset", "data", "0xDEADBEEF.file"), []byte("orphan"))

	cfg := Config{RomfsPath: romfs, Index: fakeIndex{}}
	if err := Run(workDir, cfg, ""); err != nil {
		t.Fatalf("Run should not fail for an unknown hash: %v", err)
	}
}

func TestRunAlreadyPatchedPayloadCopiedVerbatim(t *testing.T) {
	workDir := t.TempDir()
	romfs := t.TempDir()
	writeFixtureRdb(t, filepath.Join(romfs, "asset", "SomeTable.rdb"), 0x12345678, 8, false)

	already := append([]byte("IDRK"), []byte("...pre-formed external payload bytes")...)
	mustWriteFile(t, filepath.Join(workDir, "modA", "romfs", "asset", "data", "0x12345678.file"), already)

	cfg := Config{RomfsPath: romfs, Index: fakeIndex{"12345678": "SomeTable.rdb"}}
	if err := Run(workDir, cfg, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	outDir := filepath.Join(workDir, outputDirName)
	dataPath := filepath.Join(outDir, "romfs", "asset", "data", "0x12345678.file")
	got, err := os.ReadFile(dataPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, already) {
		t.Fatalf("already-external payload was rewrapped: got %x, want verbatim %x", got, already)
	}
}
