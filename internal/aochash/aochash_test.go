package aochash

import "testing"

type fakeIndex map[string]string

func (f fakeIndex) Lookup(hash string) (string, bool) {
	name, ok := f[hash]
	return name, ok
}

func TestNewResolvesKnownHash(t *testing.T) {
	idx := fakeIndex{"12345678": "SomeTable.rdb"}
	h := New("/mods/modA/romfs/asset/data/0x12345678.file", idx)

	if h.Hash != "12345678" {
		t.Fatalf("Hash = %q, want %q", h.Hash, "12345678")
	}
	if h.RDBName != "SomeTable.rdb" {
		t.Fatalf("RDBName = %q, want %q", h.RDBName, "SomeTable.rdb")
	}
	if !h.Valid() {
		t.Fatal("Valid() = false, want true")
	}
	if got := h.HexString(); got != "0x12345678" {
		t.Fatalf("HexString() = %q, want %q", got, "0x12345678")
	}
}

func TestNewUnknownHashIsInvalid(t *testing.T) {
	h := New("/mods/modA/romfs/asset/data/0xDEADBEEF.file", fakeIndex{})
	if h.Valid() {
		t.Fatal("Valid() = true for an unresolved hash, want false")
	}
}

func TestNewLowercasesAndStripsPrefix(t *testing.T) {
	idx := fakeIndex{"abcdef01": "Other.rdb"}
	h := New("/mods/modA/romfs/asset/data/0xABCDEF01.file", idx)
	if h.Hash != "abcdef01" {
		t.Fatalf("Hash = %q, want %q", h.Hash, "abcdef01")
	}
	if !h.Valid() {
		t.Fatal("Valid() = false, want true")
	}
}
