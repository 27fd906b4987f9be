// Package rdb implements the RDB archive-index binary format: parsing and
// rewriting of the header and variable-length entries, and the entry
// mutator that converts an entry to point at external, uncompressed data.
package rdb

import (
	"errors"

	"github.com/modkit/rdbmerge/internal/ktid"
)

// wireVersion is the only version value the codec accepts, for both the
// header and every entry.
const wireVersion = 0x30303030

// entryFixedSize is the size in bytes of an RdbEntry's fixed prefix
// (everything before unk_content). An entry's declared entry_size must
// always equal entryFixedSize + len(unk_content) + string_size.
const entryFixedSize = 0x30

// ErrAlreadyExternal is returned by Mutate when the replacement payload
// already begins with the IDRK external-header signature: the file is a
// pre-formed external payload and must be copied verbatim rather than
// wrapped in a second header. It is a non-fatal sentinel the caller
// handles by falling back to a plain file copy.
var ErrAlreadyExternal = errors.New("rdb: payload is already an external file")

// Header is the fixed-prefix, NUL-terminated-path RDB header.
type Header struct {
	Magic      uint32
	Version    uint32
	HeaderSize uint32 // byte offset at which the entry array begins
	SystemID   uint32
	FileCount  uint32
	KTID       uint32
	Path       string // NUL-terminated on the wire, stored without the NUL
}

// Entry is one variable-length RDB entry record.
type Entry struct {
	Magic         uint32
	Version       uint32
	EntrySize     uint32
	Unk           uint32
	StringSize    uint32
	Unk2          uint32
	FileSize      uint64
	EntryType     uint32
	FileKTID      uint32
	TypeInfoKTID  uint32
	Flags         Flags
	UnkContent    []byte
	Name          []byte
}

// FileKTIDValue returns e's asset identifier as a ktid.KTID.
func (e *Entry) FileKTIDValue() ktid.KTID { return ktid.KTID(e.FileKTID) }

// Rdb is a fully-parsed RDB file: its header plus every entry.
type Rdb struct {
	Header  Header
	Entries []Entry
}

// EntryByKTID returns a pointer to the entry whose FileKTID matches id, or
// nil if none does. Entries are assumed unique by FileKTID; this is not
// enforced here.
func (r *Rdb) EntryByKTID(id ktid.KTID) *Entry {
	for i := range r.Entries {
		if ktid.KTID(r.Entries[i].FileKTID) == id {
			return &r.Entries[i]
		}
	}
	return nil
}
