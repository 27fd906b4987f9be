// Package aochash implements the replacement-file index: the value type
// that pairs a mod's replacement data file with its decoded KTID and the
// RDB that owns it.
package aochash

import (
	"path/filepath"
	"strconv"
	"strings"
)

// ReverseIndex maps a lowercase hex KTID string (no "0x" prefix) to the
// basename of the RDB file that contains it.
type ReverseIndex interface {
	Lookup(hash string) (rdbName string, ok bool)
}

// AocHash pairs a replacement file's path with the KTID decoded from its
// name and, if known, the RDB it targets.
type AocHash struct {
	Path    string
	Hash    string // lowercase hex, no "0x" prefix
	RDBName string // empty if unresolved
	found   bool
}

// New builds an AocHash from a replacement file's path. The hash is the
// file's stem (everything before the first '.') lowercased with any
// "0x" prefix stripped, then looked up in rev.
func New(path string, rev ReverseIndex) AocHash {
	hash := strings.ToLower(stem(path))
	hash = strings.TrimPrefix(hash, "0x")

	rdbName, ok := rev.Lookup(hash)
	return AocHash{Path: path, Hash: hash, RDBName: rdbName, found: ok}
}

// stem returns the portion of path's basename before its first '.'.
func stem(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// Valid reports whether h resolved to a known RDB and its hash is
// well-formed 32-bit hex.
func (h AocHash) Valid() bool {
	if !h.found {
		return false
	}
	_, err := strconv.ParseUint(h.Hash, 16, 32)
	return err == nil
}

// HexString renders h's hash with the "0x" prefix, matching the
// replacement-file naming convention "0x<hash>.file".
func (h AocHash) HexString() string {
	return "0x" + h.Hash
}
