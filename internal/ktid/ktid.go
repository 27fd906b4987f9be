// Package ktid implements the 32-bit asset identifier hash used throughout
// the RDB format. A KTID is either a literal 8-hex-digit value or the
// result of hashing a canonicalized name derived from a file's extension
// and stem.
package ktid

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// KTID is a 32-bit asset identifier. Equality and hashing are by value.
type KTID uint32

// String renders k as a lowercase 8-hex-digit string, e.g. "1a2b3c4d".
func (k KTID) String() string {
	return fmt.Sprintf("%08x", uint32(k))
}

// Parse decodes s into a KTID. s may be a literal "0x"-prefixed hex
// value, or a name to be hashed via Hash; a string without the "0x"
// prefix is always hashed, even if it consists only of hex digits.
//
// Callers control the strings passed here (they come from filenames and
// config files, not untrusted input), so a malformed literal is returned
// as an error rather than silently coerced.
func Parse(s string) (KTID, error) {
	if rest, ok := stripHexPrefix(s); ok {
		v, err := strconv.ParseUint(rest, 16, 32)
		if err != nil {
			return 0, xerrors.Errorf("parsing literal KTID %q: %w", s, err)
		}
		return KTID(v), nil
	}
	return Hash(s), nil
}

func stripHexPrefix(s string) (rest string, ok bool) {
	if strings.HasPrefix(s, "0x") {
		return strings.TrimPrefix(s, "0x"), true
	}
	return s, false
}

// Hash computes ktid_hash(name, 31): a 32-bit two's-complement rolling
// hash over the UTF-8 bytes of name. The zeroth byte is widened as
// unsigned; every subsequent byte is sign-extended from int8 before being
// folded in. The two extensions differ on purpose and must not be
// "simplified" to a uniform one: doing so changes every hash value the
// game itself would compute for names containing a byte ≥ 0x80.
func Hash(name string) KTID {
	b := []byte(name)
	if len(b) == 0 {
		return 0
	}

	iv := int32(uint32(b[0]) * 31)
	key := int32(31)
	for _, c := range b[1:] {
		iv += 31 * key * int32(int8(c))
		key *= 31
	}
	return KTID(uint32(iv))
}

// NameForPath builds the canonicalization input ktid_hash is applied to
// for a replacement/asset path: "R_" + extension + "［" + stem + "］",
// where extension is the portion of filename after its last '.' and stem
// is the portion before its first '.'. The brackets are the full-width
// U+FF3B/U+FF3D forms, not ASCII square brackets.
func NameForPath(filename string) (string, error) {
	dot := strings.IndexByte(filename, '.')
	if dot < 0 {
		return "", xerrors.Errorf("NameForPath(%q): missing extension", filename)
	}
	stem := filename[:dot]

	lastDot := strings.LastIndexByte(filename, '.')
	ext := filename[lastDot+1:]
	if ext == "" {
		return "", xerrors.Errorf("NameForPath(%q): missing extension", filename)
	}

	var b strings.Builder
	b.WriteString("R_")
	b.WriteString(ext)
	b.WriteString("［")
	b.WriteString(stem)
	b.WriteString("］")
	return b.String(), nil
}

// ForPath computes the KTID that names the asset a replacement file at
// filename is meant to override, per NameForPath's canonicalization.
func ForPath(filename string) (KTID, error) {
	name, err := NameForPath(filename)
	if err != nil {
		return 0, err
	}
	return Hash(name), nil
}
