// Package safety implements the pre-flight check that refuses to run the
// merge against an emulator's live game-load directory, where the
// romfs/asset tree the orchestrator would rewrite is actually the
// emulator's own mounted copy rather than a mod staging area.
package safety

import (
	"path/filepath"
	"strings"
)

// gameID is the title ID both recognized emulator layouts nest their
// per-game load directory under.
const gameID = "01002B00111A2000"

// IsYuzuDir reports whether path matches "<...>/yuzu/load/01002B00111A2000".
func IsYuzuDir(path string) bool {
	base, rest := filepath.Base(path), filepath.Dir(path)
	if !strings.EqualFold(base, gameID) {
		return false
	}
	loadDir, rest := filepath.Base(rest), filepath.Dir(rest)
	if loadDir != "load" {
		return false
	}
	return filepath.Base(rest) == "yuzu"
}

// IsRyuDir reports whether path matches
// "<...>/Ryujinx/<anything>/<anything>/01002B00111A2000".
func IsRyuDir(path string) bool {
	base := filepath.Base(path)
	if !strings.EqualFold(base, gameID) {
		return false
	}
	p := path
	for i := 0; i < 3; i++ {
		p = filepath.Dir(p)
	}
	return filepath.Base(p) == "Ryujinx"
}

// EmulatorName returns "Yuzu" or "Ryujinx" if path is a recognized
// emulator load directory, or "" if it is safe to merge into.
func EmulatorName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	switch {
	case IsYuzuDir(abs):
		return "Yuzu"
	case IsRyuDir(abs):
		return "Ryujinx"
	default:
		return ""
	}
}
