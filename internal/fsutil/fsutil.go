// Package fsutil provides the filesystem primitives the merge
// orchestrator is built on: output-tree scaffolding, top-level and
// recursive directory copies, and atomic file writes. Copies preserve
// mode bits read off syscall.Stat_t via golang.org/x/sys/unix and write
// the destination in place; WriteFileAtomic goes through
// github.com/google/renameio so a killed process never leaves a
// half-written file at its destination.
package fsutil

import (
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// MkdirAllScaffold creates dir and every path in subdirs beneath it,
// establishing the output-tree layout before any mod is processed.
func MkdirAllScaffold(dir string, subdirs ...string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Errorf("creating %s: %w", dir, err)
	}
	for _, sub := range subdirs {
		p := filepath.Join(dir, sub)
		if err := os.MkdirAll(p, 0o755); err != nil {
			return xerrors.Errorf("creating %s: %w", p, err)
		}
	}
	return nil
}

// CopyFile copies src to dest, creating dest's parent directory and
// preserving src's POSIX permission bits. It does not preserve xattrs;
// unlike the RDB archive codec the merge output tree is consumed only by
// the game's own loader, which does not look at them.
func CopyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return xerrors.Errorf("creating parent of %s: %w", dest, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return xerrors.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	mode := fs.FileMode(0o644)
	if fi, err := in.Stat(); err == nil {
		mode = fs.FileMode(Mode(fi))
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return xerrors.Errorf("creating %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return xerrors.Errorf("copying %s to %s: %w", src, dest, err)
	}
	return out.Close()
}

// WriteFileAtomic writes data to path via a temp file renamed into place,
// so a process killed mid-write never leaves a truncated RDB or payload
// file for a later run to mistake for a complete one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return xerrors.Errorf("creating parent of %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, data, perm); err != nil {
		return xerrors.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// CopyTopLevelNoOverwrite copies the direct (non-recursive) regular-file
// children of src into dst, never overwriting a file already present at
// the destination: within one run, the first candidate to place a given
// file wins. A child that is itself a directory is not descended into;
// it is logged and skipped, matching the non-recursive "cp" style the
// auxiliary-tree copy is grounded on.
func CopyTopLevelNoOverwrite(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return xerrors.Errorf("reading %s: %w", src, err)
	}

	for _, de := range entries {
		srcPath := filepath.Join(src, de.Name())
		if de.IsDir() {
			log.Printf("skipping nested directory %s: only top-level files are copied", srcPath)
			continue
		}
		if !de.Type().IsRegular() {
			continue
		}

		destPath := filepath.Join(dst, de.Name())
		if _, err := os.Stat(destPath); err == nil {
			continue // already placed by an earlier-iterated candidate
		} else if !os.IsNotExist(err) {
			return xerrors.Errorf("checking %s: %w", destPath, err)
		}
		if err := CopyFile(srcPath, destPath); err != nil {
			return err
		}
	}
	return nil
}

// CopyTree recursively copies every entry under src into dst/<basename
// of src>, overwriting anything already there, for copying a completed
// mod directory to an external destination.
func CopyTree(src, dst string) error {
	root := filepath.Join(dst, filepath.Base(src))
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return xerrors.Errorf("computing relative path of %s: %w", path, err)
		}
		destPath := filepath.Join(root, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(destPath, 0o755)
		case d.Type().IsRegular():
			return CopyFile(path, destPath)
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return xerrors.Errorf("reading symlink %s: %w", path, err)
			}
			_ = os.Remove(destPath)
			return os.Symlink(target, destPath)
		default:
			return nil
		}
	})
}

// Mode returns fi's POSIX permission bits as reported by the kernel.
func Mode(fi os.FileInfo) uint32 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return st.Mode & uint32(unix.S_IRWXU|unix.S_IRWXG|unix.S_IRWXO)
	}
	return uint32(fi.Mode().Perm())
}
