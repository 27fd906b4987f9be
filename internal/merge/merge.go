// Package merge implements the merge orchestrator: it discovers mod
// directories under a working directory, establishes last-wins
// precedence over replacement files, groups them by target RDB, rewrites
// each affected RDB at most once, and assembles the unified output mod
// tree.
package merge

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/xerrors"

	"github.com/modkit/rdbmerge/internal/aochash"
	"github.com/modkit/rdbmerge/internal/fsutil"
	"github.com/modkit/rdbmerge/internal/ktid"
	"github.com/modkit/rdbmerge/internal/rdb"
)

func parseHashKTID(hash string) (ktid.KTID, error) {
	return ktid.Parse("0x" + hash)
}

// outputDirName is the fixed name of the merged mod directory the
// orchestrator creates inside the working directory.
const outputDirName = "000_AOC_MERGED_MODS"

// auxSubpaths are the directories whose top-level files (not
// subdirectories) are copied verbatim from each mod, in addition to
// romfs/asset/data which is handled by the replacement pipeline.
var auxSubpaths = []string{"exefs", "romfs/movie_logo"}

// scaffoldSubpaths are created empty in the output tree regardless of
// whether any mod populates them.
var scaffoldSubpaths = []string{
	"romfs/asset",
	"romfs/asset/data",
	"romfs/asset/patch",
	"exefs",
	"romfs/movie_logo",
}

// Config is the subset of the persisted tool configuration the
// orchestrator consumes: an absolute romfs path and a read-only reverse
// KTID index.
type Config struct {
	RomfsPath string
	Index     aochash.ReverseIndex
}

// Run executes one merge: workDir is scanned for mod directories, the
// affected RDBs under cfg.RomfsPath/asset are rewritten into
// workDir/000_AOC_MERGED_MODS, and, if extraDest is non-empty, the
// resulting tree is additionally copied there.
func Run(workDir string, cfg Config, extraDest string) error {
	outDir := filepath.Join(workDir, outputDirName)

	if err := os.RemoveAll(outDir); err != nil {
		return xerrors.Errorf("clearing previous output %s: %w", outDir, err)
	}
	if err := fsutil.MkdirAllScaffold(outDir, scaffoldSubpaths...); err != nil {
		return xerrors.Errorf("scaffolding output tree: %w", err)
	}

	mods, err := discoverMods(workDir, outputDirName)
	if err != nil {
		return xerrors.Errorf("discovering mod directories: %w", err)
	}

	buckets := make(map[string][]aochash.AocHash)

	// Reverse-lexicographic order: the first time a hash is seen here is
	// the lexicographically *last* mod containing it, which is the one
	// that must win.
	for i := len(mods) - 1; i >= 0; i-- {
		mod := mods[i]
		log.Printf("processing mod %s", mod)

		for _, sub := range auxSubpaths {
			src := filepath.Join(mod, "romfs", strings.TrimPrefix(sub, "romfs/"))
			if sub == "exefs" {
				src = filepath.Join(mod, "exefs")
			}
			if fi, err := os.Stat(src); err != nil || !fi.IsDir() {
				continue
			}
			dst := filepath.Join(outDir, sub)
			if err := fsutil.CopyTopLevelNoOverwrite(src, dst); err != nil {
				return xerrors.Errorf("copying auxiliary tree %s: %w", src, err)
			}
		}

		dataDir := filepath.Join(mod, "romfs", "asset", "data")
		entries, err := os.ReadDir(dataDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return xerrors.Errorf("reading %s: %w", dataDir, err)
		}
		for _, de := range entries {
			if de.IsDir() {
				continue
			}
			path := filepath.Join(dataDir, de.Name())
			h := aochash.New(path, cfg.Index)
			if !h.Valid() {
				log.Printf("file %s has no known target RDB, dropping", path)
				continue
			}
			buckets[h.RDBName] = append(buckets[h.RDBName], h)
		}
	}

	for rdbName, bucket := range buckets {
		if err := patchRdb(cfg.RomfsPath, outDir, rdbName, bucket); err != nil {
			log.Printf("ERROR: patching %s: %v", rdbName, err)
		}
	}

	if extraDest != "" {
		if err := fsutil.CopyTree(outDir, extraDest); err != nil {
			return xerrors.Errorf("copying output tree to %s: %w", extraDest, err)
		}
	}

	return nil
}

// discoverMods returns the direct subdirectories of workDir that look
// like a mod (contain romfs/asset/data), excluding the output directory
// and any directory whose name begins with '#', sorted by lowercase full
// path ascending.
func discoverMods(workDir, excludeName string) ([]string, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, err
	}

	var mods []string
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		name := de.Name()
		if name == excludeName || strings.HasPrefix(name, "#") {
			continue
		}
		full := filepath.Join(workDir, name)
		if !isModDir(full) {
			continue
		}
		mods = append(mods, full)
	}

	sort.Slice(mods, func(i, j int) bool {
		return strings.ToLower(mods[i]) < strings.ToLower(mods[j])
	})
	return mods, nil
}

func isModDir(path string) bool {
	fi, err := os.Stat(filepath.Join(path, "romfs", "asset", "data"))
	return err == nil && fi.IsDir()
}

// patchRdb loads the named RDB from romfsPath/asset, applies the mutator
// to every hash in bucket (first-seen-wins within the bucket, which is
// already in last-wins mod order), and writes the result under outDir.
func patchRdb(romfsPath, outDir, rdbName string, bucket []aochash.AocHash) error {
	srcPath := filepath.Join(romfsPath, "asset", rdbName)
	f, err := os.Open(srcPath)
	if err != nil {
		return xerrors.Errorf("opening source RDB: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return xerrors.Errorf("statting source RDB: %w", err)
	}

	parsed, err := rdb.Read(f, fi.Size())
	if err != nil {
		return xerrors.Errorf("parsing %s: %w", srcPath, err)
	}

	log.Printf("starting to patch %s", rdbName)
	dataDir := filepath.Join(outDir, "romfs", "asset", "data")

	seen := make(map[string]bool)
	for _, h := range bucket {
		if seen[h.Hash] {
			continue
		}
		seen[h.Hash] = true

		id, err := parseHashKTID(h.Hash)
		if err != nil {
			log.Printf("hash %s: %v, skipping", h.Hash, err)
			continue
		}
		entry := parsed.EntryByKTID(id)
		if entry == nil {
			log.Printf("file %s not found in %s, skipping", h.HexString(), rdbName)
			continue
		}

		destPath := filepath.Join(dataDir, h.HexString()+".file")
		out, err := rdb.Mutate(entry, rdb.Source{Path: h.Path, Hash: h.Hash})
		switch {
		case err == nil:
			if fi, statErr := os.Stat(h.Path); statErr == nil && fi.Size() == 0 {
				log.Printf("warning: replacement file %s is empty", h.Path)
			}
			if err := fsutil.WriteFileAtomic(destPath, out, 0o644); err != nil {
				return xerrors.Errorf("writing %s: %w", destPath, err)
			}
			log.Printf("patched %s", h.HexString())
		case xerrors.Is(err, rdb.ErrAlreadyExternal):
			if _, statErr := os.Stat(destPath); os.IsNotExist(statErr) {
				if err := fsutil.CopyFile(h.Path, destPath); err != nil {
					return xerrors.Errorf("copying already-external %s: %w", h.Path, err)
				}
			}
			log.Printf("%s already external, copied as-is", h.HexString())
		default:
			return xerrors.Errorf("mutating entry %s: %w", h.HexString(), err)
		}
	}

	destRdbPath := filepath.Join(outDir, "romfs", "asset", rdbName)
	out, err := rdb.Write(parsed)
	if err != nil {
		return xerrors.Errorf("serializing %s: %w", rdbName, err)
	}
	return fsutil.WriteFileAtomic(destRdbPath, out, 0o644)
}
