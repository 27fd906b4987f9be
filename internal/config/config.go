// Package config loads the persisted tool configuration (a TOML file
// naming the game's romfs path) and the companion JSON hash cache that is
// compiled into a reverse KTID index: KTID -> containing RDB filename.
//
// The core orchestrator never reads either file format directly; it only
// ever sees the romfs path and a ReverseIndex derived from them.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"

	"github.com/modkit/rdbmerge/internal/rdb"
)

// Config is the on-disk tool configuration. Its only required field is
// Romfs, matching the game's AocConfig.toml on disk.
type Config struct {
	Romfs string `toml:"romfs"`
}

// Load decodes a TOML config file at path. Following the game's own
// defaulting rule (AocConfig::check_if_romfs_valid), the configured path
// is only trusted if "asset/CharacterEditor.rdb" exists beneath it.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, xerrors.Errorf("decoding config %s: %w", path, err)
	}
	if c.Romfs == "" {
		return nil, xerrors.Errorf("config %s: romfs is empty", path)
	}
	marker := filepath.Join(c.Romfs, "asset", "CharacterEditor.rdb")
	if _, err := os.Stat(marker); err != nil {
		return nil, xerrors.Errorf("config %s: romfs %q does not look like a game root (missing %s): %w", path, c.Romfs, marker, err)
	}
	return &c, nil
}

// HashCache is the on-disk shape of the sibling JSON cache: RDB basename
// to the list of lowercase-hex KTIDs it contains.
type HashCache map[string][]string

// LoadHashCache decodes the JSON hash cache at path.
func LoadHashCache(path string) (HashCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("reading hash cache %s: %w", path, err)
	}
	var hc HashCache
	if err := json.Unmarshal(data, &hc); err != nil {
		return nil, xerrors.Errorf("decoding hash cache %s: %w", path, err)
	}
	return hc, nil
}

// Save writes the hash cache to path as indented JSON, for a regenerated
// cache to be reused without rebuilding.
func (hc HashCache) Save(path string) error {
	data, err := json.MarshalIndent(hc, "", "  ")
	if err != nil {
		return xerrors.Errorf("encoding hash cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return xerrors.Errorf("writing hash cache %s: %w", path, err)
	}
	return nil
}

// ReverseIndex is KTID -> containing RDB basename, the only shape of the
// configuration the orchestrator (and aochash.AocHash) ever consults. It
// is read-only after construction and safe to share across the merge.
type ReverseIndex map[string]string

// Lookup implements aochash.ReverseIndex.
func (idx ReverseIndex) Lookup(hash string) (string, bool) {
	name, ok := idx[hash]
	return name, ok
}

// GenerateHashCache rebuilds the hash cache by opening every ".rdb" file
// directly inside assetDir and recording each entry's FileKTID, mirroring
// AocConfig::get_hashes's one-time scan. It is the only place in this
// module that reads every RDB in the game root rather than the handful a
// merge actually touches.
func GenerateHashCache(assetDir string) (HashCache, error) {
	entries, err := os.ReadDir(assetDir)
	if err != nil {
		return nil, xerrors.Errorf("reading asset dir %s: %w", assetDir, err)
	}

	hc := make(HashCache)
	for _, de := range entries {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), ".rdb") {
			continue
		}
		path := filepath.Join(assetDir, de.Name())
		hashes, err := hashesInRdb(path)
		if err != nil {
			return nil, xerrors.Errorf("scanning %s: %w", path, err)
		}
		hc[de.Name()] = hashes
	}
	return hc, nil
}

func hashesInRdb(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	parsed, err := rdb.Read(f, fi.Size())
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(parsed.Entries))
	for _, e := range parsed.Entries {
		hashes = append(hashes, e.FileKTIDValue().String())
	}
	return hashes, nil
}

// BuildReverseIndex inverts a HashCache's RDB-to-hashes forward mapping.
func BuildReverseIndex(hc HashCache) ReverseIndex {
	idx := make(ReverseIndex)
	for rdbName, hashes := range hc {
		for _, h := range hashes {
			idx[h] = rdbName
		}
	}
	return idx
}
