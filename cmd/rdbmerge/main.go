// Command rdbmerge discovers mod directories under a working directory,
// rewrites the RDB archives they target to point at external uncompressed
// replacement data, and assembles the result into a single output mod
// tree.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/modkit/rdbmerge/internal/config"
	"github.com/modkit/rdbmerge/internal/ktid"
	"github.com/modkit/rdbmerge/internal/merge"
	"github.com/modkit/rdbmerge/internal/safety"
)

var debug = flag.Bool("debug", false, "format error messages with additional detail")

// errEmulatorAbort is a sentinel distinguishing the safety-check refusal
// from a generic user-visible error, so funcmain can map it to exit code
// 2 instead of 1.
var errEmulatorAbort = xerrors.New("rdbmerge: working directory looks like an emulator load directory")

func usage(fset *flag.FlagSet, helpText string) func() {
	return func() {
		fmt.Fprintln(os.Stderr, helpText)
		fmt.Fprintf(os.Stderr, "Flags for rdbmerge %s:\n", fset.Name())
		fset.PrintDefaults()
	}
}

const mergeHelp = `rdbmerge [merge] [job_path] [-output OUTPUT] [-config CONFIG]

Discover mod directories under job_path (default: the current directory)
and merge their replacement files into job_path/000_AOC_MERGED_MODS.
`

func cmdMerge(args []string) error {
	fset := flag.NewFlagSet("merge", flag.ExitOnError)
	output := fset.String("output", "", "additional destination to copy the merged mod directory into")
	configPath := fset.String("config", defaultConfigPath(), "path to the rdbmerge TOML config file")
	fset.Usage = usage(fset, mergeHelp)
	fset.Parse(args)

	jobPath := "."
	if fset.NArg() > 0 {
		jobPath = fset.Arg(0)
		fset.Parse(fset.Args()[1:]) // flags may also follow job_path
	}
	abs, err := filepath.Abs(jobPath)
	if err != nil {
		return xerrors.Errorf("resolving job path %s: %w", jobPath, err)
	}

	if name := safety.EmulatorName(abs); name != "" {
		return xerrors.Errorf("%s appears to be a %s load directory: %w", abs, name, errEmulatorAbort)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return xerrors.Errorf("loading config: %w", err)
	}

	hc, err := loadOrBuildHashCache(*configPath, cfg.Romfs)
	if err != nil {
		return xerrors.Errorf("loading hash cache: %w", err)
	}

	mergeCfg := merge.Config{
		RomfsPath: cfg.Romfs,
		Index:     config.BuildReverseIndex(hc),
	}
	return merge.Run(abs, mergeCfg, *output)
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "rdbmerge", "config.toml")
	}
	return "rdbmerge.toml"
}

func loadOrBuildHashCache(configPath, romfsPath string) (config.HashCache, error) {
	cachePath := filepath.Join(filepath.Dir(configPath), "AOC_hashes.json")
	if hc, err := config.LoadHashCache(cachePath); err == nil {
		return hc, nil
	}
	hc, err := config.GenerateHashCache(filepath.Join(romfsPath, "asset"))
	if err != nil {
		return nil, err
	}
	if err := hc.Save(cachePath); err != nil {
		return nil, xerrors.Errorf("caching generated hashes: %w", err)
	}
	return hc, nil
}

const hashHelp = `rdbmerge hash <name-or-0xhex>

Print the KTID a replacement filename or literal hex value resolves to.
`

func cmdHash(args []string) error {
	fset := flag.NewFlagSet("hash", flag.ExitOnError)
	fset.Usage = usage(fset, hashHelp)
	fset.Parse(args)

	if fset.NArg() != 1 {
		fset.Usage()
		os.Exit(2)
	}

	arg := fset.Arg(0)
	var id ktid.KTID
	var err error
	if filepath.Ext(arg) != "" {
		id, err = ktid.ForPath(arg)
	} else {
		id, err = ktid.Parse(arg)
	}
	if err != nil {
		return xerrors.Errorf("hashing %q: %w", arg, err)
	}
	fmt.Println(id.String())
	return nil
}

func funcmain() error {
	log.SetFlags(0)
	flag.Parse()

	verbs := map[string]func([]string) error{
		"merge": cmdMerge,
		"hash":  cmdHash,
	}

	args := flag.Args()
	verb := "merge"
	if len(args) > 0 {
		if _, ok := verbs[args[0]]; ok {
			verb, args = args[0], args[1:]
		}
	}

	fn, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: rdbmerge <merge|hash> [options]\n")
		os.Exit(2)
	}

	if err := fn(args); err != nil {
		if xerrors.Is(err, errEmulatorAbort) {
			if *debug {
				fmt.Fprintf(os.Stderr, "%s: %+v\n", verb, err)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %v\n", verb, err)
			}
			os.Exit(2)
		}
		if *debug {
			return xerrors.Errorf("%s: %+v", verb, err)
		}
		return xerrors.Errorf("%s: %v", verb, err)
	}
	return nil
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
