package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// fileConfig is the layout of a sysfk.toml file. Every field is optional
// and only fills in flags that were not given on the command line.
type fileConfig struct {
	Run   runConfig   `toml:"run"`
	Store storeConfig `toml:"store"`
}

type runConfig struct {
	Host     string `toml:"host"`
	MaxSteps uint64 `toml:"max-steps"`
	MaxArena int    `toml:"max-arena"`
	Trace    bool   `toml:"trace"`
	Stats    bool   `toml:"stats"`
}

type storeConfig struct {
	Path   string `toml:"path"`
	Engine string `toml:"engine"`
}

// loadConfig parses the TOML file at path.
func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &fc, nil
}

// givenFlags returns the names of the flags given on the command line.
func givenFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// apply copies configured values into the flags not in set.
func (fc *fileConfig) apply(set map[string]bool) {
	if fc.Run.Host != "" && !set["host"] {
		*hostKind = fc.Run.Host
	}
	if fc.Run.MaxSteps != 0 && !set["max-steps"] {
		*maxSteps = fc.Run.MaxSteps
	}
	if fc.Run.MaxArena != 0 && !set["max-arena"] {
		*maxArena = fc.Run.MaxArena
	}
	if fc.Run.Trace && !set["trace"] {
		*trace = true
	}
	if fc.Run.Stats && !set["stats"] {
		*showStats = true
	}
	if fc.Store.Path != "" && !set["store"] {
		*storePath = fc.Store.Path
	}
	if fc.Store.Engine != "" && !set["store-engine"] {
		*storeEngine = fc.Store.Engine
	}
}
