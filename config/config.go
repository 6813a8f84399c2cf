// Package config loads gc.Flags from an optional YAML file and layers
// command-line flag overrides on top of it, matching the layered
// config-then-flag-override pattern the teacher's own compiler options use.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/MaimaityMaitity/mcgc/gc"
)

// File is the on-disk shape of a Flags YAML document. Field names mirror
// spec.md §6's flag names directly so a config file reads the same as the
// CLI flags it overrides.
type File struct {
	AlwaysCompact           bool `yaml:"always_compact"`
	NeverCompact            bool `yaml:"never_compact"`
	CleanupICsAtGC          bool `yaml:"cleanup_ics_at_gc"`
	CleanupCachesInMapsAtGC bool `yaml:"cleanup_caches_in_maps_at_gc"`
	GCVerbose               bool `yaml:"gc_verbose"`
	VerifyGlobalGC          bool `yaml:"verify_global_gc"`
}

// Load reads a Flags YAML document from path. A missing file is not an
// error: it is treated the same as an empty document, so a config file is
// always optional.
func Load(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return f, nil
}

// ToFlags converts the loaded document to gc.Flags.
func (f File) ToFlags() gc.Flags {
	return gc.Flags{
		AlwaysCompact:           f.AlwaysCompact,
		NeverCompact:            f.NeverCompact,
		CleanupICsAtGC:          f.CleanupICsAtGC,
		CleanupCachesInMapsAtGC: f.CleanupCachesInMapsAtGC,
		Verbose:                 f.GCVerbose,
		VerifyGlobalGC:          f.VerifyGlobalGC,
	}
}

// RegisterFlags binds command-line flags to fs that override whatever base
// was loaded from a config file. Each flag's default is base's current
// value, so an unset flag leaves the config-file value untouched; Parse
// must be called by the caller (cmd/mcgc owns the FlagSet's arguments).
func RegisterFlags(fs *flag.FlagSet, base gc.Flags) *gc.Flags {
	out := base
	fs.BoolVar(&out.AlwaysCompact, "always-compact", base.AlwaysCompact, "force every cycle to compact")
	fs.BoolVar(&out.NeverCompact, "never-compact", base.NeverCompact, "force every cycle to sweep in place")
	fs.BoolVar(&out.CleanupICsAtGC, "cleanup-ics-at-gc", base.CleanupICsAtGC, "treat IC-stub roots as collectible")
	fs.BoolVar(&out.CleanupCachesInMapsAtGC, "cleanup-caches-in-maps-at-gc", base.CleanupCachesInMapsAtGC, "accepted but has no effect: maps carry no code cache")
	fs.BoolVar(&out.Verbose, "gc-verbose", base.Verbose, "trace every forwarding/relocation/update event")
	fs.BoolVar(&out.VerifyGlobalGC, "verify-global-gc", base.VerifyGlobalGC, "run heap-wide invariant checks between phases")
	return &out
}
