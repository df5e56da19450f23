// Package config loads per-package override configuration for debcrate.
//
// Most crates package cleanly with no configuration at all. For the ones
// that do not, a TOML file passed via --config adjusts the extraction
// policy and control-file fields for that one crate:
//
//	excludes = ["benches/fixtures/*"]
//	whitelist = ["src/sqlite3.c"]
//	section = "rust"
//
// The file is package-specific and lives next to the packaging scripts,
// not in the produced source tree.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/debcrate/pkg/errors"
)

// Config holds the per-crate packaging overrides.
type Config struct {
	// Excludes lists glob patterns (relative to the crate root) for
	// archive entries to drop during extraction.
	Excludes []string `toml:"excludes"`

	// Whitelist lists glob patterns for suspicious files (bundled C
	// sources, pre-built libraries) that are acceptable for this crate.
	Whitelist []string `toml:"whitelist"`

	// AllowPrereleaseDeps permits dependencies whose requirement
	// resolves to a pre-release version.
	AllowPrereleaseDeps bool `toml:"allow_prerelease_deps"`

	// Control-file field overrides, passed through to the renderer.
	Section     string   `toml:"section"`
	Priority    string   `toml:"priority"`
	Maintainer  string   `toml:"maintainer"`
	Uploaders   []string `toml:"uploaders"`
	Summary     string   `toml:"summary"`
	Description string   `toml:"description"`
}

// Default returns the configuration used when no --config file is given.
func Default() *Config {
	return &Config{}
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "reading config %s", path)
	}
	return Parse(data)
}

// Parse decodes config file contents. Unknown keys are rejected so a
// typo in an override does not silently do nothing.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parsing config")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q", undecoded[0].String())
	}
	return &cfg, nil
}
