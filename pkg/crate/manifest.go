package crate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/debcrate/pkg/errors"
)

// ManifestName is the crate manifest filename.
const ManifestName = "Cargo.toml"

// ManifestBackupName is where the pristine manifest is preserved when
// the canonical form replaces it.
const ManifestBackupName = "Cargo.toml.orig"

// Manifest is the parsed, normalized model of a Cargo.toml file. It
// keeps only the metadata the packaging pipeline consumes; incidental
// formatting and path-relative constructs from the raw file are gone
// after parsing, which is what makes [Manifest.Canonical] independent
// of how the upstream manifest was authored.
type Manifest struct {
	Package           PackageSection
	Lib               map[string]any
	Bins              []map[string]any
	Features          map[string][]string
	Dependencies      map[string]DepTable
	DevDependencies   map[string]DepTable
	BuildDependencies map[string]DepTable
	Targets           map[string]TargetDeps
}

// PackageSection mirrors the [package] table.
type PackageSection struct {
	Name          string   `toml:"name"`
	Version       string   `toml:"version"`
	Authors       []string `toml:"authors,omitempty"`
	Edition       string   `toml:"edition,omitempty"`
	RustVersion   string   `toml:"rust-version,omitempty"`
	Description   string   `toml:"description,omitempty"`
	Documentation string   `toml:"documentation,omitempty"`
	Readme        string   `toml:"readme,omitempty"`
	Homepage      string   `toml:"homepage,omitempty"`
	Repository    string   `toml:"repository,omitempty"`
	License       string   `toml:"license,omitempty"`
	LicenseFile   string   `toml:"license-file,omitempty"`
	Keywords      []string `toml:"keywords,omitempty"`
	Categories    []string `toml:"categories,omitempty"`
	Links         string   `toml:"links,omitempty"`
}

// DepTable is one normalized dependency declaration. String shorthand
// ("serde = \"1.0\"") becomes {"version": "1.0"}; source-location keys
// (path, git, branch, tag, rev) are stripped so the manifest builds
// standalone against the registry.
type DepTable map[string]any

// TargetDeps groups the per-platform dependency tables under [target.*].
type TargetDeps struct {
	Dependencies      map[string]DepTable `toml:"dependencies,omitempty"`
	DevDependencies   map[string]DepTable `toml:"dev-dependencies,omitempty"`
	BuildDependencies map[string]DepTable `toml:"build-dependencies,omitempty"`
}

// depSourceKeys are dependency keys that tie a build to a local or git
// checkout. Canonicalization removes them.
var depSourceKeys = map[string]bool{
	"path":   true,
	"git":    true,
	"branch": true,
	"tag":    true,
	"rev":    true,
}

// manifestFile is the loose shape used for decoding; dependency values
// may be version strings or tables.
type manifestFile struct {
	Package  PackageSection      `toml:"package"`
	Lib      map[string]any      `toml:"lib"`
	Bin      []map[string]any    `toml:"bin"`
	Features map[string][]string `toml:"features"`

	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`

	Target map[string]struct {
		Dependencies      map[string]any `toml:"dependencies"`
		DevDependencies   map[string]any `toml:"dev-dependencies"`
		BuildDependencies map[string]any `toml:"build-dependencies"`
	} `toml:"target"`
}

// ParseManifest decodes and normalizes Cargo.toml contents.
func ParseManifest(data []byte) (*Manifest, error) {
	var file manifestFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestIO, err, "parsing %s", ManifestName)
	}

	m := &Manifest{
		Package:           file.Package,
		Lib:               file.Lib,
		Bins:              file.Bin,
		Features:          file.Features,
		Dependencies:      normalizeDeps(file.Dependencies),
		DevDependencies:   normalizeDeps(file.DevDependencies),
		BuildDependencies: normalizeDeps(file.BuildDependencies),
	}
	for cfg, t := range file.Target {
		if m.Targets == nil {
			m.Targets = make(map[string]TargetDeps)
		}
		m.Targets[cfg] = TargetDeps{
			Dependencies:      normalizeDeps(t.Dependencies),
			DevDependencies:   normalizeDeps(t.DevDependencies),
			BuildDependencies: normalizeDeps(t.BuildDependencies),
		}
	}
	return m, nil
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestIO, err, "reading %s", path)
	}
	return ParseManifest(data)
}

func normalizeDeps(raw map[string]any) map[string]DepTable {
	if len(raw) == 0 {
		return nil
	}
	deps := make(map[string]DepTable, len(raw))
	for name, v := range raw {
		switch spec := v.(type) {
		case string:
			deps[name] = DepTable{"version": spec}
		case map[string]any:
			table := make(DepTable, len(spec))
			for k, val := range spec {
				if depSourceKeys[k] {
					continue
				}
				table[k] = val
			}
			// A path-only dependency loses its location; pin it to any
			// registry version rather than dropping the relationship.
			if _, ok := table["version"]; !ok {
				table["version"] = "*"
			}
			deps[name] = table
		}
	}
	return deps
}

// canonicalHeader explains why the file differs from the upstream one.
const canonicalHeader = `# Cargo.toml regenerated from parsed metadata so the source builds
# standalone. The pristine upstream file is kept as Cargo.toml.orig.

`

// canonicalManifest fixes the section order of the canonical encoding.
type canonicalManifest struct {
	Package           PackageSection        `toml:"package"`
	Lib               map[string]any        `toml:"lib,omitempty"`
	Bin               []map[string]any      `toml:"bin,omitempty"`
	Features          map[string][]string   `toml:"features,omitempty"`
	Dependencies      map[string]DepTable   `toml:"dependencies,omitempty"`
	DevDependencies   map[string]DepTable   `toml:"dev-dependencies,omitempty"`
	BuildDependencies map[string]DepTable   `toml:"build-dependencies,omitempty"`
	Target            map[string]TargetDeps `toml:"target,omitempty"`
}

// Canonical renders the manifest in its canonical form: fixed section
// order, sorted keys within each table, source-location constructs
// stripped. The output depends only on the parsed metadata, so two
// differently-formatted manifests with the same content canonicalize to
// identical bytes.
func (m *Manifest) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(canonicalHeader)

	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(canonicalManifest{
		Package:           m.Package,
		Lib:               m.Lib,
		Bin:               m.Bins,
		Features:          m.Features,
		Dependencies:      m.Dependencies,
		DevDependencies:   m.DevDependencies,
		BuildDependencies: m.BuildDependencies,
		Target:            m.Targets,
	}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestIO, err, "encoding canonical %s", ManifestName)
	}
	return buf.Bytes(), nil
}

// IsLib reports whether the crate builds a library target. An explicit
// [lib] section wins; otherwise the conventional src/lib.rs decides.
func (m *Manifest) IsLib(srcdir string) bool {
	if m.Lib != nil {
		return true
	}
	_, err := os.Stat(filepath.Join(srcdir, "src", "lib.rs"))
	return err == nil
}

// BinaryNames returns the sorted names of the crate's binary targets:
// declared [[bin]] sections plus the conventional src/main.rs and
// src/bin/*.rs locations.
func (m *Manifest) BinaryNames(srcdir string) []string {
	seen := make(map[string]bool)
	for _, bin := range m.Bins {
		if name, ok := bin["name"].(string); ok && name != "" {
			seen[name] = true
		}
	}
	if _, err := os.Stat(filepath.Join(srcdir, "src", "main.rs")); err == nil {
		seen[m.Package.Name] = true
	}
	if entries, err := os.ReadDir(filepath.Join(srcdir, "src", "bin")); err == nil {
		for _, e := range entries {
			if name, ok := strings.CutSuffix(e.Name(), ".rs"); ok && !e.IsDir() {
				seen[name] = true
			}
		}
	}

	bins := make([]string, 0, len(seen))
	for name := range seen {
		bins = append(bins, name)
	}
	sort.Strings(bins)
	return bins
}

// DependencyList flattens all non-dev dependency tables (including
// per-target ones) into the [Dependency] form the feature resolver
// consumes. Dev dependencies are included with KindDev so callers can
// still report them.
func (m *Manifest) DependencyList() []Dependency {
	var out []Dependency
	out = appendDeps(out, m.Dependencies, KindNormal, "")
	out = appendDeps(out, m.BuildDependencies, KindBuild, "")
	out = appendDeps(out, m.DevDependencies, KindDev, "")
	for _, cfg := range sortedKeys(m.Targets) {
		t := m.Targets[cfg]
		out = appendDeps(out, t.Dependencies, KindNormal, cfg)
		out = appendDeps(out, t.BuildDependencies, KindBuild, cfg)
		out = appendDeps(out, t.DevDependencies, KindDev, cfg)
	}
	return out
}

func appendDeps(out []Dependency, deps map[string]DepTable, kind DepKind, target string) []Dependency {
	for _, name := range sortedKeys(deps) {
		table := deps[name]
		d := Dependency{
			Name:            name,
			Kind:            kind,
			Target:          target,
			DefaultFeatures: true,
		}
		if v, ok := table["version"].(string); ok {
			d.Req = v
		}
		if v, ok := table["optional"].(bool); ok {
			d.Optional = v
		}
		if v, ok := table["default-features"].(bool); ok {
			d.DefaultFeatures = v
		}
		if raw, ok := table["features"].([]any); ok {
			for _, f := range raw {
				if s, ok := f.(string); ok {
					d.Features = append(d.Features, s)
				}
			}
		}
		// A renamed dependency points at a different registry name.
		if v, ok := table["package"].(string); ok && v != "" {
			d.Name = v
		}
		out = append(out, d)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Summary is a short identity string for logs.
func (m *Manifest) Summary() string {
	return fmt.Sprintf("%s %s", m.Package.Name, m.Package.Version)
}
