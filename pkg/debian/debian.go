// Package debian derives the Debian-facing names and metadata for a crate:
// source package name, semver suffix, watch-file version pattern and the
// short/long description split. It produces data only; rendering control
// files is left to downstream tooling.
package debian

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matzehuels/debcrate/pkg/crate"
)

// BaseInfo collects the derived Debian identity of one crate version.
type BaseInfo struct {
	// CrateName is the upstream name, unmangled.
	CrateName string

	// DebName is the mangled crate name: lowercase, underscores to hyphens.
	DebName string

	// Suffix is the semver suffix appended to library package names so
	// that incompatible upstream versions can coexist in the archive.
	Suffix string

	// Source is the Debian source package name, e.g. "rust-serde" or
	// "rust-nom-4".
	Source string

	// Version is the upstream version being packaged.
	Version string
}

// NewBaseInfo derives the Debian identity for info. isLib and bins describe
// the crate's build targets and decide whether a semver suffix applies.
func NewBaseInfo(info *crate.CrateInfo, isLib bool, bins []string) *BaseInfo {
	deb := MangleName(info.Name)
	suffix := SemverSuffix(info.Version, isLib, bins)
	return &BaseInfo{
		CrateName: info.Name,
		DebName:   deb,
		Suffix:    suffix,
		Source:    "rust-" + deb + suffix,
		Version:   info.Version,
	}
}

// SourceDir is the directory the unpacked source tree lands in,
// e.g. "rust-serde-1.0.100".
func (b *BaseInfo) SourceDir() string {
	return fmt.Sprintf("%s-%s", b.Source, b.Version)
}

// OrigTarball is the name of the upstream tarball the source package
// references, e.g. "rust-serde_1.0.100.orig.tar.gz".
func (b *BaseInfo) OrigTarball() string {
	return fmt.Sprintf("%s_%s.orig.tar.gz", b.Source, b.Version)
}

// MangleName converts a crate name into its Debian form: lowercase with
// underscores replaced by hyphens.
func MangleName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

// SemverSuffix returns the semver suffix for a crate version. Pure binary
// crates get none: only one version of a program ships at a time. Library
// crates get "-<major>", or "-0.<minor>" below 1.0, matching cargo's view
// of which upgrades are breaking.
func SemverSuffix(version string, isLib bool, bins []string) string {
	if !isLib && len(bins) > 0 {
		return ""
	}
	major, minor, _ := splitVersion(version)
	if major == 0 {
		return fmt.Sprintf("-0.%d", minor)
	}
	return fmt.Sprintf("-%d", major)
}

// UscanVersionPattern returns the uscan regex matching every upstream
// version compatible with the packaged one. See the @ANY_VERSION@
// description in uscan(1) for the shape of the character class.
func UscanVersionPattern(version string) string {
	major, minor, _ := splitVersion(version)
	if major == 0 {
		return fmt.Sprintf(`[-_]?(0\.%d\.\d[\-+\.:\~\da-zA-Z]*)`, minor)
	}
	return fmt.Sprintf(`[-_]?(%d\.\d[\-+\.:\~\da-zA-Z]*)`, major)
}

// splitVersion reads up to three leading numeric components. Pre-release
// and build metadata after the patch component are ignored.
func splitVersion(version string) (major, minor, patch int) {
	core := version
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.SplitN(core, ".", 3)
	read := func(i int) int {
		if i >= len(parts) {
			return 0
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0
		}
		return n
	}
	return read(0), read(1), read(2)
}
