// Package crate implements the core of the crates.io → Debian conversion:
// the feature dependency graph resolver and the source archive extractor.
//
// The resolver turns a crate's feature/optional-dependency model into a
// flattened table mapping each feature to its transitive feature set and
// package dependencies, then collapses pure alias features into a provides
// map so the downstream packaging relationships stay minimal.
//
// The extractor unpacks an untrusted .crate archive (gzip-compressed tar)
// into a destination directory while enforcing path safety and a content
// policy, and rewrites the Cargo.toml manifest to its canonical registry
// form so the produced tree builds standalone.
package crate

import "fmt"

// DepKind classifies a dependency by how it participates in a build.
type DepKind int

const (
	// KindNormal dependencies ship with the package.
	KindNormal DepKind = iota
	// KindBuild dependencies are needed to compile; Debian treats them the
	// same as normal dependencies.
	KindBuild
	// KindDev dependencies only affect tests and never a shipped package.
	KindDev
)

// ParseDepKind maps the registry's kind string to a DepKind.
// Unknown kinds are treated as normal.
func ParseDepKind(s string) DepKind {
	switch s {
	case "build":
		return KindBuild
	case "dev":
		return KindDev
	default:
		return KindNormal
	}
}

func (k DepKind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindDev:
		return "dev"
	default:
		return "normal"
	}
}

// Dependency identifies a required external crate. Immutable once built;
// qualified feature references derive copies with the feature-activation
// fields overridden (see [withFeature]).
type Dependency struct {
	Name            string   // crate name on the registry
	Req             string   // version requirement, kept opaque
	Optional        bool     // activated only via a feature
	Kind            DepKind  // normal, build or dev
	Features        []string // sub-features to activate
	DefaultFeatures bool     // whether the dependency's default feature set applies
	Target          string   // cfg expression restricting the platform, empty for all
}

// withFeature returns a copy of d that activates exactly the named
// sub-feature with default features disabled.
func (d Dependency) withFeature(feature string) Dependency {
	d.Features = []string{feature}
	d.DefaultFeatures = false
	return d
}

// String renders the dependency for log and error messages.
func (d Dependency) String() string {
	if d.Req == "" {
		return d.Name
	}
	return fmt.Sprintf("%s %s", d.Name, d.Req)
}

// CrateInfo holds the registry-supplied metadata for one exact crate
// version: identity, description text and the raw feature/dependency
// declarations the resolver consumes. It is assembled by the registry
// client; this package never performs network access itself.
type CrateInfo struct {
	Name        string
	Version     string
	Description string
	License     string
	Repository  string
	Homepage    string
	Checksum    string

	// Features maps each declared feature to its raw edge list, exactly
	// as declared in the manifest.
	Features map[string][]string

	// Dependencies is the crate's full dependency list, including
	// optional and dev entries.
	Dependencies []Dependency
}
