// Package pipeline provides the core packaging pipeline for debcrate.
//
// This package implements the complete fetch → extract → resolve flow that
// can be used by the CLI and by batch tooling. By centralizing this logic,
// we ensure consistent behavior across all entry points and avoid code
// duplication.
//
// # Architecture
//
// The pipeline consists of three stages:
//
//  1. Fetch: Retrieve crate metadata and the .crate archive from crates.io
//  2. Extract: Unpack the archive safely and canonicalize its manifest
//  3. Resolve: Flatten the feature graph and derive the Debian identity
//
// Each stage can be run independently or as part of the complete pipeline.
//
// # Usage
//
// Create a Runner and execute the pipeline:
//
//	runner := pipeline.NewRunner(cache, registry, logger)
//	opts := pipeline.Options{
//	    Crate:   "serde",
//	    Version: "1.0.100",
//	}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.SourceDir, result.OrigTarball)
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/debcrate/pkg/crate"
	"github.com/matzehuels/debcrate/pkg/debian"
	"github.com/matzehuels/debcrate/pkg/errors"
)

// Options contains all configuration for one packaging run.
type Options struct {
	// Crate is the registry name of the crate to package.
	Crate string `json:"crate"`

	// Version pins the version to package; empty selects the newest
	// published version. Accepts "1.2.3" or "=1.2.3".
	Version string `json:"version,omitempty"`

	// Directory overrides the output directory for the unpacked source
	// tree. Empty derives "rust-<name><suffix>-<version>" in the working
	// directory.
	Directory string `json:"directory,omitempty"`

	// ConfigPath points at an optional per-crate TOML config file.
	ConfigPath string `json:"config,omitempty"`

	// Refresh bypasses cached registry responses.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	validated bool `json:"-"`
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := errors.ValidateCrateName(o.Crate); err != nil {
		return err
	}
	if err := errors.ValidateVersionReq(o.Version); err != nil {
		return err
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// Result contains the outputs of a packaging run.
type Result struct {
	// Info is the fetched registry metadata for the exact version packaged.
	Info *crate.CrateInfo

	// Base is the derived Debian identity.
	Base *debian.BaseInfo

	// Features is the resolved feature table, with pure aliases already
	// collapsed into Provides.
	Features crate.FeatureTable

	// Provides maps each surviving feature to the aliases it provides.
	Provides crate.ProvidesMap

	// SourceDir is the directory holding the unpacked, sanitized source.
	SourceDir string

	// OrigTarball is the file name the upstream tarball must use.
	OrigTarball string

	// SourceModified reports whether the unpacked tree differs from the
	// pristine archive (exclusions applied or manifest rewritten).
	SourceModified bool

	// Summary and Description are derived from the crate description.
	Summary     string
	Description string

	// Fixmes lists files in the output tree containing FIXME markers.
	Fixmes []string

	// Stats contains timing information.
	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	FetchTime   time.Duration
	ExtractTime time.Duration
	ResolveTime time.Duration
}
