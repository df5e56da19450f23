package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/debcrate/pkg/cache"
	"github.com/matzehuels/debcrate/pkg/config"
	"github.com/matzehuels/debcrate/pkg/crate"
	"github.com/matzehuels/debcrate/pkg/debian"
	"github.com/matzehuels/debcrate/pkg/errors"
	"github.com/matzehuels/debcrate/pkg/integrations/crates"
	"github.com/matzehuels/debcrate/pkg/observability"
)

// Registry is the slice of the crates.io client the pipeline needs.
// Satisfied by [crates.Client]; tests substitute a local implementation.
type Registry interface {
	FetchCrate(ctx context.Context, name, req string, refresh bool) (*crate.CrateInfo, error)
	DownloadCrate(ctx context.Context, info *crate.CrateInfo, dir string) (string, error)
}

// Runner executes packaging runs against one registry client.
//
// The Runner is stateless except for the cache, registry and logger - it
// doesn't store run results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache    cache.Cache
	Registry Registry
	Logger   *log.Logger
}

// NewRunner creates a runner with the given cache and registry client.
// If c is nil, a NullCache is used (caching disabled). If registry is nil,
// a crates.io client backed by c is created.
func NewRunner(c cache.Cache, registry Registry, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if registry == nil {
		registry = crates.NewClient(c, 24*time.Hour)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:    c,
		Registry: registry,
		Logger:   logger,
	}
}

// Execute runs the complete fetch → extract → resolve pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := r.Logger.With("run", uuid.NewString()[:8], "crate", opts.Crate)

	cfg, err := r.loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	// Stage 1: Fetch
	fetchStart := time.Now()
	observability.Packaging().OnFetchStart(ctx, opts.Crate, opts.Version)
	info, err := r.Registry.FetchCrate(ctx, opts.Crate, opts.Version, opts.Refresh)
	observability.Packaging().OnFetchComplete(ctx, opts.Crate, opts.Version, time.Since(fetchStart), err)
	if err != nil {
		return nil, err
	}
	result.Info = info
	result.Stats.FetchTime = time.Since(fetchStart)

	logger = logger.With("version", info.Version)
	logger.Info("fetched crate metadata",
		"features", len(info.Features),
		"deps", len(info.Dependencies),
		"duration", result.Stats.FetchTime)

	downloadDir, err := os.MkdirTemp("", "debcrate-dl-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(downloadDir)

	archive, err := r.Registry.DownloadCrate(ctx, info, downloadDir)
	if err != nil {
		return nil, err
	}

	// Stage 2: Extract
	extractStart := time.Now()
	observability.Packaging().OnExtractStart(ctx, info.Name, info.Version)
	srcdir, modified, err := r.extract(archive, cfg, logger)
	observability.Packaging().OnExtractComplete(ctx, info.Name, info.Version, modified, time.Since(extractStart), err)
	if err != nil {
		return nil, err
	}
	staging := filepath.Dir(srcdir)
	defer os.RemoveAll(staging)
	result.SourceModified = modified
	result.Stats.ExtractTime = time.Since(extractStart)

	logger.Info("extracted source",
		"modified", modified,
		"duration", result.Stats.ExtractTime)

	// Stage 3: Resolve
	resolveStart := time.Now()
	observability.Packaging().OnResolveStart(ctx, info.Name, len(info.Features))
	table, err := info.ResolveFeatures()
	if err != nil {
		observability.Packaging().OnResolveComplete(ctx, info.Name, time.Since(resolveStart), err)
		return nil, err
	}
	provides := table.SynthesizeProvides()
	observability.Packaging().OnResolveComplete(ctx, info.Name, time.Since(resolveStart), nil)
	result.Features = table
	result.Provides = provides
	result.Stats.ResolveTime = time.Since(resolveStart)

	logger.Info("resolved feature graph",
		"features", len(table),
		"provides", len(provides),
		"duration", result.Stats.ResolveTime)

	// Derive the Debian identity from the unpacked manifest: only the
	// manifest knows whether the crate builds a library, binaries or both.
	manifest, err := crate.LoadManifest(filepath.Join(srcdir, crate.ManifestName))
	if err != nil {
		return nil, err
	}
	base := debian.NewBaseInfo(info, manifest.IsLib(srcdir), manifest.BinaryNames(srcdir))
	result.Base = base
	result.OrigTarball = base.OrigTarball()
	result.Summary, result.Description = debian.SummaryDescription(info.Name, info.Description)

	dest := opts.Directory
	if dest == "" {
		dest = base.SourceDir()
	}
	if _, err := os.Stat(dest); err == nil {
		return nil, errors.New(errors.ErrCodeInvalidPath,
			"output directory %s already exists, move or remove it first", dest)
	}
	if err := os.Rename(srcdir, dest); err != nil {
		return nil, err
	}
	result.SourceDir = dest

	if fixmes, err := lookupFixmes(dest); err == nil && len(fixmes) > 0 {
		result.Fixmes = fixmes
		logger.Warn("tree contains FIXME markers", "files", len(fixmes))
	}

	logger.Info("packaged source",
		"dir", result.SourceDir,
		"orig_tarball", result.OrigTarball)
	return result, nil
}

func (r *Runner) loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// extract unpacks the archive into a staging directory and returns the
// path of the unpacked source tree inside it.
func (r *Runner) extract(archive string, cfg *config.Config, logger *log.Logger) (string, bool, error) {
	f, err := os.Open(archive)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	staging, err := os.MkdirTemp("", "debcrate-src-")
	if err != nil {
		return "", false, err
	}

	ex := &crate.Extractor{
		Policy: crate.Policy{
			Excludes:  cfg.Excludes,
			Whitelist: cfg.Whitelist,
		},
		Warn: func(format string, args ...any) {
			logger.Warnf(format, args...)
		},
	}

	dest := filepath.Join(staging, "source")
	modified, err := ex.Extract(f, dest)
	if err != nil {
		os.RemoveAll(staging)
		return "", false, err
	}
	return dest, modified, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
