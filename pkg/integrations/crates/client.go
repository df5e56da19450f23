// Package crates provides access to the crates.io registry.
//
// Descriptive crate metadata (description, license, repository) comes from
// the crates.io API. Per-version dependency and feature declarations come
// from the sparse HTTP index at index.crates.io, which serves one JSON line
// per published version. Archives are downloaded from the static CDN and
// verified against the index checksum.
package crates

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/matzehuels/debcrate/pkg/cache"
	"github.com/matzehuels/debcrate/pkg/crate"
	"github.com/matzehuels/debcrate/pkg/errors"
	"github.com/matzehuels/debcrate/pkg/integrations"
)

// Client provides access to the crates.io package registry.
// It handles HTTP requests with caching and automatic retries.
//
// All methods are safe for concurrent use by multiple goroutines.
//
// Note: crates.io requires a User-Agent header; this client sets one
// automatically.
type Client struct {
	*integrations.Client
	apiBase      string
	indexBase    string
	downloadBase string
}

// NewClient creates a crates.io client with the given cache backend.
// Responses are cached for cacheTTL; the returned Client is safe for
// concurrent use.
func NewClient(backend cache.Cache, cacheTTL time.Duration) *Client {
	headers := map[string]string{
		"User-Agent": "debcrate/1.0 (https://github.com/matzehuels/debcrate)",
	}
	return &Client{
		Client:       integrations.NewClient(backend, "crates:", cacheTTL, headers),
		apiBase:      "https://crates.io/api/v1",
		indexBase:    "https://index.crates.io",
		downloadBase: "https://static.crates.io/crates",
	}
}

// FetchCrate retrieves metadata for one exact version of a crate.
//
// The version requirement selects which version: empty picks the newest
// published version, while "1.2.3" or "=1.2.3" pins an exact version. Any
// other requirement syntax is rejected; resolving ranges is the job of a
// full dependency solver, not a packaging tool.
//
// If refresh is true, caches are bypassed and fresh registry calls are made.
//
// Returns a CRATE_NOT_FOUND error if the crate does not exist,
// INVALID_VERSION if the pinned version is unknown or yanked, and
// UNSUPPORTED for requirement syntax this client does not pin.
func (c *Client) FetchCrate(ctx context.Context, name, req string, refresh bool) (*crate.CrateInfo, error) {
	if err := errors.ValidateCrateName(name); err != nil {
		return nil, err
	}
	if err := errors.ValidateVersionReq(req); err != nil {
		return nil, err
	}
	pin, err := pinVersion(req)
	if err != nil {
		return nil, err
	}

	meta, err := c.fetchMeta(ctx, name, refresh)
	if err != nil {
		return nil, err
	}
	version := pin
	if version == "" {
		version = meta.MaxVersion
	}

	entries, err := c.fetchIndex(ctx, name, refresh)
	if err != nil {
		return nil, err
	}
	entry, err := findVersion(entries, name, version)
	if err != nil {
		return nil, err
	}

	return &crate.CrateInfo{
		Name:         meta.Name,
		Version:      entry.Vers,
		Description:  meta.Description,
		License:      meta.License,
		Repository:   meta.Repository,
		Homepage:     meta.Homepage,
		Checksum:     entry.Cksum,
		Features:     entry.featureTable(),
		Dependencies: entry.dependencies(),
	}, nil
}

// DownloadCrate fetches the .crate archive for info into dir and returns
// the path of the downloaded file. The archive is verified against the
// registry checksum. An existing file at the target path is reused without
// a network round trip.
func (c *Client) DownloadCrate(ctx context.Context, info *crate.CrateInfo, dir string) (string, error) {
	dest := filepath.Join(dir, fmt.Sprintf("%s-%s.crate", info.Name, info.Version))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	url := fmt.Sprintf("%s/%s/%s-%s.crate", c.downloadBase, info.Name, info.Name, info.Version)
	if err := c.Download(ctx, url, dest, info.Checksum); err != nil {
		return "", err
	}
	return dest, nil
}

// crateMeta is the descriptive slice of the API crate object.
type crateMeta struct {
	Name        string `json:"name"`
	MaxVersion  string `json:"max_version"`
	Description string `json:"description"`
	Repository  string `json:"repository"`
	Homepage    string `json:"homepage"`

	// License lives on version objects in the API, copied here from the
	// newest version during fetch.
	License string `json:"license"`
}

func (c *Client) fetchMeta(ctx context.Context, name string, refresh bool) (*crateMeta, error) {
	var meta crateMeta
	err := c.Cached(ctx, "meta:"+name, refresh, &meta, func() error {
		var data struct {
			Crate struct {
				Name        string `json:"name"`
				MaxVersion  string `json:"max_version"`
				Description string `json:"description"`
				Repository  string `json:"repository"`
				Homepage    string `json:"homepage"`
			} `json:"crate"`
			Versions []struct {
				Num     string `json:"num"`
				License string `json:"license"`
			} `json:"versions"`
		}
		if err := c.Get(ctx, fmt.Sprintf("%s/crates/%s", c.apiBase, name), &data); err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				return errors.Wrap(errors.ErrCodeCrateNotFound, err, "crate %s not found on crates.io", name)
			}
			return err
		}
		meta = crateMeta{
			Name:        data.Crate.Name,
			MaxVersion:  data.Crate.MaxVersion,
			Description: data.Crate.Description,
			Repository:  data.Crate.Repository,
			Homepage:    data.Crate.Homepage,
		}
		for _, v := range data.Versions {
			if v.Num == meta.MaxVersion {
				meta.License = v.License
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// indexEntry is one line of the sparse index: all declarations for one
// published version.
type indexEntry struct {
	Name      string              `json:"name"`
	Vers      string              `json:"vers"`
	Deps      []indexDep          `json:"deps"`
	Cksum     string              `json:"cksum"`
	Features  map[string][]string `json:"features"`
	Features2 map[string][]string `json:"features2"`
	Yanked    bool                `json:"yanked"`
}

type indexDep struct {
	Name            string   `json:"name"`
	Req             string   `json:"req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          string   `json:"target"`
	Kind            string   `json:"kind"`
	Package         string   `json:"package"`
}

// featureTable merges the features and features2 maps. The index splits
// declarations using "dep:" syntax into features2 for older cargo versions;
// semantically they are one table.
func (e *indexEntry) featureTable() map[string][]string {
	if len(e.Features2) == 0 {
		return e.Features
	}
	merged := make(map[string][]string, len(e.Features)+len(e.Features2))
	for k, v := range e.Features {
		merged[k] = v
	}
	for k, v := range e.Features2 {
		merged[k] = append(merged[k], v...)
	}
	return merged
}

func (e *indexEntry) dependencies() []crate.Dependency {
	deps := make([]crate.Dependency, 0, len(e.Deps))
	for _, d := range e.Deps {
		dep := crate.Dependency{
			Name:            d.Name,
			Req:             d.Req,
			Optional:        d.Optional,
			Kind:            crate.ParseDepKind(d.Kind),
			Features:        d.Features,
			DefaultFeatures: d.DefaultFeatures,
			Target:          d.Target,
		}
		// A renamed dependency points at a different registry name.
		if d.Package != "" {
			dep.Name = d.Package
		}
		deps = append(deps, dep)
	}
	return deps
}

func (c *Client) fetchIndex(ctx context.Context, name string, refresh bool) ([]indexEntry, error) {
	var entries []indexEntry
	err := c.Cached(ctx, "index:"+name, refresh, &entries, func() error {
		text, err := c.GetText(ctx, fmt.Sprintf("%s/%s", c.indexBase, indexPath(name)))
		if err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				return errors.Wrap(errors.ErrCodeCrateNotFound, err, "crate %s not found in registry index", name)
			}
			return err
		}
		entries, err = parseIndex(text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func parseIndex(text string) ([]indexEntry, error) {
	var entries []indexEntry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e indexEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "malformed index line")
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func findVersion(entries []indexEntry, name, version string) (*indexEntry, error) {
	for i := range entries {
		if entries[i].Vers != version {
			continue
		}
		if entries[i].Yanked {
			return nil, errors.New(errors.ErrCodeInvalidVersion,
				"version %s of %s has been yanked", version, name)
		}
		return &entries[i], nil
	}
	return nil, errors.New(errors.ErrCodeInvalidVersion,
		"version %s of %s not found in registry index", version, name)
}

// indexPath maps a crate name to its sparse index location. Short names get
// dedicated length prefixes; longer names shard on the first four letters.
func indexPath(name string) string {
	name = strings.ToLower(name)
	switch len(name) {
	case 1:
		return "1/" + name
	case 2:
		return "2/" + name
	case 3:
		return "3/" + name[:1] + "/" + name
	default:
		return name[:2] + "/" + name[2:4] + "/" + name
	}
}

var exactVersion = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// pinVersion reduces a version requirement to the exact version it names,
// or empty when the newest version should be used. Range syntax (carets,
// tildes, wildcards, comparators) is not pinnable and gets rejected.
func pinVersion(req string) (string, error) {
	if req == "" {
		return "", nil
	}
	pin := strings.TrimPrefix(req, "=")
	if exactVersion.MatchString(pin) {
		return pin, nil
	}
	return "", errors.New(errors.ErrCodeUnsupported,
		"cannot pin version requirement %q: use an exact version like 1.2.3", req)
}
