package crate

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/matzehuels/debcrate/pkg/errors"
)

// suspiciousExts are file extensions that should not appear in a crate
// published to the registry: pre-compiled static libraries and bundled C
// sources usually mean the package would not build from source alone.
var suspiciousExts = map[string]bool{
	".a": true,
	".c": true,
}

// Policy is the content policy applied while extracting an archive.
// Patterns use glob syntax ("*", "?", "[...]") with wildcards crossing
// directory separators, matched against archive entry paths with their
// single top-level directory stripped to a wildcard: "src/generated/*"
// matches regardless of the crate directory name and covers the whole
// subtree below it.
type Policy struct {
	// Excludes lists entries to drop from the extracted tree. Dropping
	// an entry marks the result as modified.
	Excludes []string

	// Whitelist lists suspicious entries to extract anyway (with a
	// warning) instead of aborting.
	Whitelist []string
}

// Extractor unpacks untrusted .crate archives (gzip-compressed tar)
// into a destination directory. The zero value uses an empty policy and
// discards warnings.
type Extractor struct {
	Policy Policy

	// Warn receives non-fatal findings: excluded paths and whitelisted
	// suspicious files. Nil discards them.
	Warn func(format string, args ...any)
}

func (e *Extractor) warnf(format string, args ...any) {
	if e.Warn != nil {
		e.Warn(format, args...)
	}
}

// matches reports whether name matches any of the patterns, each tried
// with a "*/" prefix so patterns are relative to the crate root.
// Malformed patterns never match.
func matches(patterns []string, name string) bool {
	for _, p := range patterns {
		re, err := globRegexp("*/" + p)
		if err != nil {
			continue
		}
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// globRegexp compiles a glob pattern into a regexp. Unlike path.Match,
// "*" and "?" also cross "/" here, so an exclude like "benches/*"
// covers the whole subtree, not just its direct children.
func globRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`\A`)
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			j := i + 1
			if j < len(pattern) && (pattern[j] == '!' || pattern[j] == '^') {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j == len(pattern) {
				return nil, fmt.Errorf("unterminated character class in pattern %q", pattern)
			}
			class := pattern[i+1 : j]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(`\z`)
	return regexp.Compile(b.String())
}

// Extract streams the archive into dest, which must not exist yet.
//
// Entries are staged into a temporary sibling directory of dest; the
// staging area is removed on every exit path. Entries matching the
// exclude policy are skipped. Entries with suspicious extensions must
// be whitelisted or the whole extraction fails with SUSPICIOUS_CONTENT
// after the full archive has been scanned, so every offending path is
// reported at once. An entry that would escape the staging root fails
// immediately with PATH_TRAVERSAL. The archive must unpack to exactly
// one top-level directory, which is renamed to dest.
//
// After extraction the on-disk manifest is compared byte-for-byte with
// its canonical form; if they differ the original is preserved as
// Cargo.toml.orig, the canonical form written in its place, and its
// mtime set to the newest entry mtime seen in the archive.
//
// The returned flag reports whether the produced tree differs from the
// pristine archive contents.
func (e *Extractor) Extract(r io.Reader, dest string) (modified bool, err error) {
	if _, statErr := os.Stat(dest); statErr == nil {
		return false, errors.New(errors.ErrCodeInvalidPath,
			"destination %s already exists; move or remove it to regenerate", dest)
	}

	parent := filepath.Dir(dest)
	staging, err := os.MkdirTemp(parent, "debcrate-")
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeManifestIO, err, "creating staging directory in %s", parent)
	}
	defer os.RemoveAll(staging)

	gz, err := gzip.NewReader(r)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeMalformedArchive, err, "reading gzip stream")
	}
	defer gz.Close()

	var lastMtime time.Time
	var suspicious []string

	tr := tar.NewReader(gz)
	for {
		hdr, rerr := tr.Next()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return false, errors.Wrap(errors.ErrCodeMalformedArchive, rerr, "reading archive")
		}

		name := path.Clean(hdr.Name)
		if matches(e.Policy.Excludes, name) {
			e.warnf("excluded by policy: %s", name)
			modified = true
			continue
		}

		if suspiciousExts[path.Ext(name)] {
			if matches(e.Policy.Whitelist, name) {
				e.warnf("suspicious file on whitelist, extracting anyway: %s", name)
			} else {
				suspicious = append(suspicious, name)
				continue
			}
		}

		target, terr := securePath(staging, hdr.Name)
		if terr != nil {
			return false, terr
		}

		if hdr.ModTime.After(lastMtime) {
			lastMtime = hdr.ModTime
		}

		if uerr := unpackEntry(tr, hdr, staging, target); uerr != nil {
			return false, uerr
		}
	}

	if len(suspicious) > 0 {
		return false, errors.New(errors.ErrCodeSuspiciousContent,
			"suspicious files detected, aborting: %s (use the whitelist config to allow them)",
			strings.Join(suspicious, ", "))
	}

	root, err := singleTopDir(staging)
	if err != nil {
		return false, err
	}

	if err := os.Rename(root, dest); err != nil {
		return false, errors.Wrap(errors.ErrCodeInvalidPath, err,
			"could not create source directory %s; move or remove it to regenerate", dest)
	}

	manifestModified, err := e.canonicalizeManifest(dest, lastMtime)
	if err != nil {
		return false, err
	}
	return modified || manifestModified, nil
}

// securePath resolves an archive entry path under root, rejecting
// absolute paths and parent-directory traversal before anything is
// written. Traversal indicates tampering and is immediately fatal.
func securePath(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodePathTraversal, "archive entry escapes extraction root: %s", name)
	}
	return filepath.Join(root, clean), nil
}

func unpackEntry(tr *tar.Reader, hdr *tar.Header, root, target string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, 0755); err != nil {
			return errors.Wrap(errors.ErrCodeManifestIO, err, "creating directory %s", hdr.Name)
		}

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return errors.Wrap(errors.ErrCodeManifestIO, err, "creating directory for %s", hdr.Name)
		}
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode)&0777)
		if err != nil {
			return errors.Wrap(errors.ErrCodeManifestIO, err, "creating %s", hdr.Name)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return errors.Wrap(errors.ErrCodeManifestIO, err, "writing %s", hdr.Name)
		}
		if err := f.Close(); err != nil {
			return errors.Wrap(errors.ErrCodeManifestIO, err, "closing %s", hdr.Name)
		}
		_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)

	case tar.TypeSymlink:
		// A link target may also escape the root.
		resolved := filepath.Join(filepath.Dir(target), hdr.Linkname)
		if filepath.IsAbs(hdr.Linkname) || !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return errors.New(errors.ErrCodePathTraversal, "symlink %s escapes extraction root: %s", hdr.Name, hdr.Linkname)
		}
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return errors.Wrap(errors.ErrCodeManifestIO, err, "creating symlink %s", hdr.Name)
		}
	}
	// Other entry types (hard links, devices) do not occur in registry
	// crates and are ignored.
	return nil
}

// singleTopDir requires the staging area to hold exactly one top-level
// entry, a directory, and returns its path.
func singleTopDir(staging string) (string, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeManifestIO, err, "listing staging directory")
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return "", errors.New(errors.ErrCodeMalformedArchive,
			"archive did not unpack to a single top-level directory (%d entries)", len(entries))
	}
	return filepath.Join(staging, entries[0].Name()), nil
}

// canonicalizeManifest rewrites dest/Cargo.toml to its canonical form
// when the on-disk bytes differ, keeping the original alongside and
// pinning the new file's mtime to the archive's newest entry so the
// regenerated file never looks newer than the source it came from.
func (e *Extractor) canonicalizeManifest(dest string, mtime time.Time) (bool, error) {
	manifestPath := filepath.Join(dest, ManifestName)

	actual, err := os.ReadFile(manifestPath)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeManifestIO, err, "reading manifest in %s", dest)
	}

	m, err := ParseManifest(actual)
	if err != nil {
		return false, err
	}
	canonical, err := m.Canonical()
	if err != nil {
		return false, err
	}

	if bytes.Equal(actual, canonical) {
		return false, nil
	}

	backupPath := filepath.Join(dest, ManifestBackupName)
	if err := os.Rename(manifestPath, backupPath); err != nil {
		return false, errors.Wrap(errors.ErrCodeManifestIO, err, "preserving original manifest in %s", dest)
	}
	if err := os.WriteFile(manifestPath, canonical, 0644); err != nil {
		return false, errors.Wrap(errors.ErrCodeManifestIO, err, "writing canonical manifest in %s", dest)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(manifestPath, mtime, mtime); err != nil {
			return false, errors.Wrap(errors.ErrCodeManifestIO, err, "setting manifest mtime in %s", dest)
		}
	}
	return true, nil
}
