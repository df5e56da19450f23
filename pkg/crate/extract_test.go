package crate

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/debcrate/pkg/errors"
)

type tarEntry struct {
	name  string
	body  string
	mtime time.Time
}

func buildArchive(t *testing.T, entries []tarEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		mtime := e.mtime
		if mtime.IsZero() {
			mtime = time.Unix(1500000000, 0)
		}
		hdr := &tar.Header{
			Name:    e.name,
			Mode:    0644,
			Size:    int64(len(e.body)),
			ModTime: mtime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s): %v", e.name, err)
		}
		if _, err := tw.Write([]byte(e.body)); err != nil {
			t.Fatalf("Write(%s): %v", e.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
	return &buf
}

const testManifest = `[package]
name = "demo"
version = "0.1.0"

[dependencies]
serde = { version = "1.0", path = "../serde" }
`

func TestExtractHappyPath(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "demo")
	archive := buildArchive(t, []tarEntry{
		{name: "demo-0.1.0/Cargo.toml", body: testManifest},
		{name: "demo-0.1.0/src/lib.rs", body: "pub fn demo() {}"},
	})

	var ex Extractor
	modified, err := ex.Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if !modified {
		t.Error("modified = false, want true (manifest had a path dependency)")
	}

	if _, err := os.Stat(filepath.Join(dest, "src", "lib.rs")); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}

	// Staging directories must not leak.
	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(dest), "debcrate-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("staging directories leaked: %v", leftovers)
	}
}

func TestExtractPristineArchiveIsUnmodified(t *testing.T) {
	// A manifest already in canonical form round-trips untouched.
	m, err := ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatal(err)
	}
	canonical, err := m.Canonical()
	if err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "demo")
	archive := buildArchive(t, []tarEntry{
		{name: "demo-0.1.0/Cargo.toml", body: string(canonical)},
	})

	var ex Extractor
	modified, err := ex.Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if modified {
		t.Error("modified = true for a canonical-form archive")
	}
	if _, err := os.Stat(filepath.Join(dest, ManifestBackupName)); !os.IsNotExist(err) {
		t.Error("backup manifest written although nothing changed")
	}
}

func TestExtractPathTraversal(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"ParentTraversal", "../../etc/passwd"},
		{"NestedTraversal", "demo-0.1.0/../../etc/passwd"},
		{"Absolute", "/etc/passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "demo")
			archive := buildArchive(t, []tarEntry{
				{name: tt.entry, body: "pwned"},
			})

			var ex Extractor
			_, err := ex.Extract(archive, dest)
			if !errors.Is(err, errors.ErrCodePathTraversal) {
				t.Fatalf("Extract error = %v, want PATH_TRAVERSAL", err)
			}
			if _, err := os.Stat(dest); !os.IsNotExist(err) {
				t.Error("destination created despite traversal")
			}
		})
	}
}

func TestExtractMalformedLayout(t *testing.T) {
	tests := []struct {
		name    string
		entries []tarEntry
	}{
		{
			name: "TwoTopLevelDirs",
			entries: []tarEntry{
				{name: "demo-0.1.0/Cargo.toml", body: testManifest},
				{name: "other-2.0.0/Cargo.toml", body: testManifest},
			},
		},
		{
			name: "TopLevelFile",
			entries: []tarEntry{
				{name: "README.md", body: "loose file"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "demo")
			var ex Extractor
			_, err := ex.Extract(buildArchive(t, tt.entries), dest)
			if !errors.Is(err, errors.ErrCodeMalformedArchive) {
				t.Fatalf("Extract error = %v, want MALFORMED_ARCHIVE_LAYOUT", err)
			}
		})
	}
}

func TestExtractSuspiciousContentAggregates(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "demo")
	archive := buildArchive(t, []tarEntry{
		{name: "demo-0.1.0/Cargo.toml", body: testManifest},
		{name: "demo-0.1.0/vendor/libfoo.a", body: "binary"},
		{name: "demo-0.1.0/src/shim.c", body: "int main;"},
	})

	var ex Extractor
	_, err := ex.Extract(archive, dest)
	if !errors.Is(err, errors.ErrCodeSuspiciousContent) {
		t.Fatalf("Extract error = %v, want SUSPICIOUS_CONTENT", err)
	}
	// Both offending paths are reported at once.
	msg := err.Error()
	for _, want := range []string{"vendor/libfoo.a", "src/shim.c"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestExtractWhitelistAllowsSuspiciousFiles(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "demo")
	archive := buildArchive(t, []tarEntry{
		{name: "demo-0.1.0/Cargo.toml", body: testManifest},
		{name: "demo-0.1.0/src/shim.c", body: "int main;"},
	})

	var warnings []string
	ex := Extractor{
		Policy: Policy{Whitelist: []string{"src/shim.c"}},
		Warn: func(format string, args ...any) {
			warnings = append(warnings, format)
		},
	}

	if _, err := ex.Extract(archive, dest); err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "src", "shim.c")); err != nil {
		t.Errorf("whitelisted file not extracted: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("whitelisted suspicious file produced no warning")
	}
}

func TestExtractExcludesMarkModified(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "demo")
	m, err := ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatal(err)
	}
	canonical, err := m.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	archive := buildArchive(t, []tarEntry{
		{name: "demo-0.1.0/Cargo.toml", body: string(canonical)},
		{name: "demo-0.1.0/generated/bindings.rs", body: "// generated"},
	})

	ex := Extractor{Policy: Policy{Excludes: []string{"generated/*"}}}
	modified, err := ex.Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if !modified {
		t.Error("modified = false after dropping excluded entries")
	}
	if _, err := os.Stat(filepath.Join(dest, "generated", "bindings.rs")); !os.IsNotExist(err) {
		t.Error("excluded entry was extracted")
	}
}

func TestExtractExcludesCoverNestedPaths(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "demo")
	m, err := ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatal(err)
	}
	canonical, err := m.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	archive := buildArchive(t, []tarEntry{
		{name: "demo-0.1.0/Cargo.toml", body: string(canonical)},
		{name: "demo-0.1.0/benches/data/huge.json", body: "{}"},
	})

	// A wildcard spans directory separators, so benches/* drops the
	// whole subtree.
	ex := Extractor{Policy: Policy{Excludes: []string{"benches/*"}}}
	modified, err := ex.Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if !modified {
		t.Error("modified = false after dropping excluded entries")
	}
	if _, err := os.Stat(filepath.Join(dest, "benches")); !os.IsNotExist(err) {
		t.Error("nested excluded entry was extracted")
	}
}

func TestGlobRegexp(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*/benches/*", "demo-0.1.0/benches/data/huge.json", true},
		{"*/benches/*", "demo-0.1.0/src/lib.rs", false},
		{"*/src/?en.rs", "demo-0.1.0/src/gen.rs", true},
		{"*/vendor/lib[a-z].a", "demo-0.1.0/vendor/libz.a", true},
		{"*/vendor/lib[!a-z].a", "demo-0.1.0/vendor/libz.a", false},
	}

	for _, tt := range tests {
		re, err := globRegexp(tt.pattern)
		if err != nil {
			t.Fatalf("globRegexp(%q) error: %v", tt.pattern, err)
		}
		if got := re.MatchString(tt.name); got != tt.want {
			t.Errorf("globRegexp(%q).MatchString(%q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}

	if _, err := globRegexp("*/broken["); err == nil {
		t.Error("globRegexp should reject an unterminated character class")
	}
}

func TestExtractRewritesManifest(t *testing.T) {
	newest := time.Unix(1600000000, 0)
	dest := filepath.Join(t.TempDir(), "demo")
	archive := buildArchive(t, []tarEntry{
		{name: "demo-0.1.0/Cargo.toml", body: testManifest, mtime: time.Unix(1500000000, 0)},
		{name: "demo-0.1.0/src/lib.rs", body: "", mtime: newest},
	})

	var ex Extractor
	modified, err := ex.Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if !modified {
		t.Error("modified = false, want true")
	}

	// The rewritten manifest matches the canonical form exactly.
	got, err := os.ReadFile(filepath.Join(dest, ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	m, err := ParseManifest([]byte(testManifest))
	if err != nil {
		t.Fatal(err)
	}
	want, err := m.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("rewritten manifest differs from canonical form:\n%s", got)
	}

	// Path dependencies are gone.
	if strings.Contains(string(got), "path") {
		t.Error("canonical manifest still contains a path dependency")
	}

	// The original is preserved byte-for-byte.
	orig, err := os.ReadFile(filepath.Join(dest, ManifestBackupName))
	if err != nil {
		t.Fatalf("backup manifest missing: %v", err)
	}
	if string(orig) != testManifest {
		t.Error("backup manifest does not match the original bytes")
	}

	// The rewritten file carries the newest entry mtime from the archive.
	info, err := os.Stat(filepath.Join(dest, ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(newest) {
		t.Errorf("manifest mtime = %v, want %v", info.ModTime(), newest)
	}
}

func TestExtractDestinationExists(t *testing.T) {
	dest := t.TempDir() // already exists

	archive := buildArchive(t, []tarEntry{
		{name: "demo-0.1.0/Cargo.toml", body: testManifest},
	})
	var ex Extractor
	if _, err := ex.Extract(archive, dest); !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Fatalf("Extract error = %v, want INVALID_PATH", err)
	}
}
