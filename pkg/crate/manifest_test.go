package crate

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const fullManifest = `[package]
name = "demo"
version = "0.2.1"
edition = "2021"
description = "A demo crate"
license = "MIT"

[lib]
name = "demo"

[[bin]]
name = "demo-cli"

[features]
default = ["std"]
std = []

[dependencies]
serde = "1.0"
rayon = { version = "1.7", optional = true }

[dependencies.local-helper]
path = "../helper"
version = "0.1"

[dev-dependencies]
quickcheck = "1.0"

[build-dependencies]
cc = "1.0"

[target."cfg(unix)".dependencies]
libc = { version = "0.2", default-features = false, features = ["extra_traits"] }
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(fullManifest))
	if err != nil {
		t.Fatalf("ParseManifest error: %v", err)
	}

	if m.Package.Name != "demo" || m.Package.Version != "0.2.1" {
		t.Errorf("package = %s %s", m.Package.Name, m.Package.Version)
	}
	if len(m.Features) != 2 {
		t.Errorf("features = %v", m.Features)
	}
	if m.Dependencies["serde"]["version"] != "1.0" {
		t.Errorf("serde spec = %v", m.Dependencies["serde"])
	}
	if _, ok := m.Dependencies["local-helper"]["path"]; ok {
		t.Error("path key survived normalization")
	}
	if m.Dependencies["local-helper"]["version"] != "0.1" {
		t.Errorf("local-helper spec = %v", m.Dependencies["local-helper"])
	}
	if _, ok := m.Targets[`cfg(unix)`]; !ok {
		t.Errorf("target tables = %v", m.Targets)
	}
}

func TestParseManifestInvalidTOML(t *testing.T) {
	if _, err := ParseManifest([]byte("[package\nname=")); err == nil {
		t.Fatal("ParseManifest accepted invalid TOML")
	}
}

func TestParseManifestPathOnlyDependency(t *testing.T) {
	m, err := ParseManifest([]byte(`[package]
name = "demo"
version = "0.1.0"

[dependencies]
helper = { path = "../helper" }
`))
	if err != nil {
		t.Fatalf("ParseManifest error: %v", err)
	}
	// The relationship survives even though the location is gone.
	if m.Dependencies["helper"]["version"] != "*" {
		t.Errorf("helper spec = %v, want wildcard version", m.Dependencies["helper"])
	}
}

func TestCanonicalDeterministic(t *testing.T) {
	m, err := ParseManifest([]byte(fullManifest))
	if err != nil {
		t.Fatal(err)
	}

	a, err := m.Canonical()
	if err != nil {
		t.Fatalf("Canonical error: %v", err)
	}
	b, err := m.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("Canonical() is not deterministic")
	}
	if strings.Contains(string(a), "../helper") {
		t.Error("canonical output references a local path")
	}
}

func TestCanonicalIsFixedPoint(t *testing.T) {
	m, err := ParseManifest([]byte(fullManifest))
	if err != nil {
		t.Fatal(err)
	}
	first, err := m.Canonical()
	if err != nil {
		t.Fatal(err)
	}

	m2, err := ParseManifest(first)
	if err != nil {
		t.Fatalf("reparsing canonical output: %v", err)
	}
	second, err := m2.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("canonical form is not a fixed point:\n--- first\n%s\n--- second\n%s", first, second)
	}
}

func TestDependencyList(t *testing.T) {
	m, err := ParseManifest([]byte(fullManifest))
	if err != nil {
		t.Fatal(err)
	}

	deps := m.DependencyList()
	byName := make(map[string]Dependency)
	for _, d := range deps {
		byName[d.Name] = d
	}

	if d := byName["rayon"]; !d.Optional {
		t.Error("rayon not marked optional")
	}
	if d := byName["cc"]; d.Kind != KindBuild {
		t.Errorf("cc kind = %v, want build", d.Kind)
	}
	if d := byName["quickcheck"]; d.Kind != KindDev {
		t.Errorf("quickcheck kind = %v, want dev", d.Kind)
	}

	libc := byName["libc"]
	if libc.Target != `cfg(unix)` {
		t.Errorf("libc target = %q", libc.Target)
	}
	if libc.DefaultFeatures {
		t.Error("libc default-features = true, want false")
	}
	if !reflect.DeepEqual(libc.Features, []string{"extra_traits"}) {
		t.Errorf("libc features = %v", libc.Features)
	}
	if d := byName["serde"]; !d.DefaultFeatures {
		t.Error("serde default-features = false, want true")
	}
}

func TestTargets(t *testing.T) {
	srcdir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(srcdir, "src", "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"src/lib.rs", "src/main.rs", "src/bin/extra.rs"} {
		if err := os.WriteFile(filepath.Join(srcdir, filepath.FromSlash(f)), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	m, err := ParseManifest([]byte(`[package]
name = "demo"
version = "0.1.0"

[[bin]]
name = "declared"
`))
	if err != nil {
		t.Fatal(err)
	}

	if !m.IsLib(srcdir) {
		t.Error("IsLib = false with src/lib.rs present")
	}
	want := []string{"declared", "demo", "extra"}
	if got := m.BinaryNames(srcdir); !reflect.DeepEqual(got, want) {
		t.Errorf("BinaryNames = %v, want %v", got, want)
	}
}
