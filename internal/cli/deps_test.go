package cli

import (
	"strings"
	"testing"

	"github.com/matzehuels/debcrate/pkg/crate"
)

func resolvedDemoCrate(t *testing.T) (*crate.CrateInfo, crate.FeatureTable, crate.ProvidesMap) {
	t.Helper()

	info := &crate.CrateInfo{
		Name:    "demo",
		Version: "1.2.3",
		Features: map[string][]string{
			"std":           {},
			"serde_support": {"dep:serde"},
		},
		Dependencies: []crate.Dependency{
			{Name: "log", Req: "^0.4", Kind: crate.KindNormal, DefaultFeatures: true},
			{Name: "serde", Req: "^1.0", Optional: true, Kind: crate.KindNormal, DefaultFeatures: true},
		},
	}

	table, err := info.ResolveFeatures()
	if err != nil {
		t.Fatalf("ResolveFeatures() error: %v", err)
	}
	provides := table.SynthesizeProvides()
	return info, table, provides
}

func TestBuildDepsReport(t *testing.T) {
	info, table, provides := resolvedDemoCrate(t)

	report, err := buildDepsReport(info, table, provides)
	if err != nil {
		t.Fatalf("buildDepsReport() error: %v", err)
	}

	if report.Source != "rust-demo-1" {
		t.Errorf("Source = %q, want %q", report.Source, "rust-demo-1")
	}

	base, ok := report.Features[""]
	if !ok {
		t.Fatal("report should contain the base feature")
	}
	if base.Package != "librust-demo-1-dev" {
		t.Errorf("base package = %q, want %q", base.Package, "librust-demo-1-dev")
	}
	wantRel := "librust-log-0.4+default-dev (>= 0.4), librust-log-0.4+default-dev (<< 0.5)"
	if len(base.Relations) != 1 || base.Relations[0] != wantRel {
		t.Errorf("base relations = %v, want [%s]", base.Relations, wantRel)
	}
	if len(base.Provides) != 1 || base.Provides[0] != "librust-demo-1+std-dev" {
		t.Errorf("base provides = %v, want the collapsed std alias", base.Provides)
	}

	// std was a pure alias of the base feature and must not get a package.
	if _, ok := report.Features["std"]; ok {
		t.Error("collapsed alias std should not appear as a feature")
	}

	serde, ok := report.Features["serde_support"]
	if !ok {
		t.Fatal("report should contain serde_support")
	}
	found := false
	for _, rel := range serde.Relations {
		if strings.Contains(rel, "librust-serde-1+default-dev (>= 1.0)") {
			found = true
		}
	}
	if !found {
		t.Errorf("serde_support relations = %v, want a serde term", serde.Relations)
	}
}

func TestBuildDepsReportSkipsDevDeps(t *testing.T) {
	info := &crate.CrateInfo{
		Name:    "demo",
		Version: "0.3.1",
		Dependencies: []crate.Dependency{
			{Name: "criterion", Req: "^0.5", Kind: crate.KindDev},
		},
	}

	table, err := info.ResolveFeatures()
	if err != nil {
		t.Fatalf("ResolveFeatures() error: %v", err)
	}
	provides := table.SynthesizeProvides()

	report, err := buildDepsReport(info, table, provides)
	if err != nil {
		t.Fatalf("buildDepsReport() error: %v", err)
	}

	for name, entry := range report.Features {
		for _, rel := range entry.Relations {
			if strings.Contains(rel, "criterion") {
				t.Errorf("feature %q carries a dev dependency relation: %s", name, rel)
			}
		}
	}
}

func TestCountAliases(t *testing.T) {
	provides := crate.ProvidesMap{
		"":        {"std", "alloc"},
		"default": {},
	}
	if got := countAliases(provides); got != 2 {
		t.Errorf("countAliases() = %d, want 2", got)
	}
}
