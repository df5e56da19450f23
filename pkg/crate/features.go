package crate

import (
	"sort"
	"strings"

	"github.com/matzehuels/debcrate/pkg/errors"
)

// BaseFeature is the empty feature name denoting the crate with no
// optional features activated. It is always present in a resolved table.
const BaseFeature = ""

// DefaultFeature is the implicit default feature set, synthesized when
// the manifest does not declare one.
const DefaultFeature = "default"

// FeatureEntry is one row of a FeatureTable: the features referenced by
// a feature (in declaration order, always starting with the base
// feature) and the external dependencies it activates directly.
type FeatureEntry struct {
	Features []string
	Deps     []Dependency
}

// FeatureTable maps each feature name to its resolved entry. It is
// built once per crate by [BuildFeatureTable] and mutated in place by
// [FeatureTable.SynthesizeProvides]; it must not be shared across
// crates.
type FeatureTable map[string]*FeatureEntry

// ProvidesMap maps each surviving feature to the sorted set of features
// that are redundant aliases of it. Read-only once produced.
type ProvidesMap map[string][]string

// ResolveFeatures builds the crate's feature table from its registry
// metadata. See [BuildFeatureTable].
func (c *CrateInfo) ResolveFeatures() (FeatureTable, error) {
	return BuildFeatureTable(c.Dependencies, c.Features)
}

// BuildFeatureTable flattens a crate's declared features and dependency
// list into a feature table.
//
// Dev dependencies are excluded entirely: they affect only tests, never
// a shipped package. Every feature's edge list is prefixed with the base
// feature so the unconditional dependency set ships alongside any
// optional one. Optional dependencies become singleton features of the
// same name unless an explicit feature shadows them, in which case the
// dependency moves to the base entry's required bucket. A feature edge
// naming something that is neither a sibling feature nor a real
// dependency is a manifest defect and fails with
// UNRESOLVED_FEATURE_DEPENDENCY.
func BuildFeatureTable(deps []Dependency, features map[string][]string) (FeatureTable, error) {
	// Group dependencies by name. A name may appear multiple times with
	// different target restrictions; all entries in a group are pulled in
	// together when a feature references the name.
	byName := make(map[string][]Dependency)
	var names []string
	for _, d := range deps {
		if d.Kind == KindDev {
			continue
		}
		if _, ok := byName[d.Name]; !ok {
			names = append(names, d.Name)
		}
		byName[d.Name] = append(byName[d.Name], d)
	}
	sort.Strings(names)

	table := make(FeatureTable, len(features)+len(names)+2)

	for feature, edges := range features {
		entry := &FeatureEntry{Features: []string{BaseFeature}}
		for _, raw := range edges {
			edge := parseEdge(raw)
			switch {
			case edge.sub != "":
				group, ok := byName[edge.name]
				if !ok {
					return nil, errors.New(errors.ErrCodeUnresolvedFeature,
						"feature %q references %q of unknown dependency %q", feature, edge.sub, edge.name)
				}
				for _, d := range group {
					entry.Deps = append(entry.Deps, d.withFeature(edge.sub))
				}
			case !edge.forceDep && hasFeature(features, edge.name):
				entry.Features = append(entry.Features, edge.name)
			default:
				group, ok := byName[edge.name]
				if !ok {
					return nil, errors.New(errors.ErrCodeUnresolvedFeature,
						"feature %q references unknown dependency %q", feature, edge.name)
				}
				entry.Deps = append(entry.Deps, group...)
			}
		}
		table[feature] = entry
	}

	// Optional dependencies are implicitly features of the same name. The
	// whole name group becomes one implicit feature, so target-qualified
	// entries stay together just like on the explicit-reference path.
	var required []Dependency
	for _, name := range names {
		var optional []Dependency
		for _, d := range byName[name] {
			if d.Optional {
				optional = append(optional, d)
			} else {
				required = append(required, d)
			}
		}
		switch {
		case len(optional) == 0:
		case hasFeature(features, name):
			// An explicit feature shadows the implicit one; ship the
			// optional dependencies with the base package instead.
			required = append(required, optional...)
		default:
			table[name] = &FeatureEntry{
				Features: []string{BaseFeature},
				Deps:     optional,
			}
		}
	}

	table[BaseFeature] = &FeatureEntry{Deps: required}

	if _, ok := table[DefaultFeature]; !ok {
		table[DefaultFeature] = &FeatureEntry{Features: []string{BaseFeature}}
	}

	return table, nil
}

// featureEdge is one parsed raw edge from a feature declaration.
type featureEdge struct {
	name     string
	sub      string // sub-feature of an external dependency, if qualified
	forceDep bool   // "dep:" prefix forces a package reference
}

// parseEdge classifies a raw feature edge. The three forms are a sibling
// feature ("json"), a package reference ("serde" or "dep:serde"), and a
// qualified reference ("serde/derive", weak form "serde?/derive").
func parseEdge(raw string) featureEdge {
	if rest, ok := strings.CutPrefix(raw, "dep:"); ok {
		return featureEdge{name: rest, forceDep: true}
	}
	if name, sub, ok := strings.Cut(raw, "/"); ok {
		return featureEdge{name: strings.TrimSuffix(name, "?"), sub: sub}
	}
	return featureEdge{name: raw}
}

func hasFeature(features map[string][]string, name string) bool {
	_, ok := features[name]
	return ok
}

// Closure returns the transitive feature set and dependency list
// reachable from feature. The feature set lists every referenced
// feature once, in first-visit order, excluding feature itself;
// dependencies are accumulated entry by entry in the same order.
//
// A feature that directly or indirectly references itself fails with
// CYCLIC_FEATURE_GRAPH instead of recursing forever.
func (t FeatureTable) Closure(feature string) ([]string, []Dependency, error) {
	if _, ok := t[feature]; !ok {
		return nil, nil, errors.New(errors.ErrCodeUnresolvedFeature, "feature %q not in table", feature)
	}

	var feats []string
	var deps []Dependency
	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var walk func(name string, root bool) error
	walk = func(name string, root bool) error {
		if visiting[name] {
			return errors.New(errors.ErrCodeCyclicFeatures,
				"feature %q participates in a feature dependency cycle", name)
		}
		if visited[name] {
			return nil
		}
		entry, ok := t[name]
		if !ok {
			return errors.New(errors.ErrCodeUnresolvedFeature, "feature %q not in table", name)
		}

		visiting[name] = true
		defer delete(visiting, name)

		if !root {
			feats = append(feats, name)
		}
		deps = append(deps, entry.Deps...)
		for _, f := range entry.Features {
			if err := walk(f, false); err != nil {
				return err
			}
		}

		visited[name] = true
		return nil
	}

	if err := walk(feature, true); err != nil {
		return nil, nil, err
	}
	return feats, deps, nil
}

// SynthesizeProvides collapses features that are pure aliases into a
// provides map and removes them from the table, leaving only features
// that must be materialized as their own downstream virtual packages.
//
// A feature is a pure alias when it activates no dependency of its own
// and references at most one feature beyond the mandatory base edge:
// with only the base edge it provides nothing beyond the base feature,
// with exactly one more edge it is indistinguishable from that target.
// The base and default features are never removed. Alias chains close
// transitively and each surviving feature's provides set is sorted; a
// chain that never reaches a surviving feature keeps its members in
// the table.
//
// The alias rule is deliberately shallow: a feature requiring two other
// features that both reduce to the same thing is not simplified. That
// only affects minimization quality, never correctness.
//
// Removals are computed against an immutable snapshot and applied in a
// second pass, so running SynthesizeProvides on an already-minimized
// table removes nothing.
func (t FeatureTable) SynthesizeProvides() ProvidesMap {
	targets := make(map[string]string)
	var candidates []string

	for _, name := range t.SortedNames() {
		if name == BaseFeature || name == DefaultFeature {
			continue
		}
		entry := t[name]
		if len(entry.Deps) != 0 {
			continue
		}

		switch len(entry.Features) {
		case 1:
			targets[name] = entry.Features[0]
		case 2:
			targets[name] = entry.Features[1]
		default:
			continue
		}
		candidates = append(candidates, name)
	}

	// An alias may only be removed when its chain ends at a surviving
	// feature; aliases pointing at each other in a cycle stay in the
	// table, or their names would vanish from every provides set.
	aliases := make(map[string][]string)
	for _, name := range candidates {
		if !rootedAtSurvivor(targets, name) {
			continue
		}
		aliases[targets[name]] = append(aliases[targets[name]], name)
		delete(t, name)
	}

	provides := make(ProvidesMap, len(t))
	for _, name := range t.SortedNames() {
		pp := collectAliases(aliases, name, make(map[string]bool))
		sort.Strings(pp)
		provides[name] = pp
	}
	return provides
}

// rootedAtSurvivor reports whether the alias chain starting at name
// reaches a feature that is not itself an alias candidate.
func rootedAtSurvivor(targets map[string]string, name string) bool {
	seen := make(map[string]bool)
	for {
		next, ok := targets[name]
		if !ok {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true
		name = next
	}
}

// collectAliases walks the alias map depth-first from key, gathering
// every feature that transitively aliases it.
func collectAliases(aliases map[string][]string, key string, seen map[string]bool) []string {
	var out []string
	for _, a := range aliases[key] {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
		out = append(out, collectAliases(aliases, a, seen)...)
	}
	return out
}

// SortedNames returns the table's feature names in lexicographic order,
// for deterministic iteration and output.
func (t FeatureTable) SortedNames() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
