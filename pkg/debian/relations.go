package debian

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/matzehuels/debcrate/pkg/crate"
	"github.com/matzehuels/debcrate/pkg/errors"
)

// PackageName builds the binary library package name for one crate feature:
// "librust-<name><suffix>-dev", or "librust-<name><suffix>+<feature>-dev"
// for a non-empty feature.
func PackageName(crateName, suffix, feature string) string {
	name := "librust-" + MangleName(crateName) + suffix
	if feature != "" {
		name += "+" + MangleName(feature)
	}
	return name + "-dev"
}

// Relations renders a dependency as Debian relation strings, one per
// activated feature. The version requirement is translated into Debian
// bound pairs; each returned string is a complete AND-term for a Depends
// field.
//
// Requirement syntax with no Debian equivalent surfaces as UNSUPPORTED.
func Relations(d crate.Dependency) ([]string, error) {
	bounds, err := reqBounds(d.Req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnsupported, err,
			"cannot express dependency %s in Debian terms", d.String())
	}

	suffix := ""
	if lower := lowerBound(bounds); lower != "" {
		major, minor, _ := splitVersion(lower)
		if major == 0 {
			suffix = fmt.Sprintf("-0.%d", minor)
		} else {
			suffix = fmt.Sprintf("-%d", major)
		}
	}

	features := append([]string(nil), d.Features...)
	if d.DefaultFeatures {
		features = append(features, "default")
	}
	if len(features) == 0 {
		features = []string{""}
	}
	sort.Strings(features)

	relations := make([]string, 0, len(features))
	for _, f := range features {
		pkg := PackageName(d.Name, suffix, f)
		if len(bounds) == 0 {
			relations = append(relations, pkg)
			continue
		}
		terms := make([]string, len(bounds))
		for i, b := range bounds {
			terms[i] = fmt.Sprintf("%s (%s %s)", pkg, b.op, b.version)
		}
		relations = append(relations, strings.Join(terms, ", "))
	}
	return relations, nil
}

// ProvidesRelations renders the package names a feature package provides
// through its collapsed aliases.
func ProvidesRelations(crateName, suffix string, aliases []string) []string {
	out := make([]string, len(aliases))
	for i, alias := range aliases {
		out[i] = PackageName(crateName, suffix, alias)
	}
	return out
}

type bound struct {
	op      string // Debian relation operator: >=, <<, <=, >>, =
	version string
}

func lowerBound(bounds []bound) string {
	for _, b := range bounds {
		if b.op == ">=" || b.op == ">>" || b.op == "=" {
			return b.version
		}
	}
	return ""
}

// reqBounds translates a cargo version requirement into Debian version
// bounds. Each comma-separated predicate contributes bounds independently;
// cargo requirements are conjunctions, as are Debian relation lists.
func reqBounds(req string) ([]bound, error) {
	req = strings.TrimSpace(req)
	if req == "" || req == "*" {
		return nil, nil
	}

	var bounds []bound
	for _, pred := range strings.Split(req, ",") {
		pred = strings.TrimSpace(pred)
		if pred == "" {
			continue
		}
		b, err := predicateBounds(pred)
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, b...)
	}
	return bounds, nil
}

var versionSyntax = regexp.MustCompile(`^[0-9]+(\.[0-9]+){0,2}([-+][0-9A-Za-z.-]+)?$`)

func predicateBounds(pred string) ([]bound, error) {
	for _, p := range [...]struct{ req, deb string }{
		{">=", ">="}, {"<=", "<="}, {">", ">>"}, {"<", "<<"}, {"=", "="},
	} {
		if strings.HasPrefix(pred, p.req) {
			v := strings.TrimSpace(pred[len(p.req):])
			if !versionSyntax.MatchString(v) {
				return nil, fmt.Errorf("malformed version in requirement %q", pred)
			}
			return []bound{{p.deb, v}}, nil
		}
	}
	switch {
	case strings.HasPrefix(pred, "~"):
		return tildeBounds(strings.TrimSpace(pred[1:]))
	case strings.HasPrefix(pred, "^"):
		return caretBounds(strings.TrimSpace(pred[1:]))
	case strings.HasSuffix(pred, ".*") || pred == "*":
		return wildcardBounds(pred)
	default:
		// A bare version means caret semantics in cargo.
		return caretBounds(pred)
	}
}

// caretBounds allows changes that keep the leftmost non-zero component
// fixed: ^1.2.3 is >= 1.2.3, << 2; ^0.2.3 is >= 0.2.3, << 0.3.
func caretBounds(v string) ([]bound, error) {
	if !versionSyntax.MatchString(v) {
		return nil, fmt.Errorf("malformed version %q", v)
	}
	major, minor, patch := splitVersion(v)
	var upper string
	switch {
	case major > 0:
		upper = fmt.Sprintf("%d", major+1)
	case minor > 0:
		upper = fmt.Sprintf("0.%d", minor+1)
	default:
		upper = fmt.Sprintf("0.0.%d", patch+1)
	}
	return []bound{{">=", v}, {"<<", upper}}, nil
}

// tildeBounds allows patch-level changes: ~1.2.3 is >= 1.2.3, << 1.3.
// With only a major component, minor-level changes are allowed too.
func tildeBounds(v string) ([]bound, error) {
	if !versionSyntax.MatchString(v) {
		return nil, fmt.Errorf("malformed version %q", v)
	}
	major, minor, _ := splitVersion(v)
	upper := fmt.Sprintf("%d.%d", major, minor+1)
	if !strings.Contains(v, ".") {
		upper = fmt.Sprintf("%d", major+1)
	}
	return []bound{{">=", v}, {"<<", upper}}, nil
}

// wildcardBounds handles 1.*, 1.2.* and the bare * (no constraint).
func wildcardBounds(pred string) ([]bound, error) {
	if pred == "*" {
		return nil, nil
	}
	stem := strings.TrimSuffix(pred, ".*")
	if strings.Contains(stem, "*") {
		return nil, fmt.Errorf("unsupported wildcard requirement %q", pred)
	}
	major, minor, _ := splitVersion(stem)
	if strings.Contains(stem, ".") {
		return []bound{{">=", stem}, {"<<", fmt.Sprintf("%d.%d", major, minor+1)}}, nil
	}
	return []bound{{">=", stem}, {"<<", fmt.Sprintf("%d", major+1)}}, nil
}
