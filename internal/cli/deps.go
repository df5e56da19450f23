package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/debcrate/pkg/crate"
	"github.com/matzehuels/debcrate/pkg/debian"
)

// depsOpts holds the command-line flags for the deps command.
type depsOpts struct {
	jsonOut bool   // emit the report as JSON instead of styled text
	output  string // output file path (stdout if empty)
	refresh bool   // bypass cached registry responses
	noCache bool   // disable the response cache entirely
}

// depsReport is the JSON shape of the deps command output.
type depsReport struct {
	Crate    string                   `json:"crate"`
	Version  string                   `json:"version"`
	Source   string                   `json:"source"`
	Features map[string]featureReport `json:"features"`
}

// featureReport describes one resolved feature.
type featureReport struct {
	Package   string   `json:"package"`
	Provides  []string `json:"provides,omitempty"`
	Relations []string `json:"relations,omitempty"`
}

// depsCommand creates the deps command. It resolves the feature graph of a
// crate from registry metadata alone, without downloading the archive.
func (c *CLI) depsCommand() *cobra.Command {
	opts := depsOpts{}

	cmd := &cobra.Command{
		Use:   "deps <crate> [version]",
		Short: "Resolve a crate's feature graph and Debian relations",
		Long: `Deps fetches registry metadata for a crate, flattens its feature
graph and prints the Debian package relations each feature implies.

Examples:
  debcrate deps serde
  debcrate deps rand 0.8.5 --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDeps(cmd, args, &opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "emit the report as JSON")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached registry responses")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the response cache")

	return cmd
}

func (c *CLI) runDeps(cmd *cobra.Command, args []string, opts *depsOpts) error {
	ctx := cmd.Context()

	registry, backend, err := c.newRegistry(opts.noCache)
	if err != nil {
		return err
	}
	defer backend.Close()

	prog := newProgress(c.Logger)
	info, err := registry.FetchCrate(ctx, args[0], versionArg(args), opts.refresh)
	if err != nil {
		return err
	}

	table, err := info.ResolveFeatures()
	if err != nil {
		return err
	}
	provides := table.SynthesizeProvides()
	prog.done(fmt.Sprintf("Resolved %d features for %s %s", len(table), info.Name, info.Version))

	report, err := buildDepsReport(info, table, provides)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		return writeJSONReport(report, opts.output)
	}
	printDepsReport(report, provides)
	return nil
}

// buildDepsReport derives the Debian relation strings for every resolved
// feature. The suffix assumes a library crate since only the unpacked
// source reveals binary-only crates.
func buildDepsReport(info *crate.CrateInfo, table crate.FeatureTable, provides crate.ProvidesMap) (*depsReport, error) {
	base := debian.NewBaseInfo(info, true, nil)

	report := &depsReport{
		Crate:    info.Name,
		Version:  info.Version,
		Source:   base.Source,
		Features: make(map[string]featureReport, len(table)),
	}

	for _, feature := range table.SortedNames() {
		_, deps, err := table.Closure(feature)
		if err != nil {
			return nil, err
		}

		var relations []string
		for _, d := range deps {
			rels, err := debian.Relations(d)
			if err != nil {
				return nil, err
			}
			relations = append(relations, rels...)
		}
		sort.Strings(relations)

		report.Features[feature] = featureReport{
			Package:   debian.PackageName(base.CrateName, base.Suffix, feature),
			Provides:  debian.ProvidesRelations(base.CrateName, base.Suffix, provides[feature]),
			Relations: relations,
		}
	}
	return report, nil
}

func writeJSONReport(report *depsReport, output string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	printFile(output)
	return nil
}

func printDepsReport(report *depsReport, provides crate.ProvidesMap) {
	fmt.Println(StyleTitle.Render(report.Source) + " " + StyleDim.Render(report.Version))
	printNewline()

	names := make([]string, 0, len(report.Features))
	for name := range report.Features {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := report.Features[name]
		label := name
		if label == "" {
			label = "(base)"
		}
		fmt.Println("  " + StyleHighlight.Render(label) + " " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(entry.Package))
		for _, rel := range entry.Relations {
			printDetail("Depends: %s", rel)
		}
		if len(entry.Provides) > 0 {
			printDetail("Provides: %s", strings.Join(entry.Provides, ", "))
		}
	}

	if n := countAliases(provides); n > 0 {
		printNewline()
		printInfo("%d redundant feature(s) collapsed into Provides", n)
	}
}

func countAliases(provides crate.ProvidesMap) int {
	n := 0
	for _, aliases := range provides {
		n += len(aliases)
	}
	return n
}
