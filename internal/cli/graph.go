package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/debcrate/pkg/render"
)

// graphOpts holds the command-line flags for the graph command.
type graphOpts struct {
	format   string // dot, svg or png
	output   string // output file path (stdout if empty)
	detailed bool   // annotate dependency nodes with version requirements
	refresh  bool   // bypass cached registry responses
	noCache  bool   // disable the response cache entirely
}

// graphCommand creates the graph command for visualizing feature graphs.
func (c *CLI) graphCommand() *cobra.Command {
	opts := graphOpts{format: "dot"}

	cmd := &cobra.Command{
		Use:   "graph <crate> [version]",
		Short: "Render a crate's feature graph",
		Long: `Graph renders the resolved feature graph of a crate as Graphviz DOT,
SVG or PNG. Features are drawn as boxes, external dependencies as
ellipses and collapsed aliases as dashed nodes.

Examples:
  debcrate graph tokio
  debcrate graph rand 0.8.5 --format svg -o rand.svg`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGraph(cmd, args, &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", opts.format, "output format: dot, svg or png")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "annotate dependencies with version requirements")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached registry responses")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the response cache")

	return cmd
}

func (c *CLI) runGraph(cmd *cobra.Command, args []string, opts *graphOpts) error {
	ctx := cmd.Context()

	format := strings.ToLower(opts.format)
	switch format {
	case "dot", "svg", "png":
	default:
		return fmt.Errorf("unknown format %q (want dot, svg or png)", opts.format)
	}

	registry, backend, err := c.newRegistry(opts.noCache)
	if err != nil {
		return err
	}
	defer backend.Close()

	info, err := registry.FetchCrate(ctx, args[0], versionArg(args), opts.refresh)
	if err != nil {
		return err
	}

	table, err := info.ResolveFeatures()
	if err != nil {
		return err
	}
	provides := table.SynthesizeProvides()

	dot := render.ToDOT(info.Name, table, provides, render.Options{Detailed: opts.detailed})

	var data []byte
	switch format {
	case "dot":
		data = []byte(dot)
	case "svg":
		data, err = render.RenderSVG(ctx, dot)
	case "png":
		data, err = render.RenderPNG(ctx, dot)
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}

	if opts.output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return err
	}

	printSuccess("Rendered feature graph for %s %s", info.Name, info.Version)
	printFile(opts.output)
	return nil
}
