package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/debcrate/pkg/pipeline"
)

// packageOpts holds the command-line flags for the package command.
type packageOpts struct {
	directory string // output directory (derived from crate name if empty)
	config    string // per-crate TOML config file
	refresh   bool   // bypass cached registry responses
	noCache   bool   // disable the response cache entirely
}

// packageCommand creates the package command, the main entry point of the
// tool. It runs the full fetch, extract and resolve pipeline for one crate.
func (c *CLI) packageCommand() *cobra.Command {
	opts := packageOpts{}

	cmd := &cobra.Command{
		Use:   "package <crate> [version]",
		Short: "Package a crate from crates.io as a Debian source tree",
		Long: `Package fetches a crate from crates.io, unpacks it into a sanitized
source directory and derives the Debian packaging identity for it.

The version argument accepts an exact version ("1.2.3" or "=1.2.3");
when omitted the newest published version is packaged.

Examples:
  debcrate package serde                # newest version
  debcrate package serde 1.0.100        # exact version
  debcrate package nom --directory out  # explicit output directory`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPackage(cmd, args, &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.directory, "directory", "d", "", "output directory (derived from the crate name if empty)")
	cmd.Flags().StringVar(&opts.config, "config", "", "per-crate TOML config file")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached registry responses")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the response cache")

	return cmd
}

func (c *CLI) runPackage(cmd *cobra.Command, args []string, opts *packageOpts) error {
	ctx := cmd.Context()

	runner, err := c.newRunner(opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	pipeOpts := pipeline.Options{
		Crate:      args[0],
		Version:    versionArg(args),
		Directory:  opts.directory,
		ConfigPath: opts.config,
		Refresh:    opts.refresh,
		Logger:     c.Logger,
	}

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Packaging %s...", args[0]))
	spinner.Start()

	result, err := runner.Execute(ctx, pipeOpts)
	if err != nil {
		if spinner.Cancelled() {
			spinner.Stop()
			return ctx.Err()
		}
		spinner.StopWithError(fmt.Sprintf("Packaging %s failed", args[0]))
		return err
	}
	spinner.StopWithSuccess(fmt.Sprintf("Packaged %s %s as %s", result.Info.Name, result.Info.Version, result.Base.Source))

	printFile(result.SourceDir)
	printNewline()
	printKeyValue("Source", result.Base.Source)
	printKeyValue("Tarball", result.OrigTarball)
	printKeyValue("Summary", result.Summary)
	printKeyValue("Features", fmt.Sprintf("%d resolved, %d provided", len(result.Features), len(result.Provides)))
	if result.SourceModified {
		printDetail("Source tree differs from the pristine archive")
	}

	if len(result.Fixmes) > 0 {
		printNewline()
		printWarning("Please update the sections marked FIXME in these files:")
		for _, file := range result.Fixmes {
			printDetail("%s", file)
		}
	}

	printNewline()
	printNextStep("Inspect the feature graph", fmt.Sprintf("debcrate graph %s %s", result.Info.Name, result.Info.Version))
	return nil
}
