package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tellus-io/tellus/pkg/config"
)

type validateOpts struct {
	file string
}

func newValidate() *validateOpts {
	return &validateOpts{}
}

func (opts *validateOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a daemon configuration file without talking to the daemon.",
		Example: makeExample(
			"tellusctl validate -f config.yaml",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Configuration file to check")
	return cmd
}

func (opts *validateOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	if opts.file == "" {
		return newUsageError("please supply a configuration file with -f")
	}

	cfg, err := config.Load(opts.file)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s is valid\n", opts.file)
	for _, p := range cfg.Pipelines {
		fmt.Fprintf(out, "  pipeline %s: %d command(s), %d output pattern(s)\n", p.Name, len(p.Commands), len(p.Outputs))
	}
	return nil
}
