package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tellus-io/tellus/pkg/pipeline"
)

type runOpts struct {
	*rootOpts
	pipeline string
	noWait   bool
}

func newRun(parent *rootOpts) *runOpts {
	return &runOpts{rootOpts: parent}
}

func (opts *runOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline now: sync the archive, regenerate the site, and publish any changes.",
		Example: makeExample(
			"tellusctl run --pipeline=grace",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.pipeline, "pipeline", "p", "", "Pipeline to run")
	cmd.Flags().BoolVar(&opts.noWait, "no-wait", false, "Queue the run and exit without waiting for it to finish")
	return cmd
}

func (opts *runOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	if opts.pipeline == "" {
		return newUsageError("please supply a pipeline with --pipeline")
	}

	ctx := context.Background()

	jobID, err := opts.API.TriggerRun(ctx, opts.pipeline)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStderr(), "Job ID %s\n", string(jobID))
	if opts.noWait {
		return nil
	}

	result, err := awaitJob(ctx, opts.API, jobID)
	if err != nil {
		return err
	}

	switch result.Status {
	case pipeline.StatusNoChanges:
		fmt.Fprintln(cmd.OutOrStderr(), "No changes to publish.")
	default:
		fmt.Fprintf(cmd.OutOrStderr(), "Published %s\n", shortRevision(result.Revision))
		if result.PullRequestURL != "" {
			fmt.Fprintf(cmd.OutOrStderr(), "Awaiting review: %s\n", result.PullRequestURL)
		}
	}
	fmt.Fprintln(cmd.OutOrStderr(), "Done.")
	return nil
}

func shortRevision(rev string) string {
	if len(rev) <= 7 {
		return rev
	}
	return rev[:7]
}
