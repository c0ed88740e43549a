package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type eventsOpts struct {
	*rootOpts
	pipeline string
	limit    int
}

func newEvents(parent *rootOpts) *eventsOpts {
	return &eventsOpts{rootOpts: parent}
}

func (opts *eventsOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent pipeline activity, newest first.",
		Example: makeExample(
			"tellusctl events --pipeline=grace --limit=10",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.pipeline, "pipeline", "p", "", "Pipeline to show events for")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Number of events to show; 0 for all")
	return cmd
}

func (opts *eventsOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	if opts.pipeline == "" {
		return newUsageError("please supply a pipeline with --pipeline")
	}

	ctx := context.Background()

	events, err := opts.API.Events(ctx, opts.pipeline, opts.limit)
	if err != nil {
		return err
	}

	w := newTabwriter()
	fmt.Fprintf(w, "TIME\tTYPE\tMESSAGE\n")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.StartedAt.Local().Format("2006-01-02 15:04:05"), e.Type, e.String())
	}
	w.Flush()
	return nil
}
