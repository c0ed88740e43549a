package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type pipelineListOpts struct {
	*rootOpts
}

func newPipelineList(parent *rootOpts) *pipelineListOpts {
	return &pipelineListOpts{rootOpts: parent}
}

func (opts *pipelineListOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:     "list-pipelines",
		Short:   "List the pipelines the daemon runs.",
		Example: makeExample("tellusctl list-pipelines"),
		RunE:    opts.RunE,
	}
}

func (opts *pipelineListOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}

	ctx := context.Background()

	pipelines, err := opts.API.ListPipelines(ctx)
	if err != nil {
		return err
	}

	w := newTabwriter()
	fmt.Fprintf(w, "PIPELINE\tINTERVAL\tRUNNING\tLAST RUN\n")
	for _, p := range pipelines {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", p.Name, p.Interval, p.Running, lastRunTime(p))
	}
	w.Flush()
	return nil
}
