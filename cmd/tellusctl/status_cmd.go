package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tellus-io/tellus/pkg/api"
)

type statusOpts struct {
	*rootOpts
}

func newStatus(parent *rootOpts) *statusOpts {
	return &statusOpts{rootOpts: parent}
}

func (opts *statusOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Display the daemon's status, including the site repo and every pipeline",
		Example: makeExample("tellusctl status"),
		RunE:    opts.RunE,
	}
}

func (opts *statusOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}

	ctx := context.Background()

	status, err := opts.API.Status(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Daemon:\t%s\n", status.Version)
	ready := "not ready"
	if status.Git.Ready {
		ready = "ready"
	}
	fmt.Fprintf(out, "Repo:\t%s (branch %s, %s)\n", status.Git.Remote, status.Git.Branch, ready)
	if status.Git.Error != "" {
		fmt.Fprintf(out, "Repo error:\t%s\n", status.Git.Error)
	}
	fmt.Fprintf(out, "Queued jobs:\t%d\n", status.QueueLength)
	fmt.Fprintln(out)

	w := newTabwriter()
	fmt.Fprintf(w, "PIPELINE\tINTERVAL\tRUNNING\tLAST RUN\tRESULT\n")
	for _, p := range status.Pipelines {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n", p.Name, p.Interval, p.Running, lastRunTime(p), lastRunResult(p))
	}
	w.Flush()
	return nil
}

func lastRunTime(p api.PipelineStatus) string {
	if p.LastRun == nil {
		return "never"
	}
	return p.LastRun.StartedAt.Local().Format("2006-01-02 15:04:05")
}

func lastRunResult(p api.PipelineStatus) string {
	last := p.LastRun
	switch {
	case last == nil:
		return ""
	case last.Error != "":
		return "failed: " + last.Error
	case last.Result == nil:
		return ""
	case last.Result.PullRequestURL != "":
		return fmt.Sprintf("%s (%s)", last.Result.Status, last.Result.PullRequestURL)
	default:
		return string(last.Result.Status)
	}
}
