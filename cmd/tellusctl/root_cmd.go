package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tellus-io/tellus/pkg/api"
	transport "github.com/tellus-io/tellus/pkg/http"
	"github.com/tellus-io/tellus/pkg/http/client"
)

const (
	EnvVariableURL   = "TELLUS_URL"
	EnvVariableToken = "TELLUS_TOKEN"
)

type rootOpts struct {
	URL   string
	Token string
	API   api.Server
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
tellusctl talks to tellusd, the research-site publication daemon.

Workflow:
  tellusctl status                      # Is the daemon healthy? What ran last?
  tellusctl run --pipeline=grace        # Sync, regenerate and publish, now.
  tellusctl events --pipeline=grace     # What has happened lately?
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "tellusctl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.URL, "url", "u", "http://localhost:3030",
		fmt.Sprintf("base URL of the tellusd API server; you can also set the environment variable %s", EnvVariableURL))
	cmd.PersistentFlags().StringVarP(&opts.Token, "token", "t", "",
		fmt.Sprintf("bearer token for the tellusd API server; you can also set the environment variable %s", EnvVariableToken))

	cmd.AddCommand(
		newVersionCommand(),
		newStatus(opts).Command(),
		newPipelineList(opts).Command(),
		newRun(opts).Command(),
		newEvents(opts).Command(),
		newValidate().Command(),
	)

	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	// skip the dial for commands that work offline
	switch cmd.Name() {
	case "version", "validate":
		return nil
	}

	if !cmd.Flags().Changed("url") {
		if url, ok := os.LookupEnv(EnvVariableURL); ok {
			opts.URL = url
		}
	}
	if !cmd.Flags().Changed("token") {
		if token, ok := os.LookupEnv(EnvVariableToken); ok {
			opts.Token = token
		}
	}

	opts.API = client.New(http.DefaultClient, transport.NewAPIRouter(), opts.URL, client.Token(opts.Token))
	return nil
}
