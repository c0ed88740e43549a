package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tellus-io/tellus/pkg/pipeline"
)

const goodConfig = `
version: 1
git:
  url: git@github.com:example/site
  branch: master
  user: Tellus Daemon
  email: tellus@example.com
  pollInterval: 5m
archive:
  usernameVar: EARTHDATA_USERNAME
  passwordVar: EARTHDATA_PASSWORD
  workers: 4
github:
  tokenVar: GITHUB_TOKEN
pipelines:
  - name: grace
    interval: 6h
    dataDir: /data/grace
    outputs:
      - GRACE-Months.html
      - images/*
    sync:
      centers: [CSR, GFZ, JPL]
      releases: [RL06]
      versions:
        grace: "0600"
        grace-fo: "0600"
    requirements:
      - tool: grace-date
        constraint: ">= 1.0"
    commands:
      - tool: grace-date
        parameterFiles: [parameters/CSR_RL06.txt]
      - tool: grace-plot-maps
    monthTable:
      title: GRACE Months
      output: GRACE-Months.html
    commit:
      message: Update GRACE tables and plots
    pullRequest:
      owner: example
      repo: site
      base: master
      branchPrefix: auto/grace-
      reviewers: [curator]
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(goodConfig))
	assert.NoError(t, err)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "git@github.com:example/site", cfg.Git.URL)
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.Git.PollInterval))
	assert.Equal(t, "EARTHDATA_USERNAME", cfg.Archive.UsernameVar)

	if assert.Len(t, cfg.Pipelines, 1) {
		p := cfg.Pipelines[0]
		assert.Equal(t, "grace", p.Name)
		assert.Equal(t, 6*time.Hour, time.Duration(p.Interval))
		assert.Equal(t, []string{"GRACE-Months.html", "images/*"}, p.Outputs)
		assert.Equal(t, []string{"CSR", "GFZ", "JPL"}, p.Sync.Centers)
		assert.Equal(t, "0600", p.Sync.Versions["grace-fo"])
		assert.Equal(t, []string{"parameters/CSR_RL06.txt"}, p.Commands[0].ParameterFiles)
		if assert.NotNil(t, p.PullRequest) {
			assert.Equal(t, []string{"curator"}, p.PullRequest.Reviewers)
		}
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	bad := `
version: 1
git:
  url: git@github.com:example/site
pipelines:
  - name: grace
    dataDir: /data/grace
    sink: /dev/null
    sync:
      centers: [CSR]
      releases: [RL06]
`
	_, err := Parse([]byte(bad))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sink")
}

func TestParseRejectsMissingGit(t *testing.T) {
	bad := `
version: 1
pipelines:
  - name: grace
    dataDir: /data/grace
    sync:
      centers: [CSR]
      releases: [RL06]
`
	_, err := Parse([]byte(bad))
	assert.Error(t, err)
}

func TestParseRejectsWrongVersion(t *testing.T) {
	bad := `
version: 2
git:
  url: git@github.com:example/site
pipelines:
  - name: grace
    dataDir: /data/grace
    sync:
      centers: [CSR]
      releases: [RL06]
`
	_, err := Parse([]byte(bad))
	assert.Error(t, err)
}

func TestParseRejectsBadInterval(t *testing.T) {
	bad := `
version: 1
git:
  url: git@github.com:example/site
pipelines:
  - name: grace
    interval: whenever
    dataDir: /data/grace
    sync:
      centers: [CSR]
      releases: [RL06]
`
	_, err := Parse([]byte(bad))
	assert.Error(t, err)
}

func TestIntervalRoundTrip(t *testing.T) {
	out, err := pipeline.Interval(90 * time.Minute).MarshalYAML()
	assert.NoError(t, err)
	assert.Equal(t, "1h30m0s", out)
}
