// Package pipeline implements the detect-update-commit cycle: pull
// new data from the archive, rerun the external tools over it, then
// commit and open a pull request only if any designated output
// actually changed. Every publication workflow is an instance of the
// same Pipeline, differing only in configuration.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/tellus-io/tellus/pkg/archive"
	"github.com/tellus-io/tellus/pkg/event"
	"github.com/tellus-io/tellus/pkg/git"
	"github.com/tellus-io/tellus/pkg/github"
	"github.com/tellus-io/tellus/pkg/metrics"
	"github.com/tellus-io/tellus/pkg/months"
	"github.com/tellus-io/tellus/pkg/toolkit"
)

// MonthIndexFile is the per-product date index written by the date
// tool and read back when rendering the summary table.
const MonthIndexFile = "DATES.txt"

// Status is the outcome of a run that did not fail.
type Status string

const (
	// StatusNoChanges means the regenerated outputs were identical to
	// what is already published, so nothing was committed.
	StatusNoChanges Status = "no-changes"
	// StatusPublished means a commit was pushed (and, when
	// configured, a pull request opened).
	StatusPublished Status = "published"
)

// Result reports what a run did.
type Result struct {
	Status         Status   `json:"status"`
	Revision       string   `json:"revision,omitempty"`
	Outputs        []string `json:"outputs,omitempty"`
	PullRequestURL string   `json:"pullRequestURL,omitempty"`
}

// Syncer brings the local data directory up to date with the remote
// archive.
type Syncer interface {
	Sync(ctx context.Context, dir string, spec archive.SyncSpec) (archive.SyncResult, error)
}

// Runner verifies and invokes the external tools.
type Runner interface {
	Verify(ctx context.Context, req toolkit.Requirement) error
	Run(ctx context.Context, cmd toolkit.Command) error
}

// PullRequester opens a pull request for a pushed branch.
type PullRequester interface {
	OpenPullRequest(ctx context.Context, owner, repo string, pr github.PullRequest) (string, error)
}

// CommitConfig is how publications are committed.
type CommitConfig struct {
	Message string `yaml:"message"`
	// Author in "Name <email>" form; falls back to the repo user.
	Author string `yaml:"author"`
}

// PullRequestConfig routes publications through review rather than
// committing straight to the published branch.
type PullRequestConfig struct {
	Owner        string   `yaml:"owner"`
	Repo         string   `yaml:"repo"`
	Base         string   `yaml:"base"`
	BranchPrefix string   `yaml:"branchPrefix"` // e.g. "auto/grace-"
	Reviewers    []string `yaml:"reviewers"`
}

// MonthTableConfig asks the run to render the month summary page from
// the date indexes, into the site checkout.
type MonthTableConfig struct {
	Title  string `yaml:"title"`
	Output string `yaml:"output"` // path within the site repo
	// CyclesOutput, when set, also writes the mission-cycle CSV
	// derived from the merged date indexes.
	CyclesOutput string `yaml:"cyclesOutput"`
}

// Interval is a duration that reads from YAML in the usual "1h30m"
// notation.
type Interval time.Duration

func (i *Interval) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parsing interval %q", s)
	}
	*i = Interval(d)
	return nil
}

func (i Interval) MarshalYAML() (interface{}, error) {
	return time.Duration(i).String(), nil
}

// Config carries everything that varies between publication
// workflows.
type Config struct {
	Name     string   `yaml:"name"`
	Interval Interval `yaml:"interval"`

	DataDir string           `yaml:"dataDir"`
	Sync    archive.SyncSpec `yaml:"sync"`

	// Outputs are glob patterns naming the site files this pipeline
	// is allowed to publish. Changes outside them never gate a
	// commit.
	Outputs []string `yaml:"outputs"`

	Requirements []toolkit.Requirement `yaml:"requirements"`
	Commands     []toolkit.Command     `yaml:"commands"`
	MonthTable   *MonthTableConfig     `yaml:"monthTable"`

	Commit      CommitConfig       `yaml:"commit"`
	PullRequest *PullRequestConfig `yaml:"pullRequest"`
}

// Pipeline runs one publication workflow against a site repo. Runs
// are expected to be serialised by the caller; Run itself does no
// locking.
type Pipeline struct {
	Config
	Repo      *git.Repo
	GitConfig git.Config
	Syncer    Syncer
	Runner    Runner
	PRs       PullRequester
	Events    event.EventWriter
	Logger    log.Logger
}

// Run executes one full cycle: sync, regenerate, then publish if the
// gate finds changed outputs. Any failure aborts the run before the
// publish step, so a half-regenerated site can never be committed.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	started := time.Now()

	syncResult, err := p.Syncer.Sync(ctx, p.DataDir, p.Sync)
	p.instrumentStage(StageSync, started, err)
	if err != nil {
		return Result{}, errors.Wrap(err, "syncing archive")
	}
	downloadedFiles.With(metrics.LabelPipeline, p.Name).Add(float64(syncResult.Downloaded))
	p.logEvent(started, "", &event.SyncEventMetadata{
		Archive:    strings.Join(p.Sync.Centers, ","),
		Downloaded: syncResult.Downloaded,
		UpToDate:   syncResult.UpToDate,
	})

	regenStart := time.Now()
	working, err := p.Repo.Clone(ctx, p.GitConfig)
	if err != nil {
		p.instrumentStage(StageRegenerate, regenStart, err)
		return Result{}, errors.Wrap(err, "cloning site repo")
	}
	defer working.Clean()

	tools, err := p.regenerate(ctx, working.Dir())
	p.instrumentStage(StageRegenerate, regenStart, err)
	if err != nil {
		return Result{}, err
	}
	p.logEvent(regenStart, "", &event.RegenerateEventMetadata{Tools: tools})

	changed, err := working.ChangedOutputs(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "checking for changed outputs")
	}
	if len(changed) == 0 {
		p.Logger.Log("pipeline", p.Name, "outcome", "no changes")
		p.logEvent(started, fmt.Sprintf("No changes to publish for %s", p.Name), nil)
		return Result{Status: StatusNoChanges}, nil
	}

	publishStart := time.Now()
	result, err := p.publish(ctx, working, changed, p.publishBranch(started))
	p.instrumentStage(StagePublish, publishStart, err)
	if err != nil {
		return Result{}, err
	}
	p.logEvent(publishStart, "", &event.PublishEventMetadata{
		Revision:       result.Revision,
		Branch:         p.publishBranch(started),
		Outputs:        result.Outputs,
		PullRequestURL: result.PullRequestURL,
	})
	return result, nil
}

// regenerate verifies the toolkit, runs each configured command in
// the site checkout, and renders the month table if asked. It returns
// the names of the tools it ran.
func (p *Pipeline) regenerate(ctx context.Context, siteDir string) ([]string, error) {
	for _, req := range p.Requirements {
		if err := p.Runner.Verify(ctx, req); err != nil {
			return nil, errors.Wrap(err, "verifying toolkit")
		}
	}

	var tools []string
	for _, cmd := range p.Commands {
		cmd.WorkDir = siteDir
		if cmd.Directory == "" {
			cmd.Directory = p.DataDir
		}
		if err := p.Runner.Run(ctx, cmd); err != nil {
			return nil, errors.Wrapf(err, "regenerating with %s", cmd.Tool)
		}
		tools = append(tools, cmd.Tool)
	}

	if p.MonthTable != nil {
		if err := p.renderMonthTable(siteDir); err != nil {
			return nil, errors.Wrap(err, "rendering month table")
		}
		tools = append(tools, "month-table")
	}
	return tools, nil
}

// renderMonthTable merges the date indexes of every configured
// dataset and writes the summary page into the site checkout. A
// dataset whose index has not been generated yet is left out rather
// than failing the run.
func (p *Pipeline) renderMonthTable(siteDir string) error {
	product := p.Sync.Product
	if product == "" {
		product = archive.ProductGSM
	}

	var table months.Table
	for _, center := range p.Sync.Centers {
		for _, release := range p.Sync.Releases {
			indexPath := filepath.Join(p.DataDir, center, release, product, MonthIndexFile)
			if _, err := os.Stat(indexPath); os.IsNotExist(err) {
				p.Logger.Log("warning", "no date index", "path", indexPath)
				continue
			}
			ms, err := months.ParseIndexFile(indexPath)
			if err != nil {
				return err
			}
			table.Datasets = append(table.Datasets, months.Dataset{
				Center:  center,
				Release: release,
				Months:  ms,
			})
		}
	}

	out := filepath.Join(siteDir, p.MonthTable.Output)
	if err := os.MkdirAll(filepath.Dir(out), 0775); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := table.RenderHTML(f, p.MonthTable.Title); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if p.MonthTable.CyclesOutput == "" {
		return nil
	}
	sets := make([][]months.Month, len(table.Datasets))
	for i, d := range table.Datasets {
		sets[i] = d.Months
	}
	cycles := months.CyclesFromMonths(months.Merge(sets...))
	out = filepath.Join(siteDir, p.MonthTable.CyclesOutput)
	if err := os.MkdirAll(filepath.Dir(out), 0775); err != nil {
		return err
	}
	f, err = os.Create(out)
	if err != nil {
		return err
	}
	if err := months.WriteCycles(f, cycles); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// publish commits the changed outputs and pushes them, either to the
// published branch directly or to a fresh branch with a pull request
// for review.
func (p *Pipeline) publish(ctx context.Context, working *git.Checkout, changed []string, branch string) (Result, error) {
	commitAction := git.CommitAction{
		Author:  p.Commit.Author,
		Message: p.commitMessage(changed),
	}
	note := &event.PublishEventMetadata{
		Branch:  branch,
		Outputs: changed,
	}
	if err := working.CommitAndPush(ctx, commitAction, note, branch); err != nil {
		if err == git.ErrNoChanges {
			return Result{Status: StatusNoChanges}, nil
		}
		return Result{}, errors.Wrap(err, "pushing publication")
	}

	revision, err := working.HeadRevision(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Status:   StatusPublished,
		Revision: revision,
		Outputs:  changed,
	}
	if p.PullRequest != nil {
		url, err := p.PRs.OpenPullRequest(ctx, p.PullRequest.Owner, p.PullRequest.Repo, github.PullRequest{
			Title:     p.commitMessage(changed),
			Body:      prBody(changed),
			Head:      branch,
			Base:      p.PullRequest.Base,
			Reviewers: p.PullRequest.Reviewers,
		})
		if err != nil {
			return Result{}, errors.Wrap(err, "opening pull request")
		}
		result.PullRequestURL = url
	}
	publications.With(metrics.LabelPipeline, p.Name).Add(1)
	p.Logger.Log("pipeline", p.Name, "outcome", "published", "revision", revision, "outputs", len(changed))
	return result, nil
}

// publishBranch names the branch a publication is pushed to, or
// returns "" when commits go straight to the configured branch.
func (p *Pipeline) publishBranch(at time.Time) string {
	if p.PullRequest == nil {
		return ""
	}
	return p.PullRequest.BranchPrefix + at.UTC().Format("20060102-150405")
}

func (p *Pipeline) commitMessage(changed []string) string {
	if p.Commit.Message != "" {
		return p.Commit.Message
	}
	return fmt.Sprintf("Update %d generated file(s)", len(changed))
}

func prBody(changed []string) string {
	b := &strings.Builder{}
	b.WriteString("Automated update of generated files:\n\n")
	for _, f := range changed {
		fmt.Fprintf(b, "- `%s`\n", f)
	}
	return b.String()
}

// logEvent records a run event, ignoring a nil writer. An event that
// cannot be recorded is logged and otherwise ignored; history is not
// worth failing a run for.
func (p *Pipeline) logEvent(started time.Time, message string, metadata event.EventMetadata) {
	if p.Events == nil {
		return
	}
	e := event.Event{
		Pipeline:  p.Name,
		StartedAt: started,
		EndedAt:   time.Now(),
		LogLevel:  event.LogLevelInfo,
		Message:   message,
	}
	if metadata != nil {
		e.Type = metadata.Type()
		e.Metadata = metadata
	} else {
		e.Type = event.EventSkip
	}
	if err := p.Events.LogEvent(e); err != nil {
		p.Logger.Log("err", errors.Wrap(err, "logging event"))
	}
}
