package pipeline

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/tellus-io/tellus/pkg/archive"
	"github.com/tellus-io/tellus/pkg/event"
	"github.com/tellus-io/tellus/pkg/git"
	"github.com/tellus-io/tellus/pkg/git/gittest"
	"github.com/tellus-io/tellus/pkg/github"
	"github.com/tellus-io/tellus/pkg/toolkit"
)

const testTimeout = 20 * time.Second

type mockSyncer struct {
	result archive.SyncResult
	err    error
	calls  int
}

func (m *mockSyncer) Sync(ctx context.Context, dir string, spec archive.SyncSpec) (archive.SyncResult, error) {
	m.calls++
	return m.result, m.err
}

// mockRunner stands in for the external toolkit; instead of computing
// anything it writes a fixed file into the site checkout.
type mockRunner struct {
	writeFile string
	content   string
	err       error
	calls     int
}

func (m *mockRunner) Verify(ctx context.Context, req toolkit.Requirement) error {
	return nil
}

func (m *mockRunner) Run(ctx context.Context, cmd toolkit.Command) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	if m.writeFile == "" {
		return nil
	}
	return ioutil.WriteFile(filepath.Join(cmd.WorkDir, m.writeFile), []byte(m.content), 0666)
}

type mockPullRequester struct {
	url   string
	calls int
	last  github.PullRequest
}

func (m *mockPullRequester) OpenPullRequest(ctx context.Context, owner, repo string, pr github.PullRequest) (string, error) {
	m.calls++
	m.last = pr
	return m.url, nil
}

type eventRecorder struct {
	events []event.Event
}

func (r *eventRecorder) LogEvent(e event.Event) error {
	r.events = append(r.events, e)
	return nil
}

func testPipeline(t *testing.T, repo *git.Repo, syncer Syncer, runner Runner, prs PullRequester) (*Pipeline, func()) {
	dataDir, cleanup := gittest.TempDir(t)
	p := &Pipeline{
		Config: Config{
			Name:    "grace",
			DataDir: dataDir,
			Sync: archive.SyncSpec{
				Centers:  []string{"CSR"},
				Releases: []string{"RL06"},
			},
			Commands: []toolkit.Command{
				{Tool: toolkit.ToolMonthTable},
			},
			Commit: CommitConfig{Message: "Update GRACE month table"},
		},
		Repo: repo,
		GitConfig: git.Config{
			Branch:    "master",
			Outputs:   []string{"GRACE-Months.html", "images/*"},
			UserName:  "example",
			UserEmail: "example@example.com",
			NotesRef:  "tellus",
		},
		Syncer: syncer,
		Runner: runner,
		PRs:    prs,
		Events: &eventRecorder{},
		Logger: log.NewNopLogger(),
	}
	return p, cleanup
}

func TestRunSyncFailureStopsRun(t *testing.T) {
	repo, stop := gittest.StartedRepo(t)
	defer stop()

	syncer := &mockSyncer{err: errors.New("archive unreachable")}
	runner := &mockRunner{}
	prs := &mockPullRequester{}
	p, cleanup := testPipeline(t, repo, syncer, runner, prs)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := p.Run(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, runner.calls)
	assert.Equal(t, 0, prs.calls)
}

func TestRunToolFailureStopsRun(t *testing.T) {
	repo, stop := gittest.StartedRepo(t)
	defer stop()

	syncer := &mockSyncer{}
	runner := &mockRunner{err: errors.New("tool exploded")}
	prs := &mockPullRequester{}
	p, cleanup := testPipeline(t, repo, syncer, runner, prs)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	before, err := repo.BranchHead(ctx)
	assert.NoError(t, err)

	_, err = p.Run(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, prs.calls)

	// nothing may reach the published branch after a failed run
	assert.NoError(t, repo.Refresh(ctx))
	after, err := repo.BranchHead(ctx)
	assert.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunNoChanges(t *testing.T) {
	repo, stop := gittest.StartedRepo(t)
	defer stop()

	syncer := &mockSyncer{result: archive.SyncResult{UpToDate: 3}}
	runner := &mockRunner{}
	prs := &mockPullRequester{}
	p, cleanup := testPipeline(t, repo, syncer, runner, prs)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	result, err := p.Run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, StatusNoChanges, result.Status)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, 0, prs.calls)
}

func TestRunIsIdempotent(t *testing.T) {
	repo, stop := gittest.StartedRepo(t)
	defer stop()

	syncer := &mockSyncer{result: archive.SyncResult{Downloaded: 1}}
	runner := &mockRunner{
		writeFile: "GRACE-Months.html",
		content:   "<!DOCTYPE html>\n<html><body><table><tr></tr></table></body></html>\n",
	}
	p, cleanup := testPipeline(t, repo, syncer, runner, &mockPullRequester{})
	defer cleanup()
	p.PullRequest = nil // commit straight to the published branch

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	result, err := p.Run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, StatusPublished, result.Status)
	assert.NotEmpty(t, result.Revision)
	assert.Equal(t, []string{"GRACE-Months.html"}, result.Outputs)

	// with identical upstream data, a second run finds nothing to do
	assert.NoError(t, repo.Refresh(ctx))
	again, err := p.Run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, StatusNoChanges, again.Status)
}

func TestRunOpensPullRequest(t *testing.T) {
	repo, stop := gittest.StartedRepo(t)
	defer stop()

	syncer := &mockSyncer{result: archive.SyncResult{Downloaded: 2}}
	runner := &mockRunner{
		writeFile: "GRACE-Months.html",
		content:   "<!DOCTYPE html>\n<html><body>updated</body></html>\n",
	}
	prs := &mockPullRequester{url: "https://github.com/example/site/pull/7"}
	p, cleanup := testPipeline(t, repo, syncer, runner, prs)
	defer cleanup()
	p.PullRequest = &PullRequestConfig{
		Owner:        "example",
		Repo:         "site",
		Base:         "master",
		BranchPrefix: "auto/grace-",
		Reviewers:    []string{"curator"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	before, err := repo.BranchHead(ctx)
	assert.NoError(t, err)

	result, err := p.Run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, StatusPublished, result.Status)
	assert.Equal(t, prs.url, result.PullRequestURL)
	assert.Equal(t, 1, prs.calls)
	assert.Equal(t, "master", prs.last.Base)
	assert.Equal(t, []string{"curator"}, prs.last.Reviewers)
	assert.True(t, strings.HasPrefix(prs.last.Head, "auto/grace-"), "head branch %q", prs.last.Head)

	// the published branch itself is untouched; the commit went to
	// the review branch
	assert.NoError(t, repo.Refresh(ctx))
	after, err := repo.BranchHead(ctx)
	assert.NoError(t, err)
	assert.Equal(t, before, after)
	rev, err := repo.Revision(ctx, prs.last.Head)
	assert.NoError(t, err)
	assert.Equal(t, result.Revision, rev)
}

func TestRunRecordsEvents(t *testing.T) {
	repo, stop := gittest.StartedRepo(t)
	defer stop()

	syncer := &mockSyncer{result: archive.SyncResult{Downloaded: 1, UpToDate: 4}}
	runner := &mockRunner{
		writeFile: "GRACE-Months.html",
		content:   "<!DOCTYPE html>\n<html><body>events</body></html>\n",
	}
	p, cleanup := testPipeline(t, repo, syncer, runner, &mockPullRequester{})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := p.Run(ctx)
	assert.NoError(t, err)

	recorder := p.Events.(*eventRecorder)
	var types []string
	for _, e := range recorder.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{event.EventSync, event.EventRegenerate, event.EventPublish}, types)

	sync := recorder.events[0].Metadata.(*event.SyncEventMetadata)
	assert.Equal(t, 1, sync.Downloaded)
	assert.Equal(t, 4, sync.UpToDate)
}

func TestRenderMonthTable(t *testing.T) {
	dataDir, cleanup := gittest.TempDir(t)
	defer cleanup()
	siteDir, cleanupSite := gittest.TempDir(t)
	defer cleanupSite()

	indexDir := filepath.Join(dataDir, "CSR", "RL06", "GSM")
	assert.NoError(t, os.MkdirAll(indexDir, 0777))
	index := "" +
		"      mid-date  mon  start         end\n" +
		"2002.29166667 004 2002 091 2002 120\n" +
		"2002.37083333 005 2002 121 2002 151\n"
	assert.NoError(t, ioutil.WriteFile(filepath.Join(indexDir, MonthIndexFile), []byte(index), 0666))

	p := &Pipeline{
		Config: Config{
			Name:    "grace",
			DataDir: dataDir,
			Sync: archive.SyncSpec{
				Centers:  []string{"CSR", "GFZ"}, // GFZ has no index yet
				Releases: []string{"RL06"},
			},
			MonthTable: &MonthTableConfig{
				Title:        "GRACE Months",
				Output:       "GRACE-Months.html",
				CyclesOutput: "data/cycles.csv",
			},
		},
		Logger: log.NewNopLogger(),
	}
	assert.NoError(t, p.renderMonthTable(siteDir))

	html, err := ioutil.ReadFile(filepath.Join(siteDir, "GRACE-Months.html"))
	assert.NoError(t, err)
	assert.Contains(t, string(html), "CSR RL06")
	assert.Contains(t, string(html), "Apr 2002")
	assert.NotContains(t, string(html), "GFZ RL06")

	csv, err := ioutil.ReadFile(filepath.Join(siteDir, "data", "cycles.csv"))
	assert.NoError(t, err)
	assert.Contains(t, string(csv), "cycle,start,end")
	assert.Contains(t, string(csv), "4,2002-04-01,2002-04-30")
}
