package gittest

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tellus-io/tellus/pkg/git"
)

type runNote struct {
	Pipeline string `json:"pipeline"`
	Result   string `json:"result"`
}

func TestGateNoChanges(t *testing.T) {
	co, cleanup := Checkout(t)
	defer cleanup()

	changed, err := co.ChangedOutputs(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, changed, "pristine clone must report no changes")
}

func TestGateDetectsOutputModification(t *testing.T) {
	co, cleanup := Checkout(t)
	defer cleanup()

	// any byte-level modification to a designated output must trip the gate
	path := filepath.Join(co.Dir(), "GRACE-Months.html")
	assert.NoError(t, ioutil.WriteFile(path, []byte("<html>changed</html>\n"), 0666))

	changed, err := co.ChangedOutputs(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"GRACE-Months.html"}, changed)
}

func TestGateIgnoresNonOutputs(t *testing.T) {
	co, cleanup := Checkout(t)
	defer cleanup()

	// index.html is not in the designated output list
	path := filepath.Join(co.Dir(), "index.html")
	assert.NoError(t, ioutil.WriteFile(path, []byte("<html>edited</html>\n"), 0666))

	changed, err := co.ChangedOutputs(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, changed)
}

func TestGateMatchesGlobAndUntracked(t *testing.T) {
	co, cleanup := Checkout(t)
	defer cleanup()

	// a newly rendered image has never been tracked, but matches images/*
	path := filepath.Join(co.Dir(), "images", "GRACE-202301.png")
	assert.NoError(t, ioutil.WriteFile(path, []byte("png bytes\n"), 0666))

	changed, err := co.ChangedOutputs(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"images/GRACE-202301.png"}, changed)
}

func TestCommitAndPushNoChanges(t *testing.T) {
	co, cleanup := Checkout(t)
	defer cleanup()

	err := co.CommitAndPush(context.Background(), git.CommitAction{Message: "update data products"}, nil, "")
	assert.Equal(t, git.ErrNoChanges, err)
}

func TestCommitAndPush(t *testing.T) {
	co, repo, cleanup := CheckoutWithConfig(t, git.Config{
		Branch:    "master",
		Outputs:   []string{"GRACE-Months.html", "images/*"},
		UserName:  "example",
		UserEmail: "example@example.com",
		NotesRef:  "tellus",
	})
	defer cleanup()

	ctx := context.Background()
	path := filepath.Join(co.Dir(), "GRACE-Months.html")
	assert.NoError(t, ioutil.WriteFile(path, []byte("<html>new months</html>\n"), 0666))

	note := runNote{Pipeline: "grace", Result: "published"}
	err := co.CommitAndPush(ctx, git.CommitAction{Message: "update month table"}, &note, "")
	assert.NoError(t, err)

	// the commit is on the mirror after a refresh
	assert.NoError(t, repo.Refresh(ctx))
	head, err := co.HeadRevision(ctx)
	assert.NoError(t, err)
	mirrorHead, err := repo.Revision(ctx, "heads/master")
	assert.NoError(t, err)
	assert.Equal(t, head, mirrorHead)

	// and it carries the run note
	var got runNote
	ok, err := repo.GetNote(ctx, head, "tellus", &got)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, note, got)

	// committing again with no further changes is a no-op
	err = co.CommitAndPush(ctx, git.CommitAction{Message: "update month table"}, nil, "")
	assert.Equal(t, git.ErrNoChanges, err)
}

func TestCommitAndPushToBranch(t *testing.T) {
	co, repo, cleanup := CheckoutWithConfig(t, git.Config{
		Branch:    "master",
		Outputs:   []string{"GRACE-Months.html"},
		UserName:  "example",
		UserEmail: "example@example.com",
		NotesRef:  "tellus",
	})
	defer cleanup()

	ctx := context.Background()
	path := filepath.Join(co.Dir(), "GRACE-Months.html")
	assert.NoError(t, ioutil.WriteFile(path, []byte("<html>for review</html>\n"), 0666))

	err := co.CommitAndPush(ctx, git.CommitAction{Message: "update month table"}, nil, "auto/grace-update")
	assert.NoError(t, err)

	assert.NoError(t, repo.Refresh(ctx))
	rev, err := repo.Revision(ctx, "heads/auto/grace-update")
	assert.NoError(t, err)
	assert.NotEmpty(t, rev)

	// master is untouched
	head, err := co.HeadRevision(ctx)
	assert.NoError(t, err)
	master, err := repo.Revision(ctx, "heads/master")
	assert.NoError(t, err)
	assert.Equal(t, head, rev)
	assert.NotEqual(t, head, master)
}
