package git

import (
	"context"
	"errors"
	"os"

	"github.com/ryanuber/go-glob"
)

var (
	ErrReadOnly = errors.New("cannot make a working clone of a read-only git repo")
)

// Config holds some values we use when working in the working clone of
// a repo.
type Config struct {
	Branch    string   // branch we're publishing to
	Outputs   []string // glob patterns for the designated output files
	NotesRef  string   // ref for notes carrying run records
	UserName  string
	UserEmail string
}

// Checkout is a local working clone of the remote repo. It is
// intended to be used for one-off "transactions", e.g., regenerating
// output files, committing and pushing upstream. It has no locking.
type Checkout struct {
	dir          string
	config       Config
	upstream     Remote
	realNotesRef string // cache the notes ref, since we use it to push as well
}

// CommitAction is a struct holding commit information
type CommitAction struct {
	Author  string
	Message string
}

// Clone returns a local working clone of the sync'ed `*Repo`, using
// the config given.
func (r *Repo) Clone(ctx context.Context, conf Config) (*Checkout, error) {
	if r.readonly {
		return nil, ErrReadOnly
	}
	upstream := r.Origin()
	repoDir, err := r.workingClone(ctx, conf.Branch)
	if err != nil {
		return nil, err
	}

	if err := config(ctx, repoDir, conf.UserName, conf.UserEmail); err != nil {
		os.RemoveAll(repoDir)
		return nil, err
	}

	// We'll need the notes ref for pushing it, so make sure we have
	// it. This assumes we're syncing it (otherwise we'll likely get
	// conflicts)
	realNotesRef, err := getNotesRef(ctx, repoDir, conf.NotesRef)
	if err != nil {
		os.RemoveAll(repoDir)
		return nil, err
	}

	r.mu.RLock()
	if err := fetch(ctx, repoDir, r.dir, realNotesRef+":"+realNotesRef); err != nil {
		os.RemoveAll(repoDir)
		r.mu.RUnlock()
		return nil, err
	}
	r.mu.RUnlock()

	return &Checkout{
		dir:          repoDir,
		upstream:     upstream,
		realNotesRef: realNotesRef,
		config:       conf,
	}, nil
}

func (c *Checkout) Dir() string {
	return c.dir
}

func (c *Checkout) Clean() {
	if c.dir != "" {
		os.RemoveAll(c.dir)
	}
	c.dir = ""
}

// ChangedOutputs is the change-detection gate: it lists working-tree
// files (modified or untracked) matching the configured output
// patterns. An empty result means there is nothing to publish.
func (c *Checkout) ChangedOutputs(ctx context.Context) ([]string, error) {
	files, err := changedLocal(ctx, c.dir)
	if err != nil {
		return nil, err
	}
	if len(c.config.Outputs) == 0 {
		return files, nil
	}
	var matched []string
	for _, file := range files {
		for _, pattern := range c.config.Outputs {
			if glob.Glob(pattern, file) {
				matched = append(matched, file)
				break
			}
		}
	}
	return matched, nil
}

// CommitAndPush commits changes to the designated outputs, along with
// any extra data as a note, and pushes the commit and note to the
// remote repo. If a branch is given, the commit is pushed to that
// branch instead of the configured one, so that a pull request can be
// opened for it.
func (c *Checkout) CommitAndPush(ctx context.Context, commitAction CommitAction, note interface{}, branch string) error {
	changed, err := c.ChangedOutputs(ctx)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return ErrNoChanges
	}

	if branch != "" && branch != c.config.Branch {
		if err := checkoutNewBranch(ctx, c.dir, branch); err != nil {
			return err
		}
	}

	if err := add(ctx, c.dir, changed...); err != nil {
		return err
	}

	if err := commit(ctx, c.dir, commitAction); err != nil {
		return err
	}

	if note != nil {
		rev, err := c.HeadRevision(ctx)
		if err != nil {
			return err
		}
		if err := addNote(ctx, c.dir, rev, c.realNotesRef, note); err != nil {
			return err
		}
	}

	refs := []string{c.config.Branch}
	if branch != "" {
		refs = []string{"HEAD:refs/heads/" + branch}
	}
	ok, err := refExists(ctx, c.dir, c.realNotesRef)
	if ok {
		refs = append(refs, c.realNotesRef)
	} else if err != nil {
		return err
	}

	if err := push(ctx, c.dir, c.upstream.URL, refs); err != nil {
		return PushError(c.upstream.URL, err)
	}
	return nil
}

func (c *Checkout) HeadRevision(ctx context.Context) (string, error) {
	return refRevision(ctx, c.dir, "HEAD")
}
