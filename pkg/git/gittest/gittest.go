// Package gittest has helpers for testing the git machinery against
// real (local) git repositories.
package gittest

import (
	"context"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tellus-io/tellus/pkg/git"
)

const gitTestTimeout = 10 * time.Second

func newWaitGroup() *sync.WaitGroup {
	wg := &sync.WaitGroup{}
	wg.Add(1)
	return wg
}

// Files is the site-shaped fixture committed into test repositories:
// a parameter file, a generated month table, and a generated image.
var Files = map[string]string{
	"parameters/CSR_RL06.txt": "PROC\tCSR\nDREL\tRL06\nDSET\tGSM\nLMAX\t60\nMISSING\t6,7,18\n",
	"GRACE-Months.html":       "<!DOCTYPE html>\n<html><body><table></table></body></html>\n",
	"images/GRACE-global.png": "not really a png\n",
	"index.html":              "<!DOCTYPE html>\n<html><body>site</body></html>\n",
}

// TempDir makes a temporary directory and returns it with a cleanup
// function.
func TempDir(t *testing.T) (string, func()) {
	newDir, err := ioutil.TempDir(os.TempDir(), "tellus-test")
	if err != nil {
		t.Fatal("failed to create temp directory")
	}
	return newDir, func() {
		if err := os.RemoveAll(newDir); err != nil {
			t.Errorf("failed to remove temp directory %s: %v", newDir, err)
		}
	}
}

// WriteTestFiles writes the fixture files under dir.
func WriteTestFiles(dir string) error {
	for name, content := range Files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
			return err
		}
		if err := ioutil.WriteFile(path, []byte(content), 0666); err != nil {
			return err
		}
	}
	return nil
}

// Repo creates a new clone-able git repo, pre-populated with the site
// fixture files and an initial commit. Also returns a cleanup func to
// clean up after.
func Repo(t *testing.T) (*git.Repo, func()) {
	newDir, cleanup := TempDir(t)

	filesDir := filepath.Join(newDir, "files")
	gitDir := filepath.Join(newDir, "git")
	if err := os.MkdirAll(filesDir, 0777); err != nil {
		cleanup()
		t.Fatal(err)
	}

	var err error
	if err = execCommand("git", "-C", filesDir, "init"); err != nil {
		cleanup()
		t.Fatal(err)
	}
	if err = execCommand("git", "-C", filesDir, "config", "--local", "user.email", "example@example.com"); err != nil {
		cleanup()
		t.Fatal(err)
	}
	if err = execCommand("git", "-C", filesDir, "config", "--local", "user.name", "example"); err != nil {
		cleanup()
		t.Fatal(err)
	}
	if err = WriteTestFiles(filesDir); err != nil {
		cleanup()
		t.Fatal(err)
	}
	if err = execCommand("git", "-C", filesDir, "add", "--all"); err != nil {
		cleanup()
		t.Fatal(err)
	}
	if err = execCommand("git", "-C", filesDir, "commit", "-m", "Initial revision"); err != nil {
		cleanup()
		t.Fatal(err)
	}

	if err = execCommand("git", "clone", "--bare", filesDir, gitDir); err != nil {
		cleanup()
		t.Fatal(err)
	}

	mirror := git.NewRepo(git.Remote{
		URL: "file://" + gitDir,
	}, git.Branch("master"))
	return mirror, func() {
		mirror.Clean()
		cleanup()
	}
}

// StartedRepo makes a standard repo, starts its mirror loop, and
// waits for it to become ready.
func StartedRepo(t *testing.T) (*git.Repo, func()) {
	repo, cleanup := Repo(t)
	shutdown, done := make(chan struct{}), make(chan struct{})
	go func() {
		err := repo.Start(shutdown, newWaitGroup())
		if err != nil {
			t.Log(err)
		}
		close(done)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), gitTestTimeout)
	defer cancel()
	if err := repo.Ready(ctx); err != nil {
		close(shutdown)
		cleanup()
		t.Fatal(err)
	}
	return repo, func() {
		close(shutdown)
		<-done
		cleanup()
	}
}

// CheckoutWithConfig makes a standard repo, clones it, and returns
// the clone, the original repo, and a cleanup function.
func CheckoutWithConfig(t *testing.T, config git.Config) (*git.Checkout, *git.Repo, func()) {
	repo, stop := StartedRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), gitTestTimeout)
	defer cancel()
	co, err := repo.Clone(ctx, config)
	if err != nil {
		stop()
		t.Fatal(err)
	}
	return co, repo, func() {
		co.Clean()
		stop()
	}
}

// Checkout makes a standard repo, clones it, and returns the clone
// with a default config.
func Checkout(t *testing.T) (*git.Checkout, func()) {
	config := git.Config{
		Branch:    "master",
		Outputs:   []string{"GRACE-Months.html", "images/*"},
		UserName:  "example",
		UserEmail: "example@example.com",
		NotesRef:  "tellus",
	}
	co, _, cleanup := CheckoutWithConfig(t, config)
	return co, cleanup
}

func execCommand(cmd string, args ...string) error {
	c := exec.Command(cmd, args...)
	c.Stdout = ioutil.Discard
	c.Stderr = ioutil.Discard
	return c.Run()
}
