package git

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	tellserr "github.com/tellus-io/tellus/pkg/errors"
)

func TestUnconfiguredRepo(t *testing.T) {
	r := NewRepo(Remote{})

	status, _ := r.Status()
	assert.Equal(t, RepoNoConfig, status)

	_, err := r.Revision(context.Background(), "HEAD")
	assert.Equal(t, NoRepoError, err)
}

func TestCloneFailureIsUserError(t *testing.T) {
	r := NewRepo(Remote{URL: "/no/such/repository"}, Timeout(10*time.Second))

	advanced := r.step(context.Background())
	assert.False(t, advanced)

	_, err := r.Status()
	userErr, ok := err.(*tellserr.Error)
	if assert.True(t, ok, "expected a user-facing error, got %v", err) {
		assert.Equal(t, tellserr.Type(tellserr.User), userErr.Type)
		assert.Contains(t, userErr.Help, "Could not clone")
	}
}
