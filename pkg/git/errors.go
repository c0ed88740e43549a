package git

import (
	"errors"

	tellserr "github.com/tellus-io/tellus/pkg/errors"
)

var NoRepoError = &tellserr.Error{
	Type: tellserr.User,
	Err:  errors.New("no repo in user config"),
	Help: `No git repository URL in your config

We need to clone the site repository to proceed, and you haven't
supplied one. Please set the repository URL in the daemon
configuration file.
`,
}

func CloningError(url string, actual error) error {
	return &tellserr.Error{
		Type: tellserr.User,
		Err:  actual,
		Help: `Could not clone the site repository

There was a problem cloning your git repository,

    ` + url + `

This may be because the credentials supplied do not grant read
access, or because the repository has been moved, deleted, or never
existed.
`,
	}
}

func ErrUpstreamNotWritable(url string, actual error) error {
	return &tellserr.Error{
		Type: tellserr.User,
		Err:  actual,
		Help: `Could not write to the site repository

To publish regenerated outputs, the daemon must be able to push to
the site repository,

    ` + url + `

Check that the token or deploy key configured for the daemon has
write permission.
`,
	}
}

func PushError(url string, actual error) error {
	return &tellserr.Error{
		Type: tellserr.User,
		Err:  actual,
		Help: `Problem committing and pushing to git repository.

There was a problem with committing changes and pushing to

    ` + url + `

If this has worked before, it most likely means a fast-forward push
was not possible. It is safe to try again.
`,
	}
}
