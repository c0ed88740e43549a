package http

import (
	"errors"

	tellserr "github.com/tellus-io/tellus/pkg/errors"
)

var ErrorUnauthorized = &tellserr.Error{
	Type: tellserr.User,
	Help: `The request failed authentication.

This most likely means the daemon was started with an API token and
the client did not supply it, or supplied the wrong one. Pass the
token with --token, or set TELLUS_TOKEN in the environment.
`,
	Err: errors.New("request failed authentication"),
}

func MakeAPINotFound(path string) *tellserr.Error {
	return &tellserr.Error{
		Type: tellserr.Missing,
		Help: `The API endpoint requested is not supported by this server.

This usually means the client (tellusctl) and the daemon are different
versions; make sure both come from the same release.

The path requested was:

    ` + path + `
`,
		Err: errors.New("API endpoint not found"),
	}
}
