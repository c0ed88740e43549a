package git

import (
	"net/url"
)

// Remote points at a git repo somewhere.
type Remote struct {
	// URL is where we clone from
	URL string `json:"url"`
}

// SafeURL returns the remote URL with any userinfo password removed,
// so it can be logged.
func (r Remote) SafeURL() string {
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" {
		// may be an scp-style address (user@host:path); no password
		// to strip there
		return r.URL
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}
