// Package github opens pull requests for published changes, using an
// OAuth token supplied through the environment.
package github

import (
	"context"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v28/github"
	"golang.org/x/oauth2"

	tellserr "github.com/tellus-io/tellus/pkg/errors"
)

var (
	errUnauthorized = tellserr.Error{
		Type: tellserr.User,
		Help: "Unable to perform GitHub action. Permission denied. Check the token.",
	}
	errNotFound = tellserr.Error{
		Type: tellserr.Missing,
		Help: "Cannot find owner or repository. Check spelling.",
	}
	errGeneric = tellserr.Error{
		Type: tellserr.Server,
		Help: "Unable to perform GitHub action. Check error message.",
	}
)

type Client struct {
	client *gh.Client
}

// NewClient instantiates a GitHub client from a provided OAuth token.
func NewClient(token string) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &Client{
		client: gh.NewClient(tc),
	}
}

// PullRequest describes the review request opened for a publication.
type PullRequest struct {
	Title     string
	Body      string
	Head      string // branch carrying the published commit
	Base      string // branch the site serves from
	Reviewers []string
}

// OpenPullRequest creates the pull request and assigns the configured
// reviewers. It returns the html URL of the new pull request.
func (c *Client) OpenPullRequest(ctx context.Context, owner, repo string, pr PullRequest) (string, error) {
	created, resp, err := c.client.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title: gh.String(pr.Title),
		Body:  gh.String(pr.Body),
		Head:  gh.String(pr.Head),
		Base:  gh.String(pr.Base),
	})
	if err != nil {
		return "", parseError(resp, err)
	}

	if len(pr.Reviewers) > 0 {
		_, resp, err = c.client.PullRequests.RequestReviewers(ctx, owner, repo, created.GetNumber(), gh.ReviewersRequest{
			Reviewers: pr.Reviewers,
		})
		if err != nil {
			return "", parseError(resp, err)
		}
	}
	return created.GetHTMLURL(), nil
}

func populateError(err tellserr.Error, resp *gh.Response) *tellserr.Error {
	err.Err = fmt.Errorf("github API: %s", resp.Status)
	return &err
}

func parseError(resp *gh.Response, err error) error {
	if resp == nil {
		return tellserr.CoverAllError(err)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return populateError(errUnauthorized, resp)
	case http.StatusNotFound:
		return populateError(errNotFound, resp)
	default:
		e := populateError(errGeneric, resp)
		e.Err = fmt.Errorf("%s - %s", resp.Status, err.Error())
		return e
	}
}
