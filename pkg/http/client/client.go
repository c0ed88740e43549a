// Package client is an api.Server implemented by calls to the
// daemon's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/tellus-io/tellus/pkg/api"
	tellserr "github.com/tellus-io/tellus/pkg/errors"
	"github.com/tellus-io/tellus/pkg/event"
	transport "github.com/tellus-io/tellus/pkg/http"
	"github.com/tellus-io/tellus/pkg/job"
)

type Token string

func (t Token) Set(req *http.Request) {
	if string(t) != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t))
	}
}

type Client struct {
	client   *http.Client
	token    Token
	router   *mux.Router
	endpoint string
}

var _ api.Server = &Client{}

func New(c *http.Client, router *mux.Router, endpoint string, t Token) *Client {
	return &Client{
		client:   c,
		token:    t,
		router:   router,
		endpoint: endpoint,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, nil, transport.Ping)
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	err := c.get(ctx, &v, transport.Version)
	return v, err
}

func (c *Client) Status(ctx context.Context) (api.Status, error) {
	var res api.Status
	err := c.get(ctx, &res, transport.Status)
	return res, err
}

func (c *Client) ListPipelines(ctx context.Context) ([]api.PipelineStatus, error) {
	var res []api.PipelineStatus
	err := c.get(ctx, &res, transport.ListPipelines)
	return res, err
}

func (c *Client) TriggerRun(ctx context.Context, name string) (job.ID, error) {
	var res job.ID
	err := c.methodWithResp(ctx, "POST", &res, transport.TriggerRun, nil, "pipeline", name)
	return res, err
}

func (c *Client) JobStatus(ctx context.Context, id job.ID) (job.Status, error) {
	var res job.Status
	err := c.get(ctx, &res, transport.JobStatus, "id", string(id))
	return res, err
}

func (c *Client) Events(ctx context.Context, name string, limit int) ([]event.Event, error) {
	var raw []json.RawMessage
	params := []string{"pipeline", name}
	if limit > 0 {
		params = append(params, "limit", strconv.Itoa(limit))
	}
	if err := c.get(ctx, &raw, transport.Events, params...); err != nil {
		return nil, err
	}
	// events carry type-dependent metadata, so decode one by one
	events := make([]event.Event, 0, len(raw))
	for _, b := range raw {
		e, err := event.UnmarshalEvent(b)
		if err != nil {
			return nil, errors.Wrap(err, "decoding event")
		}
		events = append(events, e)
	}
	return events, nil
}

// --- request helpers

// methodWithResp handles body and query-param encoding, as well as
// decoding the response into dest when dest is not nil.
func (c *Client) methodWithResp(ctx context.Context, method string, dest interface{}, route string, body interface{}, queryParams ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, queryParams...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
	}

	req, err := http.NewRequest(method, u.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)

	c.token.Set(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return errors.Wrap(err, "executing HTTP request")
	}
	defer resp.Body.Close()

	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "decoding response from server")
	}
	if len(respBytes) <= 0 || dest == nil {
		return nil
	}
	if err := json.Unmarshal(respBytes, &dest); err != nil {
		return errors.Wrap(err, "decoding response from server")
	}
	return nil
}

func (c *Client) get(ctx context.Context, dest interface{}, route string, queryParams ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, queryParams...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)

	c.token.Set(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return errors.Wrap(err, "executing HTTP request")
	}
	defer resp.Body.Close()

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errors.Wrap(err, "decoding response from server")
		}
	}
	return nil
}

func (c *Client) executeRequest(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "executing HTTP request")
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusAccepted:
		return resp, nil
	case http.StatusUnauthorized:
		return resp, transport.ErrorUnauthorized
	default:
		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return resp, errors.Wrap(err, "reading response body of error")
		}
		// the content type tells apart our structured errors from
		// any old error
		if strings.HasPrefix(resp.Header.Get(http.CanonicalHeaderKey("Content-Type")), "application/json") {
			var niceError tellserr.Error
			if err := json.Unmarshal(body, &niceError); err != nil {
				return resp, errors.Wrap(err, "decoding response body of error")
			}
			if niceError.Err != nil {
				return resp, &niceError
			}
		}
		return resp, errors.New(resp.Status + " " + string(body))
	}
}
