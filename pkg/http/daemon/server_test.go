package daemon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tellus-io/tellus/pkg/api"
	tellserr "github.com/tellus-io/tellus/pkg/errors"
	"github.com/tellus-io/tellus/pkg/event"
	"github.com/tellus-io/tellus/pkg/http/client"
	"github.com/tellus-io/tellus/pkg/job"
)

// mockServer is a canned api.Server for exercising the transport.
type mockServer struct {
	status    api.Status
	triggered []string
	events    []event.Event
}

func (m *mockServer) Ping(ctx context.Context) error {
	return nil
}

func (m *mockServer) Version(ctx context.Context) (string, error) {
	return "0.1.0", nil
}

func (m *mockServer) Status(ctx context.Context) (api.Status, error) {
	return m.status, nil
}

func (m *mockServer) ListPipelines(ctx context.Context) ([]api.PipelineStatus, error) {
	return m.status.Pipelines, nil
}

func (m *mockServer) TriggerRun(ctx context.Context, name string) (job.ID, error) {
	if name == "unknown" {
		return "", &tellserr.Error{
			Type: tellserr.Missing,
			Err:  errors.New("no such pipeline"),
			Help: "no such pipeline",
		}
	}
	m.triggered = append(m.triggered, name)
	return job.ID("job-1"), nil
}

func (m *mockServer) JobStatus(ctx context.Context, id job.ID) (job.Status, error) {
	return job.Status{StatusString: job.StatusQueued}, nil
}

func (m *mockServer) Events(ctx context.Context, name string, limit int) ([]event.Event, error) {
	return m.events, nil
}

func newTestServer(t *testing.T, mock api.Server) (*client.Client, func()) {
	router := NewRouter()
	ts := httptest.NewServer(NewHandler(mock, router))
	c := client.New(http.DefaultClient, router, ts.URL, "")
	return c, ts.Close
}

func TestServerRoundTrip(t *testing.T) {
	mock := &mockServer{
		status: api.Status{
			Version: "0.1.0",
			Git:     api.GitStatus{Remote: "git@github.com:example/site", Branch: "master", Ready: true},
			Pipelines: []api.PipelineStatus{
				{Name: "grace", Interval: "6h0m0s"},
			},
		},
	}
	c, stop := newTestServer(t, mock)
	defer stop()

	ctx := context.Background()
	assert.NoError(t, c.Ping(ctx))

	version, err := c.Version(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "0.1.0", version)

	status, err := c.Status(ctx)
	assert.NoError(t, err)
	assert.True(t, status.Git.Ready)
	assert.Len(t, status.Pipelines, 1)

	pipelines, err := c.ListPipelines(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "grace", pipelines[0].Name)
}

func TestServerTriggerRun(t *testing.T) {
	mock := &mockServer{}
	c, stop := newTestServer(t, mock)
	defer stop()

	ctx := context.Background()
	id, err := c.TriggerRun(ctx, "grace")
	assert.NoError(t, err)
	assert.Equal(t, job.ID("job-1"), id)
	assert.Equal(t, []string{"grace"}, mock.triggered)

	status, err := c.JobStatus(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, job.StatusQueued, status.StatusString)
}

func TestServerMissingPipeline(t *testing.T) {
	c, stop := newTestServer(t, &mockServer{})
	defer stop()

	_, err := c.TriggerRun(context.Background(), "unknown")
	assert.Error(t, err)
	assert.True(t, tellserr.IsMissing(err), "expected a missing error, got %v", err)
}

func TestServerEvents(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	mock := &mockServer{
		events: []event.Event{
			{
				Pipeline:  "grace",
				Type:      event.EventPublish,
				StartedAt: now,
				EndedAt:   now,
				LogLevel:  event.LogLevelInfo,
				Metadata: &event.PublishEventMetadata{
					Revision: "deadbeefcafe",
					Outputs:  []string{"GRACE-Months.html"},
				},
			},
		},
	}
	c, stop := newTestServer(t, mock)
	defer stop()

	events, err := c.Events(context.Background(), "grace", 10)
	assert.NoError(t, err)
	if assert.Len(t, events, 1) {
		metadata, ok := events[0].Metadata.(*event.PublishEventMetadata)
		if assert.True(t, ok) {
			assert.Equal(t, "deadbeefcafe", metadata.Revision)
		}
	}
}

func TestServerUnknownPath(t *testing.T) {
	router := NewRouter()
	ts := httptest.NewServer(NewHandler(&mockServer{}, router))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v0/nope")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
