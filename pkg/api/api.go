// Package api is the surface the daemon exposes over HTTP, and the
// types carried across it.
package api

import (
	"context"
	"time"

	"github.com/tellus-io/tellus/pkg/event"
	"github.com/tellus-io/tellus/pkg/job"
	"github.com/tellus-io/tellus/pkg/pipeline"
)

// RunStatus is the outcome of a pipeline's most recent run.
type RunStatus struct {
	StartedAt time.Time        `json:"startedAt"`
	EndedAt   time.Time        `json:"endedAt"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// PipelineStatus is one pipeline as the daemon sees it.
type PipelineStatus struct {
	Name     string     `json:"name"`
	Interval string     `json:"interval"`
	Running  bool       `json:"running"`
	LastRun  *RunStatus `json:"lastRun,omitempty"`
}

// GitStatus reports the daemon's view of the site repo mirror.
type GitStatus struct {
	Remote string `json:"remote"`
	Branch string `json:"branch"`
	Ready  bool   `json:"ready"`
	Error  string `json:"error,omitempty"`
}

// Status is the whole daemon state, as returned by the status
// endpoint.
type Status struct {
	Version     string           `json:"version"`
	Git         GitStatus        `json:"git"`
	Pipelines   []PipelineStatus `json:"pipelines"`
	QueueLength int              `json:"queueLength"`
}

// Server is implemented by the daemon, and (over HTTP) by the client
// used in tellusctl.
type Server interface {
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
	Status(ctx context.Context) (Status, error)
	ListPipelines(ctx context.Context) ([]PipelineStatus, error)
	// TriggerRun queues a run of the named pipeline, returning the
	// job ID for polling.
	TriggerRun(ctx context.Context, name string) (job.ID, error)
	JobStatus(ctx context.Context, id job.ID) (job.Status, error)
	Events(ctx context.Context, name string, limit int) ([]event.Event, error)
}
