// Package daemon ties the pieces together: it schedules pipeline
// runs, serialises them through a job queue, and answers the API.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/tellus-io/tellus/pkg/api"
	tellserr "github.com/tellus-io/tellus/pkg/errors"
	"github.com/tellus-io/tellus/pkg/event"
	"github.com/tellus-io/tellus/pkg/git"
	"github.com/tellus-io/tellus/pkg/job"
	"github.com/tellus-io/tellus/pkg/metrics"
	"github.com/tellus-io/tellus/pkg/pipeline"
)

type Daemon struct {
	V              string
	Repo           *git.Repo
	Pipelines      []*pipeline.Pipeline
	Jobs           *job.Queue
	JobStatusCache *job.StatusCache
	History        *event.History
	Logger         log.Logger
	// bookkeeping
	*LoopVars

	lastMu   sync.Mutex
	lastRuns map[string]api.RunStatus
	running  map[string]bool
}

// Invariant.
var _ api.Server = &Daemon{}

func (d *Daemon) Version(ctx context.Context) (string, error) {
	return d.V, nil
}

func (d *Daemon) Ping(ctx context.Context) error {
	_, err := d.Repo.Status()
	return err
}

func (d *Daemon) Status(ctx context.Context) (api.Status, error) {
	gitStatus := api.GitStatus{
		Remote: d.Repo.Origin().SafeURL(),
		Branch: d.Repo.Branch(),
	}
	status, err := d.Repo.Status()
	gitStatus.Ready = status == git.RepoReady
	if err != nil {
		gitStatus.Error = err.Error()
	}

	pipelines, err := d.ListPipelines(ctx)
	if err != nil {
		return api.Status{}, err
	}

	return api.Status{
		Version:     d.V,
		Git:         gitStatus,
		Pipelines:   pipelines,
		QueueLength: d.Jobs.Len(),
	}, nil
}

func (d *Daemon) ListPipelines(ctx context.Context) ([]api.PipelineStatus, error) {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()
	var statuses []api.PipelineStatus
	for _, p := range d.Pipelines {
		status := api.PipelineStatus{
			Name:     p.Name,
			Interval: time.Duration(p.Interval).String(),
			Running:  d.running[p.Name],
		}
		if last, ok := d.lastRuns[p.Name]; ok {
			lastCopy := last
			status.LastRun = &lastCopy
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (d *Daemon) TriggerRun(ctx context.Context, name string) (job.ID, error) {
	p := d.pipeline(name)
	if p == nil {
		return "", unknownPipelineError(name)
	}
	return d.queueRun(p), nil
}

func (d *Daemon) JobStatus(ctx context.Context, id job.ID) (job.Status, error) {
	if status, ok := d.JobStatusCache.Status(id); ok {
		return status, nil
	}
	return job.Status{}, unknownJobError(id)
}

func (d *Daemon) Events(ctx context.Context, name string, limit int) ([]event.Event, error) {
	if name != "" && d.pipeline(name) == nil {
		return nil, unknownPipelineError(name)
	}
	return d.History.Events(name, limit), nil
}

func (d *Daemon) pipeline(name string) *pipeline.Pipeline {
	for _, p := range d.Pipelines {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// queueRun queues a run of the pipeline, returning the job ID for
// polling.
func (d *Daemon) queueRun(p *pipeline.Pipeline) job.ID {
	id := job.NewID()
	enqueuedAt := time.Now()
	d.Jobs.Enqueue(&job.Job{
		ID:       id,
		Pipeline: p.Name,
		Do: func(logger log.Logger) error {
			queueDuration.Observe(time.Since(enqueuedAt).Seconds())
			return d.executeRun(p, id, logger)
		},
	})
	queueLength.Set(float64(d.Jobs.Len()))
	d.JobStatusCache.SetStatus(id, job.Status{StatusString: job.StatusQueued})
	return id
}

// executeRun runs the pipeline and keeps track of its status, so the
// daemon can report it when asked.
func (d *Daemon) executeRun(p *pipeline.Pipeline, id job.ID, logger log.Logger) error {
	started := time.Now().UTC()
	d.setRunning(p.Name, true)
	defer d.setRunning(p.Name, false)
	d.JobStatusCache.SetStatus(id, job.Status{StatusString: job.StatusRunning})

	ctx := context.Background()
	var cancel context.CancelFunc = func() {}
	if d.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.RunTimeout)
	}
	defer cancel()

	result, err := p.Run(ctx)
	runStatus := api.RunStatus{StartedAt: started, EndedAt: time.Now().UTC()}
	if err != nil {
		runStatus.Error = err.Error()
		d.JobStatusCache.SetStatus(id, job.Status{StatusString: job.StatusFailed, Err: err.Error()})
		d.setLastRun(p.Name, runStatus)
		return err
	}
	runStatus.Result = &result
	d.JobStatusCache.SetStatus(id, job.Status{StatusString: job.StatusSucceeded, Result: &result})
	d.setLastRun(p.Name, runStatus)
	lastSuccess.With(metrics.LabelPipeline, p.Name).Set(float64(time.Now().Unix()))
	return nil
}

func (d *Daemon) setRunning(name string, running bool) {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()
	if d.running == nil {
		d.running = map[string]bool{}
	}
	d.running[name] = running
}

func (d *Daemon) setLastRun(name string, status api.RunStatus) {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()
	if d.lastRuns == nil {
		d.lastRuns = map[string]api.RunStatus{}
	}
	d.lastRuns[name] = status
}

func unknownPipelineError(name string) error {
	return &tellserr.Error{
		Type: tellserr.Missing,
		Err:  errors.New("unknown pipeline " + name),
		Help: "There is no pipeline named " + name + " configured in this daemon.",
	}
}

func unknownJobError(id job.ID) error {
	return &tellserr.Error{
		Type: tellserr.Missing,
		Err:  errors.New("unknown job " + string(id)),
		Help: "The job " + string(id) + " is not known; it may have been evicted from the status cache.",
	}
}
