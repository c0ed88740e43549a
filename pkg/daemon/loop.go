package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/tellus-io/tellus/pkg/metrics"
)

// DefaultInterval is how often a pipeline runs when its config does
// not say.
const DefaultInterval = 6 * time.Hour

type LoopVars struct {
	// RunTimeout bounds a single pipeline run; zero means no limit.
	RunTimeout time.Duration

	initOnce sync.Once
	runSoon  map[string]chan struct{}
}

func (loop *LoopVars) ensureInit(names []string) {
	loop.initOnce.Do(func() {
		loop.runSoon = make(map[string]chan struct{}, len(names))
		for _, name := range names {
			loop.runSoon[name] = make(chan struct{}, 1)
		}
	})
}

// Loop schedules pipeline runs and executes queued jobs, one at a
// time. Serialising execution through the queue is what keeps two
// runs of the same site from interleaving.
func (d *Daemon) Loop(stop chan struct{}, wg *sync.WaitGroup, logger log.Logger) {
	defer wg.Done()

	var names []string
	for _, p := range d.Pipelines {
		names = append(names, p.Name)
	}
	d.ensureInit(names)

	for _, p := range d.Pipelines {
		wg.Add(1)
		go d.pipelineLoop(p.Name, stop, wg, logger)
	}

	for {
		select {
		case <-stop:
			logger.Log("stopping", "true")
			return
		case j := <-d.Jobs.Ready():
			queueLength.Set(float64(d.Jobs.Len()))
			jobLogger := log.With(logger, "jobID", j.ID, "pipeline", j.Pipeline)
			jobLogger.Log("state", "in-progress")
			started := time.Now()
			err := j.Do(jobLogger)
			jobDuration.With(
				metrics.LabelSuccess, fmt.Sprint(err == nil),
			).Observe(time.Since(started).Seconds())
			if err != nil {
				jobLogger.Log("state", "done", "success", "false", "err", err)
				continue
			}
			jobLogger.Log("state", "done", "success", "true")
		}
	}
}

// pipelineLoop asks for a run of one pipeline at least every
// interval. Being told to run sooner reschedules the next run.
func (d *Daemon) pipelineLoop(name string, stop chan struct{}, wg *sync.WaitGroup, logger log.Logger) {
	defer wg.Done()

	p := d.pipeline(name)
	interval := time.Duration(p.Interval)
	if interval <= 0 {
		interval = DefaultInterval
	}
	timer := time.NewTimer(interval)

	// run once at startup
	d.AskForRun(name)

	for {
		select {
		case <-stop:
			return
		case <-d.runSoon[name]:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			d.queueRun(p)
			timer.Reset(interval)
		case <-timer.C:
			d.AskForRun(name)
		}
	}
}

// AskForRun requests a run of the named pipeline ahead of its timer;
// this is idempotent while a request is pending.
func (d *Daemon) AskForRun(name string) {
	c, ok := d.runSoon[name]
	if !ok {
		return
	}
	select {
	case c <- struct{}{}:
	default:
		// duly noted
	}
}
