package main

import (
	"context"
	"errors"
	"time"

	"github.com/tellus-io/tellus/pkg/api"
	"github.com/tellus-io/tellus/pkg/job"
	"github.com/tellus-io/tellus/pkg/pipeline"
)

var ErrTimeout = errors.New("timeout")

// awaitJob polls for a job to have been completed, with exponential
// backoff.
func awaitJob(ctx context.Context, client api.Server, jobID job.ID) (pipeline.Result, error) {
	var result pipeline.Result
	err := backoff(100*time.Millisecond, 2, 50, 10*time.Minute, func() (bool, error) {
		j, err := client.JobStatus(ctx, jobID)
		if err != nil {
			return false, err
		}
		switch j.StatusString {
		case job.StatusFailed:
			return false, j
		case job.StatusSucceeded:
			if j.Err != "" {
				// How did we succeed but still get an error!?
				return false, j
			}
			if j.Result != nil {
				result = *j.Result
			}
			return true, nil
		}
		return false, nil
	})
	return result, err
}

// backoff polls for f() to have been completed, with exponential backoff.
func backoff(initialDelay, factor, maxFactor, timeout time.Duration, f func() (bool, error)) error {
	maxDelay := initialDelay * maxFactor
	finish := time.Now().Add(timeout)
	for delay := initialDelay; time.Now().Before(finish); delay = min(delay*factor, maxDelay) {
		ok, err := f()
		if ok || err != nil {
			return err
		}
		// If we don't have time to try again, stop
		if time.Now().Add(delay).After(finish) {
			break
		}
		time.Sleep(delay)
	}
	return ErrTimeout
}

func min(t1, t2 time.Duration) time.Duration {
	if t1 < t2 {
		return t1
	}
	return t2
}
