package pipeline

import (
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/tellus-io/tellus/pkg/metrics"
)

// Stages of a run, as labelled in metrics.
const (
	StageSync       = "sync"
	StageRegenerate = "regenerate"
	StagePublish    = "publish"
)

var (
	stageDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "tellus",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{metrics.LabelPipeline, metrics.LabelStage, metrics.LabelSuccess})
	downloadedFiles = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "tellus",
		Subsystem: "pipeline",
		Name:      "downloaded_files_total",
		Help:      "Count of archive files downloaded.",
	}, []string{metrics.LabelPipeline})
	publications = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "tellus",
		Subsystem: "pipeline",
		Name:      "publications_total",
		Help:      "Count of runs that pushed a publication.",
	}, []string{metrics.LabelPipeline})
)

func (p *Pipeline) instrumentStage(stage string, begin time.Time, err error) {
	stageDuration.With(
		metrics.LabelPipeline, p.Name,
		metrics.LabelStage, stage,
		metrics.LabelSuccess, fmt.Sprint(err == nil),
	).Observe(time.Since(begin).Seconds())
}
