package metrics

/*
Labels and so on for metrics used in tellus.
*/

const (
	LabelMethod   = "method"
	LabelRoute    = "route"
	LabelSuccess  = "success"
	LabelPipeline = "pipeline"

	// Label for pipeline run stage metrics
	LabelStage = "stage"
)
