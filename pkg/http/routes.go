package http

// Route names, shared between the daemon's router and the client so
// URLs are constructed in exactly one place.
const (
	Ping          = "Ping"
	Version       = "Version"
	Status        = "Status"
	ListPipelines = "ListPipelines"
	TriggerRun    = "TriggerRun"
	JobStatus     = "JobStatus"
	Events        = "Events"
)
