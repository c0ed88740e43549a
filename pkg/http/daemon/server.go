// Package daemon has the HTTP server wrapping the daemon's API
// implementation.
package daemon

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/weaveworks/common/middleware"

	"github.com/tellus-io/tellus/pkg/api"
	transport "github.com/tellus-io/tellus/pkg/http"
	"github.com/tellus-io/tellus/pkg/job"
	tellusmetrics "github.com/tellus-io/tellus/pkg/metrics"
)

var (
	requestDuration = stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: "tellus",
		Name:      "request_duration_seconds",
		Help:      "Time (in seconds) spent serving HTTP requests.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{tellusmetrics.LabelMethod, tellusmetrics.LabelRoute, "status_code", "ws"})
)

func init() {
	stdprometheus.MustRegister(requestDuration)
}

// NewRouter makes the API router, with a catch-all so unknown paths
// get a structured error rather than a bare 404.
func NewRouter() *mux.Router {
	r := transport.NewAPIRouter()

	r.NewRoute().Name("NotFound").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteError(w, r, http.StatusNotFound, transport.MakeAPINotFound(r.URL.Path))
	})

	return r
}

// NewHandler attaches the server's handlers to the router and wraps
// it with request instrumentation.
func NewHandler(s api.Server, r *mux.Router) http.Handler {
	handle := HTTPServer{s}

	r.Get(transport.Ping).HandlerFunc(handle.Ping)
	r.Get(transport.Version).HandlerFunc(handle.Version)
	r.Get(transport.Status).HandlerFunc(handle.Status)
	r.Get(transport.ListPipelines).HandlerFunc(handle.ListPipelines)
	r.Get(transport.TriggerRun).HandlerFunc(handle.TriggerRun)
	r.Get(transport.JobStatus).HandlerFunc(handle.JobStatus)
	r.Get(transport.Events).HandlerFunc(handle.Events)

	return middleware.Instrument{
		RouteMatcher: r,
		Duration:     requestDuration,
	}.Wrap(r)
}

type HTTPServer struct {
	server api.Server
}

func (s HTTPServer) Ping(w http.ResponseWriter, r *http.Request) {
	if err := s.server.Ping(r.Context()); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s HTTPServer) Version(w http.ResponseWriter, r *http.Request) {
	version, err := s.server.Version(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, version)
}

func (s HTTPServer) Status(w http.ResponseWriter, r *http.Request) {
	status, err := s.server.Status(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, status)
}

func (s HTTPServer) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := s.server.ListPipelines(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, pipelines)
}

func (s HTTPServer) TriggerRun(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["pipeline"]
	id, err := s.server.TriggerRun(r.Context(), name)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, id)
}

func (s HTTPServer) JobStatus(w http.ResponseWriter, r *http.Request) {
	id := job.ID(mux.Vars(r)["id"])
	status, err := s.server.JobStatus(r.Context(), id)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, status)
}

func (s HTTPServer) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if l := q.Get("limit"); l != "" {
		var err error
		if limit, err = strconv.Atoi(l); err != nil {
			transport.WriteError(w, r, http.StatusBadRequest, err)
			return
		}
	}
	events, err := s.server.Events(r.Context(), q.Get("pipeline"), limit)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, events)
}
