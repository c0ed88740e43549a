package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/tellus-io/tellus/pkg/archive"
	"github.com/tellus-io/tellus/pkg/config"
	"github.com/tellus-io/tellus/pkg/daemon"
	"github.com/tellus-io/tellus/pkg/event"
	"github.com/tellus-io/tellus/pkg/git"
	"github.com/tellus-io/tellus/pkg/github"
	daemonhttp "github.com/tellus-io/tellus/pkg/http/daemon"
	"github.com/tellus-io/tellus/pkg/job"
	"github.com/tellus-io/tellus/pkg/pipeline"
	"github.com/tellus-io/tellus/pkg/toolkit"
)

var version string

const (
	product = "tellus"

	defaultGitPollInterval = 5 * time.Minute
	defaultGitTimeout      = 40 * time.Second
)

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  tellusd keeps a research site up to date with the GRACE archives.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}
	var (
		versionFlag   = fs.Bool("version", false, "get version number")
		listenAddr    = fs.StringP("listen", "l", ":3030", "listen address where the API will be served")
		listenMetrics = fs.String("listen-metrics", "", "listen address for /metrics endpoint; omit to serve metrics on the API address")
		configPath    = fs.String("config", "/etc/tellusd/config.yaml", "path to the configuration file")
		runTimeout    = fs.Duration("run-timeout", 1*time.Hour, "duration after which a pipeline run is aborted; 0 means no limit")
		historySize   = fs.Int("history-size", 256, "number of run events to keep in memory")
		progress      = fs.Bool("progress", false, "render download progress bars; only useful interactively")
		archiveRPS    = fs.Int("archive-rps", 25, "maximum archive requests per second, per host")
		archiveBurst  = fs.Int("archive-burst", 10, "maximum burst of archive requests, per host")
	)
	fs.Parse(os.Args)

	if version == "" {
		version = "unversioned"
	}
	if *versionFlag {
		fmt.Println(version)
		os.Exit(0)
	}

	// Logger domain.
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}
	logger.Log("version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log("err", err)
		os.Exit(1)
	}

	// Shutdown machinery.
	errc := make(chan error)
	shutdown := make(chan struct{})
	shutdownWg := &sync.WaitGroup{}
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	// Site repo mirror.
	var repo *git.Repo
	{
		logger := log.With(logger, "component", "git")
		pollInterval := time.Duration(cfg.Git.PollInterval)
		if pollInterval == 0 {
			pollInterval = defaultGitPollInterval
		}
		timeout := time.Duration(cfg.Git.Timeout)
		if timeout == 0 {
			timeout = defaultGitTimeout
		}
		repo = git.NewRepo(git.Remote{URL: cfg.Git.URL},
			git.Branch(cfg.Git.Branch),
			git.PollInterval(pollInterval),
			git.Timeout(timeout),
		)
		logger.Log("url", repo.Origin().SafeURL(), "branch", repo.Branch())
		shutdownWg.Add(1)
		go func() {
			err := repo.Start(shutdown, shutdownWg)
			if err != nil {
				errc <- err
			}
		}()
	}

	// Archive component.
	var syncer *archive.Syncer
	{
		logger := log.With(logger, "component", "archive")
		creds, err := archive.CredentialsFromEnv(cfg.Archive.UsernameVar, cfg.Archive.PasswordVar)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		cmrEndpoint := cfg.Archive.CMREndpoint
		if cmrEndpoint == "" {
			cmrEndpoint = archive.DefaultCMREndpoint
		}
		cmrURL, err := url.Parse(cmrEndpoint)
		if err != nil {
			logger.Log("err", errors.Wrap(err, "parsing CMR endpoint"))
			os.Exit(1)
		}
		limiters := &archive.RateLimiters{RPS: *archiveRPS, Burst: *archiveBurst}
		syncer = &archive.Syncer{
			CMR: &archive.CMR{
				Endpoint: cmrEndpoint,
				Client:   &http.Client{Transport: limiters.RoundTripper(http.DefaultTransport, cmrURL.Host)},
			},
			Client:      &http.Client{Transport: limiters.PerHostRoundTripper(http.DefaultTransport)},
			Credentials: creds,
			Workers:     cfg.Archive.Workers,
			Retries:     cfg.Archive.Retries,
			Progress:    *progress,
			Logger:      logger,
		}
		if cfg.Archive.CredentialsEndpoint != "" {
			// An s3credentials endpoint means we are close enough to
			// the bucket to read it directly.
			syncer.Cumulus = &archive.Cumulus{
				CredentialsEndpoint: cfg.Archive.CredentialsEndpoint,
				Client:              &http.Client{Transport: limiters.PerHostRoundTripper(http.DefaultTransport)},
			}
		}
	}

	// Pull requests, when any pipeline asks for them.
	var prs *github.Client
	{
		logger := log.With(logger, "component", "github")
		wanted := false
		for _, p := range cfg.Pipelines {
			if p.PullRequest != nil {
				wanted = true
			}
		}
		if wanted {
			if cfg.GitHub.TokenVar == "" {
				logger.Log("err", "a pipeline requests pull requests but github.tokenVar is not configured")
				os.Exit(1)
			}
			token, ok := os.LookupEnv(cfg.GitHub.TokenVar)
			if !ok {
				logger.Log("err", fmt.Sprintf("environment variable %s is not set", cfg.GitHub.TokenVar))
				os.Exit(1)
			}
			prs = github.NewClient(token)
		} else {
			logger.Log("pullRequests", "none configured")
		}
	}

	history := event.NewHistory(*historySize)

	// Pipelines.
	var pipelines []*pipeline.Pipeline
	{
		runner := &toolkit.Runner{
			Logger: log.With(logger, "component", "toolkit"),
			Env:    os.Environ(),
		}
		for _, pc := range cfg.Pipelines {
			p := &pipeline.Pipeline{
				Config: pc,
				Repo:   repo,
				GitConfig: git.Config{
					Branch:    cfg.Git.Branch,
					Outputs:   pc.Outputs,
					NotesRef:  cfg.Git.NotesRef,
					UserName:  cfg.Git.User,
					UserEmail: cfg.Git.Email,
				},
				Syncer: syncer,
				Runner: runner,
				Events: history,
				Logger: log.With(logger, "component", "pipeline", "pipeline", pc.Name),
			}
			if pc.PullRequest != nil {
				p.PRs = prs
			}
			pipelines = append(pipelines, p)
		}
	}

	// Daemon.
	var d *daemon.Daemon
	{
		queue := job.NewQueue(shutdown, shutdownWg)
		d = &daemon.Daemon{
			V:              version,
			Repo:           repo,
			Pipelines:      pipelines,
			Jobs:           queue,
			JobStatusCache: &job.StatusCache{Size: 100},
			History:        history,
			Logger:         log.With(logger, "component", "daemon"),
			LoopVars:       &daemon.LoopVars{RunTimeout: *runTimeout},
		}
		shutdownWg.Add(1)
		go d.Loop(shutdown, shutdownWg, log.With(logger, "component", "loop"))
	}

	// HTTP transport.
	go func() {
		mux := http.NewServeMux()
		if *listenMetrics == "" {
			mux.Handle("/metrics", promhttp.Handler())
		}
		handler := daemonhttp.NewHandler(d, daemonhttp.NewRouter())
		mux.Handle("/", handler)
		logger.Log("addr", *listenAddr)
		errc <- http.ListenAndServe(*listenAddr, mux)
	}()
	if *listenMetrics != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Log("metrics-addr", *listenMetrics)
			errc <- http.ListenAndServe(*listenMetrics, mux)
		}()
	}

	checkForUpdates(len(cfg.Pipelines), prs != nil, log.With(logger, "component", "checkpoint"))

	logger.Log("exiting", <-errc)
	close(shutdown)
	shutdownWg.Wait()
}
