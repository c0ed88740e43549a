package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers = 4
	defaultRetries = 5
)

// SyncSpec selects which data products to synchronise.
type SyncSpec struct {
	Centers  []string          `yaml:"centers"`  // processing centers, e.g. CSR,GFZ,JPL
	Releases []string          `yaml:"releases"` // data releases, e.g. RL06
	Missions []string          `yaml:"missions"` // defaults to both grace and grace-fo
	Product  string            `yaml:"product"`  // defaults to GSM
	Versions map[string]string `yaml:"versions"` // level-2 version per mission
}

// SyncResult summarises one synchronisation pass.
type SyncResult struct {
	Downloaded int
	UpToDate   int
}

// Any reports whether the pass brought down any new files.
func (r SyncResult) Any() bool {
	return r.Downloaded > 0
}

// Syncer pulls new granules from a remote archive into the local data
// directory, appending only; nothing local is ever deleted.
type Syncer struct {
	CMR         *CMR
	Client      *http.Client // used for downloads; must carry any auth
	Cumulus     *Cumulus     // when set, granules with s3:// links come from the bucket
	Credentials Credentials
	Retries     int
	Workers     int
	Progress    bool // render progress bars (interactive runs only)
	Logger      log.Logger
}

// Sync brings the local directory up to date with the remote archive
// for every product in the spec. A granule is fetched when it is
// absent locally or the archive reports a newer update time.
func (s *Syncer) Sync(ctx context.Context, dir string, spec SyncSpec) (SyncResult, error) {
	missions := spec.Missions
	if len(missions) == 0 {
		missions = []string{"grace", "grace-fo"}
	}
	product := spec.Product
	if product == "" {
		product = ProductGSM
	}

	type task struct {
		granule Granule
		local   string
	}
	var tasks []task

	for _, center := range spec.Centers {
		for _, release := range spec.Releases {
			localDir := filepath.Join(dir, center, release, product)
			if err := os.MkdirAll(localDir, 0775); err != nil {
				return SyncResult{}, err
			}
			for _, mission := range missions {
				q := GranuleQuery{
					Mission: mission,
					Center:  center,
					Release: release,
					Product: product,
					Version: spec.Versions[mission],
				}
				granules, err := s.CMR.Granules(ctx, q)
				if err != nil {
					return SyncResult{}, errors.Wrapf(err, "listing %s %s/%s/%s", mission, center, release, product)
				}
				s.Logger.Log("mission", mission, "center", center, "release", release, "granules", len(granules))
				for _, g := range granules {
					tasks = append(tasks, task{granule: g, local: filepath.Join(localDir, localName(g))})
				}
			}
		}
	}

	var result SyncResult
	todo := make([]task, 0, len(tasks))
	for _, t := range tasks {
		stale, err := isStale(t.local, t.granule.Updated)
		if err != nil {
			return result, err
		}
		if stale {
			todo = append(todo, t)
		} else {
			result.UpToDate++
		}
	}

	if s.Cumulus != nil && len(todo) > 0 {
		// The temporary credentials are short-lived, so renew them at
		// the start of every pass that will download something.
		if err := s.Cumulus.Connect(ctx, s.Credentials); err != nil {
			return result, errors.Wrap(err, "connecting to cumulus")
		}
	}

	workers := s.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	work := make(chan task)
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for t := range work {
				if err := s.fetch(groupCtx, t.granule, t.local); err != nil {
					return errors.Wrapf(err, "fetching %s", t.granule.ID)
				}
				s.Logger.Log("fetched", t.local)
			}
			return nil
		})
	}
	done := 0
feed:
	for _, t := range todo {
		select {
		case work <- t:
			done++
		case <-groupCtx.Done():
			break feed
		}
	}
	close(work)
	if err := group.Wait(); err != nil {
		return result, err
	}
	result.Downloaded = done

	// regenerate the per-product indexes, whether or not anything new
	// came down; the index is itself a designated output
	for _, center := range spec.Centers {
		for _, release := range spec.Releases {
			localDir := filepath.Join(dir, center, release, product)
			if err := WriteIndex(localDir); err != nil {
				return result, errors.Wrapf(err, "writing index for %s", localDir)
			}
		}
	}
	return result, nil
}

// localName is the base filename a granule is stored under. Granules
// that only carry an s3:// link are named after that.
func localName(g Granule) string {
	if g.URL != "" {
		return path.Base(g.URL)
	}
	return path.Base(g.S3URL)
}

// isStale returns true when the local copy is missing or older than
// the archive's update time.
func isStale(local string, updated time.Time) (bool, error) {
	info, err := os.Stat(local)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !updated.IsZero() && info.ModTime().Before(updated), nil
}

// fetch downloads one granule over HTTPS, retrying transient
// failures, and stamps the local file with the remote update time.
func (s *Syncer) fetch(ctx context.Context, g Granule, local string) error {
	retries := s.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	var err error
	for attempt := 0; attempt < retries; attempt++ {
		if err = s.fetchOnce(ctx, g, local); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return errors.Wrapf(err, "giving up after %d attempts", retries)
}

func (s *Syncer) fetchOnce(ctx context.Context, g Granule, local string) error {
	if s.Cumulus != nil && g.S3URL != "" {
		return s.Cumulus.Fetch(ctx, g.S3URL, local, g.Updated)
	}

	req, err := http.NewRequest("GET", g.URL, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	if s.Credentials.Username != "" {
		req.SetBasicAuth(s.Credentials.Username, s.Credentials.Password)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %s", resp.Status)
	}

	var body io.Reader = resp.Body
	var bar *pb.ProgressBar
	if s.Progress && resp.ContentLength > 0 {
		bar = pb.Full.Start64(resp.ContentLength)
		bar.Set("prefix", path.Base(local))
		body = bar.NewProxyReader(resp.Body)
	}

	err = writeFile(local, body)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}
	if !g.Updated.IsZero() {
		// remember the archive's time, so the next pass can skip it
		if err := os.Chtimes(local, g.Updated, g.Updated); err != nil {
			return err
		}
	}
	return nil
}
