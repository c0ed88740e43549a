package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultCMREndpoint is the NASA Common Metadata Repository
	// granule search API.
	DefaultCMREndpoint = "https://cmr.earthdata.nasa.gov/search/granules.json"

	cmrProvider = "POCLOUD"
	cmrPageSize = 2000
)

// GranuleQuery selects the granules of one data product.
type GranuleQuery struct {
	Mission string // "grace" or "grace-fo"
	Center  string // processing center: CSR, GFZ, JPL
	Release string // data release, e.g. RL06
	Product string // dataset, e.g. GSM
	Version string // level-2 version, e.g. "0" or "3"
}

// ShortName is the CMR collection shortname for the query, e.g.
// "GRAC_GSM_L2_GRAV_CSR_RL06". The product defaults to GSM when the
// query leaves it empty.
func (q GranuleQuery) ShortName() string {
	mission := missionShortnames[q.Mission]
	product := q.Product
	if product == "" {
		product = ProductGSM
	}
	return fmt.Sprintf("%s_%s_L2_GRAV_%s_%s", mission, product, q.Center, q.Release)
}

// Granule is one remote data file.
type Granule struct {
	ID      string
	URL     string // https download link
	S3URL   string // s3:// link, when the archive offers one
	Updated time.Time
}

// CMR queries the Common Metadata Repository for granule metadata.
type CMR struct {
	Endpoint string
	Client   *http.Client
}

// cmrFeed mirrors the parts of the CMR JSON response we consume.
type cmrFeed struct {
	Feed struct {
		Entry []struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Updated string `json:"updated"`
			Links   []struct {
				Rel  string `json:"rel"`
				Href string `json:"href"`
			} `json:"links"`
		} `json:"entry"`
	} `json:"feed"`
}

const cmrDataRel = "http://esipfed.org/ns/fedsearch/1.1/data#"

// Granules runs the query and returns the granules with their data
// links and update times.
func (c *CMR) Granules(ctx context.Context, q GranuleQuery) ([]Granule, error) {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultCMREndpoint
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	var granules []Granule
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("short_name", q.ShortName())
		query.Set("provider", cmrProvider)
		query.Set("page_size", fmt.Sprint(cmrPageSize))
		query.Set("page_num", fmt.Sprint(page))
		query.Set("sort_key", "start_date")
		if q.Version != "" {
			query.Set("version", q.Version)
		}

		feed, err := c.page(ctx, client, endpoint, query)
		if err != nil {
			return nil, err
		}

		for _, entry := range feed.Feed.Entry {
			g := Granule{ID: entry.ID}
			if entry.Updated != "" {
				var err error
				if g.Updated, err = time.Parse(time.RFC3339, entry.Updated); err != nil {
					return nil, errors.Wrapf(err, "granule %s update time", entry.ID)
				}
			}
			for _, link := range entry.Links {
				if link.Rel != cmrDataRel {
					continue
				}
				switch {
				case strings.HasPrefix(link.Href, "https://"):
					g.URL = link.Href
				case strings.HasPrefix(link.Href, "s3://"):
					g.S3URL = link.Href
				}
			}
			if g.URL == "" && g.S3URL == "" {
				continue // no data link; metadata-only entry
			}
			granules = append(granules, g)
		}

		// A short page is the last page.
		if len(feed.Feed.Entry) < cmrPageSize {
			break
		}
	}
	return granules, nil
}

func (c *CMR) page(ctx context.Context, client *http.Client, endpoint string, query url.Values) (*cmrFeed, error) {
	req, err := http.NewRequest("GET", endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "querying CMR")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("CMR query returned %s", resp.Status)
	}

	var feed cmrFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, errors.Wrap(err, "decoding CMR response")
	}
	return &feed, nil
}
