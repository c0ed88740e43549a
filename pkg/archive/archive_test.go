package archive

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
)

const granuleName = "GSM-2_2002095-2002120_GRAC_UTCSR_BA01_0600.gz"

func cmrResponse(dataURL string) string {
	return fmt.Sprintf(`{
  "feed": {
    "entry": [
      {
        "id": "G1234-POCLOUD",
        "title": "%s",
        "updated": "2022-05-01T12:00:00Z",
        "links": [
          {"rel": "http://esipfed.org/ns/fedsearch/1.1/data#", "href": "%s"},
          {"rel": "http://esipfed.org/ns/fedsearch/1.1/data#", "href": "s3://podaac-ops-cumulus-protected/GRACE/%s"},
          {"rel": "http://esipfed.org/ns/fedsearch/1.1/metadata#", "href": "https://example.com/meta.xml"}
        ]
      },
      {
        "id": "G5678-POCLOUD",
        "title": "browse only",
        "updated": "2022-05-01T12:00:00Z",
        "links": [
          {"rel": "http://esipfed.org/ns/fedsearch/1.1/browse#", "href": "https://example.com/browse.png"}
        ]
      }
    ]
  }
}`, granuleName, dataURL, granuleName)
}

func TestCMRGranules(t *testing.T) {
	dataURL := "https://archive.example.com/" + granuleName
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, cmrResponse(dataURL))
	}))
	defer server.Close()

	cmr := &CMR{Endpoint: server.URL}
	granules, err := cmr.Granules(context.Background(), GranuleQuery{
		Mission: "grace", Center: "CSR", Release: "RL06", Product: "GSM", Version: "0",
	})
	assert.NoError(t, err)

	// entries without a data link are dropped
	assert.Len(t, granules, 1)
	assert.Equal(t, dataURL, granules[0].URL)
	assert.Equal(t, "s3://podaac-ops-cumulus-protected/GRACE/"+granuleName, granules[0].S3URL)
	assert.Equal(t, time.Date(2022, 5, 1, 12, 0, 0, 0, time.UTC), granules[0].Updated)

	assert.Contains(t, gotQuery, "short_name=GRAC_GSM_L2_GRAV_CSR_RL06")
	assert.Contains(t, gotQuery, "provider=POCLOUD")
	assert.Contains(t, gotQuery, "version=0")
}

func TestShortNamePerProduct(t *testing.T) {
	base := GranuleQuery{Mission: "grace", Center: "CSR", Release: "RL06"}

	gsm, gac := base, base
	gsm.Product = "GSM"
	gac.Product = "GAC"

	// each product is its own CMR collection
	assert.Equal(t, "GRAC_GSM_L2_GRAV_CSR_RL06", gsm.ShortName())
	assert.Equal(t, "GRAC_GAC_L2_GRAV_CSR_RL06", gac.ShortName())
	assert.NotEqual(t, gsm.ShortName(), gac.ShortName())

	// GSM is the default product
	assert.Equal(t, gsm.ShortName(), base.ShortName())

	fo := base
	fo.Mission = "grace-fo"
	assert.Equal(t, "GRFO_GSM_L2_GRAV_CSR_RL06", fo.ShortName())
}

func TestCMRGranulesPaging(t *testing.T) {
	entry := func(i int) string {
		return fmt.Sprintf(`{
  "id": "G%04d-POCLOUD",
  "updated": "2022-05-01T12:00:00Z",
  "links": [{"rel": "http://esipfed.org/ns/fedsearch/1.1/data#", "href": "https://archive.example.com/granule-%04d.gz"}]
}`, i, i)
	}

	var pages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page_num")
		pages = append(pages, page)
		var entries []string
		if page == "1" {
			// a full first page means there may be more
			for i := 0; i < cmrPageSize; i++ {
				entries = append(entries, entry(i))
			}
		} else {
			entries = append(entries, entry(cmrPageSize))
		}
		fmt.Fprintf(w, `{"feed": {"entry": [%s]}}`, strings.Join(entries, ","))
	}))
	defer server.Close()

	cmr := &CMR{Endpoint: server.URL}
	granules, err := cmr.Granules(context.Background(), GranuleQuery{
		Mission: "grace", Center: "CSR", Release: "RL06",
	})
	assert.NoError(t, err)
	assert.Len(t, granules, cmrPageSize+1)
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestReduceByDate(t *testing.T) {
	names := []string{
		"GSM-2_2002095-2002120_GRAC_UTCSR_BA01_0600",
		"GSM-2_2002095-2002120_GRAC_UTCSR_BA01_0601", // newer version, same span
		"GSM-2_2002121-2002151_GRAC_UTCSR_BA01_0600.gz",
		"index.txt", // not a granule
	}
	reduced := ReduceByDate(names)
	assert.Equal(t, []string{
		"GSM-2_2002095-2002120_GRAC_UTCSR_BA01_0601",
		"GSM-2_2002121-2002151_GRAC_UTCSR_BA01_0600.gz",
	}, reduced)
}

func TestWriteIndex(t *testing.T) {
	dir, err := ioutil.TempDir("", "tellus-index")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)

	for _, name := range []string{
		"GSM-2_2002121-2002151_GRAC_UTCSR_BA01_0600.gz",
		"GSM-2_2002095-2002120_GRAC_UTCSR_BA01_0600.gz",
	} {
		assert.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), []byte("data"), 0666))
	}

	assert.NoError(t, WriteIndex(dir))
	index, err := ioutil.ReadFile(filepath.Join(dir, IndexFile))
	assert.NoError(t, err)
	assert.Equal(t,
		"GSM-2_2002095-2002120_GRAC_UTCSR_BA01_0600.gz\n"+
			"GSM-2_2002121-2002151_GRAC_UTCSR_BA01_0600.gz\n",
		string(index))

	// regenerating from unchanged holdings is byte-identical
	assert.NoError(t, WriteIndex(dir))
	again, err := ioutil.ReadFile(filepath.Join(dir, IndexFile))
	assert.NoError(t, err)
	assert.Equal(t, index, again)
}

func TestSyncIsIdempotent(t *testing.T) {
	// a data server and a CMR pointing granules at it
	var downloads int
	dataServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads++
		fmt.Fprint(w, "granule bytes")
	}))
	defer dataServer.Close()

	cmrServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, cmrResponse(dataServer.URL+"/"+granuleName))
	}))
	defer cmrServer.Close()

	dir, err := ioutil.TempDir("", "tellus-sync")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)

	syncer := &Syncer{
		CMR:    &CMR{Endpoint: cmrServer.URL},
		Logger: log.NewNopLogger(),
	}
	spec := SyncSpec{
		Centers:  []string{"CSR"},
		Releases: []string{"RL06"},
		Missions: []string{"grace"},
	}

	ctx := context.Background()
	result, err := syncer.Sync(ctx, dir, spec)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Downloaded)
	assert.True(t, result.Any())

	local := filepath.Join(dir, "CSR", "RL06", "GSM", granuleName)
	content, err := ioutil.ReadFile(local)
	assert.NoError(t, err)
	assert.Equal(t, "granule bytes", string(content))

	index, err := ioutil.ReadFile(filepath.Join(dir, "CSR", "RL06", "GSM", IndexFile))
	assert.NoError(t, err)
	assert.Equal(t, granuleName+"\n", string(index))

	// a second pass with identical upstream data downloads nothing
	result, err = syncer.Sync(ctx, dir, spec)
	assert.NoError(t, err)
	assert.Equal(t, 0, result.Downloaded)
	assert.Equal(t, 1, result.UpToDate)
	assert.False(t, result.Any())
	assert.Equal(t, 1, downloads)
}

func TestSplitS3URL(t *testing.T) {
	bucket, key, err := splitS3URL("s3://podaac-ops-cumulus-protected/GRACE/" + granuleName)
	assert.NoError(t, err)
	assert.Equal(t, "podaac-ops-cumulus-protected", bucket)
	assert.Equal(t, "GRACE/"+granuleName, key)

	_, _, err = splitS3URL("https://example.com/file")
	assert.Error(t, err)
}

func TestCredentialsFromEnv(t *testing.T) {
	os.Setenv("TELLUS_TEST_USER", "someone")
	os.Setenv("TELLUS_TEST_PASSWORD", "hunter2")
	defer os.Unsetenv("TELLUS_TEST_USER")
	defer os.Unsetenv("TELLUS_TEST_PASSWORD")

	creds, err := CredentialsFromEnv("TELLUS_TEST_USER", "TELLUS_TEST_PASSWORD")
	assert.NoError(t, err)
	assert.Equal(t, Credentials{Username: "someone", Password: "hunter2"}, creds)

	_, err = CredentialsFromEnv("TELLUS_TEST_USER", "TELLUS_TEST_MISSING")
	assert.Error(t, err)
}
