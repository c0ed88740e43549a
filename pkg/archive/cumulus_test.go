package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCumulusConnect(t *testing.T) {
	var gotUser, gotPassword string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPassword, _ = r.BasicAuth()
		fmt.Fprint(w, `{
  "accessKeyId": "ASIATESTKEY",
  "secretAccessKey": "testsecret",
  "sessionToken": "testtoken",
  "expiration": "2022-05-01 13:00:00+00:00"
}`)
	}))
	defer server.Close()

	c := &Cumulus{CredentialsEndpoint: server.URL}
	err := c.Connect(context.Background(), Credentials{Username: "someone", Password: "hunter2"})
	assert.NoError(t, err)
	assert.NotNil(t, c.svc)
	assert.Equal(t, "someone", gotUser)
	assert.Equal(t, "hunter2", gotPassword)
}

func TestCumulusConnectRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := &Cumulus{CredentialsEndpoint: server.URL}
	err := c.Connect(context.Background(), Credentials{Username: "someone", Password: "wrong"})
	assert.Error(t, err)
	assert.Nil(t, c.svc)
}

func TestFetchPrefersS3(t *testing.T) {
	// An HTTPS server that must not be contacted when the granule has
	// an s3:// link and the bucket path is configured.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("granule fetched over HTTPS despite the s3 path being configured")
	}))
	defer server.Close()

	s := &Syncer{Cumulus: &Cumulus{}}
	g := Granule{
		URL:   server.URL + "/" + granuleName,
		S3URL: "s3://podaac-ops-cumulus-protected/GRACE/" + granuleName,
	}
	err := s.fetchOnce(context.Background(), g, "/tmp/unused")
	// the bucket client was never connected, so the s3 path fails; the
	// point is that it was chosen
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
