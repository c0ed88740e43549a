package archive

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

const (
	// DefaultS3CredentialsEndpoint hands out temporary credentials
	// for the Cumulus bucket, against an Earthdata login.
	DefaultS3CredentialsEndpoint = "https://archive.podaac.earthdata.nasa.gov/s3credentials"

	// cumulusRegion is the only region the bucket can be read from.
	cumulusRegion = "us-west-2"
)

// s3Credentials is the response of the s3credentials endpoint.
type s3Credentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      string `json:"expiration"`
}

// Cumulus downloads granules from the PO.DAAC Cumulus S3 bucket.
// This path only works from inside AWS us-west-2; elsewhere, use the
// HTTPS Syncer.
type Cumulus struct {
	CredentialsEndpoint string
	Client              *http.Client

	svc *s3.S3
}

// Connect obtains temporary S3 credentials for the Earthdata account
// given and opens the S3 session.
func (c *Cumulus) Connect(ctx context.Context, creds Credentials) error {
	endpoint := c.CredentialsEndpoint
	if endpoint == "" {
		endpoint = DefaultS3CredentialsEndpoint
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.SetBasicAuth(creds.Username, creds.Password)
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "requesting temporary s3 credentials")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("s3 credentials endpoint returned %s", resp.Status)
	}

	var temp s3Credentials
	if err := json.NewDecoder(resp.Body).Decode(&temp); err != nil {
		return errors.Wrap(err, "decoding s3 credentials")
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cumulusRegion),
		Credentials: credentials.NewStaticCredentials(
			temp.AccessKeyID, temp.SecretAccessKey, temp.SessionToken),
	})
	if err != nil {
		return errors.Wrap(err, "opening aws session")
	}
	c.svc = s3.New(sess)
	return nil
}

// Fetch downloads one s3:// granule URL to the local path, stamping
// it with the update time given.
func (c *Cumulus) Fetch(ctx context.Context, s3URL, local string, updated time.Time) error {
	if c.svc == nil {
		return errors.New("not connected; call Connect first")
	}
	bucket, key, err := splitS3URL(s3URL)
	if err != nil {
		return err
	}

	out, err := c.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "getting s3://%s/%s", bucket, key)
	}
	defer out.Body.Close()

	if err := writeFile(local, out.Body); err != nil {
		return err
	}
	if !updated.IsZero() {
		return os.Chtimes(local, updated, updated)
	}
	return nil
}

func splitS3URL(s3URL string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(s3URL, "s3://")
	if trimmed == s3URL {
		return "", "", errors.Errorf("not an s3 URL: %s", s3URL)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Errorf("malformed s3 URL: %s", s3URL)
	}
	return parts[0], parts[1], nil
}
