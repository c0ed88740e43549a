// Package archive synchronises local GRACE/GRACE-FO data holdings
// with the remote archives: granule discovery through the NASA Common
// Metadata Repository (CMR), and transfer either over HTTPS from
// PO.DAAC or from the Cumulus S3 bucket when running inside AWS.
package archive

import (
	"os"

	"github.com/pkg/errors"
)

// Product datasets synced from the archives.
const (
	ProductGSM = "GSM" // monthly gravity field solutions
	ProductGAC = "GAC" // atmosphere + ocean dealiasing
	ProductGAD = "GAD" // ocean bottom pressure
)

// Missions and their CMR shortnames.
var missionShortnames = map[string]string{
	"grace":    "GRAC",
	"grace-fo": "GRFO",
}

// Credentials is a username/password pair for an archive, taken from
// the run environment and never persisted.
type Credentials struct {
	Username string
	Password string
}

// CredentialsFromEnv reads a credential pair from the environment
// variables named. Both must be present.
func CredentialsFromEnv(userVar, passwordVar string) (Credentials, error) {
	user, ok := os.LookupEnv(userVar)
	if !ok {
		return Credentials{}, errors.Errorf("environment variable %s is not set", userVar)
	}
	password, ok := os.LookupEnv(passwordVar)
	if !ok {
		return Credentials{}, errors.Errorf("environment variable %s is not set", passwordVar)
	}
	return Credentials{Username: user, Password: password}, nil
}
