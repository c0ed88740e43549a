// Package config loads and validates the daemon's configuration
// file. The file is YAML; it is checked against a schema before use
// so that a typo'd key fails at startup rather than three runs later.
package config

import (
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v2"

	"github.com/tellus-io/tellus/pkg/pipeline"
)

// Version is the config file version this build understands.
const Version = 1

// Git locates the site repository every pipeline publishes to.
type Git struct {
	URL          string            `yaml:"url"`
	Branch       string            `yaml:"branch"`
	NotesRef     string            `yaml:"notesRef"`
	User         string            `yaml:"user"`
	Email        string            `yaml:"email"`
	PollInterval pipeline.Interval `yaml:"pollInterval"`
	Timeout      pipeline.Interval `yaml:"timeout"`
}

// Archive names where data comes from and which environment
// variables carry the credentials. Only variable names appear here;
// the values stay in the environment.
type Archive struct {
	CMREndpoint         string `yaml:"cmrEndpoint"`
	CredentialsEndpoint string `yaml:"credentialsEndpoint"`
	UsernameVar         string `yaml:"usernameVar"`
	PasswordVar         string `yaml:"passwordVar"`
	Workers             int    `yaml:"workers"`
	Retries             int    `yaml:"retries"`
}

// GitHub carries the pull-request settings shared by pipelines.
type GitHub struct {
	TokenVar string `yaml:"tokenVar"`
}

// Config is the whole daemon configuration.
type Config struct {
	Version   int               `yaml:"version"`
	Git       Git               `yaml:"git"`
	Archive   Archive           `yaml:"archive"`
	GitHub    GitHub            `yaml:"github"`
	Pipelines []pipeline.Config `yaml:"pipelines"`
}

// Parse reads a config from YAML, validating it against the schema
// first.
func Parse(data []byte) (*Config, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if cfg.Version != Version {
		return nil, errors.Errorf("config version must be %d", Version)
	}
	return &cfg, nil
}

// Load reads the config file at path.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// validate checks the raw YAML against the config schema, so errors
// name the offending key instead of surfacing as a zero value later.
func validate(data []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "parsing config")
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(jsonable(raw)))
	if err != nil {
		return errors.Wrap(err, "validating config")
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// jsonable rewrites the yaml decoder's map[interface{}]interface{}
// values into map[string]interface{} so the schema validator can walk
// them.
func jsonable(v interface{}) interface{} {
	switch v := v.(type) {
	case map[interface{}]interface{}:
		m := map[string]interface{}{}
		for key, value := range v {
			m[fmt.Sprintf("%v", key)] = jsonable(value)
		}
		return m
	case []interface{}:
		for i := range v {
			v[i] = jsonable(v[i])
		}
		return v
	default:
		return v
	}
}
