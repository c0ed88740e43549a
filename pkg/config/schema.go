package config

import "github.com/xeipuuv/gojsonschema"

var schema *gojsonschema.Schema

func init() {
	var err error
	schema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(configSchema))
	if err != nil {
		panic(err)
	}
}

const configSchema = `
{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "git", "pipelines"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "enum": [1]},
    "git": {
      "type": "object",
      "required": ["url"],
      "additionalProperties": false,
      "properties": {
        "url": {"type": "string", "minLength": 1},
        "branch": {"type": "string"},
        "notesRef": {"type": "string"},
        "user": {"type": "string"},
        "email": {"type": "string"},
        "pollInterval": {"type": "string"},
        "timeout": {"type": "string"}
      }
    },
    "archive": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "cmrEndpoint": {"type": "string"},
        "credentialsEndpoint": {"type": "string"},
        "usernameVar": {"type": "string"},
        "passwordVar": {"type": "string"},
        "workers": {"type": "integer", "minimum": 1},
        "retries": {"type": "integer", "minimum": 1}
      }
    },
    "github": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "tokenVar": {"type": "string"}
      }
    },
    "pipelines": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "dataDir", "sync"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "pattern": "^[a-zA-Z0-9._-]+$"},
          "interval": {"type": "string"},
          "dataDir": {"type": "string", "minLength": 1},
          "outputs": {"type": "array", "items": {"type": "string"}, "minItems": 1},
          "sync": {
            "type": "object",
            "required": ["centers", "releases"],
            "additionalProperties": false,
            "properties": {
              "centers": {"type": "array", "items": {"type": "string"}, "minItems": 1},
              "releases": {"type": "array", "items": {"type": "string"}, "minItems": 1},
              "missions": {"type": "array", "items": {"type": "string", "enum": ["grace", "grace-fo"]}},
              "product": {"type": "string"},
              "versions": {"type": "object", "additionalProperties": {"type": "string"}}
            }
          },
          "requirements": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["tool"],
              "additionalProperties": false,
              "properties": {
                "tool": {"type": "string", "minLength": 1},
                "constraint": {"type": "string"}
              }
            }
          },
          "commands": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["tool"],
              "additionalProperties": false,
              "properties": {
                "tool": {"type": "string", "minLength": 1},
                "directory": {"type": "string"},
                "args": {"type": "array", "items": {"type": "string"}},
                "parameterFiles": {"type": "array", "items": {"type": "string"}}
              }
            }
          },
          "monthTable": {
            "type": "object",
            "required": ["output"],
            "additionalProperties": false,
            "properties": {
              "title": {"type": "string"},
              "output": {"type": "string", "minLength": 1},
              "cyclesOutput": {"type": "string", "minLength": 1}
            }
          },
          "commit": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "message": {"type": "string"},
              "author": {"type": "string"}
            }
          },
          "pullRequest": {
            "type": "object",
            "required": ["owner", "repo"],
            "additionalProperties": false,
            "properties": {
              "owner": {"type": "string", "minLength": 1},
              "repo": {"type": "string", "minLength": 1},
              "base": {"type": "string"},
              "branchPrefix": {"type": "string"},
              "reviewers": {"type": "array", "items": {"type": "string"}}
            }
          }
        }
      }
    }
  }
}
`
