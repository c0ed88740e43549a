// Package toolkit runs the external scientific tools: the programs
// that index dates, compute mean harmonic fields, render global maps
// and write month tables. This repository defines none of that
// computation; it only installs, checks and invokes.
package toolkit

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/tellus-io/tellus/pkg/params"
)

// Tool names the conventional external collaborators.
const (
	ToolDateIndex     = "grace-date"
	ToolMeanHarmonics = "grace-mean"
	ToolPlotMaps      = "grace-plot-maps"
	ToolMonthTable    = "grace-months"
)

// Requirement pins an external tool to a semver range.
type Requirement struct {
	Tool       string `yaml:"tool"`
	Constraint string `yaml:"constraint"` // e.g. ">= 1.0, < 2.0"
}

// Command is one invocation of an external tool. The parameter files
// are passed as positional arguments, after the flags.
type Command struct {
	Tool           string   `yaml:"tool"`
	Directory      string   `yaml:"directory"` // passed as --directory
	Args           []string `yaml:"args"`
	ParameterFiles []string `yaml:"parameterFiles"`
	// WorkDir is where the tool runs; output files are written
	// relative to it. Empty means the process working directory.
	WorkDir string `yaml:"-"`
}

// Runner invokes external tools, echoing their stderr into the log on
// failure.
type Runner struct {
	Logger log.Logger
	// Env vars forwarded to the tools, beyond the credentials the
	// caller injects explicitly.
	Env []string
}

var versionPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// ParseVersionOutput extracts a semantic version from a tool's
// `--version` output, tolerating prefixes like "grace-date 1.2.3".
func ParseVersionOutput(out string) (*semver.Version, error) {
	m := versionPattern.FindString(out)
	if m == "" {
		return nil, errors.Errorf("no version found in %q", strings.TrimSpace(out))
	}
	return semver.NewVersion(m)
}

// Verify checks that the required tool is installed and inside its
// version constraint.
func (r *Runner) Verify(ctx context.Context, req Requirement) error {
	if _, err := exec.LookPath(req.Tool); err != nil {
		return errors.Wrapf(err, "tool %s is not installed", req.Tool)
	}
	if req.Constraint == "" {
		return nil
	}

	out := &bytes.Buffer{}
	c := exec.CommandContext(ctx, req.Tool, "--version")
	c.Stdout = out
	c.Stderr = out
	if err := c.Run(); err != nil {
		return errors.Wrapf(err, "checking version of %s", req.Tool)
	}

	version, err := ParseVersionOutput(out.String())
	if err != nil {
		return errors.Wrapf(err, "tool %s", req.Tool)
	}
	constraint, err := semver.NewConstraint(req.Constraint)
	if err != nil {
		return errors.Wrapf(err, "constraint for %s", req.Tool)
	}
	if !constraint.Check(version) {
		return errors.Errorf("tool %s version %s does not satisfy %q", req.Tool, version, req.Constraint)
	}
	return nil
}

// Argv returns the full argument list for the command.
func (c Command) Argv() []string {
	args := []string{}
	if c.Directory != "" {
		args = append(args, "--directory", c.Directory)
	}
	args = append(args, c.Args...)
	args = append(args, c.ParameterFiles...)
	return args
}

// Run executes the command, failing fast on a non-zero exit. The
// tool's stderr is kept for the error message.
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	// A malformed parameter file should fail the run here, with a
	// useful message, rather than deep inside the tool.
	for _, pf := range cmd.ParameterFiles {
		path := pf
		if cmd.WorkDir != "" && !filepath.IsAbs(pf) {
			path = filepath.Join(cmd.WorkDir, pf)
		}
		if _, err := params.ParseFile(path); err != nil {
			return err
		}
	}

	argv := cmd.Argv()
	r.Logger.Log("tool", cmd.Tool, "args", strings.Join(argv, " "))

	c := exec.CommandContext(ctx, cmd.Tool, argv...)
	c.Dir = cmd.WorkDir
	c.Env = append(os.Environ(), r.Env...)
	errOut := &bytes.Buffer{}
	c.Stderr = errOut

	if err := c.Run(); err != nil {
		msg := strings.TrimSpace(errOut.String())
		if msg != "" {
			return errors.Wrapf(err, "running %s: %s", cmd.Tool, msg)
		}
		return errors.Wrapf(err, "running %s", cmd.Tool)
	}
	return nil
}
