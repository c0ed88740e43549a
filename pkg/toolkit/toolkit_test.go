package toolkit

import (
	"context"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
)

func TestParseVersionOutput(t *testing.T) {
	for output, want := range map[string]string{
		"1.2.3":                  "1.2.3",
		"grace-date 1.2.3":       "1.2.3",
		"grace-plot-maps v2.0\n": "2.0.0",
	} {
		v, err := ParseVersionOutput(output)
		assert.NoError(t, err, output)
		assert.Equal(t, want, v.String())
	}

	_, err := ParseVersionOutput("no version here")
	assert.Error(t, err)
}

func TestCommandArgv(t *testing.T) {
	cmd := Command{
		Tool:           ToolPlotMaps,
		Directory:      "/data",
		Args:           []string{"--release", "RL06", "--np", "4"},
		ParameterFiles: []string{"parameters/CSR_RL06.txt"},
	}
	assert.Equal(t, []string{
		"--directory", "/data",
		"--release", "RL06", "--np", "4",
		"parameters/CSR_RL06.txt",
	}, cmd.Argv())
}

func TestVerifyMissingTool(t *testing.T) {
	r := &Runner{Logger: log.NewNopLogger()}
	err := r.Verify(context.Background(), Requirement{Tool: "definitely-not-installed-anywhere"})
	assert.Error(t, err)
}

func TestRunFailsFast(t *testing.T) {
	r := &Runner{Logger: log.NewNopLogger()}
	err := r.Run(context.Background(), Command{Tool: "false"})
	assert.Error(t, err)
}

func TestRunSucceeds(t *testing.T) {
	r := &Runner{Logger: log.NewNopLogger()}
	err := r.Run(context.Background(), Command{Tool: "true"})
	assert.NoError(t, err)
}

func TestRunChecksParameterFiles(t *testing.T) {
	r := &Runner{Logger: log.NewNopLogger()}
	err := r.Run(context.Background(), Command{
		Tool:           "true",
		ParameterFiles: []string{"parameters/definitely-missing.txt"},
	})
	assert.Error(t, err)
}
