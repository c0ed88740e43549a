package git

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{}, splitList(""))
	assert.Equal(t, []string{}, splitList("  \n"))
	assert.Equal(t, []string{"a", "b"}, splitList("a\nb\n"))
}

func TestFindErrorMessage(t *testing.T) {
	out := bytes.NewBufferString("warning: something benign\nfatal: repository not found\n")
	assert.Equal(t, "fatal: repository not found", findErrorMessage(out))

	out = bytes.NewBufferString("all fine here\n")
	assert.Equal(t, "", findErrorMessage(out))
}
