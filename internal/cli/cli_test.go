package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	fs := pflag.NewFlagSet("xpi-test", pflag.ContinueOnError)
	dir := fs.String("workdir", ".", "add-on directory")
	var out bytes.Buffer

	help, err := Parse(fs, []string{"--workdir", "addon", "lint"}, &out, "usage")
	require.NoError(t, err)
	assert.False(t, help)
	assert.Equal(t, "addon", *dir)
	assert.Equal(t, []string{"lint"}, fs.Args())
}

func TestParse_Help(t *testing.T) {
	fs := pflag.NewFlagSet("xpi-test", pflag.ContinueOnError)
	var out bytes.Buffer

	help, err := Parse(fs, []string{"--help"}, &out, "Usage: xpi-test")
	require.NoError(t, err)
	assert.True(t, help)
	assert.Contains(t, out.String(), "Usage: xpi-test")
}

func TestParse_UnknownFlag(t *testing.T) {
	fs := pflag.NewFlagSet("xpi-test", pflag.ContinueOnError)
	var out bytes.Buffer

	_, err := Parse(fs, []string{"--nope"}, &out, "usage")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}
