package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/facecap/internal/config"
)

func TestEndpointsCmd_MarksSelected(t *testing.T) {
	t.Setenv(config.EnvEndpointsFile, "")
	t.Setenv(config.EnvEndpoint, "cmu")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"endpoints", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "* CMU")
	assert.Contains(t, out.String(), "  Local")
	assert.Contains(t, out.String(), "wss://localhost:9000")
}

func TestEndpointsCmd_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[endpoint]]\nname = \"lab\"\naddress = \"ws://10.0.0.5:9000\"\n"), 0o644))
	t.Setenv(config.EnvEndpointsFile, path)
	t.Setenv(config.EnvEndpoint, "lab")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"endpoints", "--env-file", ""})
	require.NoError(t, root.Execute())
	assert.Equal(t, "* lab        ws://10.0.0.5:9000\n", out.String())
}

func TestRunCmd_RejectsUnknownEndpoint(t *testing.T) {
	t.Setenv(config.EnvEndpointsFile, "")
	t.Setenv(config.EnvEndpoint, "")

	root := newRootCmd()
	root.SetArgs([]string{"run", "--env-file", "", "--endpoint", "Mars"})
	err := root.Execute()
	assert.ErrorIs(t, err, config.ErrUnknownEndpoint)
}
