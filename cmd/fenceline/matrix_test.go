package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenceline-dev/fenceline/internal/connector"
)

func writeTestProbe(t *testing.T, dir, name, primary string) {
	t.Helper()
	script := "#!/bin/sh\nprobe_name=" + name + "\nprobe_version=1.0.0\nprimary_capability_id=" + primary + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".sh"), []byte(script), 0o755))
}

func TestSelectProbes_All(t *testing.T) {
	dir := t.TempDir()
	writeTestProbe(t, dir, "fs_read", "fs.read.workspace")
	writeTestProbe(t, dir, "net_egress", "net.egress")

	probes, err := selectProbes(dir, "", "", "")
	require.NoError(t, err)
	require.Len(t, probes, 2)
	assert.Equal(t, "fs_read", probes[0].ID)
	assert.Equal(t, "net_egress", probes[1].ID)
}

func TestSelectProbes_Single(t *testing.T) {
	dir := t.TempDir()
	writeTestProbe(t, dir, "fs_read", "fs.read.workspace")
	writeTestProbe(t, dir, "net_egress", "net.egress")

	probes, err := selectProbes(dir, "net_egress", "", "")
	require.NoError(t, err)
	require.Len(t, probes, 1)
	assert.Equal(t, "net_egress", probes[0].ID)

	_, err = selectProbes(dir, "missing", "", "")
	require.Error(t, err)
}

func TestSelectProbes_ByCapability(t *testing.T) {
	dir := t.TempDir()
	writeTestProbe(t, dir, "fs_read", "fs.read.workspace")
	writeTestProbe(t, dir, "net_egress", "net.egress")

	probes, err := selectProbes(dir, "", "net.egress", "")
	require.NoError(t, err)
	require.Len(t, probes, 1)
	assert.Equal(t, "net_egress", probes[0].ID)

	_, err = selectProbes(dir, "", "env.inherit", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no probes")
}

func TestSelectProbes_FilterExpression(t *testing.T) {
	dir := t.TempDir()
	writeTestProbe(t, dir, "fs_read", "fs.read.workspace")
	writeTestProbe(t, dir, "net_egress", "net.egress")

	probes, err := selectProbes(dir, "", "", `primary startsWith "fs."`)
	require.NoError(t, err)
	require.Len(t, probes, 1)
	assert.Equal(t, "fs_read", probes[0].ID)

	_, err = selectProbes(dir, "", "", `primary +`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--filter")
}

func TestResolveModes_ExplicitListValidated(t *testing.T) {
	matrixModes = []string{"baseline", "full"}
	defer func() { matrixModes = nil }()

	modes, err := resolveModes(connector.Options{})
	require.NoError(t, err)
	assert.Equal(t, []connector.RunMode{connector.ModeBaseline, connector.ModeFull}, modes)

	matrixModes = []string{"bogus"}
	_, err = resolveModes(connector.Options{})
	require.Error(t, err)
}
