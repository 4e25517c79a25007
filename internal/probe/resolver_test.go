package probe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbe = `#!/bin/sh
probe_name=fs_read
probe_version=1.0.0
primary_capability_id=fs.read.workspace
secondary_capability_ids="fs.stat fs.read.tmp fs.stat"

cat "$PWD/.marker"
`

func writeProbe(t *testing.T, dir, name, contents string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), mode))
	return path
}

func TestResolve_BareNameAndExtension(t *testing.T) {
	dir := t.TempDir()
	writeProbe(t, dir, "fs_read.sh", sampleProbe, 0o755)

	for _, identifier := range []string{"fs_read", "fs_read.sh"} {
		p, err := Resolve(dir, identifier)
		require.NoError(t, err, identifier)
		assert.Equal(t, "fs_read", p.ID)
		assert.True(t, filepath.IsAbs(p.Path))
	}
}

func TestResolve_MissingProbe(t *testing.T) {
	dir := t.TempDir()

	_, err := Resolve(dir, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_EmptyIdentifier(t *testing.T) {
	_, err := Resolve(t.TempDir(), "  ")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_NotExecutable(t *testing.T) {
	dir := t.TempDir()
	writeProbe(t, dir, "fs_read.sh", sampleProbe, 0o644)

	_, err := Resolve(dir, "fs_read")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_AbsolutePathOutsideTreeRejected(t *testing.T) {
	outside := t.TempDir()
	target := writeProbe(t, outside, "evil.sh", sampleProbe, 0o755)

	_, err := Resolve(t.TempDir(), target)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_SymlinkEscapeRejected(t *testing.T) {
	outside := t.TempDir()
	target := writeProbe(t, outside, "evil.sh", sampleProbe, 0o755)

	dir := t.TempDir()
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "escape.sh")))

	// The escape fails with the same error class as a missing probe, so the
	// resolver leaks nothing about paths outside the tree.
	_, err := Resolve(dir, "escape")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_InTreeSymlinkCanonicalizes(t *testing.T) {
	dir := t.TempDir()
	real := writeProbe(t, dir, "fs_read.sh", sampleProbe, 0o755)
	require.NoError(t, os.Symlink(real, filepath.Join(dir, "alias.sh")))

	p, err := Resolve(dir, "alias")
	require.NoError(t, err)
	assert.Equal(t, "fs_read", p.ID)
}

func TestResolve_ParentTraversalRejected(t *testing.T) {
	parent := t.TempDir()
	writeProbe(t, parent, "outer.sh", sampleProbe, 0o755)
	dir := filepath.Join(parent, "probes")
	require.NoError(t, os.Mkdir(dir, 0o755))

	_, err := Resolve(dir, "../outer.sh")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeProbe(t, dir, "net_egress.sh", sampleProbe, 0o755)
	writeProbe(t, dir, "fs_read.sh", sampleProbe, 0o755)
	writeProbe(t, dir, "notes.txt", "not a probe", 0o644)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "helpers"), 0o755))

	probes, err := List(dir)
	require.NoError(t, err)
	require.Len(t, probes, 2)
	assert.Equal(t, "fs_read", probes[0].ID)
	assert.Equal(t, "net_egress", probes[1].ID)
}

func TestList_MissingDirectory(t *testing.T) {
	_, err := List(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestParseMetadata(t *testing.T) {
	dir := t.TempDir()
	writeProbe(t, dir, "fs_read.sh", sampleProbe, 0o755)

	p, err := Resolve(dir, "fs_read")
	require.NoError(t, err)

	meta, err := ParseMetadata(p)
	require.NoError(t, err)
	assert.Equal(t, "fs_read", meta.Name)
	assert.Equal(t, "1.0.0", meta.Version)
	assert.Equal(t, "fs.read.workspace", meta.PrimaryCapabilityID)
	assert.Equal(t, []string{"fs.read.tmp", "fs.stat"}, meta.SecondaryCapabilityIDs)
	assert.Equal(t, []string{"fs.read.workspace", "fs.read.tmp", "fs.stat"}, meta.CapabilityIDs())
}

func TestParseMetadata_NameMismatch(t *testing.T) {
	dir := t.TempDir()
	writeProbe(t, dir, "renamed.sh", sampleProbe, 0o755)

	p, err := Resolve(dir, "renamed")
	require.NoError(t, err)

	_, err = ParseMetadata(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe_name")
}

func TestParseMetadata_MissingFields(t *testing.T) {
	cases := map[string]string{
		"no_version": "#!/bin/sh\nprobe_name=no_version\nprimary_capability_id=fs.read\n",
		"no_primary": "#!/bin/sh\nprobe_name=no_primary\nprobe_version=1.0.0\n",
		"no_name":    "#!/bin/sh\nprobe_version=1.0.0\nprimary_capability_id=fs.read\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeProbe(t, dir, name+".sh", contents, 0o755)

			p, err := Resolve(dir, name)
			require.NoError(t, err)

			_, err = ParseMetadata(p)
			require.Error(t, err)
		})
	}
}

func TestParseMetadata_InvalidVersion(t *testing.T) {
	dir := t.TempDir()
	writeProbe(t, dir, "bad.sh", "#!/bin/sh\nprobe_name=bad\nprobe_version=not-a-version\nprimary_capability_id=fs.read\n", 0o755)

	p, err := Resolve(dir, "bad")
	require.NoError(t, err)

	_, err = ParseMetadata(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe_version")
}
