package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenceline-dev/fenceline/internal/boundary"
)

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b , "))
}

func TestEnvOr(t *testing.T) {
	t.Setenv("FENCELINE_TEST_KEY", "set")
	assert.Equal(t, "set", envOr("FENCELINE_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", envOr("FENCELINE_TEST_KEY_ABSENT", "fallback"))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func writeFixture(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

// The shipped descriptor contract is wired through loadBuilder: a descriptor
// violating it is rejected before its schema reference is trusted.
func TestLoadBuilder_EnforcesDescriptorContract(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeFixture(t, dir, "capabilities.json", `{
  "schema_version": "sandbox_catalog_v1",
  "catalog": {"key": "sandbox", "title": "Sandbox capabilities"},
  "scope": {
    "policy_layers": [{"id": "kernel", "title": "Kernel"}],
    "categories": {"fs": "Filesystem"}
  },
  "capabilities": [{"id": "fs.read.workspace", "category": "fs", "layer": "kernel"}]
}`)
	writeFixture(t, dir, "boundary.schema.json", `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {"schema_version": {"const": "boundary_object_v1"}},
  "required": ["schema_version"]
}`)
	good := writeFixture(t, dir, "descriptor.json", `{
  "schema_version": "boundary_schema_descriptor_v1",
  "schema": {
    "key": "boundary_object",
    "title": "Boundary object",
    "schema_path": "boundary.schema.json"
  }
}`)
	// Satisfies the typed descriptor load but not the shipped contract,
	// which requires schema.title.
	bad := writeFixture(t, dir, "bad_descriptor.json", `{
  "schema_version": "boundary_schema_descriptor_v1",
  "schema": {"key": "boundary_object", "schema_path": "boundary.schema.json"}
}`)

	viper.Set("catalog.path", catalogPath)
	viper.Set("boundary.descriptor", good)
	viper.Set("boundary.contract", filepath.Join("..", "..", "schema", "schema_descriptor.schema.json"))
	defer func() {
		viper.Set("catalog.path", "")
		viper.Set("boundary.descriptor", "")
		viper.Set("boundary.contract", "")
	}()

	index, err := loadIndex()
	require.NoError(t, err)

	builder, err := loadBuilder(index)
	require.NoError(t, err)
	assert.Equal(t, "boundary_object", builder.SchemaKey)
	assert.Equal(t, boundary.RecordSchemaVersion, builder.Schema.Version())

	viper.Set("boundary.descriptor", bad)
	_, err = loadBuilder(index)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract validation")
}

func TestConnectorOptions_ParsesCLIString(t *testing.T) {
	viper.Set("sandbox.cli", `mytool --profile "my profile"`)
	viper.Set("sandbox.restricted_profile", "custom")
	defer func() {
		viper.Set("sandbox.cli", "")
		viper.Set("sandbox.restricted_profile", "")
	}()

	opts, err := connectorOptions()
	require.NoError(t, err)
	assert.Equal(t, []string{"mytool", "--profile", "my profile"}, opts.CLI)
	assert.Equal(t, "custom", opts.RestrictedProfile)
}

func TestConnectorOptions_BadCLIString(t *testing.T) {
	viper.Set("sandbox.cli", `unterminated "quote`)
	defer viper.Set("sandbox.cli", "")

	_, err := connectorOptions()
	require.Error(t, err)
}
