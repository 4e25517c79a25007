package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/viper"

	"github.com/fenceline-dev/fenceline/internal/boundary"
	"github.com/fenceline-dev/fenceline/internal/catalog"
	"github.com/fenceline-dev/fenceline/internal/connector"
	"github.com/fenceline-dev/fenceline/internal/probe"
	"github.com/fenceline-dev/fenceline/internal/schema"
)

// loadIndex loads and validates the configured capability catalog.
func loadIndex() (*catalog.Index, error) {
	path := viper.GetString("catalog.path")
	index, err := catalog.LoadIndex(path,
		catalog.WithAllowedVersions(viper.GetStringSlice("catalog.allowed_versions")...))
	if err != nil {
		return nil, fmt.Errorf("failed to load capability catalog: %w", err)
	}
	return index, nil
}

// loadBuilder compiles the boundary schema named by the configured descriptor
// and wires it to the index. The descriptor itself is validated against the
// configured contract before its schema reference is trusted.
func loadBuilder(index *catalog.Index) (*boundary.Builder, error) {
	descriptorPath := viper.GetString("boundary.descriptor")
	desc, err := schema.LoadDescriptor(descriptorPath)
	if err != nil {
		return nil, err
	}
	if contract := viper.GetString("boundary.contract"); contract != "" {
		if err := desc.ValidateContract(contract); err != nil {
			return nil, err
		}
	}

	allowed := viper.GetStringSlice("boundary.allowed_versions")
	if len(allowed) == 0 {
		allowed = []string{boundary.RecordSchemaVersion}
	}
	compiled, err := schema.Compile(desc.SchemaPath(), schema.LoadOptions{AllowedVersions: allowed})
	if err != nil {
		return nil, err
	}

	return &boundary.Builder{Index: index, Schema: compiled, SchemaKey: desc.Schema.Key}, nil
}

// connectorOptions resolves the external-CLI configuration once per
// invocation; the core planner holds no ambient state.
func connectorOptions() (connector.Options, error) {
	opts := connector.Options{
		RestrictedProfile: viper.GetString("sandbox.restricted_profile"),
		FullProfile:       viper.GetString("sandbox.full_profile"),
	}
	if raw := viper.GetString("sandbox.cli"); raw != "" {
		fields, err := shellwords.Parse(raw)
		if err != nil {
			return connector.Options{}, fmt.Errorf("failed to parse sandbox.cli %q: %w", raw, err)
		}
		if len(fields) == 0 {
			return connector.Options{}, fmt.Errorf("sandbox.cli %q contains no command", raw)
		}
		opts.CLI = fields
	}
	return opts, nil
}

func probesDir() string {
	return viper.GetString("probes.dir")
}

// allProbeMetadata lists the probes directory and parses every probe's
// declared metadata.
func allProbeMetadata(dir string) ([]probe.Metadata, error) {
	probes, err := probe.List(dir)
	if err != nil {
		return nil, err
	}
	metas := make([]probe.Metadata, 0, len(probes))
	for _, p := range probes {
		meta, err := probe.ParseMetadata(p)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// envOr reads an environment variable with a fallback, used for emit flag
// defaults exported by the exec command.
func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, field := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
