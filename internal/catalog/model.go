// Package catalog loads and indexes capability catalogs.
//
// A capability catalog is a versioned document describing the sandbox-relevant
// behaviors ("capabilities") a workspace may exercise, grouped by category and
// policy layer. Helper commands load a validated snapshot once per invocation
// and treat it as immutable for the rest of the run.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Category classifies a capability by the kind of operation it covers. The
// vocabulary is open: catalogs may introduce new categories without a code
// change, and unknown values round-trip verbatim.
type Category string

// Categories with special meaning to the harness.
const (
	CategoryFilesystem Category = "fs"
	CategoryProcess    Category = "proc"
	CategoryNetwork    Category = "net"
	CategoryEnv        Category = "env"
	CategoryPreflight  Category = "preflight"
)

// WellKnown reports whether the category is one the harness treats specially.
func (c Category) WellKnown() bool {
	switch c {
	case CategoryFilesystem, CategoryProcess, CategoryNetwork, CategoryEnv, CategoryPreflight:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }

// Layer identifies which policy layer enforces a capability. Like Category it
// is an open vocabulary with a handful of recognized values.
type Layer string

// Layers with special meaning to the harness.
const (
	LayerKernel  Layer = "kernel"
	LayerPolicy  Layer = "policy"
	LayerRuntime Layer = "runtime"
)

// WellKnown reports whether the layer is one the harness treats specially.
func (l Layer) WellKnown() bool {
	switch l {
	case LayerKernel, LayerPolicy, LayerRuntime:
		return true
	}
	return false
}

func (l Layer) String() string { return string(l) }

// Catalog is the on-disk capability catalog document.
type Catalog struct {
	SchemaVersion string       `json:"schema_version" yaml:"schema_version"`
	Metadata      Metadata     `json:"catalog" yaml:"catalog"`
	Scope         Scope        `json:"scope" yaml:"scope"`
	Docs          DocSet       `json:"docs" yaml:"docs"`
	Capabilities  []Capability `json:"capabilities" yaml:"capabilities"`
}

// Metadata describes the catalog itself.
type Metadata struct {
	Key    string   `json:"key" yaml:"key"`
	Title  string   `json:"title" yaml:"title"`
	Labels []string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Scope declares the category and policy-layer vocabularies capabilities may
// reference.
type Scope struct {
	PolicyLayers []PolicyLayer     `json:"policy_layers" yaml:"policy_layers"`
	Categories   map[string]string `json:"categories" yaml:"categories"`
}

// PolicyLayer is one enforcement layer declared by the catalog.
type PolicyLayer struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// DocSet maps doc keys to external references that capability sources cite.
type DocSet map[string]DocRef

// DocRef is a pointer to supporting documentation.
type DocRef struct {
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Capability is one cataloged unit of sandbox-relevant behavior.
type Capability struct {
	ID          string      `json:"id" yaml:"id"`
	Category    Category    `json:"category" yaml:"category"`
	Layer       Layer       `json:"layer" yaml:"layer"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Operations  Operations  `json:"operations,omitempty" yaml:"operations,omitempty"`
	Sources     []SourceRef `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// Operations lists the concrete operations a capability allows or denies.
type Operations struct {
	Allow []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty" yaml:"deny,omitempty"`
}

// SourceRef cites a doc entry backing a capability definition.
type SourceRef struct {
	Doc     string `json:"doc" yaml:"doc"`
	Section string `json:"section,omitempty" yaml:"section,omitempty"`
}

// Snapshot is the minimal capability view embedded in boundary objects so a
// record stays self-describing even if the catalog changes later.
type Snapshot struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Layer    string `json:"layer"`
}

// Snapshot captures the capability's identity for embedding in a record.
func (c Capability) Snapshot() Snapshot {
	return Snapshot{
		ID:       c.ID,
		Category: c.Category.String(),
		Layer:    c.Layer.String(),
	}
}

// Load parses a catalog document from disk. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON. Load performs no cross-reference
// validation; use LoadIndex for a validated snapshot.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var cat Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("failed to decode catalog YAML %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("failed to decode catalog JSON %s: %w", path, err)
		}
	}
	return &cat, nil
}
