package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fenceline-dev/fenceline/internal/catalog"
)

// DescriptorVersion is the fixed format marker for boundary schema descriptor
// files. It is deliberately distinct from the boundary-object schema's own
// version: the marker identifies the descriptor format, the schema const
// identifies the record format.
const DescriptorVersion = "boundary_schema_descriptor_v1"

// Descriptor is the indirection document naming a boundary-object schema.
// Multiple named contracts can share one physical schema file while
// independently constraining acceptable versions.
type Descriptor struct {
	SchemaVersion string                    `json:"schema_version"`
	Schema        DescriptorInfo            `json:"schema"`
	Docs          map[string]catalog.DocRef `json:"docs,omitempty"`

	path string
	doc  map[string]any
}

// DescriptorInfo is the metadata block for the schema a descriptor names.
type DescriptorInfo struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	SchemaPath  string   `json:"schema_path"`
}

// LoadDescriptor parses a boundary schema descriptor and verifies its format
// marker.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundary schema descriptor %s: %w", path, err)
	}

	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse boundary schema descriptor %s: %w", path, err)
	}
	// The raw tree is kept alongside the typed view so contract validation
	// sees fields the struct does not model.
	if err := json.Unmarshal(data, &desc.doc); err != nil {
		return nil, fmt.Errorf("failed to parse boundary schema descriptor %s: %w", path, err)
	}
	if desc.SchemaVersion != DescriptorVersion {
		return nil, fmt.Errorf("unsupported boundary schema descriptor version %q in %s, expected %s",
			desc.SchemaVersion, path, DescriptorVersion)
	}
	if desc.Schema.Key == "" {
		return nil, fmt.Errorf("boundary schema descriptor %s missing schema.key", path)
	}
	if desc.Schema.SchemaPath == "" {
		return nil, fmt.Errorf("boundary schema descriptor %s missing schema.schema_path", path)
	}

	desc.path = path
	return &desc, nil
}

// SchemaPath resolves the schema file relative to the descriptor's own
// directory when the recorded path is not absolute.
func (d *Descriptor) SchemaPath() string {
	if filepath.IsAbs(d.Schema.SchemaPath) {
		return d.Schema.SchemaPath
	}
	return filepath.Join(filepath.Dir(d.path), d.Schema.SchemaPath)
}

// ValidateContract checks the descriptor's raw document against the
// descriptor-contract schema at contractPath.
func (d *Descriptor) ValidateContract(contractPath string) error {
	return validateAgainstContract(d.path, d.doc, contractPath)
}

// CompileBoundary loads the descriptor at path and compiles the boundary
// schema it names. A configured ContractPath is enforced against the
// descriptor before the referenced schema is trusted; AllowedVersions
// restricts the record versions the compiled schema may declare.
func CompileBoundary(path string, opts LoadOptions) (*Compiled, error) {
	desc, err := LoadDescriptor(path)
	if err != nil {
		return nil, err
	}
	if opts.ContractPath != "" {
		if err := desc.ValidateContract(opts.ContractPath); err != nil {
			return nil, err
		}
	}
	return Compile(desc.SchemaPath(), LoadOptions{AllowedVersions: opts.AllowedVersions})
}
