// Package schema resolves, verifies, and compiles JSON Schemas.
//
// Schemas may be loaded directly or through a descriptor document that either
// embeds the schema inline or points at it via a relative schema_path. The
// schema itself is the single source of truth for its version: the loader
// extracts the const declared on the schema_version property and checks it
// against a caller-supplied allow-list.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// versionPointer is the fixed location of a schema's self-declared version.
const versionPointer = "/properties/schema_version/const"

var versionTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// LoadOptions controls descriptor handling and version enforcement.
type LoadOptions struct {
	// ContractPath optionally names a descriptor-contract schema. When set,
	// any descriptor document is validated against it before the referenced
	// schema is trusted; a validation failure is fatal, not a warning.
	ContractPath string

	// AllowedVersions restricts which self-declared schema versions are
	// acceptable. Empty means any well-formed version passes.
	AllowedVersions []string
}

// Compiled is a ready-to-use schema validator. It owns its schema document;
// nothing outlives the value that produced it.
type Compiled struct {
	schema  *jsonschema.Schema
	version string
	source  string
}

// Version returns the schema's self-declared version.
func (c *Compiled) Version() string { return c.version }

// Source returns the path the schema was loaded from, for error context.
func (c *Compiled) Source() string { return c.source }

// Validate checks a decoded JSON document against the schema. The input must
// be the result of json.Unmarshal into interface{} (or an equivalent tree).
func (c *Compiled) Validate(doc any) error {
	if err := c.schema.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return formatValidationError(c.source, verr)
		}
		return fmt.Errorf("document failed validation against %s: %w", c.source, err)
	}
	return nil
}

// ValidateBytes decodes raw JSON and validates it.
func (c *Compiled) ValidateBytes(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode document for validation: %w", err)
	}
	return c.Validate(doc)
}

// Compile loads the schema at path and compiles it into a validator.
//
// If the document carries a top-level "schema" or "schema_path" field it is
// treated as a descriptor: the contract (when configured) is enforced first,
// then the real schema is resolved either inline or from schema_path relative
// to the descriptor's own directory, never the process working directory.
func Compile(path string, opts LoadOptions) (*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", path, err)
	}

	schemaDoc := any(doc)
	_, hasInline := doc["schema"]
	_, hasPath := doc["schema_path"]
	isDescriptor := hasInline || hasPath

	if isDescriptor && opts.ContractPath != "" {
		if err := validateAgainstContract(path, doc, opts.ContractPath); err != nil {
			return nil, err
		}
	}

	if isDescriptor {
		schemaDoc, err = resolveDescriptor(path, doc)
		if err != nil {
			return nil, err
		}
	}

	version, err := extractVersion(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	if len(opts.AllowedVersions) > 0 && !contains(opts.AllowedVersions, version) {
		return nil, fmt.Errorf("schema %s declares version %q, not in allowed set %v",
			path, version, opts.AllowedVersions)
	}

	compiled, err := compileDocument(path, schemaDoc)
	if err != nil {
		return nil, err
	}

	return &Compiled{schema: compiled, version: version, source: path}, nil
}

// resolveDescriptor unwraps a descriptor into the schema document it names.
// schema_path wins over an inline schema when both are present.
func resolveDescriptor(path string, doc map[string]any) (any, error) {
	if raw, ok := doc["schema_path"]; ok {
		rel, ok := raw.(string)
		if !ok || rel == "" {
			return nil, fmt.Errorf("descriptor %s has a non-string or empty schema_path", path)
		}
		resolved := rel
		if !filepath.IsAbs(rel) {
			resolved = filepath.Join(filepath.Dir(path), rel)
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s referenced by %s: %w", resolved, path, err)
		}
		var nested any
		if err := json.Unmarshal(data, &nested); err != nil {
			return nil, fmt.Errorf("failed to parse schema %s referenced by %s: %w", resolved, path, err)
		}
		return nested, nil
	}

	if inline, ok := doc["schema"]; ok {
		return inline, nil
	}
	return nil, fmt.Errorf("descriptor %s missing schema or schema_path", path)
}

func validateAgainstContract(path string, descriptor map[string]any, contractPath string) error {
	data, err := os.ReadFile(contractPath)
	if err != nil {
		return fmt.Errorf("failed to read descriptor contract %s: %w", contractPath, err)
	}
	var contractDoc any
	if err := json.Unmarshal(data, &contractDoc); err != nil {
		return fmt.Errorf("failed to parse descriptor contract %s: %w", contractPath, err)
	}
	contract, err := compileDocument(contractPath, contractDoc)
	if err != nil {
		return err
	}
	if err := contract.Validate(any(descriptor)); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("descriptor %s failed contract validation: %w",
				path, formatValidationError(contractPath, verr))
		}
		return fmt.Errorf("descriptor %s failed contract validation: %w", path, err)
	}
	return nil
}

// compileDocument round-trips the document through JSON bytes so the compiler
// owns an independent copy of the schema.
func compileDocument(name string, doc any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema %s for compilation: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	resource := "schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return compiled, nil
}

// extractVersion reads the schema's self-declared version const.
func extractVersion(doc any) (string, error) {
	value, ok := lookupPointer(doc, versionPointer)
	if !ok {
		return "", fmt.Errorf("missing schema_version const at %s", versionPointer)
	}
	version, ok := value.(string)
	if !ok || version == "" {
		return "", fmt.Errorf("schema_version const at %s must be a non-empty string", versionPointer)
	}
	if !versionTokenPattern.MatchString(version) {
		return "", fmt.Errorf("schema_version const %q must match %s", version, versionTokenPattern)
	}
	return version, nil
}

// lookupPointer walks a decoded JSON tree along an RFC 6901 pointer. Only
// object steps are needed for the fixed version pointer, so array indexing is
// unsupported.
func lookupPointer(doc any, pointer string) (any, bool) {
	current := doc
	for _, step := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		step = strings.ReplaceAll(strings.ReplaceAll(step, "~1", "/"), "~0", "~")
		current, ok = obj[step]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// formatValidationError flattens the nested validation error into one message
// per failing location.
func formatValidationError(source string, err *jsonschema.ValidationError) error {
	var messages []string

	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if e.Message != "" {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)

	if len(messages) == 0 {
		return fmt.Errorf("document failed validation against %s", source)
	}
	return fmt.Errorf("document failed validation against %s:\n  - %s",
		source, strings.Join(messages, "\n  - "))
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
