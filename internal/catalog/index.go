package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultSchemaVersion is the single catalog schema version the harness ships
// with. Callers widen the accepted set explicitly via LoadIndex options; the
// default is never relaxed silently.
const DefaultSchemaVersion = "sandbox_catalog_v1"

// Catalog keys and schema versions share the same conservative token format.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Index is a loaded catalog plus a derived lookup keyed by capability id.
// It is immutable after load; concurrent readers need no locking.
type Index struct {
	catalog *Catalog
	byID    map[string]Capability
	ids     []string
}

// IndexOption adjusts how LoadIndex validates a catalog.
type IndexOption func(*indexOptions)

type indexOptions struct {
	allowedVersions []string
}

// WithAllowedVersions widens the accepted schema_version set beyond the
// default. The default version stays accepted.
func WithAllowedVersions(versions ...string) IndexOption {
	return func(o *indexOptions) {
		o.allowedVersions = append(o.allowedVersions, versions...)
	}
}

// LoadIndex loads a catalog from disk and validates it into an Index.
//
// Validation is strict: an unknown schema version, a malformed catalog key,
// an empty or duplicate capability id, or a dangling category/layer/doc
// reference aborts the load. Partial indexes are never returned.
func LoadIndex(path string, opts ...IndexOption) (*Index, error) {
	cat, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewIndex(cat, opts...)
}

// NewIndex validates an already-parsed catalog into an Index.
func NewIndex(cat *Catalog, opts ...IndexOption) (*Index, error) {
	options := indexOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if err := validateSchemaVersion(cat.SchemaVersion, options.allowedVersions); err != nil {
		return nil, err
	}
	if err := validateMetadata(cat.Metadata); err != nil {
		return nil, err
	}

	byID, err := buildIndex(cat)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &Index{catalog: cat, byID: byID, ids: ids}, nil
}

// Key returns the catalog key declared in the loaded document.
func (ix *Index) Key() string { return ix.catalog.Metadata.Key }

// SchemaVersion returns the catalog's declared schema version.
func (ix *Index) SchemaVersion() string { return ix.catalog.SchemaVersion }

// Catalog exposes the underlying document (categories, docs, etc.).
func (ix *Index) Catalog() *Catalog { return ix.catalog }

// Capability resolves a capability by id. The boolean follows map-lookup
// convention; absence is not an error at this layer because callers attach
// the context of whatever referenced the id.
func (ix *Index) Capability(id string) (Capability, bool) {
	cap, ok := ix.byID[id]
	return cap, ok
}

// IDs returns capability ids in lexicographic order so downstream output,
// coverage maps in particular, is stable across runs.
func (ix *Index) IDs() []string {
	out := make([]string, len(ix.ids))
	copy(out, ix.ids)
	return out
}

func validateSchemaVersion(version string, extra []string) error {
	if version == "" {
		return fmt.Errorf("catalog schema_version must not be empty")
	}
	if !tokenPattern.MatchString(version) {
		return fmt.Errorf("catalog schema_version must match %s, got %q", tokenPattern, version)
	}

	allowed := map[string]bool{DefaultSchemaVersion: true}
	for _, v := range extra {
		v = strings.TrimSpace(v)
		if v != "" {
			allowed[v] = true
		}
	}
	if !allowed[version] {
		names := make([]string, 0, len(allowed))
		for v := range allowed {
			names = append(names, v)
		}
		sort.Strings(names)
		return fmt.Errorf("catalog schema_version %q not in allowed set %v", version, names)
	}
	return nil
}

func validateMetadata(meta Metadata) error {
	if meta.Key == "" {
		return fmt.Errorf("catalog.key must not be empty")
	}
	if !tokenPattern.MatchString(meta.Key) {
		return fmt.Errorf("catalog.key must match %s, got %q", tokenPattern, meta.Key)
	}
	if strings.TrimSpace(meta.Title) == "" {
		return fmt.Errorf("catalog.title must not be empty")
	}
	for _, label := range meta.Labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("catalog.labels must not contain empty entries")
		}
	}
	return nil
}

func buildIndex(cat *Catalog) (map[string]Capability, error) {
	if len(cat.Capabilities) == 0 {
		return nil, fmt.Errorf("catalog contains no capabilities")
	}

	layerIDs := make(map[string]bool, len(cat.Scope.PolicyLayers))
	for _, layer := range cat.Scope.PolicyLayers {
		if strings.TrimSpace(layer.ID) == "" {
			return nil, fmt.Errorf("scope.policy_layers must not contain empty ids")
		}
		layerIDs[layer.ID] = true
	}
	if len(layerIDs) == 0 {
		return nil, fmt.Errorf("catalog scope must declare at least one policy layer")
	}
	if len(cat.Scope.Categories) == 0 {
		return nil, fmt.Errorf("catalog scope must declare at least one category")
	}

	byID := make(map[string]Capability, len(cat.Capabilities))
	for _, cap := range cat.Capabilities {
		if strings.TrimSpace(cap.ID) == "" {
			return nil, fmt.Errorf("encountered capability with no id")
		}
		if _, dup := byID[cap.ID]; dup {
			return nil, fmt.Errorf("duplicate capability id %q", cap.ID)
		}
		if _, ok := cat.Scope.Categories[cap.Category.String()]; !ok {
			return nil, fmt.Errorf("capability %s references unknown category %q", cap.ID, cap.Category)
		}
		if !layerIDs[cap.Layer.String()] {
			return nil, fmt.Errorf("capability %s references unknown layer %q", cap.ID, cap.Layer)
		}
		for _, src := range cap.Sources {
			if _, ok := cat.Docs[src.Doc]; !ok {
				return nil, fmt.Errorf("capability %s references unknown doc %q", cap.ID, src.Doc)
			}
		}
		byID[cap.ID] = cap
	}
	return byID, nil
}
