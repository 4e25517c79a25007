package boundary

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fenceline-dev/fenceline/internal/catalog"
	"github.com/fenceline-dev/fenceline/internal/schema"
)

// Builder assembles validated boundary objects. The index supplies capability
// snapshots, and the compiled schema, when present, gates every record before
// it is returned.
type Builder struct {
	Index     *catalog.Index
	Schema    *schema.Compiled
	SchemaKey string
}

// Input is the caller-supplied portion of a record. Everything derivable
// (schema identity, catalog version, capability context, run id) is filled in
// by Build.
type Input struct {
	Stack     map[string]string
	Probe     ProbeInfo
	Run       RunInfo
	Operation Operation
	Result    Result
	Payload   *Payload
}

// Build resolves the capability context, stamps identity fields, and
// validates the finished record against the boundary schema.
func (b *Builder) Build(in Input) (*Object, error) {
	if _, err := ParseStatus(string(in.Result.ObservedResult)); err != nil {
		return nil, err
	}
	if in.Probe.ID == "" {
		return nil, fmt.Errorf("boundary object requires a probe id")
	}
	if in.Operation.Category == "" || in.Operation.Verb == "" {
		return nil, fmt.Errorf("boundary object requires operation category and verb")
	}

	context, err := b.capabilityContext(in.Probe)
	if err != nil {
		return nil, err
	}

	obj := &Object{
		SchemaVersion:             b.recordVersion(),
		SchemaKey:                 b.SchemaKey,
		CapabilitiesSchemaVersion: b.Index.SchemaVersion(),
		Stack:                     in.Stack,
		Probe:                     in.Probe,
		Run:                       in.Run,
		Operation:                 in.Operation,
		Result:                    in.Result,
		Payload:                   in.Payload,
		Context:                   context,
	}
	if obj.Run.ID == "" {
		obj.Run.ID = uuid.NewString()
	}

	if b.Schema != nil {
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to encode boundary object: %w", err)
		}
		if err := b.Schema.ValidateBytes(data); err != nil {
			return nil, fmt.Errorf("boundary object validation failed: %w", err)
		}
	}

	return obj, nil
}

func (b *Builder) recordVersion() string {
	if b.Schema != nil {
		return b.Schema.Version()
	}
	return RecordSchemaVersion
}

// capabilityContext snapshots the primary capability followed by each
// secondary, rejecting any id the catalog does not declare.
func (b *Builder) capabilityContext(info ProbeInfo) ([]catalog.Snapshot, error) {
	ids := append([]string{info.PrimaryCapabilityID}, info.SecondaryCapabilityIDs...)
	seen := make(map[string]struct{}, len(ids))
	context := make([]catalog.Snapshot, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("probe %s references an empty capability id", info.ID)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		capability, ok := b.Index.Capability(id)
		if !ok {
			return nil, fmt.Errorf("probe %s references unknown capability %q", info.ID, id)
		}
		context = append(context, capability.Snapshot())
	}
	return context, nil
}
