// Package boundary defines the boundary object, the write-once record
// describing one probe execution under one run mode, and the machinery that
// builds and parses such records.
package boundary

import (
	"fmt"

	"github.com/fenceline-dev/fenceline/internal/catalog"
)

// RecordSchemaVersion is the boundary object format this build emits and
// accepts by default.
const RecordSchemaVersion = "boundary_object_v1"

// Status is the observed outcome of a probe operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusDenied  Status = "denied"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// ParseStatus parses an observed-result string.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusSuccess, StatusDenied, StatusPartial, StatusError:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown observed result %q (expected success, denied, partial, or error)", raw)
}

// Object is one boundary record. Records are emitted once and never mutated;
// the capability context is snapshotted at emission time so the record stays
// self-describing even if the catalog changes later.
type Object struct {
	SchemaVersion             string `json:"schema_version"`
	SchemaKey                 string `json:"schema_key"`
	CapabilitiesSchemaVersion string `json:"capabilities_schema_version"`

	// Stack carries host and sandbox descriptive fields. The core treats it
	// as opaque.
	Stack map[string]string `json:"stack,omitempty"`

	Probe     ProbeInfo          `json:"probe"`
	Run       RunInfo            `json:"run"`
	Operation Operation          `json:"operation"`
	Result    Result             `json:"result"`
	Payload   *Payload           `json:"payload,omitempty"`
	Context   []catalog.Snapshot `json:"capability_context"`
}

// ProbeInfo identifies the probe that produced the record.
type ProbeInfo struct {
	ID                     string   `json:"id"`
	Version                string   `json:"version"`
	PrimaryCapabilityID    string   `json:"primary_capability_id"`
	SecondaryCapabilityIDs []string `json:"secondary_capability_ids,omitempty"`
}

// RunInfo describes the invocation the record was observed under.
type RunInfo struct {
	ID            string `json:"id"`
	Mode          string `json:"mode"`
	WorkspaceRoot string `json:"workspace_root,omitempty"`
	Command       string `json:"command"`
}

// Operation names what the probe attempted.
type Operation struct {
	Category string            `json:"category"`
	Verb     string            `json:"verb"`
	Target   string            `json:"target,omitempty"`
	Args     map[string]string `json:"args,omitempty"`
}

// Result is the observed outcome plus optional failure detail.
type Result struct {
	ObservedResult Status `json:"observed_result"`
	Errno          string `json:"errno,omitempty"`
	Message        string `json:"message,omitempty"`
	RawExitCode    *int   `json:"raw_exit_code,omitempty"`
	ErrorDetail    string `json:"error_detail,omitempty"`
	DurationMS     *int64 `json:"duration_ms,omitempty"`
}

// Payload carries free-form captured output.
type Payload struct {
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
	Detail string `json:"detail,omitempty"`
}
