// Package coverage cross-references catalog capabilities against the probes
// that exercise them, and detects drift between a previously materialized
// coverage map and the live computation.
package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fenceline-dev/fenceline/internal/catalog"
	"github.com/fenceline-dev/fenceline/internal/probe"
)

// Entry records which probes declare a capability as their primary target.
type Entry struct {
	HasProbe bool     `json:"has_probe"`
	ProbeIDs []string `json:"probe_ids"`
}

// Map is the capability-id keyed coverage map. JSON encoding sorts map keys,
// so serialized maps are stable across runs.
type Map map[string]Entry

// Build computes the live coverage map: every capability in the index gets an
// entry, with has_probe true iff at least one probe declares it as primary.
// A probe declaring an unknown primary capability fails the build.
func Build(index *catalog.Index, metas []probe.Metadata) (Map, error) {
	byCapability := make(map[string][]string)
	for _, meta := range metas {
		if _, ok := index.Capability(meta.PrimaryCapabilityID); !ok {
			return nil, fmt.Errorf("probe %s declares unknown primary capability %q", meta.Name, meta.PrimaryCapabilityID)
		}
		byCapability[meta.PrimaryCapabilityID] = append(byCapability[meta.PrimaryCapabilityID], meta.Name)
	}

	coverage := make(Map, len(index.IDs()))
	for _, id := range index.IDs() {
		ids := byCapability[id]
		sort.Strings(ids)
		coverage[id] = Entry{HasProbe: len(ids) > 0, ProbeIDs: ids}
	}
	return coverage, nil
}

// Check compares a recorded coverage map against the live one and returns
// every discrepancy. It never fails fast: operators see the full drift in a
// single run. An empty result means the maps agree.
func Check(live, recorded Map) []string {
	var findings []string

	for _, id := range sortedKeys(recorded) {
		if _, ok := live[id]; !ok {
			findings = append(findings, fmt.Sprintf("recorded map references unknown capability %q", id))
		}
	}

	for _, id := range sortedKeys(live) {
		liveEntry := live[id]
		recordedEntry, ok := recorded[id]
		if !ok {
			findings = append(findings, fmt.Sprintf("capability %q is missing from the recorded map", id))
			continue
		}

		if liveEntry.HasProbe && !recordedEntry.HasProbe {
			findings = append(findings, fmt.Sprintf("capability %q has probes but the recorded map says has_probe=false", id))
		}
		if !liveEntry.HasProbe && recordedEntry.HasProbe {
			findings = append(findings, fmt.Sprintf("capability %q has no probes but the recorded map says has_probe=true", id))
		}

		liveProbes := toSet(liveEntry.ProbeIDs)
		for _, probeID := range recordedEntry.ProbeIDs {
			if !liveProbes[probeID] {
				findings = append(findings, fmt.Sprintf("recorded probe %q for capability %q does not exist or targets a different capability", probeID, id))
			}
		}
		recordedProbes := toSet(recordedEntry.ProbeIDs)
		for _, probeID := range liveEntry.ProbeIDs {
			if !recordedProbes[probeID] {
				findings = append(findings, fmt.Sprintf("probe %q for capability %q is undeclared in the recorded map", probeID, id))
			}
		}
	}

	return findings
}

// LoadMap reads a previously materialized coverage map from disk.
func LoadMap(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read coverage map %s: %w", path, err)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse coverage map %s: %w", path, err)
	}
	return m, nil
}

// DriftError wraps a non-empty finding list into one aggregate error.
func DriftError(findings []string) error {
	if len(findings) == 0 {
		return nil
	}
	return fmt.Errorf("coverage drift detected (%d finding(s)):\n  - %s",
		len(findings), strings.Join(findings, "\n  - "))
}

func sortedKeys(m Map) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
