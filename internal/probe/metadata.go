package probe

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Metadata is the self-description a probe script carries as plain shell
// variable assignments near its top. Keeping the declarations in the script
// itself means the file is the single source of truth for both execution and
// cataloging.
type Metadata struct {
	// Name is the probe's declared name; it must match the file-derived id.
	Name string
	// Version is the declared probe version, validated as semver.
	Version string
	// PrimaryCapabilityID is the capability the probe chiefly characterizes.
	PrimaryCapabilityID string
	// SecondaryCapabilityIDs are additional capabilities the probe touches,
	// deduplicated and sorted.
	SecondaryCapabilityIDs []string
}

var assignmentPattern = regexp.MustCompile(`^\s*(probe_name|probe_version|primary_capability_id|secondary_capability_ids)=["']?([^"'#]*)["']?\s*(#.*)?$`)

// ParseMetadata extracts the declared metadata from a probe script.
//
// Only whole-line variable assignments are recognized; the rest of the script
// is ignored. Missing name, version, or primary capability is an error, as is
// a version that does not parse as semver.
func ParseMetadata(p Probe) (Metadata, error) {
	file, err := os.Open(p.Path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read probe %s: %w", p.Path, err)
	}
	defer file.Close()

	var meta Metadata
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		match := assignmentPattern.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		value := strings.TrimSpace(match[2])
		switch match[1] {
		case "probe_name":
			meta.Name = value
		case "probe_version":
			meta.Version = value
		case "primary_capability_id":
			meta.PrimaryCapabilityID = value
		case "secondary_capability_ids":
			meta.SecondaryCapabilityIDs = splitCapabilityIDs(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return Metadata{}, fmt.Errorf("failed to read probe %s: %w", p.Path, err)
	}

	if meta.Name == "" {
		return Metadata{}, fmt.Errorf("probe %s declares no probe_name", p.Path)
	}
	if meta.Name != p.ID {
		return Metadata{}, fmt.Errorf("probe %s declares probe_name %q, expected %q", p.Path, meta.Name, p.ID)
	}
	if meta.Version == "" {
		return Metadata{}, fmt.Errorf("probe %s declares no probe_version", p.Path)
	}
	if _, err := semver.NewVersion(meta.Version); err != nil {
		return Metadata{}, fmt.Errorf("probe %s declares invalid probe_version %q: %w", p.Path, meta.Version, err)
	}
	if meta.PrimaryCapabilityID == "" {
		return Metadata{}, fmt.Errorf("probe %s declares no primary_capability_id", p.Path)
	}

	return meta, nil
}

// CapabilityIDs returns the primary capability followed by the sorted
// secondaries, without duplicates.
func (m Metadata) CapabilityIDs() []string {
	ids := []string{m.PrimaryCapabilityID}
	for _, id := range m.SecondaryCapabilityIDs {
		if id != m.PrimaryCapabilityID {
			ids = append(ids, id)
		}
	}
	return ids
}

func splitCapabilityIDs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
	seen := make(map[string]struct{}, len(fields))
	var ids []string
	for _, field := range fields {
		id := strings.TrimSpace(field)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
