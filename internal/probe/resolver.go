// Package probe resolves and describes the executable probe scripts the
// harness runs.
//
// Resolution is a security boundary: a probe is only ever executed from its
// canonical location inside the trusted probes directory. Absolute paths
// outside the tree and symlinks whose targets escape it are both rejected
// with the same error class, so callers cannot distinguish (and cannot probe)
// the filesystem outside the tree through the resolver.
package probe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// ErrNotFound covers every resolution failure an untrusted identifier can
// trigger: missing file, non-regular file, missing execute bit, or a path
// escaping the probes directory.
var ErrNotFound = errors.New("probe not found or not executable")

// Probe is an executable script identified by its file name minus extension.
type Probe struct {
	ID   string
	Path string
}

// Resolve maps a probe identifier (bare name or name with extension) to a
// containment-verified executable.
//
// The returned path is canonical: symlinks are resolved and the result is
// verified to live inside the canonical probes directory before anything is
// trusted. The ID is derived from the canonical file as well, so resolving an
// in-tree symlink alias yields the target's ID, never the alias name; records
// always identify the script that actually ran, and its declared probe_name
// still has exactly one valid value.
func Resolve(probesDir, identifier string) (Probe, error) {
	if strings.TrimSpace(identifier) == "" {
		return Probe{}, fmt.Errorf("empty probe identifier: %w", ErrNotFound)
	}

	canonicalDir, err := filepath.EvalSymlinks(probesDir)
	if err != nil {
		return Probe{}, fmt.Errorf("probes directory %s: %w", probesDir, err)
	}

	candidates := []string{identifier}
	if filepath.Ext(identifier) == "" {
		candidates = append(candidates, identifier+".sh")
	}

	for _, candidate := range candidates {
		// SecureJoin scopes symlink resolution to the probes directory, so
		// even a hostile identifier cannot name anything outside it.
		joined, err := securejoin.SecureJoin(canonicalDir, candidate)
		if err != nil {
			continue
		}
		resolved, err := filepath.EvalSymlinks(joined)
		if err != nil {
			continue
		}
		if !within(canonicalDir, resolved) {
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.Mode().IsRegular() || !executable(info) {
			continue
		}
		return Probe{ID: idFromPath(resolved), Path: resolved}, nil
	}

	return Probe{}, fmt.Errorf("probe %q: %w", identifier, ErrNotFound)
}

// List enumerates the probes directory non-recursively, returning executable
// regular files sorted by id for reproducible iteration.
func List(probesDir string) ([]Probe, error) {
	canonicalDir, err := filepath.EvalSymlinks(probesDir)
	if err != nil {
		return nil, fmt.Errorf("probes directory %s: %w", probesDir, err)
	}

	entries, err := os.ReadDir(canonicalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list probes directory %s: %w", canonicalDir, err)
	}

	var probes []Probe
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		resolved, err := filepath.EvalSymlinks(filepath.Join(canonicalDir, entry.Name()))
		if err != nil || !within(canonicalDir, resolved) {
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.Mode().IsRegular() || !executable(info) {
			continue
		}
		probes = append(probes, Probe{ID: idFromPath(filepath.Join(canonicalDir, entry.Name())), Path: resolved})
	}

	sort.Slice(probes, func(i, j int) bool { return probes[i].ID < probes[j].ID })
	return probes, nil
}

func idFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func executable(info fs.FileInfo) bool {
	return info.Mode().Perm()&0o111 != 0
}
