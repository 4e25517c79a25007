// Package workspace resolves the directories a probe run operates in: the
// workspace root probes inspect and a writable temp directory used for
// preflight scratch work.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is the resolved directory layout for one run.
type Workspace struct {
	// Root is the workspace the probes characterize.
	Root string
	// TmpDir is a verified-writable scratch location inside which preflight
	// trials run. Empty when no writable candidate was found; TmpErr then
	// carries the last failure so a synthetic denial record can name it.
	TmpDir string
	// TmpErr is the last candidate failure when TmpDir is empty.
	TmpErr error
	// TmpCandidate is the last candidate path attempted when TmpDir is
	// empty, so failure records can name the directory that was tried.
	TmpCandidate string
}

// Options are the explicit overrides threaded in from the command layer.
type Options struct {
	// RootOverride pins the workspace root; empty means the current
	// directory.
	RootOverride string
	// TmpDirOverride pins the scratch location; empty means candidate
	// probing.
	TmpDirOverride string
}

// Resolve determines the workspace layout.
//
// The root must exist; temp-directory resolution never fails Resolve itself.
// A run without a writable temp directory still proceeds so the preflight
// checker can record the denial instead of the harness aborting.
func Resolve(opts Options) (Workspace, error) {
	root := opts.RootOverride
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Workspace{}, fmt.Errorf("failed to determine workspace root: %w", err)
		}
		root = cwd
	}
	info, err := os.Stat(root)
	if err != nil {
		return Workspace{}, fmt.Errorf("workspace root %s: %w", root, err)
	}
	if !info.IsDir() {
		return Workspace{}, fmt.Errorf("workspace root %s is not a directory", root)
	}

	ws := Workspace{Root: root}
	ws.TmpDir, ws.TmpCandidate, ws.TmpErr = resolveTmpDir(root, opts.TmpDirOverride)
	return ws, nil
}

// ScratchPath returns a uniquely named, not-yet-created directory path inside
// the temp directory for a preflight trial.
func (w Workspace) ScratchPath() string {
	return filepath.Join(w.TmpDir, "probe-preflight-"+uuid.NewString())
}

// Env returns the environment variables a probe invocation exports so probe
// scripts can locate the resolved directories.
func (w Workspace) Env() []string {
	env := []string{"FENCELINE_WORKSPACE_ROOT=" + w.Root}
	if w.TmpDir != "" {
		env = append(env, "FENCELINE_TMPDIR="+w.TmpDir)
	}
	return env
}

// resolveTmpDir returns the first writable candidate, keeping the last
// attempted path and its failure for the caller's fallback record.
func resolveTmpDir(root, override string) (string, string, error) {
	candidates := []string{override}
	if override == "" {
		candidates = []string{os.TempDir(), filepath.Join(root, ".fenceline-tmp")}
	}

	var lastCandidate string
	var lastErr error
	for _, candidate := range candidates {
		if err := verifyWritable(candidate); err != nil {
			lastCandidate = candidate
			lastErr = err
			continue
		}
		return candidate, "", nil
	}
	return "", lastCandidate, lastErr
}

// verifyWritable performs a trial mkdir+rmdir inside the candidate,
// creating the candidate itself first if needed.
func verifyWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("temp directory candidate %s: %w", dir, err)
	}
	trial := filepath.Join(dir, ".fenceline-writable-"+uuid.NewString())
	if err := os.Mkdir(trial, 0o755); err != nil {
		return fmt.Errorf("temp directory candidate %s is not writable: %w", dir, err)
	}
	return os.Remove(trial)
}
