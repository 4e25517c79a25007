// Package preflight runs the trial operation that decides whether an external
// connector can be trusted for a real probe: a mkdir in the workspace scratch
// directory through the same sandbox wrapper.
//
// A passing trial leaves no trace and no record. A failing one is classified
// and turned into a synthetic boundary object, so the matrix still yields one
// record per (probe, mode) when the sandbox blocks writes outright.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/fenceline-dev/fenceline/internal/boundary"
	"github.com/fenceline-dev/fenceline/internal/connector"
	"github.com/fenceline-dev/fenceline/internal/workspace"
)

// Runner executes a preflight command and reports its exit code and captured
// stderr. A non-nil error means the command could not be started at all.
type Runner func(spec connector.CommandSpec, env []string) (exitCode int, stderr string, err error)

// Denial is a classified preflight failure, carrying everything needed to
// synthesize the boundary record that replaces the probe run.
type Denial struct {
	Status      boundary.Status
	Errno       string
	Message     string
	Command     string
	Target      string
	RawExitCode *int
	Stderr      string
}

// Check runs the plan's preflight trial.
//
// It returns nil when the plan carries no preflight or the trial succeeds.
// Failures never return an error: every failure mode, including an
// unusable scratch directory and a wrapper that cannot be spawned, becomes a
// Denial so the caller records it instead of aborting.
func Check(plan *connector.Plan, opts connector.Options, ws workspace.Workspace, run Runner) *Denial {
	if plan.Preflight == nil {
		return nil
	}
	if run == nil {
		run = DefaultRunner
	}

	if ws.TmpDir == "" {
		message := "no writable temp directory candidate"
		if ws.TmpErr != nil {
			message = ws.TmpErr.Error()
		}
		command := "/bin/mkdir -p"
		if ws.TmpCandidate != "" {
			command += " " + ws.TmpCandidate
		}
		status, errno := classify(message)
		return &Denial{
			Status:  status,
			Errno:   errno,
			Message: message,
			Command: command,
			Target:  ws.TmpCandidate,
		}
	}

	scratch := ws.ScratchPath()
	spec := plan.PreflightCommand(opts, scratch)

	exitCode, stderr, err := run(spec, ws.Env())
	if err != nil {
		return &Denial{
			Status:  boundary.StatusError,
			Message: err.Error(),
			Command: spec.String(),
			Target:  scratch,
		}
	}
	if exitCode == 0 {
		os.RemoveAll(scratch)
		return nil
	}

	message := firstLine(stderr)
	if message == "" {
		message = fmt.Sprintf("preflight mkdir failed with exit code %d", exitCode)
	}
	status, errno := classify(stderr)
	return &Denial{
		Status:      status,
		Errno:       errno,
		Message:     message,
		Command:     spec.String(),
		Target:      scratch,
		RawExitCode: &exitCode,
		Stderr:      stderr,
	}
}

// RecordInput assembles the synthetic boundary record for a denied preflight.
// The operation describes the preflight itself, not the probe that never ran.
func (d *Denial) RecordInput(probe boundary.ProbeInfo, mode connector.RunMode, ws workspace.Workspace, stack map[string]string) boundary.Input {
	var payload *boundary.Payload
	if d.Stderr != "" {
		payload = &boundary.Payload{Stderr: d.Stderr}
	}
	return boundary.Input{
		Stack: stack,
		Probe: probe,
		Run: boundary.RunInfo{
			Mode:          mode.String(),
			WorkspaceRoot: ws.Root,
			Command:       d.Command,
		},
		Operation: boundary.Operation{
			Category: "preflight",
			Verb:     "mktemp",
			Target:   d.Target,
		},
		Result: boundary.Result{
			ObservedResult: d.Status,
			Errno:          d.Errno,
			Message:        d.Message,
			RawExitCode:    d.RawExitCode,
		},
		Payload: payload,
	}
}

// classify maps wrapper stderr to an observed result and errno. Unrecognized
// failures are errors, not denials, so broken wrappers stay distinguishable
// from enforced policy.
func classify(stderr string) (boundary.Status, string) {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "operation not permitted") || strings.Contains(stderr, "EPERM"):
		return boundary.StatusDenied, "EPERM"
	case strings.Contains(lower, "permission denied") || strings.Contains(stderr, "EACCES"):
		return boundary.StatusDenied, "EACCES"
	case strings.Contains(lower, "read-only file system") || strings.Contains(stderr, "EROFS"):
		return boundary.StatusDenied, "EROFS"
	}
	return boundary.StatusError, ""
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// DefaultRunner spawns the command with the extra environment appended,
// capturing stderr only.
func DefaultRunner(spec connector.CommandSpec, env []string) (int, string, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Env = append(os.Environ(), env...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return 0, stderr.String(), err
		}
		return exitErr.ExitCode(), stderr.String(), nil
	}
	return 0, stderr.String(), nil
}
