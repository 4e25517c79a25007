// Package connector maps run modes to probe invocation plans.
//
// A plan is computed once per (mode, probe) pair and never evolves: it names
// the connector, the sandbox profile, the exact command line, and an optional
// preflight step. Centralizing the mapping keeps mode strings out of the
// commands and keeps new connectors a one-place change.
package connector

import (
	"fmt"
	"os/exec"
	"strings"
)

// RunMode is a named policy profile selecting a connector and its parameters.
type RunMode string

// The supported run modes.
const (
	// ModeBaseline executes the probe directly with no sandboxing.
	ModeBaseline RunMode = "baseline"
	// ModeSandbox wraps the probe with the external sandboxing CLI using a
	// restrictive profile.
	ModeSandbox RunMode = "sandbox"
	// ModeFull executes the probe directly while advertising the permissive
	// profile, so records distinguish it from baseline.
	ModeFull RunMode = "full"
)

// Kind identifies how a probe is spawned.
type Kind int

const (
	// Ambient spawns the probe directly.
	Ambient Kind = iota
	// ExternalCLI spawns the external sandboxing tool with the probe as a
	// trailing argument.
	ExternalCLI
)

func (k Kind) String() string {
	if k == ExternalCLI {
		return "external-cli"
	}
	return "ambient"
}

// Sandbox profile defaults. Each is independently overridable via Options.
const (
	DefaultRestrictedProfile = "workspace-write"
	DefaultFullProfile       = "danger-full-access"
)

// DefaultCLI is the external sandboxing tool invoked for ModeSandbox when no
// override is configured.
const DefaultCLI = "sandboxctl"

// sandboxUnavailableExitCode is the external tool's exit status when the host
// refuses to apply a sandbox policy at all (as opposed to the policy denying
// an operation).
const sandboxUnavailableExitCode = 71

// ParseMode parses a requested mode string.
func ParseMode(raw string) (RunMode, error) {
	switch RunMode(raw) {
	case ModeBaseline, ModeSandbox, ModeFull:
		return RunMode(raw), nil
	}
	return "", fmt.Errorf("unknown mode %q (expected one of %s)", raw, strings.Join(AllowedModeNames(), ", "))
}

// ParseModes parses a list of mode names, rejecting the whole list on the
// first unknown entry.
func ParseModes(names []string) ([]RunMode, error) {
	modes := make([]RunMode, 0, len(names))
	for _, name := range names {
		mode, err := ParseMode(name)
		if err != nil {
			return nil, err
		}
		modes = append(modes, mode)
	}
	return modes, nil
}

// AllowedModeNames lists every recognized mode name in planning order.
func AllowedModeNames() []string {
	return []string{string(ModeBaseline), string(ModeFull), string(ModeSandbox)}
}

// Connector returns the fixed connector for the mode. The mapping is total:
// every mode has exactly one connector and never changes it at runtime.
func (m RunMode) Connector() Kind {
	if m == ModeSandbox {
		return ExternalCLI
	}
	return Ambient
}

// External reports whether the mode runs through the external CLI.
func (m RunMode) External() bool { return m.Connector() == ExternalCLI }

func (m RunMode) String() string { return string(m) }

// Options carries the explicit overrides threaded into planning. They are
// resolved once per invocation by the command layer; the planner itself holds
// no ambient state.
type Options struct {
	// CLI is the external sandboxing command, split into argv form. Empty
	// means DefaultCLI with no leading arguments.
	CLI []string

	// RestrictedProfile overrides the ModeSandbox profile.
	RestrictedProfile string
	// FullProfile overrides the ModeFull profile.
	FullProfile string

	// LookPath locates the external tool; defaults to exec.LookPath. Tests
	// substitute it to simulate hosts without the tool installed.
	LookPath func(name string) (string, error)
}

func (o Options) cli() []string {
	if len(o.CLI) == 0 {
		return []string{DefaultCLI}
	}
	return o.CLI
}

func (o Options) lookPath(name string) (string, error) {
	if o.LookPath != nil {
		return o.LookPath(name)
	}
	return exec.LookPath(name)
}

// CommandSpec is a fully resolved command line.
type CommandSpec struct {
	Program string
	Args    []string
}

// String renders the command for embedding in boundary records.
func (c CommandSpec) String() string {
	if len(c.Args) == 0 {
		return c.Program
	}
	return c.Program + " " + strings.Join(c.Args, " ")
}

// PreflightPlan describes the trial operation to run before trusting an
// external connector for the real probe.
type PreflightPlan struct {
	// PlatformTarget is the sandbox platform argument for the trial run.
	PlatformTarget string
}

// Plan is the complete invocation recipe for one (mode, probe) pair.
type Plan struct {
	Mode           RunMode
	Connector      Kind
	SandboxProfile string
	Command        CommandSpec
	Preflight      *PreflightPlan
}

// PlanForMode computes the invocation plan for a requested mode.
//
// The plan is a pure function of (mode, platform, probe path, options); it has
// no side effects beyond the LookPath probe and is safe to compute
// speculatively. Unsupported modes and platforms and a missing external tool
// all fail here, before anything is executed.
func PlanForMode(requested, platform, probePath string, opts Options) (*Plan, error) {
	mode, err := ParseMode(requested)
	if err != nil {
		return nil, err
	}

	cli := opts.cli()
	if mode.External() {
		if _, err := opts.lookPath(cli[0]); err != nil {
			return nil, fmt.Errorf("external sandbox CLI %q not found; install it or run mode %s instead: %w",
				cli[0], ModeBaseline, err)
		}
	}

	profile := ProfileForMode(mode, opts)

	plan := &Plan{
		Mode:           mode,
		Connector:      mode.Connector(),
		SandboxProfile: profile,
	}

	switch mode.Connector() {
	case Ambient:
		plan.Command = CommandSpec{Program: probePath}
	case ExternalCLI:
		target, err := PlatformTarget(platform)
		if err != nil {
			return nil, err
		}
		args := append([]string{}, cli[1:]...)
		args = append(args, "sandbox", target, "--full-auto", "--", probePath)
		plan.Command = CommandSpec{Program: cli[0], Args: args}
		plan.Preflight = &PreflightPlan{PlatformTarget: target}
	}

	return plan, nil
}

// PreflightCommand builds the scratch-directory trial invocation matching the
// plan's connector wrapping.
func (p *Plan) PreflightCommand(opts Options, targetDir string) CommandSpec {
	cli := opts.cli()
	args := append([]string{}, cli[1:]...)
	args = append(args, "sandbox", p.Preflight.PlatformTarget, "--full-auto", "--", "/bin/mkdir", targetDir)
	return CommandSpec{Program: cli[0], Args: args}
}

// ProfileForMode resolves the sandbox profile a mode advertises: empty for
// baseline, the restricted or full profile otherwise, honoring overrides.
func ProfileForMode(mode RunMode, opts Options) string {
	switch mode {
	case ModeSandbox:
		if opts.RestrictedProfile != "" {
			return opts.RestrictedProfile
		}
		return DefaultRestrictedProfile
	case ModeFull:
		if opts.FullProfile != "" {
			return opts.FullProfile
		}
		return DefaultFullProfile
	}
	return ""
}

// PlatformTarget maps a host OS name to the external tool's sandbox platform
// argument. Only two platforms are recognized; anything else fails early
// rather than guessing.
func PlatformTarget(platform string) (string, error) {
	switch platform {
	case "darwin", "Darwin":
		return "macos", nil
	case "linux", "Linux":
		return "linux", nil
	}
	return "", fmt.Errorf("unsupported platform %q for external sandbox mode", platform)
}

// DefaultModes returns the modes a matrix run covers when none are requested:
// the ambient modes always, ModeSandbox only when the external tool is
// discoverable.
func DefaultModes(opts Options) []RunMode {
	modes := []RunMode{ModeBaseline, ModeFull}
	if _, err := opts.lookPath(opts.cli()[0]); err == nil {
		modes = append(modes, ModeSandbox)
	}
	return modes
}

// SandboxUnavailable reports whether a failed external invocation looks like
// the host refusing to apply sandbox policy at all, which matrix runs treat
// as a skip rather than a failure.
//
// The signature is tied to the current external tool's behavior (a specific
// exit code, or a policy-application marker on stderr); keeping it behind one
// predicate lets it be swapped without touching the orchestrator.
func SandboxUnavailable(exitCode int, stderr string) bool {
	return exitCode == sandboxUnavailableExitCode || strings.Contains(stderr, "sandbox_apply")
}
