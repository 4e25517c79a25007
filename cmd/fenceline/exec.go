package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fenceline-dev/fenceline/internal/boundary"
	"github.com/fenceline-dev/fenceline/internal/connector"
	"github.com/fenceline-dev/fenceline/internal/preflight"
	"github.com/fenceline-dev/fenceline/internal/probe"
	"github.com/fenceline-dev/fenceline/internal/stack"
	"github.com/fenceline-dev/fenceline/internal/workspace"
)

var (
	execWorkspace string
	execTmpDir    string
)

// execCmd runs a single (mode, probe) pair: resolution, planning, preflight,
// then the probe itself. The probe's stdout (one boundary object) passes
// through untouched and its exit code is propagated.
var execCmd = &cobra.Command{
	Use:   "exec MODE PROBE",
	Short: "Execute one probe under one run mode",
	Long: `Resolve a probe, plan its invocation for the requested run mode, run the
connector preflight when one applies, and execute the probe. The probe is
expected to print exactly one boundary object to stdout; a denied preflight
prints a synthetic boundary object instead of running the probe.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExec(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().StringVar(&execWorkspace, "workspace", "", "Workspace root probes characterize (default: current directory)")
	execCmd.Flags().StringVar(&execTmpDir, "tmpdir", "", "Scratch directory for preflight trials (default: probed candidates)")
}

func runExec(cmd *cobra.Command, modeName, probeID string) error {
	index, err := loadIndex()
	if err != nil {
		return err
	}
	builder, err := loadBuilder(index)
	if err != nil {
		return err
	}
	opts, err := connectorOptions()
	if err != nil {
		return err
	}

	p, err := probe.Resolve(probesDir(), probeID)
	if err != nil {
		return err
	}
	meta, err := probe.ParseMetadata(p)
	if err != nil {
		return err
	}

	plan, err := connector.PlanForMode(modeName, runtime.GOOS, p.Path, opts)
	if err != nil {
		return err
	}

	ws, err := workspace.Resolve(workspace.Options{
		RootOverride:   firstNonEmpty(execWorkspace, viper.GetString("workspace.root")),
		TmpDirOverride: firstNonEmpty(execTmpDir, viper.GetString("workspace.tmpdir")),
	})
	if err != nil {
		return err
	}

	probeInfo := boundary.ProbeInfo{
		ID:                     meta.Name,
		Version:                meta.Version,
		PrimaryCapabilityID:    meta.PrimaryCapabilityID,
		SecondaryCapabilityIDs: meta.SecondaryCapabilityIDs,
	}
	stackInfo := stack.Detect(plan.Mode, plan.SandboxProfile, stack.Options{CLI: opts.CLI})

	if denial := preflight.Check(plan, opts, ws, nil); denial != nil {
		slog.Warn("preflight failed, emitting synthetic record",
			"probe", meta.Name, "mode", plan.Mode, "status", denial.Status, "message", denial.Message)
		obj, err := builder.Build(denial.RecordInput(probeInfo, plan.Mode, ws, stackInfo))
		if err != nil {
			return err
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("failed to encode boundary object: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	child := exec.CommandContext(cmd.Context(), plan.Command.Program, plan.Command.Args...)
	child.Env = append(os.Environ(), probeEnv(meta, plan, ws)...)
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()

	slog.Debug("executing probe", "probe", meta.Name, "mode", plan.Mode, "command", plan.Command.String())
	if err := child.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Propagate the child's exit code unchanged.
			os.Exit(exitErr.ExitCode())
		}
		return fmt.Errorf("failed to run probe %s: %w", meta.Name, err)
	}
	return nil
}

// probeEnv exports everything a probe script needs to emit its own boundary
// object through `fenceline emit`.
func probeEnv(meta probe.Metadata, plan *connector.Plan, ws workspace.Workspace) []string {
	env := ws.Env()
	env = append(env,
		"FENCELINE_MODE="+plan.Mode.String(),
		"FENCELINE_COMMAND="+plan.Command.String(),
		"FENCELINE_PROBE_ID="+meta.Name,
		"FENCELINE_PROBE_VERSION="+meta.Version,
		"FENCELINE_PRIMARY_CAPABILITY="+meta.PrimaryCapabilityID,
	)
	if len(meta.SecondaryCapabilityIDs) > 0 {
		env = append(env, "FENCELINE_SECONDARY_CAPABILITIES="+strings.Join(meta.SecondaryCapabilityIDs, ","))
	}
	if plan.SandboxProfile != "" {
		env = append(env, "FENCELINE_PROFILE="+plan.SandboxProfile)
	}
	if exe, err := os.Executable(); err == nil {
		env = append(env, "FENCELINE_BIN="+exe)
	}
	// Resolved configuration travels with the probe so a nested `fenceline
	// emit` sees the same catalog and descriptor regardless of its cwd.
	for _, key := range []string{"catalog.path", "boundary.descriptor", "boundary.contract", "probes.dir"} {
		if value := viper.GetString(key); value != "" {
			if abs, err := filepath.Abs(value); err == nil {
				value = abs
			}
			envKey := "FENCELINE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
			env = append(env, envKey+"="+value)
		}
	}
	return env
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
