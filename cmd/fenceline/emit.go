package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fenceline-dev/fenceline/internal/boundary"
	"github.com/fenceline-dev/fenceline/internal/connector"
	"github.com/fenceline-dev/fenceline/internal/stack"
)

var emitFlags struct {
	mode         string
	probeID      string
	probeVersion string
	primary      string
	secondary    []string

	category string
	verb     string
	target   string
	argsJSON string

	status      string
	errno       string
	message     string
	errorDetail string
	exitCode    int
	durationMS  int64

	stdoutSnippet string
	stderrSnippet string
	payloadFile   string

	runID         string
	workspaceRoot string
	command       string
}

// emitCmd builds one validated boundary object from structured flags and
// prints it to stdout. Probe scripts call it through $FENCELINE_BIN; most
// identity flags default from the environment the exec command exports.
var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Emit one validated boundary object",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEmit(cmd)
	},
}

func init() {
	rootCmd.AddCommand(emitCmd)

	flags := emitCmd.Flags()
	flags.StringVar(&emitFlags.mode, "mode", envOr("FENCELINE_MODE", ""), "Run mode the observation was made under")
	flags.StringVar(&emitFlags.probeID, "probe", envOr("FENCELINE_PROBE_ID", ""), "Probe id")
	flags.StringVar(&emitFlags.probeVersion, "probe-version", envOr("FENCELINE_PROBE_VERSION", ""), "Probe version")
	flags.StringVar(&emitFlags.primary, "primary-capability", envOr("FENCELINE_PRIMARY_CAPABILITY", ""), "Primary capability id")
	flags.StringSliceVar(&emitFlags.secondary, "secondary-capability", splitList(os.Getenv("FENCELINE_SECONDARY_CAPABILITIES")), "Secondary capability ids")

	flags.StringVar(&emitFlags.category, "category", "", "Operation category")
	flags.StringVar(&emitFlags.verb, "verb", "", "Operation verb")
	flags.StringVar(&emitFlags.target, "target", "", "Operation target")
	flags.StringVar(&emitFlags.argsJSON, "args", "", "Free-form operation args as a JSON object of strings")

	flags.StringVar(&emitFlags.status, "status", "", "Observed result: success, denied, partial, or error")
	flags.StringVar(&emitFlags.errno, "errno", "", "Symbolic errno, when known")
	flags.StringVar(&emitFlags.message, "message", "", "Short failure message")
	flags.StringVar(&emitFlags.errorDetail, "error-detail", "", "Extended error detail")
	flags.IntVar(&emitFlags.exitCode, "exit-code", 0, "Raw exit code of the observed operation")
	flags.Int64Var(&emitFlags.durationMS, "duration-ms", 0, "Operation duration in milliseconds")

	flags.StringVar(&emitFlags.stdoutSnippet, "stdout", "", "Captured stdout snippet")
	flags.StringVar(&emitFlags.stderrSnippet, "stderr", "", "Captured stderr snippet")
	flags.StringVar(&emitFlags.payloadFile, "payload-file", "", "File whose contents become the payload detail")

	flags.StringVar(&emitFlags.runID, "run-id", "", "Run id (default: generated)")
	flags.StringVar(&emitFlags.workspaceRoot, "workspace", envOr("FENCELINE_WORKSPACE_ROOT", ""), "Workspace root the observation was made in")
	flags.StringVar(&emitFlags.command, "command", envOr("FENCELINE_COMMAND", ""), "Command string that produced the observation")
}

func runEmit(cmd *cobra.Command) error {
	index, err := loadIndex()
	if err != nil {
		return err
	}
	builder, err := loadBuilder(index)
	if err != nil {
		return err
	}

	mode, err := connector.ParseMode(emitFlags.mode)
	if err != nil {
		return err
	}
	status, err := boundary.ParseStatus(emitFlags.status)
	if err != nil {
		return err
	}

	var opArgs map[string]string
	if emitFlags.argsJSON != "" {
		if err := json.Unmarshal([]byte(emitFlags.argsJSON), &opArgs); err != nil {
			return fmt.Errorf("failed to parse --args: %w", err)
		}
	}

	payload, err := emitPayload()
	if err != nil {
		return err
	}

	result := boundary.Result{
		ObservedResult: status,
		Errno:          emitFlags.errno,
		Message:        emitFlags.message,
		ErrorDetail:    emitFlags.errorDetail,
	}
	if cmd.Flags().Changed("exit-code") {
		result.RawExitCode = &emitFlags.exitCode
	}
	if cmd.Flags().Changed("duration-ms") {
		result.DurationMS = &emitFlags.durationMS
	}

	opts, err := connectorOptions()
	if err != nil {
		return err
	}

	obj, err := builder.Build(boundary.Input{
		Stack: stack.Detect(mode, envOr("FENCELINE_PROFILE", connector.ProfileForMode(mode, opts)), stack.Options{CLI: opts.CLI}),
		Probe: boundary.ProbeInfo{
			ID:                     emitFlags.probeID,
			Version:                emitFlags.probeVersion,
			PrimaryCapabilityID:    emitFlags.primary,
			SecondaryCapabilityIDs: emitFlags.secondary,
		},
		Run: boundary.RunInfo{
			ID:            emitFlags.runID,
			Mode:          mode.String(),
			WorkspaceRoot: emitFlags.workspaceRoot,
			Command:       emitFlags.command,
		},
		Operation: boundary.Operation{
			Category: emitFlags.category,
			Verb:     emitFlags.verb,
			Target:   emitFlags.target,
			Args:     opArgs,
		},
		Result:  result,
		Payload: payload,
	})
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

func emitPayload() (*boundary.Payload, error) {
	payload := boundary.Payload{
		Stdout: emitFlags.stdoutSnippet,
		Stderr: emitFlags.stderrSnippet,
	}
	if emitFlags.payloadFile != "" {
		data, err := os.ReadFile(emitFlags.payloadFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		payload.Detail = strings.TrimSpace(string(data))
	}
	if payload == (boundary.Payload{}) {
		return nil, nil
	}
	return &payload, nil
}
