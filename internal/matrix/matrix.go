// Package matrix executes every (mode, probe) pair once and streams one
// boundary object per line, aggregating per-pair failures without aborting
// the run.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fenceline-dev/fenceline/internal/connector"
	"github.com/fenceline-dev/fenceline/internal/probe"
)

// PairResult is the outcome of one executed (mode, probe) pair.
type PairResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs a single (mode, probe) pair. A non-nil error means the pair
// could not be spawned at all, as opposed to the child exiting non-zero.
type Executor func(ctx context.Context, mode connector.RunMode, p probe.Probe) (PairResult, error)

// Orchestrator drives a probe set through a mode set.
type Orchestrator struct {
	Modes   []connector.RunMode
	Probes  []probe.Probe
	Execute Executor

	// Out receives the NDJSON record stream. Nothing else is ever written
	// to it.
	Out    io.Writer
	Logger *slog.Logger
}

// Run executes every pair in fixed order: modes outer, probes inner. Pair
// failures are logged immediately and collected; successfully produced
// records are always printed, even when later pairs fail. The returned error
// summarizes every failed pair, or is nil when all pairs succeeded or were
// skipped.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger := o.logger()

	var failures []string
	for _, mode := range o.Modes {
		for _, p := range o.Probes {
			logger.Debug("executing pair", "mode", mode, "probe", p.ID)

			result, err := o.Execute(ctx, mode, p)
			if err != nil {
				failures = append(failures, o.failPair(logger, mode, p, err.Error()))
				continue
			}

			if result.ExitCode != 0 {
				if mode.External() && connector.SandboxUnavailable(result.ExitCode, result.Stderr) {
					logger.Warn("sandbox unavailable on this host, skipping pair",
						"mode", mode, "probe", p.ID, "exit_code", result.ExitCode)
					continue
				}
				failures = append(failures, o.failPair(logger, mode, p,
					fmt.Sprintf("exit code %d: %s", result.ExitCode, firstLine(result.Stderr))))
				continue
			}

			line, err := compactRecord(result.Stdout)
			if err != nil {
				failures = append(failures, o.failPair(logger, mode, p, err.Error()))
				continue
			}
			if _, err := fmt.Fprintln(o.Out, line); err != nil {
				return fmt.Errorf("failed to write record stream: %w", err)
			}
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("matrix run failed for %d pair(s):\n  - %s",
			len(failures), strings.Join(failures, "\n  - "))
	}
	return nil
}

func (o *Orchestrator) failPair(logger *slog.Logger, mode connector.RunMode, p probe.Probe, detail string) string {
	message := fmt.Sprintf("probe %s in mode %s: %s", p.ID, mode, detail)
	logger.Error("pair failed", "mode", mode, "probe", p.ID, "detail", detail)
	return message
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// compactRecord parses stdout as exactly one JSON object and re-encodes it
// compactly for the NDJSON stream. Extra trailing data, a non-object value,
// and malformed JSON are all per-pair failures.
func compactRecord(stdout string) (string, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return "", fmt.Errorf("child produced no output")
	}
	if trimmed[0] != '{' {
		return "", fmt.Errorf("child output is not a JSON object")
	}

	decoder := json.NewDecoder(strings.NewReader(trimmed))
	var raw json.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		return "", fmt.Errorf("child output is not valid JSON: %w", err)
	}
	if decoder.More() {
		return "", fmt.Errorf("child produced more than one JSON value")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("failed to compact record: %w", err)
	}
	return buf.String(), nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
