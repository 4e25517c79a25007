package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fenceline-dev/fenceline/internal/connector"
	"github.com/fenceline-dev/fenceline/internal/matrix"
	"github.com/fenceline-dev/fenceline/internal/probe"
)

var (
	matrixModes      []string
	matrixProbe      string
	matrixCapability string
	matrixFilter     string
	matrixWorkspace  string
	matrixTmpDir     string
)

// matrixCmd executes the full probe x mode matrix and streams one boundary
// object per line to stdout.
var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Run every probe under every run mode",
	Long: `Execute each selected probe once per run mode, printing one compact
boundary object per line to stdout. Diagnostics go to stderr. A host where
the external sandbox tool cannot apply policy skips the sandbox pairs; any
other pair failure is collected and the run exits non-zero after all pairs
have been attempted.

Selection:
  --probe fs_read               Run a single probe
  --capability net.egress       Run probes whose primary capability matches
  --filter "primary startsWith 'fs.'"  Advanced probe filter expression
  --modes baseline,sandbox      Explicit mode list`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMatrix(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(matrixCmd)

	matrixCmd.Flags().StringSliceVar(&matrixModes, "modes", nil, "Run modes to cover (default: baseline and full, plus sandbox when the external CLI is installed)")
	matrixCmd.Flags().StringVar(&matrixProbe, "probe", "", "Run only this probe")
	matrixCmd.Flags().StringVar(&matrixCapability, "capability", "", "Run only probes whose primary capability matches")
	matrixCmd.Flags().StringVar(&matrixFilter, "filter", "", "Probe filter expression over id, version, primary, secondary")
	matrixCmd.Flags().StringVar(&matrixWorkspace, "workspace", "", "Workspace root passed through to each pair")
	matrixCmd.Flags().StringVar(&matrixTmpDir, "tmpdir", "", "Scratch directory passed through to each pair")
}

func runMatrix(ctx context.Context) error {
	opts, err := connectorOptions()
	if err != nil {
		return err
	}

	modes, err := resolveModes(opts)
	if err != nil {
		return err
	}

	probes, err := selectProbes(probesDir(), matrixProbe, matrixCapability, matrixFilter)
	if err != nil {
		return err
	}
	slog.Info("matrix run starting", "probes", len(probes), "modes", len(modes))

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own executable: %w", err)
	}

	orchestrator := &matrix.Orchestrator{
		Modes:   modes,
		Probes:  probes,
		Out:     os.Stdout,
		Logger:  slog.Default(),
		Execute: pairExecutor(exe),
	}
	return orchestrator.Run(ctx)
}

// pairExecutor spawns `fenceline exec MODE PROBE` for each pair so every
// probe gets its own process with an isolated stdout and exit code.
func pairExecutor(exe string) matrix.Executor {
	return func(ctx context.Context, mode connector.RunMode, p probe.Probe) (matrix.PairResult, error) {
		args := []string{"exec", mode.String(), p.ID}
		if matrixWorkspace != "" {
			args = append(args, "--workspace", matrixWorkspace)
		}
		if matrixTmpDir != "" {
			args = append(args, "--tmpdir", matrixTmpDir)
		}
		if cfgFile != "" {
			args = append(args, "--config", cfgFile)
		}
		if verbose {
			args = append(args, "--verbose")
		}

		cmd := exec.CommandContext(ctx, exe, args...)
		cmd.Env = os.Environ()
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return matrix.PairResult{}, err
			}
			return matrix.PairResult{
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				ExitCode: exitErr.ExitCode(),
			}, nil
		}
		return matrix.PairResult{Stdout: stdout.String(), Stderr: stderr.String()}, nil
	}
}

// resolveModes takes the explicit mode list from flag or config, falling back
// to the defaults gated on external CLI availability.
func resolveModes(opts connector.Options) ([]connector.RunMode, error) {
	names := matrixModes
	if len(names) == 0 {
		names = viper.GetStringSlice("modes")
	}
	if len(names) == 0 {
		return connector.DefaultModes(opts), nil
	}
	return connector.ParseModes(names)
}

// selectProbes applies the single-probe, capability, and expression filters.
func selectProbes(dir, probeID, capabilityID, filter string) ([]probe.Probe, error) {
	if probeID != "" {
		p, err := probe.Resolve(dir, probeID)
		if err != nil {
			return nil, err
		}
		return []probe.Probe{p}, nil
	}

	probes, err := probe.List(dir)
	if err != nil {
		return nil, err
	}
	if capabilityID == "" && filter == "" {
		return probes, nil
	}

	var program *vm.Program
	if filter != "" {
		program, err = expr.Compile(filter, expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("invalid --filter expression: %w", err)
		}
	}

	var selected []probe.Probe
	for _, p := range probes {
		meta, err := probe.ParseMetadata(p)
		if err != nil {
			return nil, err
		}
		if capabilityID != "" && meta.PrimaryCapabilityID != capabilityID {
			continue
		}
		if program != nil {
			env := map[string]any{
				"id":        meta.Name,
				"version":   meta.Version,
				"primary":   meta.PrimaryCapabilityID,
				"secondary": meta.SecondaryCapabilityIDs,
			}
			keep, err := expr.Run(program, env)
			if err != nil {
				return nil, fmt.Errorf("--filter evaluation failed for probe %s: %w", meta.Name, err)
			}
			if keep != true {
				continue
			}
		}
		selected = append(selected, p)
	}

	if capabilityID != "" && len(selected) == 0 {
		return nil, fmt.Errorf("capability %q has no probes", capabilityID)
	}
	return selected, nil
}
