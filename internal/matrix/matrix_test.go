package matrix

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenceline-dev/fenceline/internal/connector"
	"github.com/fenceline-dev/fenceline/internal/probe"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_StreamsOneCompactLinePerPair(t *testing.T) {
	var out strings.Builder
	o := &Orchestrator{
		Modes:  []connector.RunMode{connector.ModeBaseline, connector.ModeFull},
		Probes: []probe.Probe{{ID: "fs_read"}, {ID: "net_egress"}},
		Execute: func(_ context.Context, mode connector.RunMode, p probe.Probe) (PairResult, error) {
			return PairResult{Stdout: fmt.Sprintf("{\n  \"probe\": %q,\n  \"mode\": %q\n}\n", p.ID, mode)}, nil
		},
		Out:    &out,
		Logger: quietLogger(),
	}

	require.NoError(t, o.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	// Fixed order: modes outer, probes inner.
	assert.Equal(t, `{"probe":"fs_read","mode":"baseline"}`, lines[0])
	assert.Equal(t, `{"probe":"net_egress","mode":"baseline"}`, lines[1])
	assert.Equal(t, `{"probe":"fs_read","mode":"full"}`, lines[2])
	assert.Equal(t, `{"probe":"net_egress","mode":"full"}`, lines[3])
}

func TestRun_MalformedOutputFailsPairButPrintsTheRest(t *testing.T) {
	var out strings.Builder
	o := &Orchestrator{
		Modes:  []connector.RunMode{connector.ModeBaseline},
		Probes: []probe.Probe{{ID: "good"}, {ID: "malformed"}},
		Execute: func(_ context.Context, _ connector.RunMode, p probe.Probe) (PairResult, error) {
			if p.ID == "malformed" {
				return PairResult{Stdout: "definitely not json"}, nil
			}
			return PairResult{Stdout: `{"probe":"good"}`}, nil
		},
		Out:    &out,
		Logger: quietLogger(),
	}

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
	assert.Contains(t, err.Error(), "1 pair(s)")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, `{"probe":"good"}`, lines[0])
}

func TestRun_NonZeroExitIsAggregated(t *testing.T) {
	var out strings.Builder
	o := &Orchestrator{
		Modes:  []connector.RunMode{connector.ModeBaseline, connector.ModeFull},
		Probes: []probe.Probe{{ID: "boom"}},
		Execute: func(_ context.Context, _ connector.RunMode, _ probe.Probe) (PairResult, error) {
			return PairResult{ExitCode: 3, Stderr: "probe exploded\nmore detail"}, nil
		},
		Out:    &out,
		Logger: quietLogger(),
	}

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 pair(s)")
	assert.Contains(t, err.Error(), "probe exploded")
	assert.Empty(t, out.String())
}

func TestRun_SandboxUnavailableIsSkipNotFailure(t *testing.T) {
	var out strings.Builder
	o := &Orchestrator{
		Modes:  []connector.RunMode{connector.ModeSandbox},
		Probes: []probe.Probe{{ID: "fs_read"}},
		Execute: func(context.Context, connector.RunMode, probe.Probe) (PairResult, error) {
			return PairResult{ExitCode: 71, Stderr: "sandbox_apply: not supported"}, nil
		},
		Out:    &out,
		Logger: quietLogger(),
	}

	require.NoError(t, o.Run(context.Background()))
	assert.Empty(t, out.String())
}

func TestRun_SandboxSignatureOnlySkipsExternalModes(t *testing.T) {
	var out strings.Builder
	o := &Orchestrator{
		Modes:  []connector.RunMode{connector.ModeBaseline},
		Probes: []probe.Probe{{ID: "fs_read"}},
		Execute: func(context.Context, connector.RunMode, probe.Probe) (PairResult, error) {
			return PairResult{ExitCode: 71, Stderr: ""}, nil
		},
		Out:    &out,
		Logger: quietLogger(),
	}

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 71")
}

func TestRun_SpawnErrorIsFailure(t *testing.T) {
	var out strings.Builder
	o := &Orchestrator{
		Modes:  []connector.RunMode{connector.ModeBaseline},
		Probes: []probe.Probe{{ID: "fs_read"}},
		Execute: func(context.Context, connector.RunMode, probe.Probe) (PairResult, error) {
			return PairResult{}, fmt.Errorf("exec: not found")
		},
		Out:    &out,
		Logger: quietLogger(),
	}

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fs_read")
	assert.Contains(t, err.Error(), "not found")
}

func TestRun_RejectsTrailingJSONValues(t *testing.T) {
	var out strings.Builder
	o := &Orchestrator{
		Modes:  []connector.RunMode{connector.ModeBaseline},
		Probes: []probe.Probe{{ID: "chatty"}},
		Execute: func(context.Context, connector.RunMode, probe.Probe) (PairResult, error) {
			return PairResult{Stdout: `{"a":1}{"b":2}`}, nil
		},
		Out:    &out,
		Logger: quietLogger(),
	}

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one JSON value")
}
