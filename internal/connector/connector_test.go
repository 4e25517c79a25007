package connector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cliPresent(name string) (string, error) { return "/usr/local/bin/" + name, nil }
func cliMissing(string) (string, error)      { return "", errors.New("not found") }

func TestParseMode(t *testing.T) {
	for _, name := range AllowedModeNames() {
		mode, err := ParseMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, mode.String())
	}

	_, err := ParseMode("turbo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestParseModes_RejectsUnknownEntry(t *testing.T) {
	_, err := ParseModes([]string{"baseline", "bogus"})
	require.Error(t, err)

	modes, err := ParseModes([]string{"baseline", "full"})
	require.NoError(t, err)
	assert.Equal(t, []RunMode{ModeBaseline, ModeFull}, modes)
}

func TestConnectorMappingIsFixed(t *testing.T) {
	assert.Equal(t, Ambient, ModeBaseline.Connector())
	assert.Equal(t, Ambient, ModeFull.Connector())
	assert.Equal(t, ExternalCLI, ModeSandbox.Connector())
	assert.True(t, ModeSandbox.External())
	assert.False(t, ModeFull.External())
}

func TestPlanForMode_Baseline(t *testing.T) {
	plan, err := PlanForMode("baseline", "linux", "/probes/fs_read.sh", Options{LookPath: cliMissing})
	require.NoError(t, err)

	assert.Equal(t, ModeBaseline, plan.Mode)
	assert.Equal(t, Ambient, plan.Connector)
	assert.Empty(t, plan.SandboxProfile)
	assert.Nil(t, plan.Preflight)
	assert.Equal(t, "/probes/fs_read.sh", plan.Command.Program)
	assert.Empty(t, plan.Command.Args)
}

func TestPlanForMode_Sandbox(t *testing.T) {
	plan, err := PlanForMode("sandbox", "darwin", "/probes/fs_read.sh", Options{LookPath: cliPresent})
	require.NoError(t, err)

	assert.Equal(t, ExternalCLI, plan.Connector)
	assert.Equal(t, DefaultRestrictedProfile, plan.SandboxProfile)
	require.NotNil(t, plan.Preflight)
	assert.Equal(t, "macos", plan.Preflight.PlatformTarget)

	assert.Equal(t, DefaultCLI, plan.Command.Program)
	assert.Equal(t, []string{"sandbox", "macos", "--full-auto", "--", "/probes/fs_read.sh"}, plan.Command.Args)
}

func TestPlanForMode_FullRunsDirect(t *testing.T) {
	plan, err := PlanForMode("full", "linux", "/probes/net_egress.sh", Options{LookPath: cliMissing})
	require.NoError(t, err)

	assert.Equal(t, Ambient, plan.Connector)
	assert.Equal(t, DefaultFullProfile, plan.SandboxProfile)
	assert.Nil(t, plan.Preflight)
	assert.Equal(t, "/probes/net_egress.sh", plan.Command.String())
}

func TestPlanForMode_ProfileOverrides(t *testing.T) {
	plan, err := PlanForMode("sandbox", "linux", "/p.sh", Options{
		LookPath:          cliPresent,
		RestrictedProfile: "custom-restricted",
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-restricted", plan.SandboxProfile)

	plan, err = PlanForMode("full", "linux", "/p.sh", Options{FullProfile: "custom-full"})
	require.NoError(t, err)
	assert.Equal(t, "custom-full", plan.SandboxProfile)
}

func TestPlanForMode_MissingExternalCLI(t *testing.T) {
	_, err := PlanForMode("sandbox", "linux", "/p.sh", Options{LookPath: cliMissing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), DefaultCLI)
	assert.Contains(t, err.Error(), "baseline")
}

func TestPlanForMode_UnsupportedPlatform(t *testing.T) {
	_, err := PlanForMode("sandbox", "plan9", "/p.sh", Options{LookPath: cliPresent})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported platform")
}

func TestPlanForMode_CustomCLI(t *testing.T) {
	plan, err := PlanForMode("sandbox", "linux", "/p.sh", Options{
		CLI:      []string{"mytool", "--quiet"},
		LookPath: cliPresent,
	})
	require.NoError(t, err)
	assert.Equal(t, "mytool", plan.Command.Program)
	assert.Equal(t, []string{"--quiet", "sandbox", "linux", "--full-auto", "--", "/p.sh"}, plan.Command.Args)
}

func TestPreflightCommand(t *testing.T) {
	plan, err := PlanForMode("sandbox", "linux", "/p.sh", Options{LookPath: cliPresent})
	require.NoError(t, err)

	spec := plan.PreflightCommand(Options{}, "/tmp/ws/probe-preflight-x")
	assert.Equal(t, DefaultCLI, spec.Program)
	assert.Equal(t, []string{"sandbox", "linux", "--full-auto", "--", "/bin/mkdir", "/tmp/ws/probe-preflight-x"}, spec.Args)
}

func TestDefaultModes(t *testing.T) {
	assert.Equal(t, []RunMode{ModeBaseline, ModeFull}, DefaultModes(Options{LookPath: cliMissing}))
	assert.Equal(t, []RunMode{ModeBaseline, ModeFull, ModeSandbox}, DefaultModes(Options{LookPath: cliPresent}))
}

func TestSandboxUnavailable(t *testing.T) {
	assert.True(t, SandboxUnavailable(71, ""))
	assert.True(t, SandboxUnavailable(1, "error: sandbox_apply rejected"))
	assert.False(t, SandboxUnavailable(1, "permission denied"))
	assert.False(t, SandboxUnavailable(0, ""))
}
