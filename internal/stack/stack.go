// Package stack collects descriptive host and sandbox metadata for stamping
// into boundary objects. The fields are informational only; nothing in the
// harness branches on them.
package stack

import (
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/fenceline-dev/fenceline/internal/connector"
)

// Options adjusts detection. The zero value detects the local host with the
// default sandbox CLI.
type Options struct {
	// CLI is the external sandboxing command in argv form; empty means the
	// connector default.
	CLI []string

	// Version runs the external tool's version query; defaults to invoking
	// `<program> --version`. Tests substitute it.
	Version func(program string) (string, error)
}

func (o Options) cli() []string {
	if len(o.CLI) == 0 {
		return []string{connector.DefaultCLI}
	}
	return o.CLI
}

func (o Options) version(program string) (string, error) {
	if o.Version != nil {
		return o.Version(program)
	}
	out, err := exec.Command(program, "--version").Output()
	return string(out), err
}

// Detect builds the stack metadata map for a run mode. Failures to query the
// external tool are not errors; the corresponding fields are simply absent.
func Detect(mode connector.RunMode, profile string, opts Options) map[string]string {
	info := map[string]string{
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
		"mode":      mode.String(),
		"connector": mode.Connector().String(),
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		info["hostname"] = hostname
	}
	if profile != "" {
		info["sandbox_profile"] = profile
	}
	if mode.External() {
		program := opts.cli()[0]
		info["sandbox_cli"] = program
		if out, err := opts.version(program); err == nil {
			if line := firstLine(out); line != "" {
				info["sandbox_cli_version"] = line
			}
		}
	}
	return info
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
