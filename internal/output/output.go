// Package output provides formatters for recorded boundary objects.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/fenceline-dev/fenceline/internal/boundary"
)

// Formatter renders a set of boundary objects to a writer.
type Formatter interface {
	Format(objects []boundary.Object) error
}

// NewFormatter returns the formatter for a format name: table, json, or
// sarif.
func NewFormatter(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "table":
		return &TableFormatter{writer: w}, nil
	case "json":
		return &JSONFormatter{writer: w}, nil
	case "sarif":
		return &SARIFFormatter{writer: w}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (expected table, json, or sarif)", format)
}

// Summary aggregates observed results per run mode.
type Summary struct {
	Total   int                       `json:"total"`
	ByMode  map[string]map[string]int `json:"by_mode"`
	Denials []Denial                  `json:"denials,omitempty"`
}

// Denial is the condensed view of one denied or failed operation.
type Denial struct {
	Probe    string `json:"probe"`
	Mode     string `json:"mode"`
	Category string `json:"category"`
	Verb     string `json:"verb"`
	Target   string `json:"target,omitempty"`
	Result   string `json:"result"`
	Errno    string `json:"errno,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Summarize computes the per-mode result counts and the denial listing.
func Summarize(objects []boundary.Object) Summary {
	summary := Summary{Total: len(objects), ByMode: make(map[string]map[string]int)}
	for _, obj := range objects {
		mode := obj.Run.Mode
		if summary.ByMode[mode] == nil {
			summary.ByMode[mode] = make(map[string]int)
		}
		summary.ByMode[mode][string(obj.Result.ObservedResult)]++

		if obj.Result.ObservedResult == boundary.StatusDenied || obj.Result.ObservedResult == boundary.StatusError {
			summary.Denials = append(summary.Denials, Denial{
				Probe:    obj.Probe.ID,
				Mode:     mode,
				Category: obj.Operation.Category,
				Verb:     obj.Operation.Verb,
				Target:   obj.Operation.Target,
				Result:   string(obj.Result.ObservedResult),
				Errno:    obj.Result.Errno,
				Message:  obj.Result.Message,
			})
		}
	}
	return summary
}

// TableFormatter renders a human-readable summary.
type TableFormatter struct {
	writer io.Writer
}

// Format writes the per-mode counts followed by the denial listing.
func (f *TableFormatter) Format(objects []boundary.Object) error {
	summary := Summarize(objects)

	tw := tabwriter.NewWriter(f.writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tRESULT\tCOUNT")
	for _, mode := range sortedKeys(summary.ByMode) {
		results := summary.ByMode[mode]
		names := make([]string, 0, len(results))
		for name := range results {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", mode, name, results[name])
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(summary.Denials) > 0 {
		fmt.Fprintf(f.writer, "\n%d denied or failed operation(s):\n", len(summary.Denials))
		for _, d := range summary.Denials {
			fmt.Fprintf(f.writer, "  %s [%s] %s %s", d.Probe, d.Mode, d.Verb, d.Target)
			if d.Errno != "" {
				fmt.Fprintf(f.writer, " (%s)", d.Errno)
			}
			fmt.Fprintln(f.writer)
		}
	}
	return nil
}

// JSONFormatter renders the summary as a JSON document.
type JSONFormatter struct {
	writer io.Writer
}

// Format writes the summary as indented JSON.
func (f *JSONFormatter) Format(objects []boundary.Object) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(Summarize(objects))
}

func sortedKeys(m map[string]map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
