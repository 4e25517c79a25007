package output

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenceline-dev/fenceline/internal/boundary"
)

func sampleObjects() []boundary.Object {
	return []boundary.Object{
		{
			Probe:     boundary.ProbeInfo{ID: "fs_read"},
			Run:       boundary.RunInfo{Mode: "baseline"},
			Operation: boundary.Operation{Category: "fs", Verb: "read", Target: "/work/.marker"},
			Result:    boundary.Result{ObservedResult: boundary.StatusSuccess},
		},
		{
			Probe:     boundary.ProbeInfo{ID: "fs_write_outside"},
			Run:       boundary.RunInfo{Mode: "sandbox"},
			Operation: boundary.Operation{Category: "fs", Verb: "write", Target: "/etc/hosts"},
			Result:    boundary.Result{ObservedResult: boundary.StatusDenied, Errno: "EPERM", Message: "Operation not permitted"},
		},
		{
			Probe:     boundary.ProbeInfo{ID: "fs_read"},
			Run:       boundary.RunInfo{Mode: "sandbox"},
			Operation: boundary.Operation{Category: "fs", Verb: "read"},
			Result:    boundary.Result{ObservedResult: boundary.StatusSuccess},
		},
	}
}

func TestSummarize(t *testing.T) {
	summary := Summarize(sampleObjects())

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.ByMode["baseline"]["success"])
	assert.Equal(t, 1, summary.ByMode["sandbox"]["success"])
	assert.Equal(t, 1, summary.ByMode["sandbox"]["denied"])

	require.Len(t, summary.Denials, 1)
	assert.Equal(t, "fs_write_outside", summary.Denials[0].Probe)
	assert.Equal(t, "EPERM", summary.Denials[0].Errno)
}

func TestTableFormatter(t *testing.T) {
	var buf strings.Builder
	formatter, err := NewFormatter("table", &buf)
	require.NoError(t, err)
	require.NoError(t, formatter.Format(sampleObjects()))

	out := buf.String()
	assert.Contains(t, out, "MODE")
	assert.Contains(t, out, "baseline")
	assert.Contains(t, out, "denied")
	assert.Contains(t, out, "1 denied or failed operation(s)")
	assert.Contains(t, out, "fs_write_outside")
}

func TestJSONFormatter(t *testing.T) {
	var buf strings.Builder
	formatter, err := NewFormatter("json", &buf)
	require.NoError(t, err)
	require.NoError(t, formatter.Format(sampleObjects()))

	var summary Summary
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &summary))
	assert.Equal(t, 3, summary.Total)
	require.Len(t, summary.Denials, 1)
}

func TestSARIFFormatter(t *testing.T) {
	var buf strings.Builder
	formatter, err := NewFormatter("sarif", &buf)
	require.NoError(t, err)
	require.NoError(t, formatter.Format(sampleObjects()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &doc))
	assert.Equal(t, "2.1.0", doc["version"])
	assert.Contains(t, buf.String(), "fs_write_outside")
	assert.Contains(t, buf.String(), `"fail"`)
}

func TestNewFormatter_Unknown(t *testing.T) {
	_, err := NewFormatter("xml", &strings.Builder{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
