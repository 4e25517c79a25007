package output

import (
	"fmt"
	"io"
	"sort"

	"github.com/owenrumney/go-sarif/v3/pkg/report/v210/sarif"

	"github.com/fenceline-dev/fenceline/internal/boundary"
	"github.com/fenceline-dev/fenceline/internal/version"
)

// SARIFFormatter renders boundary objects as SARIF 2.1.0 JSON: one rule per
// probe, one result per record.
type SARIFFormatter struct {
	writer io.Writer
}

// Format writes the SARIF report.
func (f *SARIFFormatter) Format(objects []boundary.Object) error {
	report := sarif.NewReport()
	run := sarif.NewRunWithInformationURI("fenceline", "https://github.com/fenceline-dev/fenceline")
	toolVersion := version.Get().Version
	run.Tool.Driver.Version = &toolVersion

	for _, probeID := range probeIDs(objects) {
		rule := sarif.NewReportingDescriptor().WithID(probeID)
		rule.WithName(probeID)
		text := "Sandbox boundary probe " + probeID
		rule.WithShortDescription(&sarif.MultiformatMessageString{Text: &text})
		run.Tool.Driver.AddRule(rule)
	}

	for _, obj := range objects {
		result := sarif.NewRuleResult(obj.Probe.ID)
		result.Kind = mapKind(obj.Result.ObservedResult)
		result.Level = mapLevel(obj.Result.ObservedResult)
		result.Message = sarif.NewTextMessage(resultMessage(obj))

		props := sarif.NewPropertyBag()
		props.Add("mode", obj.Run.Mode)
		props.Add("category", obj.Operation.Category)
		props.Add("verb", obj.Operation.Verb)
		if obj.Operation.Target != "" {
			props.Add("target", obj.Operation.Target)
		}
		if obj.Result.Errno != "" {
			props.Add("errno", obj.Result.Errno)
		}
		result.WithProperties(props)

		run.AddResult(result)
	}

	report.AddRun(run)
	if err := report.Write(f.writer); err != nil {
		return fmt.Errorf("failed to write SARIF output: %w", err)
	}
	_, err := f.writer.Write([]byte("\n"))
	return err
}

func probeIDs(objects []boundary.Object) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, obj := range objects {
		if !seen[obj.Probe.ID] {
			seen[obj.Probe.ID] = true
			ids = append(ids, obj.Probe.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func resultMessage(obj boundary.Object) string {
	msg := fmt.Sprintf("probe %s observed %s for %s.%s in mode %s",
		obj.Probe.ID, obj.Result.ObservedResult, obj.Operation.Category, obj.Operation.Verb, obj.Run.Mode)
	if obj.Result.Message != "" {
		msg += ": " + obj.Result.Message
	}
	return msg
}

func mapKind(status boundary.Status) string {
	switch status {
	case boundary.StatusSuccess:
		return "pass"
	case boundary.StatusPartial:
		return "review"
	}
	return "fail"
}

func mapLevel(status boundary.Status) string {
	switch status {
	case boundary.StatusSuccess:
		return "note"
	case boundary.StatusError:
		return "error"
	}
	return "warning"
}
