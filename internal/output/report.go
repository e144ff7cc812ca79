// Package output renders run summaries as text, JSON or YAML and prints a
// live progress line while a run is in flight.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/threshold"
)

// Report is the machine-readable result of a run.
type Report struct {
	metrics.Summary `yaml:",inline"`
	FailureRate     float64            `json:"failure_rate" yaml:"failure_rate"`
	Thresholds      []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Passed          bool               `json:"passed" yaml:"passed"`

	// ProtocolMetrics holds counters kept by the workload, keyed by protocol
	// then event (for example websocket/messages_sent).
	ProtocolMetrics map[string]map[string]int64 `json:"protocol_metrics,omitempty" yaml:"protocol_metrics,omitempty"`
}

// NewReport pairs a summary with its threshold results.
func NewReport(summary metrics.Summary, results []threshold.Result) Report {
	return Report{
		Summary:     summary,
		FailureRate: summary.FailureRate(),
		Thresholds:  results,
		Passed:      threshold.AllPassed(results),
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, report Report) {
	s := report.Summary
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if s.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", s.RunID)
	}
	fmt.Fprintf(w, "Virtual Users:     %d", s.VirtualUsers)
	if s.FailedVUs > 0 {
		fmt.Fprintf(w, " (%d failed to start)", s.FailedVUs)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total Iterations:  %d\n", s.Total)
	fmt.Fprintf(w, "Successful:        %d\n", s.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", s.Failures)
	fmt.Fprintf(w, "Errors:            %d\n", s.Errors)
	fmt.Fprintf(w, "Failure Rate:      %.2f%%\n", report.FailureRate*100)
	fmt.Fprintf(w, "Duration:          %s\n", s.Duration)
	fmt.Fprintf(w, "Iterations/sec:    %.2f\n", s.IterationsPerSec)
	fmt.Fprintln(w, "\nIteration Duration:")
	fmt.Fprintf(w, "  Min:             %s\n", s.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", s.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", s.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", s.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", s.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", s.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", s.P99Latency)

	if len(s.Reasons) > 0 {
		fmt.Fprintln(w, "\nFailure Reasons:")
		writeReasons(w, s.Reasons, "  ")
	}

	if len(report.ProtocolMetrics) > 0 {
		fmt.Fprintln(w, "\nProtocol Metrics:")
		for _, protocol := range sortedKeys(report.ProtocolMetrics) {
			fmt.Fprintf(w, "  %s:\n", protocol)
			counters := report.ProtocolMetrics[protocol]
			for _, event := range sortedKeys(counters) {
				fmt.Fprintf(w, "    %s: %v\n", event, counters[event])
			}
		}
	}

	if len(report.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range report.Thresholds {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
		if report.Passed {
			fmt.Fprintln(w, "\nAll thresholds passed.")
		} else {
			fmt.Fprintln(w, "\nThreshold check failed.")
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func writeReasons(w io.Writer, rows []metrics.ReasonCount, indent string) {
	for _, row := range rows {
		fmt.Fprintf(
			w,
			"%s%s %s: %d\n",
			indent,
			strings.ToUpper(row.Status.String()),
			row.Detail,
			row.Count,
		)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
