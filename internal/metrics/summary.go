package metrics

import (
	"math"
	"sort"
	"time"
)

// Summary represents aggregated run statistics.
type Summary struct {
	RunID        string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Total        int64         `json:"total" yaml:"total"`
	Successes    int64         `json:"successes" yaml:"successes"`
	Failures     int64         `json:"failures" yaml:"failures"`
	Errors       int64         `json:"errors" yaml:"errors"`
	VirtualUsers int           `json:"virtual_users" yaml:"virtual_users"`
	FailedVUs    int           `json:"failed_vus" yaml:"failed_vus"`
	MinLatency   time.Duration `json:"-" yaml:"-"`
	MaxLatency   time.Duration `json:"-" yaml:"-"`
	MeanLatency  time.Duration `json:"-" yaml:"-"`
	P50Latency   time.Duration `json:"-" yaml:"-"`
	P90Latency   time.Duration `json:"-" yaml:"-"`
	P95Latency   time.Duration `json:"-" yaml:"-"`
	P99Latency   time.Duration `json:"-" yaml:"-"`
	Duration     time.Duration `json:"-" yaml:"-"`

	IterationsPerSec float64 `json:"iterations_per_sec" yaml:"iterations_per_sec"`

	// Millisecond mirrors of the latency fields for machine-readable output.
	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`

	Reasons []ReasonCount `json:"reasons,omitempty" yaml:"reasons,omitempty"`
}

// ReasonCount is the number of non-successful iterations that shared a detail.
type ReasonCount struct {
	Status Status `json:"status" yaml:"status"`
	Detail string `json:"detail" yaml:"detail"`
	Count  int64  `json:"count" yaml:"count"`
}

// FailureRate is the share of iterations that did not succeed.
func (s Summary) FailureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failures+s.Errors) / float64(s.Total)
}

func (s *Summary) fillMillis() {
	s.MinLatencyMs = toMillis(s.MinLatency)
	s.MaxLatencyMs = toMillis(s.MaxLatency)
	s.MeanLatencyMs = toMillis(s.MeanLatency)
	s.P50LatencyMs = toMillis(s.P50Latency)
	s.P90LatencyMs = toMillis(s.P90Latency)
	s.P95LatencyMs = toMillis(s.P95Latency)
	s.P99LatencyMs = toMillis(s.P99Latency)
	s.DurationMs = toMillis(s.Duration)
	if s.Duration > 0 && s.Total > 0 {
		s.IterationsPerSec = float64(s.Total) / s.Duration.Seconds()
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// NearestRank returns the p-th percentile of sorted using the nearest-rank
// method: the smallest sample such that at least p percent of samples are
// less than or equal to it. sorted must be in ascending order.
func NearestRank(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// FlattenReasons converts a status->detail->count map into rows sorted by
// descending count, then by status and detail for stability.
func FlattenReasons(reasons map[Status]map[string]int64) []ReasonCount {
	if len(reasons) == 0 {
		return nil
	}
	rows := make([]ReasonCount, 0)
	for status, details := range reasons {
		for detail, count := range details {
			rows = append(rows, ReasonCount{Status: status, Detail: detail, Count: count})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Status == rows[j].Status {
				return rows[i].Detail < rows[j].Detail
			}
			return rows[i].Status < rows[j].Status
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
