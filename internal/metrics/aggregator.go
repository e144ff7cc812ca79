package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// maxReasons bounds the distinct failure details kept per status; further
// details are counted under otherReason.
const (
	maxReasons  = 32
	otherReason = "other"
)

// Observer is notified of every iteration accepted by an Aggregator.
type Observer interface {
	Observe(it Iteration)
}

// Aggregator records iteration outcomes in a thread-safe manner.
type Aggregator struct {
	mu         sync.Mutex
	hist       *hdrhistogram.Histogram
	samples    []time.Duration
	successes  int64
	failures   int64
	errors     int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	reasons    map[Status]map[string]int64
	observers  []Observer
	start      time.Time
	final      *Summary
}

func NewAggregator() *Aggregator {
	// Track latencies from 1µs up to 10min with 3 significant figures.
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	return &Aggregator{
		hist:    h,
		reasons: make(map[Status]map[string]int64),
		start:   time.Now(),
	}
}

// Start marks T0 of the run. Iterations per second are computed from here.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.start = time.Now()
}

// AddObserver registers o to see every subsequently recorded iteration.
func (a *Aggregator) AddObserver(o Observer) {
	if o == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// Record tallies one iteration. It is safe for concurrent use and drops
// iterations that arrive after Finalize.
func (a *Aggregator) Record(it Iteration) {
	a.mu.Lock()
	if a.final != nil {
		a.mu.Unlock()
		return
	}

	latency := it.Elapsed
	if latency < 0 {
		latency = 0
	}
	us := latency.Microseconds()
	if us < a.hist.LowestTrackableValue() {
		us = a.hist.LowestTrackableValue()
	}
	if us > a.hist.HighestTrackableValue() {
		us = a.hist.HighestTrackableValue()
	}
	_ = a.hist.RecordValue(us)
	a.samples = append(a.samples, latency)
	a.sumLatency += latency

	total := a.successes + a.failures + a.errors
	if total == 0 || latency < a.minLatency {
		a.minLatency = latency
	}
	if latency > a.maxLatency {
		a.maxLatency = latency
	}

	switch it.Status {
	case StatusSuccess:
		a.successes++
	case StatusFailure:
		a.failures++
		a.addReason(it.Status, it.Detail)
	default:
		a.errors++
		a.addReason(StatusError, it.Detail)
	}

	observers := a.observers
	a.mu.Unlock()

	for _, o := range observers {
		o.Observe(it)
	}
}

func (a *Aggregator) addReason(status Status, detail string) {
	if detail == "" {
		detail = status.String()
	}
	details, ok := a.reasons[status]
	if !ok {
		details = make(map[string]int64)
		a.reasons[status] = details
	}
	if _, seen := details[detail]; !seen && len(details) >= maxReasons {
		detail = otherReason
	}
	details[detail]++
}

// Snapshot returns live statistics. Percentiles are histogram estimates.
// Once the aggregator is finalized, Snapshot returns the final summary.
func (a *Aggregator) Snapshot() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.final != nil {
		return *a.final
	}

	s := a.baseSummary(time.Since(a.start))
	if a.hist.TotalCount() > 0 {
		s.P50Latency = time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P90Latency = time.Duration(a.hist.ValueAtQuantile(90)) * time.Microsecond
		s.P95Latency = time.Duration(a.hist.ValueAtQuantile(95)) * time.Microsecond
		s.P99Latency = time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	s.fillMillis()
	return s
}

// Finalize computes the run summary with exact nearest-rank percentiles.
// The first call fixes the result; later calls return the same summary.
func (a *Aggregator) Finalize() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.final != nil {
		return *a.final
	}

	s := a.baseSummary(time.Since(a.start))
	if len(a.samples) > 0 {
		sorted := slices.Clone(a.samples)
		slices.Sort(sorted)
		s.P50Latency = NearestRank(sorted, 50)
		s.P90Latency = NearestRank(sorted, 90)
		s.P95Latency = NearestRank(sorted, 95)
		s.P99Latency = NearestRank(sorted, 99)
	}
	s.fillMillis()

	a.final = &s
	return s
}

// Finalized reports whether Finalize has been called.
func (a *Aggregator) Finalized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.final != nil
}

// baseSummary must be called with a.mu held.
func (a *Aggregator) baseSummary(elapsed time.Duration) Summary {
	total := a.successes + a.failures + a.errors
	s := Summary{
		Total:      total,
		Successes:  a.successes,
		Failures:   a.failures,
		Errors:     a.errors,
		MinLatency: a.minLatency,
		MaxLatency: a.maxLatency,
		Duration:   elapsed,
		Reasons:    FlattenReasons(a.reasons),
	}
	if total > 0 {
		s.MeanLatency = time.Duration(int64(a.sumLatency) / total)
	}
	return s
}
