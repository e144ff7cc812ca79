package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

// Source supplies live statistics. *runner.Scheduler satisfies it.
type Source interface {
	Aggregator() *metrics.Aggregator
	ActiveVUs() int
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   Source
	interval time.Duration
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source Source, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 2) {
		close(p.done)
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	s := p.source.Aggregator().Snapshot()
	return fmt.Sprintf("\rVUs: %d | Iterations: %d | Successes: %d | Failures: %d | Errors: %d | It/s: %.1f | P95: %.1fms",
		p.source.ActiveVUs(), s.Total, s.Successes, s.Failures, s.Errors, s.IterationsPerSec, s.P95LatencyMs)
}
