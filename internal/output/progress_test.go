package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

type fakeSource struct {
	agg *metrics.Aggregator
	vus int
}

func (f fakeSource) Aggregator() *metrics.Aggregator { return f.agg }
func (f fakeSource) ActiveVUs() int                  { return f.vus }

// syncBuffer guards a bytes.Buffer written by the reporter goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressReporterFormatting(t *testing.T) {
	agg := metrics.NewAggregator()
	agg.Start()
	agg.Record(metrics.Iteration{VU: 1, Elapsed: 50 * time.Millisecond, Status: metrics.StatusSuccess})
	agg.Record(metrics.Iteration{VU: 2, Elapsed: 70 * time.Millisecond, Status: metrics.StatusFailure, Detail: "HTTP 500"})

	var buf syncBuffer
	reporter := NewProgressReporter(fakeSource{agg: agg, vus: 2}, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start() // second start is a no-op

	time.Sleep(100 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	output := buf.String()
	for _, want := range []string{"VUs: 2", "Iterations: 2", "Successes: 1", "Failures: 1", "Errors: 0"} {
		if !strings.Contains(output, want) {
			t.Errorf("progress output missing %q: %q", want, output)
		}
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Stop should end the progress line")
	}
}

func TestProgressReporterStopWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(fakeSource{agg: metrics.NewAggregator()}, 0, &buf)
	if reporter.interval != time.Second {
		t.Errorf("interval = %v, want default 1s", reporter.interval)
	}
	reporter.Stop()
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}
