package runner

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

// vu is a single virtual user. Its iterations run strictly one after another.
type vu struct {
	id       int
	workload Workload
	agg      *metrics.Aggregator
	pacer    pacer
	sleep    time.Duration
}

// loop runs iterations until stop is done. stop is only observed between
// iterations; an iteration that has started always runs to completion.
func (v *vu) loop(stop context.Context) {
	for seq := int64(0); ; seq++ {
		if stop.Err() != nil {
			return
		}
		if err := v.pacer.Wait(stop); err != nil {
			// A pacer that can never grant a slot parks the VU until stop.
			<-stop.Done()
			return
		}

		v.agg.Record(v.iterate(stop, seq))

		if v.sleep > 0 && !sleep(stop, v.sleep) {
			return
		}
	}
}

func (v *vu) iterate(stop context.Context, seq int64) metrics.Iteration {
	ctx := WithIteration(context.WithoutCancel(stop), v.id, seq)

	start := time.Now()
	out := v.invoke(ctx)
	elapsed := time.Since(start)

	it := metrics.Iteration{
		VU:      v.id,
		Seq:     seq,
		Start:   start,
		Elapsed: elapsed,
		Status:  out.Status,
		Detail:  out.Detail,
	}
	switch {
	case out.Status == metrics.StatusSuccess && out.Err != nil:
		it.Status = metrics.StatusError
	case out.Status != metrics.StatusSuccess && out.Status != metrics.StatusFailure:
		it.Status = metrics.StatusError
	}
	if it.Status != metrics.StatusSuccess && it.Detail == "" {
		it.Detail = metrics.ErrorDetail(out.Err)
	}
	return it
}

func (v *vu) invoke(ctx context.Context) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Faulted(&PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	return v.workload.Invoke(ctx)
}

// sleep pauses for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
